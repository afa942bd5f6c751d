package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/cpunion/threadwatch/pkg/activity"
	"github.com/cpunion/threadwatch/pkg/botlog"
	"github.com/cpunion/threadwatch/pkg/config"
	"github.com/cpunion/threadwatch/pkg/dispatcher"
	"github.com/cpunion/threadwatch/pkg/executor"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/llm"
	"github.com/cpunion/threadwatch/pkg/moderation"
	"github.com/cpunion/threadwatch/pkg/scheduler"
)

// bot is a fully wired instance ready to run.
type bot struct {
	name string
	disp *dispatcher.Dispatcher
	bus  *activity.Bus
	jrnl *activity.Journal
	log  *botlog.Logger
}

func openLog(cfg *config.Config) (*botlog.Logger, error) {
	log, err := botlog.New(botlog.Config{File: cfg.LogFile, Verbose: cfg.Verbose})
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return log, nil
}

func newBot(cfg *config.Config, gateway forum.Gateway, completer llm.Completer, name string, log *botlog.Logger) (*bot, error) {
	journal, err := activity.OpenJournal(cfg.ActivityLog)
	if err != nil {
		return nil, fmt.Errorf("open activity journal: %w", err)
	}
	bus, err := activity.NewBus(journal, watermill.NewStdLogger(cfg.Verbose, false))
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("start activity bus: %w", err)
	}

	exec := executor.New(gateway, completer, name, cfg.Executor(), log)
	sched := scheduler.New(cfg.Scheduler(), scheduler.Deps{
		BotName:  name,
		Replier:  exec,
		Mods:     moderation.NewClassifier(gateway, moderation.DefaultSystemAccounts, log),
		Comments: gateway,
		Events:   bus,
		Log:      log,
	})
	disp := dispatcher.New(gateway, sched, cfg.Dispatcher(), bus, log)

	return &bot{name: name, disp: disp, bus: bus, jrnl: journal, log: log}, nil
}

func (b *bot) run(ctx context.Context, cfg *config.Config, completer llm.Completer) error {
	defer func() {
		if err := b.bus.Close(); err != nil {
			b.log.Warnf("Failed to close activity journal: %v", err)
		}
		if path := b.jrnl.Path(); path != "" {
			b.log.Infof("Recorded %d activity events in %s", b.jrnl.Written(), path)
		}
	}()

	b.log.Separator()
	b.log.Infof("Bot started as u/%s", b.name)
	b.log.Infof("Communities: %s", strings.Join(cfg.Communities, ", "))
	if len(cfg.Keywords) > 0 {
		b.log.Infof("Keywords: %s", strings.Join(cfg.Keywords, ", "))
	} else {
		b.log.Infof("Keywords: none (replying to all posts)")
	}
	b.log.Infof("Reply delay: %s, completion policy: %s, model: %s",
		botlog.FormatRemaining(cfg.ReplyDelay), cfg.CompletionPolicy, completer.Name())
	b.log.Separator()

	return b.disp.Run(ctx)
}

// signalContext is canceled on SIGINT/SIGTERM and, when quitKey is set, on
// a "q" line from stdin.
func signalContext(parent context.Context, quitKey bool) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if !quitKey {
		return ctx, stop
	}
	ctx, cancel := context.WithCancel(ctx)
	go watchQuitKey(os.Stdin, cancel)
	return ctx, func() {
		cancel()
		stop()
	}
}

func watchQuitKey(r io.Reader, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
			cancel()
			return
		}
	}
}
