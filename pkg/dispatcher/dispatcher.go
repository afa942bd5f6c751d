// Package dispatcher runs the bot's main loop: it consumes the new-post
// stream, drives scheduler sweeps and comment scans, and recovers from
// transient gateway failures.
package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cpunion/threadwatch/pkg/activity"
	"github.com/cpunion/threadwatch/pkg/botlog"
	"github.com/cpunion/threadwatch/pkg/forum"
	"github.com/cpunion/threadwatch/pkg/scheduler"
	"github.com/cpunion/threadwatch/pkg/tracker"
	"github.com/cpunion/threadwatch/pkg/types"
)

var errStreamClosed = errors.New("post stream closed")

// PostStream opens a stream of new posts.
type PostStream interface {
	StreamNewPosts(ctx context.Context, communities []string) (<-chan types.Post, <-chan error, func())
}

// Config tunes the main loop.
type Config struct {
	Communities    []string
	PollInterval   time.Duration
	ErrorCooldown  time.Duration
	StatusInterval time.Duration
	ShutdownGrace  time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:   100 * time.Millisecond,
		ErrorCooldown:  30 * time.Second,
		StatusInterval: 5 * time.Minute,
		ShutdownGrace:  2 * time.Minute,
	}
}

// Snapshot reports loop health.
type Snapshot struct {
	Running           bool          `json:"running"`
	StartedAt         time.Time     `json:"started_at,omitempty"`
	LastTickAt        time.Time     `json:"last_tick_at,omitempty"`
	LastErrorAt       time.Time     `json:"last_error_at,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	StreamOpens       int           `json:"stream_opens"`
	PostsSeen         int64         `json:"posts_seen"`
	Executions        int64         `json:"executions"`
	Store             tracker.Stats `json:"store"`
}

// Dispatcher owns the main loop.
type Dispatcher struct {
	stream PostStream
	sched  *scheduler.Scheduler
	cfg    Config
	events activity.Publisher
	log    *botlog.Logger

	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	snapshot Snapshot
}

// New creates a dispatcher. Zero config fields take their defaults.
func New(stream PostStream, sched *scheduler.Scheduler, cfg Config, events activity.Publisher, log *botlog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = def.ErrorCooldown
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = def.ShutdownGrace
	}
	if events == nil {
		events = activity.Nop{}
	}
	return &Dispatcher{
		stream: stream,
		sched:  sched,
		cfg:    cfg,
		events: events,
		log:    log,
		clock:  time.Now,
		sleep:  sleepContext,
	}
}

// SetClock replaces the clock. Used by tests.
func (d *Dispatcher) SetClock(clock func() time.Time) {
	d.clock = clock
}

// SetSleep replaces the error cooldown sleeper. Used by tests.
func (d *Dispatcher) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	d.sleep = fn
}

// Snapshot returns a copy of the loop health.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.RLock()
	snap := d.snapshot
	d.mu.RUnlock()
	snap.Store = d.sched.Store().Stats()
	return snap
}

// Run blocks until ctx is canceled or a fatal gateway error occurs. On
// return it waits, up to ShutdownGrace, for replies already being executed.
// Cancellation is a clean exit and returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	d.snapshot.Running = true
	d.snapshot.StartedAt = d.clock()
	d.mu.Unlock()

	// Replies already started are not interrupted by shutdown.
	execCtx := context.WithoutCancel(ctx)
	defer d.shutdown()

	d.log.Infof("Monitoring r/%s for new posts...", strings.Join(d.cfg.Communities, "+"))
	for {
		err := d.runStream(ctx, execCtx)
		if ctx.Err() != nil {
			return nil
		}
		d.recordError(err)
		if forum.IsFatal(err) {
			d.log.Errorf("Fatal error: %v", err)
			return err
		}
		d.log.Errorf("Error in main loop: %v", err)
		d.log.Infof("Waiting %s before retrying...", botlog.FormatRemaining(d.cfg.ErrorCooldown))
		d.events.Publish(activity.Event{Type: activity.EventGatewayError, Detail: err.Error()})
		if d.sleep(ctx, d.cfg.ErrorCooldown) != nil {
			return nil
		}
	}
}

// runStream consumes one stream until it fails.
func (d *Dispatcher) runStream(ctx, execCtx context.Context) error {
	posts, errs, stop := d.stream.StreamNewPosts(ctx, d.cfg.Communities)
	defer stop()

	d.mu.Lock()
	d.snapshot.StreamOpens++
	d.mu.Unlock()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	lastStatus := d.clock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return errStreamClosed
			}
			return err
		case post, ok := <-posts:
			if !ok {
				return errStreamClosed
			}
			d.mu.Lock()
			d.snapshot.PostsSeen++
			d.mu.Unlock()
			d.sched.Discover(ctx, post, d.clock())
		case <-ticker.C:
		}

		now := d.clock()
		if err := d.tick(ctx, execCtx, now); err != nil {
			return err
		}
		if now.Sub(lastStatus) >= d.cfg.StatusInterval {
			d.logStatus()
			lastStatus = now
		}
	}
}

func (d *Dispatcher) tick(ctx, execCtx context.Context, now time.Time) error {
	n := d.sched.Sweep(execCtx, now)
	if err := d.sched.Fatal(); err != nil {
		return err
	}
	if err := d.sched.ScanComments(ctx, now); err != nil {
		return err
	}

	d.mu.Lock()
	d.snapshot.LastTickAt = now
	d.snapshot.Executions += int64(n)
	d.snapshot.ConsecutiveErrors = 0
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) recordError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot.LastErrorAt = d.clock()
	d.snapshot.LastError = err.Error()
	d.snapshot.ConsecutiveErrors++
}

func (d *Dispatcher) logStatus() {
	snap := d.Snapshot()
	st := snap.Store
	d.log.Infof("Status: tracking %d threads (%d awaiting OP reply, %d comment replies pending, %d in flight), %d replies posted, %d posts seen",
		st.Threads, st.PendingOP, st.PendingComments, st.InFlight, st.RepliesPosted, snap.PostsSeen)

	now := d.clock()
	for _, t := range d.sched.Store().Snapshots() {
		if !t.OP.Replied {
			d.log.Debugf("  %s: OP reply in %s", truncate(t.Post.Title, 50), botlog.FormatUntil(t.OPReplyDueAt(), now))
		}
	}
}

func (d *Dispatcher) shutdown() {
	d.log.Infof("Shutting down, waiting for replies in progress...")
	if !d.sched.WaitTimeout(d.cfg.ShutdownGrace) {
		d.log.Warnf("Replies still running after %s - exiting anyway", botlog.FormatRemaining(d.cfg.ShutdownGrace))
	}
	d.mu.Lock()
	d.snapshot.Running = false
	d.mu.Unlock()
	d.log.Infof("Bot stopped")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
