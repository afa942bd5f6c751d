package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic is the pub/sub topic activity events travel on.
const Topic = "threadwatch.activity"

// Bus fans activity events out over an in-process watermill pub/sub and
// drains their payloads into a Sink.
type Bus struct {
	pubsub *gochannel.GoChannel
	sink   Sink

	closeOnce sync.Once
	done      chan struct{}
}

// NewBus subscribes sink to the activity topic and starts draining.
func NewBus(sink Sink, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	msgs, err := pubsub.Subscribe(context.Background(), Topic)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe activity topic: %w", err)
	}

	b := &Bus{
		pubsub: pubsub,
		sink:   sink,
		done:   make(chan struct{}),
	}
	go b.drain(msgs)
	return b, nil
}

// Publish stamps and publishes an event. Failures are logged, never returned:
// the activity journal must not interfere with replying.
func (b *Bus) Publish(ev Event) {
	ev = stamp(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[activity] marshal %s: %v", ev.Type, err)
		return
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("type", string(ev.Type))
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		log.Printf("[activity] publish %s: %v", ev.Type, err)
	}
}

// Close stops the pub/sub, waits for the drain loop and closes the sink.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.pubsub.Close()
		<-b.done
		if b.sink != nil {
			if cerr := b.sink.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (b *Bus) drain(msgs <-chan *message.Message) {
	defer close(b.done)
	for msg := range msgs {
		kind := msg.Metadata.Get("type")
		switch {
		case !json.Valid(msg.Payload):
			log.Printf("[activity] drop malformed %s message %s", kind, msg.UUID)
		case b.sink != nil:
			if err := b.sink.Record(msg.Payload); err != nil {
				log.Printf("[activity] record %s: %v", kind, err)
			}
		}
		msg.Ack()
	}
}
