// Package notify carries in-process wakeups between writers (mailbox submissions,
// event publishes) and the session loops that poll the record store. A wakeup only
// shortens the wait until the next poll; sessions never rely on receiving one.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

const (
	// TopicEvents receives the id of every published ChangeEvent
	TopicEvents        = "events"
	mailboxTopicPrefix = "mailbox:"
)

// MailboxTopic is the per-correlation-id wakeup topic
func MailboxTopic(correlationID string) string {
	return mailboxTopicPrefix + correlationID
}

// Bus delivers best-effort wakeups
type Bus interface {
	// Notify never blocks on slow subscribers and never fails the caller
	Notify(ctx context.Context, topic, key string)
	// Subscribe returns a channel closed when ctx is done
	Subscribe(ctx context.Context, topic string) (<-chan string, error)
	Close() error
}

// WatermillBus fans wakeups out over a non-persistent watermill GoChannel
type WatermillBus struct {
	pubSub     *gochannel.GoChannel
	bufferSize int
	logger     *slog.Logger
	closeOnce  sync.Once
}

// NewWatermillBus creates a bus whose subscriber channels buffer bufferSize keys
func NewWatermillBus(bufferSize int64) *WatermillBus {
	logger := logging.GetGlobalLogger("notify")
	if bufferSize <= 0 {
		bufferSize = 1
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: bufferSize,
		Persistent:          false,
	}, watermill.NewSlogLogger(logger))

	return &WatermillBus{
		pubSub:     pubSub,
		bufferSize: int(bufferSize),
		logger:     logger,
	}
}

func (b *WatermillBus) Notify(ctx context.Context, topic, key string) {
	msg := message.NewMessage(watermill.NewUUID(), message.Payload(key))
	if err := b.pubSub.Publish(topic, msg); err != nil {
		b.logger.DebugContext(ctx, "Dropped wakeup",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}

func (b *WatermillBus) Subscribe(ctx context.Context, topic string) (<-chan string, error) {
	messages, err := b.pubSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	out := make(chan string, b.bufferSize)
	go func() {
		defer close(out)
		for msg := range messages {
			msg.Ack()
			select {
			case out <- string(msg.Payload):
			default:
				// A pending wakeup already covers this one
			}
		}
	}()
	return out, nil
}

func (b *WatermillBus) Close() error {
	var err error
	b.closeOnce.Do(func() { err = b.pubSub.Close() })
	return err
}

// NopBus never wakes anyone; sessions fall back to their poll intervals
type NopBus struct{}

func (NopBus) Notify(context.Context, string, string) {}

// Subscribe returns a nil channel, which blocks forever in a select
func (NopBus) Subscribe(context.Context, string) (<-chan string, error) {
	return nil, nil
}

func (NopBus) Close() error { return nil }
