package realtime

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const redisChannelPrefix = "inbox:"

// wireChange is the msgpack payload on the Redis channel.
type wireChange struct {
	Op             string `msgpack:"op"`
	ActorID        string `msgpack:"a"`
	ConversationID string `msgpack:"c"`
}

// RedisFeed publishes and subscribes to per-actor Redis channels. Publishing
// goes through InboxChanged, which the inbox service calls after each write.
type RedisFeed struct {
	client *redis.Client
	logger *log.Logger
}

func NewRedisFeed(client *redis.Client, logger *log.Logger) *RedisFeed {
	if logger == nil {
		logger = log.Default()
	}
	return &RedisFeed{client: client, logger: logger}
}

func channelFor(actorID uuid.UUID) string {
	return redisChannelPrefix + actorID.String()
}

func (f *RedisFeed) InboxChanged(ctx context.Context, actorID, conversationID uuid.UUID, op string) error {
	data, err := encodeChange(Change{Op: op, ActorID: actorID, ConversationID: conversationID})
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, channelFor(actorID), data).Err()
}

func (f *RedisFeed) Subscribe(ctx context.Context, actorID uuid.UUID) (<-chan Change, error) {
	ps := f.client.Subscribe(ctx, channelFor(actorID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", channelFor(actorID), err)
	}

	out := make(chan Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				c, err := decodeChange([]byte(m.Payload))
				if err != nil {
					f.logger.Warn("realtime: bad redis payload", "channel", m.Channel, "err", err)
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()
	return out, nil
}

func encodeChange(c Change) ([]byte, error) {
	return msgpack.Marshal(&wireChange{
		Op:             c.Op,
		ActorID:        c.ActorID.String(),
		ConversationID: c.ConversationID.String(),
	})
}

func decodeChange(data []byte) (Change, error) {
	var w wireChange
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Change{}, err
	}
	actorID, err := uuid.Parse(w.ActorID)
	if err != nil {
		return Change{}, fmt.Errorf("actor id: %w", err)
	}
	convID, err := uuid.Parse(w.ConversationID)
	if err != nil {
		return Change{}, fmt.Errorf("conversation id: %w", err)
	}
	return Change{Op: w.Op, ActorID: actorID, ConversationID: convID}, nil
}
