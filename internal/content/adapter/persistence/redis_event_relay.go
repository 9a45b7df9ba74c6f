package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	"keepsake/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisEventRelay fans change events out to every server instance through Redis pub/sub and
// appends them to a capped per-collection stream for inspection.
type RedisEventRelay struct {
	client    *redis.Client
	channel   string
	maxLen    int64
	origin    string
	logger    logger.Logger
	closeOnce chan struct{}
}

var _ repository.EventRelay = (*RedisEventRelay)(nil)

// envelope is the pub/sub payload. Origin lets an instance skip its own events,
// which it already delivered locally.
type envelope struct {
	Origin string            `json:"origin"`
	Event  model.ChangeEvent `json:"event"`
}

// NewRedisEventRelay creates a relay publishing on channel.
func NewRedisEventRelay(client *redis.Client, channel string, maxLen int64, log logger.Logger) *RedisEventRelay {
	if log == nil {
		log = logger.Nop()
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisEventRelay{
		client:    client,
		channel:   channel,
		maxLen:    maxLen,
		origin:    uuid.NewString(),
		logger:    log.WithComponent("redis-relay"),
		closeOnce: make(chan struct{}),
	}
}

// StreamKey returns the stream change events of c are logged to.
func StreamKey(c model.Collection) string {
	return "keepsake:events:" + string(c)
}

// Publish logs event to its collection stream and broadcasts it.
func (r *RedisEventRelay) Publish(ctx context.Context, event model.ChangeEvent) error {
	row, err := json.Marshal(event.Row)
	if err != nil {
		r.logger.Errorf("Failed to serialize event row: %v", err)
		return err
	}

	_, err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(event.Collection),
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":       string(event.Kind),
			"collection": string(event.Collection),
			"row":        row,
			"timestamp":  event.Timestamp.UnixNano(),
			"origin":     r.origin,
		},
	}).Result()
	if err != nil {
		r.logger.Errorf("Failed to log %s event for %s: %v", event.Kind, event.Collection, err)
		return err
	}

	payload, err := encodeEnvelope(r.origin, event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Errorf("Failed to publish %s event for %s: %v", event.Kind, event.Collection, err)
		return err
	}

	r.logger.Debugf("Relayed %s event for %s/%d", event.Kind, event.Collection, event.Row.ID)
	return nil
}

// Listen delivers events published by other instances until ctx is done or the relay is closed.
func (r *RedisEventRelay) Listen(ctx context.Context, deliver func(model.ChangeEvent)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		r.logger.Errorf("Failed to subscribe to %s: %v", r.channel, err)
		return err
	}
	r.logger.Infof("Listening for relayed events on %s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.closeOnce:
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, event, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				r.logger.Warnf("Dropping malformed relay message: %v", err)
				continue
			}
			if origin == r.origin {
				continue
			}
			deliver(event)
		}
	}
}

// Recent returns up to count logged events of c, newest first.
func (r *RedisEventRelay) Recent(ctx context.Context, c model.Collection, count int64) ([]model.ChangeEvent, error) {
	msgs, err := r.client.XRevRangeN(ctx, StreamKey(c), "+", "-", count).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.ChangeEvent{}, nil
		}
		return nil, err
	}

	events := make([]model.ChangeEvent, 0, len(msgs))
	for _, msg := range msgs {
		event, err := parseEventFromMessage(msg)
		if err != nil {
			r.logger.Warnf("Failed to parse stream entry %s: %v", msg.ID, err)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// Close stops Listen. The Redis client is owned by the caller.
func (r *RedisEventRelay) Close() error {
	select {
	case <-r.closeOnce:
	default:
		close(r.closeOnce)
	}
	return nil
}

func encodeEnvelope(origin string, event model.ChangeEvent) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Event: event})
}

func decodeEnvelope(data []byte) (string, model.ChangeEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", model.ChangeEvent{}, err
	}
	if !env.Event.Collection.Valid() {
		return "", model.ChangeEvent{}, errors.New("unknown collection " + strconv.Quote(string(env.Event.Collection)))
	}
	return env.Origin, env.Event, nil
}

// parseEventFromMessage converts a stream entry back into a ChangeEvent.
func parseEventFromMessage(msg redis.XMessage) (model.ChangeEvent, error) {
	event := model.ChangeEvent{}

	if kind, ok := msg.Values["kind"].(string); ok {
		event.Kind = model.EventKind(kind)
	}
	if c, ok := msg.Values["collection"].(string); ok {
		event.Collection = model.Collection(c)
	}
	if ts, ok := msg.Values["timestamp"].(string); ok {
		if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
			event.Timestamp = time.Unix(0, n)
		}
	}
	if row, ok := msg.Values["row"].(string); ok && row != "" {
		if err := json.Unmarshal([]byte(row), &event.Row); err != nil {
			return event, err
		}
	}
	if event.Kind == "" {
		return event, errors.New("stream entry has no kind")
	}
	return event, nil
}
