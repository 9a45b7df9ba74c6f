package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"

	"github.com/fasthttp/websocket"
)

const confirmTimeout = 10 * time.Second

// SubscribeChanges opens a listen socket for col. handler runs on the socket's reader
// goroutine, one event at a time in the order the server sent them. The subscription ends
// when the returned release func is called, ctx is done, or the server goes away; it is
// not re-established.
func (c *Client) SubscribeChanges(ctx context.Context, col model.Collection, handler repository.ChangeHandler) (repository.ReleaseFunc, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	if err := conn.WriteJSON(model.SubscriptionRequest{Action: model.ActionSubscribe, Collection: col}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	early, err := awaitConfirmation(conn, col)
	if err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	s := &subscription{conn: conn, handler: handler, collection: col, client: c}
	stop := context.AfterFunc(ctx, s.release)

	go s.run(early, stop)
	c.log.Infof("Subscribed to %s", col)
	return s.release, nil
}

// awaitConfirmation reads until the server confirms the subscription. Change events that
// overtake the confirmation are returned so they can be delivered first.
func awaitConfirmation(conn *websocket.Conn, col model.Collection) ([]model.ChangeEvent, error) {
	_ = conn.SetReadDeadline(time.Now().Add(confirmTimeout))
	var early []model.ChangeEvent
	for {
		var msg model.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("awaiting subscription confirmation: %w", err)
		}
		switch msg.Type {
		case model.MessageTypeSubscriptionConfirmed:
			return early, nil
		case model.MessageTypeError:
			return nil, errors.New(msg.Error)
		case model.MessageTypeChange:
			if msg.Event != nil && msg.Event.Collection == col {
				early = append(early, *msg.Event)
			}
		}
	}
}

type subscription struct {
	conn       *websocket.Conn
	handler    repository.ChangeHandler
	collection model.Collection
	client     *Client

	once     sync.Once
	released atomic.Bool
}

func (s *subscription) run(early []model.ChangeEvent, stop func() bool) {
	defer stop()
	defer s.release()

	for _, event := range early {
		if s.released.Load() {
			return
		}
		s.handler(event)
	}

	for {
		var msg model.StreamMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !s.released.Load() {
				s.client.log.Warnf("Change stream for %s ended: %v", s.collection, err)
			}
			return
		}
		if msg.Type != model.MessageTypeChange || msg.Event == nil {
			continue
		}
		if s.released.Load() {
			return
		}
		s.handler(*msg.Event)
	}
}

func (s *subscription) release() {
	s.once.Do(func() {
		s.released.Store(true)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
		s.client.log.Debugf("Released subscription to %s", s.collection)
	})
}
