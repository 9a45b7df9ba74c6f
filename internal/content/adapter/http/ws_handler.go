package http

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/usecase"
	"keepsake/internal/shared/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const writeWait = 10 * time.Second

// WebSocketHandler serves the listen endpoint: clients subscribe to collections and receive
// their change events in commit order.
type WebSocketHandler struct {
	realtimeUC usecase.RealtimeUsecase
	path       string
	bufferSize int
	log        logger.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler mounted at path.
// bufferSize bounds the events queued for one connection; a client that falls further behind
// misses events.
func NewWebSocketHandler(rt usecase.RealtimeUsecase, path string, bufferSize int, log logger.Logger) *WebSocketHandler {
	if log == nil {
		log = logger.Nop()
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &WebSocketHandler{
		realtimeUC: rt,
		path:       path,
		bufferSize: bufferSize,
		log:        log.WithComponent("websocket"),
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(router fiber.Router) {
	router.Use(h.path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get(h.path, websocket.New(h.handleConnection))
}

// handleConnection owns one socket. This goroutine reads client requests; a single writer
// goroutine sends every frame, replies and change events alike.
func (h *WebSocketHandler) handleConnection(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	subscriberID := uuid.NewString()
	log := h.log.WithFields(map[string]interface{}{"subscriber_id": subscriberID})
	log.Info("WebSocket connection established")

	// One channel serves every subscription of this connection, so events of different
	// collections keep their relative order.
	events := make(chan model.ChangeEvent, h.bufferSize)
	replies := make(chan model.StreamMessage, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, conn, events, replies, log)
		cancel()
	}()

	defer func() {
		if err := h.realtimeUC.UnsubscribeAll(context.Background(), subscriberID); err != nil {
			log.Errorf("Error unsubscribing all collections: %v", err)
		}
		cancel()
		wg.Wait()
		log.Info("WebSocket connection closed")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("WebSocket read failed: %v", err)
			}
			return
		}

		var reply model.StreamMessage
		var req model.SubscriptionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			reply = model.StreamMessage{Type: model.MessageTypeError, Error: "invalid message: " + err.Error()}
		} else {
			reply = h.handleRequest(ctx, subscriberID, req, events, log)
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *WebSocketHandler) handleRequest(
	ctx context.Context,
	subscriberID string,
	req model.SubscriptionRequest,
	events chan model.ChangeEvent,
	log logger.Logger,
) model.StreamMessage {
	col, err := model.ParseCollection(string(req.Collection))
	if err != nil {
		return model.StreamMessage{Type: model.MessageTypeError, Collection: req.Collection, Error: err.Error()}
	}

	switch req.Action {
	case model.ActionSubscribe:
		if err := h.realtimeUC.Subscribe(ctx, subscriberID, col, events); err != nil {
			log.Errorf("Error subscribing to %s: %v", col, err)
			return model.StreamMessage{Type: model.MessageTypeError, Collection: col, Error: "failed to subscribe"}
		}
		return model.StreamMessage{Type: model.MessageTypeSubscriptionConfirmed, Collection: col}
	case model.ActionUnsubscribe:
		if err := h.realtimeUC.Unsubscribe(ctx, subscriberID, col); err != nil {
			log.Errorf("Error unsubscribing from %s: %v", col, err)
		}
		return model.StreamMessage{Type: model.MessageTypeUnsubscriptionConfirmed, Collection: col}
	default:
		return model.StreamMessage{Type: model.MessageTypeError, Collection: col, Error: "unknown action: " + req.Action}
	}
}

func (h *WebSocketHandler) writeLoop(
	ctx context.Context,
	conn *websocket.Conn,
	events <-chan model.ChangeEvent,
	replies <-chan model.StreamMessage,
	log logger.Logger,
) {
	for {
		var msg model.StreamMessage
		select {
		case <-ctx.Done():
			return
		case msg = <-replies:
		case event := <-events:
			msg = model.StreamMessage{Type: model.MessageTypeChange, Collection: event.Collection, Event: &event}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Warnf("Error sending %s message: %v", msg.Type, err)
			// Unblock the reader.
			_ = conn.Close()
			return
		}
	}
}
