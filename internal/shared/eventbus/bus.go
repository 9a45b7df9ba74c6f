package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"keepsake/internal/shared/logger"
)

// Event represents a generic event
type Event interface {
	Type() string
	Data() interface{}
	Timestamp() time.Time
	Source() string
}

// Handler defines the event handler function type
type Handler func(ctx context.Context, event Event) error

// EventBusInterface defines the contract for event bus implementations
type EventBusInterface interface {
	Subscribe(eventType string, handler Handler)
	Publish(ctx context.Context, event Event) error
	Unsubscribe(eventType string)
	GetSubscriberCount(eventType string) int
}

// EventBus is an in-process publish/subscribe bus.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logger.Logger
	config   BusConfig
}

// BusConfig holds configuration for the event bus
type BusConfig struct {
	AsyncProcessing bool
	MaxRetries      int
	RetryDelay      time.Duration
}

// DefaultBusConfig delivers synchronously and never retries: a retried change event would reach
// subscribers twice.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		AsyncProcessing: false,
		MaxRetries:      0,
		RetryDelay:      100 * time.Millisecond,
	}
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	return NewEventBusWithConfig(log, DefaultBusConfig())
}

// NewEventBusWithConfig creates a new event bus with custom configuration
func NewEventBusWithConfig(log logger.Logger, config BusConfig) *EventBus {
	if log == nil {
		log = logger.Nop()
	}
	return &EventBus{
		handlers: make(map[string][]Handler),
		logger:   log,
		config:   config,
	}
}

// Subscribe adds a handler for a specific event type
func (eb *EventBus) Subscribe(eventType string, handler Handler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Debugf("Subscribed handler for event type: %s", eventType)
}

// Publish sends an event to all registered handlers
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	handlers := append([]Handler(nil), eb.handlers[event.Type()]...)
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		eb.logger.Debugf("No handlers found for event type: %s", event.Type())
		return nil
	}

	if eb.config.AsyncProcessing {
		return eb.publishAsync(ctx, event, handlers)
	}
	return eb.publishSync(ctx, event, handlers)
}

func (eb *EventBus) publishSync(ctx context.Context, event Event, handlers []Handler) error {
	for i, handler := range handlers {
		if err := eb.executeHandler(ctx, event, handler, i); err != nil {
			return err
		}
	}
	return nil
}

func (eb *EventBus) publishAsync(ctx context.Context, event Event, handlers []Handler) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(handlers))

	for i, handler := range handlers {
		wg.Add(1)
		go func(h Handler, idx int) {
			defer wg.Done()
			if err := eb.executeHandler(ctx, event, h, idx); err != nil {
				errCh <- err
			}
		}(handler, i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (eb *EventBus) executeHandler(ctx context.Context, event Event, handler Handler, handlerIndex int) error {
	var lastErr error

	for attempt := 0; attempt <= eb.config.MaxRetries; attempt++ {
		if attempt > 0 {
			eb.logger.Warnf("Retrying handler %d for event %s (attempt %d/%d)",
				handlerIndex, event.Type(), attempt+1, eb.config.MaxRetries+1)
			time.Sleep(eb.config.RetryDelay)
		}

		if err := handler(ctx, event); err != nil {
			lastErr = err
			eb.logger.Errorf("Handler %d failed for event %s: %v", handlerIndex, event.Type(), err)
			continue
		}
		return nil
	}

	return fmt.Errorf("handler failed after %d attempts: %w", eb.config.MaxRetries+1, lastErr)
}

// Unsubscribe removes all handlers for a specific event type
func (eb *EventBus) Unsubscribe(eventType string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	delete(eb.handlers, eventType)
}

// GetSubscriberCount returns the number of handlers for an event type
func (eb *EventBus) GetSubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// BasicEvent implements the Event interface
type BasicEvent struct {
	eventType string
	data      interface{}
	timestamp time.Time
	source    string
}

// NewBasicEventWithSource creates a new basic event with source
func NewBasicEventWithSource(eventType string, data interface{}, source string) Event {
	return &BasicEvent{
		eventType: eventType,
		data:      data,
		timestamp: time.Now(),
		source:    source,
	}
}

func (e *BasicEvent) Type() string         { return e.eventType }
func (e *BasicEvent) Data() interface{}    { return e.data }
func (e *BasicEvent) Timestamp() time.Time { return e.timestamp }
func (e *BasicEvent) Source() string       { return e.source }

// EventTypeRecordChanged is published by the collection usecase after every committed write.
// Its Data is a model.ChangeEvent.
const EventTypeRecordChanged = "record.changed"
