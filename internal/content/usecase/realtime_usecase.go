package usecase

import (
	"context"
	"fmt"
	"sync"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/shared/eventbus"
	"keepsake/internal/shared/logger"
)

// RealtimeUsecase tracks listen connections per collection and fans change events out to them.
type RealtimeUsecase interface {
	// Subscribe registers eventChannel for changes of c. The channel is owned by the subscriber.
	Subscribe(ctx context.Context, subscriberID string, c model.Collection, eventChannel chan<- model.ChangeEvent) error

	// Unsubscribe removes one subscription. After it returns no further event is sent on its channel.
	Unsubscribe(ctx context.Context, subscriberID string, c model.Collection) error

	// UnsubscribeAll removes every subscription of subscriberID.
	UnsubscribeAll(ctx context.Context, subscriberID string) error

	// PublishEvent delivers event to the subscribers of its collection without blocking.
	PublishEvent(ctx context.Context, event model.ChangeEvent) error

	// SubscriberCount returns the number of subscriptions on c.
	SubscriberCount(c model.Collection) int
}

type realtimeUsecaseImpl struct {
	// subscriptions maps a collection to subscriber ids and their event channels.
	subscriptions map[model.Collection]map[string]chan<- model.ChangeEvent
	mu            sync.RWMutex
	log           logger.Logger
}

// NewRealtimeUsecase creates a new instance of RealtimeUsecase.
func NewRealtimeUsecase(log logger.Logger) RealtimeUsecase {
	if log == nil {
		log = logger.Nop()
	}
	return &realtimeUsecaseImpl{
		subscriptions: make(map[model.Collection]map[string]chan<- model.ChangeEvent),
		log:           log.WithComponent("realtime"),
	}
}

func (uc *realtimeUsecaseImpl) Subscribe(ctx context.Context, subscriberID string, c model.Collection, eventChannel chan<- model.ChangeEvent) error {
	if err := validateCollection(c); err != nil {
		return err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if _, ok := uc.subscriptions[c]; !ok {
		uc.subscriptions[c] = make(map[string]chan<- model.ChangeEvent)
	}
	if _, ok := uc.subscriptions[c][subscriberID]; ok {
		uc.log.Warnf("Subscriber %s already listens to %s, replacing its channel", subscriberID, c)
	}
	uc.subscriptions[c][subscriberID] = eventChannel
	uc.log.Infof("Client %s subscribed to %s", subscriberID, c)
	return nil
}

func (uc *realtimeUsecaseImpl) Unsubscribe(ctx context.Context, subscriberID string, c model.Collection) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	subscribers, ok := uc.subscriptions[c]
	if !ok {
		return nil
	}
	if _, ok := subscribers[subscriberID]; !ok {
		uc.log.Debugf("Subscriber %s was not listening to %s", subscriberID, c)
		return nil
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(uc.subscriptions, c)
	}
	uc.log.Infof("Client %s unsubscribed from %s", subscriberID, c)
	return nil
}

func (uc *realtimeUsecaseImpl) UnsubscribeAll(ctx context.Context, subscriberID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	for c, subscribers := range uc.subscriptions {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(uc.subscriptions, c)
		}
	}
	return nil
}

func (uc *realtimeUsecaseImpl) PublishEvent(ctx context.Context, event model.ChangeEvent) error {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	subscribers := uc.subscriptions[event.Collection]
	if len(subscribers) == 0 {
		uc.log.Debugf("No subscribers for %s", event.Collection)
		return nil
	}

	for subID, ch := range subscribers {
		// A full buffer means a stalled client; it misses this event rather than blocking everyone.
		select {
		case ch <- event:
		default:
			uc.log.Warnf("Dropped %s event for subscriber %s on %s: channel full", event.Kind, subID, event.Collection)
		}
	}
	return nil
}

func (uc *realtimeUsecaseImpl) SubscriberCount(c model.Collection) int {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return len(uc.subscriptions[c])
}

// ChangeEventHandler adapts deliver to the event bus, unwrapping model.ChangeEvent payloads.
func ChangeEventHandler(deliver func(ctx context.Context, event model.ChangeEvent) error) eventbus.Handler {
	return func(ctx context.Context, e eventbus.Event) error {
		event, ok := e.Data().(model.ChangeEvent)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", e.Type(), e.Data())
		}
		return deliver(ctx, event)
	}
}
