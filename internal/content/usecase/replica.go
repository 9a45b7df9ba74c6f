package usecase

import (
	"context"
	"sync"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"
)

// Source tells where a replica's current seed came from.
type Source string

const (
	SourceNone     Source = ""
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// ReplicaStore is a client-held ordered copy of one remote collection. It is seeded by a
// snapshot read (or the static fallback) and then mutated only by applied change events.
type ReplicaStore struct {
	collection model.Collection
	reader     repository.SnapshotReader
	feed       repository.ChangeFeed
	fallback   []model.ContentItem
	log        logger.Logger

	mu       sync.RWMutex
	items    []model.ContentItem
	source   Source
	sub      *Subscription
	onChange func(items []model.ContentItem)
}

// NewReplicaStore creates an empty replica. Nothing is read until Load or Mount.
func NewReplicaStore(
	collection model.Collection,
	reader repository.SnapshotReader,
	feed repository.ChangeFeed,
	staticFallback []model.ContentItem,
	log logger.Logger,
) *ReplicaStore {
	if log == nil {
		log = logger.Nop()
	}
	return &ReplicaStore{
		collection: collection,
		reader:     reader,
		feed:       feed,
		fallback:   append([]model.ContentItem(nil), staticFallback...),
		log:        log.WithComponent("replica").WithFields(map[string]interface{}{"collection": string(collection)}),
	}
}

// OnChange registers a callback invoked with a copy of the list after every seed and every applied event.
func (r *ReplicaStore) OnChange(fn func(items []model.ContentItem)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Load seeds the replica. A failed or empty snapshot is replaced by the static fallback verbatim;
// otherwise the replica holds exactly the fetched rows. The two are never merged.
func (r *ReplicaStore) Load(ctx context.Context) Source {
	rows, err := r.reader.FetchOrdered(ctx, r.collection, repository.OrderByID, repository.Ascending)

	var seed []model.ContentItem
	var source Source
	switch {
	case err != nil:
		r.log.Warnf("Using fallback dataset: %v", apperrors.NewSnapshotFetchError(string(r.collection), err))
		seed, source = r.fallback, SourceFallback
	case len(rows) == 0:
		r.log.Info("Remote collection is empty, using fallback dataset")
		seed, source = r.fallback, SourceFallback
	default:
		seed, source = rows, SourceRemote
	}

	r.mu.Lock()
	r.items = append(make([]model.ContentItem, 0, len(seed)), seed...)
	r.source = source
	r.mu.Unlock()

	r.log.Debugf("Seeded %d items from %s", len(seed), source)
	r.notify()
	return source
}

// Refresh re-seeds the replica on explicit request. An open subscription is kept.
func (r *ReplicaStore) Refresh(ctx context.Context) Source {
	return r.Load(ctx)
}

// Subscribe opens the replica's single live subscription. Failure is logged and returned; the
// replica then stays at its last seed and nothing retries.
func (r *ReplicaStore) Subscribe(ctx context.Context) (*Subscription, error) {
	r.mu.Lock()
	if r.sub != nil && !r.sub.Released() {
		r.mu.Unlock()
		return nil, apperrors.NewConflictError("replica already has a live subscription")
	}
	r.mu.Unlock()

	release, err := r.feed.SubscribeChanges(ctx, r.collection, r.Apply)
	if err != nil {
		subErr := apperrors.NewSubscriptionError(string(r.collection), err)
		r.log.Errorf("Live updates unavailable, replica will stay static: %v", subErr)
		return nil, subErr
	}

	sub := newSubscription(r.collection, release, r.log)
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
	return sub, nil
}

// Mount performs the view lifecycle start: seed, then subscribe. The returned subscription is
// nil when the change stream could not be opened.
func (r *ReplicaStore) Mount(ctx context.Context) (*Subscription, Source) {
	source := r.Load(ctx)
	sub, _ := r.Subscribe(ctx)
	return sub, source
}

// Apply applies one change event to the list. Events must be delivered one at a time.
func (r *ReplicaStore) Apply(event model.ChangeEvent) {
	if event.Collection != "" && event.Collection != r.collection {
		r.log.Debugf("Ignoring %s event for collection %s", event.Kind, event.Collection)
		return
	}

	r.mu.Lock()
	switch event.Kind {
	case model.EventInsert:
		if i := r.indexOf(event.Row.ID); i >= 0 {
			// ids are unique; a repeated insert overwrites instead of duplicating.
			r.items[i] = event.Row
		} else {
			r.items = append(r.items, event.Row)
		}
		model.SortAscending(r.items)
	case model.EventUpdate:
		if i := r.indexOf(event.Row.ID); i >= 0 {
			r.items[i] = event.Row
		}
	case model.EventDelete:
		if i := r.indexOf(event.Row.ID); i >= 0 {
			r.items = append(r.items[:i], r.items[i+1:]...)
		}
	default:
		r.mu.Unlock()
		r.log.Warnf("Unknown change event kind %q", event.Kind)
		return
	}
	r.mu.Unlock()

	r.notify()
}

// List returns a copy of the replica, ascending by id.
func (r *ReplicaStore) List() []model.ContentItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.ContentItem{}, r.items...)
}

// AdminList returns a copy of the replica ordered for administrative listings, descending by id.
func (r *ReplicaStore) AdminList() []model.ContentItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.Descending(r.items)
}

// Source reports where the current seed came from.
func (r *ReplicaStore) Source() Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// Collection returns the collection this replica mirrors.
func (r *ReplicaStore) Collection() model.Collection {
	return r.collection
}

func (r *ReplicaStore) indexOf(id int64) int {
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *ReplicaStore) notify() {
	r.mu.RLock()
	fn := r.onChange
	var snapshot []model.ContentItem
	if fn != nil {
		snapshot = append([]model.ContentItem{}, r.items...)
	}
	r.mu.RUnlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Subscription is the release handle of a live change stream.
type Subscription struct {
	collection model.Collection
	release    repository.ReleaseFunc
	once       sync.Once
	released   chan struct{}
	log        logger.Logger
}

func newSubscription(collection model.Collection, release repository.ReleaseFunc, log logger.Logger) *Subscription {
	return &Subscription{
		collection: collection,
		release:    release,
		released:   make(chan struct{}),
		log:        log,
	}
}

// Release ends the subscription. Only the first call has an effect.
func (s *Subscription) Release() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
		close(s.released)
		s.log.Debug("Subscription released")
	})
}

// Released reports whether Release has been called.
func (s *Subscription) Released() bool {
	select {
	case <-s.released:
		return true
	default:
		return false
	}
}

// Done is closed once the subscription is released.
func (s *Subscription) Done() <-chan struct{} {
	return s.released
}
