// Package testutil provides an in-memory CollectionService for tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
)

// FakeService is an in-memory repository.CollectionService. Writes are delivered to
// subscribers synchronously on the writer's goroutine, which keeps tests deterministic.
type FakeService struct {
	mu          sync.Mutex
	rows        map[model.Collection][]model.ContentItem
	nextID      map[model.Collection]int64
	blobs       map[string][]byte
	subscribers map[model.Collection]map[int]repository.ChangeHandler
	nextSub     int

	// Failure injection.
	FetchErr       error
	SubscribeErr   error
	InsertErr      error
	UpdateErr      error
	uploadFailures map[int]error

	// Call log.
	UploadCalls     []string
	InsertManyCalls [][]model.ContentItem
	UpdateCalls     []model.Patch
	Releases        int
}

var _ repository.CollectionService = (*FakeService)(nil)

// NewFakeService returns an empty fake.
func NewFakeService() *FakeService {
	return &FakeService{
		rows:           make(map[model.Collection][]model.ContentItem),
		nextID:         make(map[model.Collection]int64),
		blobs:          make(map[string][]byte),
		subscribers:    make(map[model.Collection]map[int]repository.ChangeHandler),
		uploadFailures: make(map[int]error),
	}
}

// Seed stores rows directly without emitting events. Ids are kept as given.
func (f *FakeService) Seed(c model.Collection, rows ...model.ContentItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[c] = append(f.rows[c], rows...)
	for _, r := range rows {
		if r.ID >= f.nextID[c] {
			f.nextID[c] = r.ID
		}
	}
}

// FailUpload makes the n-th upload call (zero based) fail with err.
func (f *FakeService) FailUpload(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadFailures[n] = err
}

// Rows returns a copy of a collection ordered by id.
func (f *FakeService) Rows(c model.Collection) []model.ContentItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]model.ContentItem{}, f.rows[c]...)
	model.SortAscending(out)
	return out
}

// Blob returns stored bytes for path.
func (f *FakeService) Blob(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[path]
	return b, ok
}

// SubscriberCount returns the number of live subscriptions on c.
func (f *FakeService) SubscriberCount(c model.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[c])
}

// Emit delivers an arbitrary event to the subscribers of its collection.
func (f *FakeService) Emit(event model.ChangeEvent) {
	f.mu.Lock()
	handlers := make([]repository.ChangeHandler, 0, len(f.subscribers[event.Collection]))
	ids := make([]int, 0, len(f.subscribers[event.Collection]))
	for id := range f.subscribers[event.Collection] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, f.subscribers[event.Collection][id])
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

func (f *FakeService) FetchOrdered(ctx context.Context, c model.Collection, orderKey string, dir repository.Direction) ([]model.ContentItem, error) {
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	rows := f.Rows(c)
	if dir == repository.Descending {
		rows = model.Descending(rows)
	}
	return rows, nil
}

func (f *FakeService) InsertOne(ctx context.Context, c model.Collection, record model.ContentItem) (int64, error) {
	ids, err := f.InsertMany(ctx, c, []model.ContentItem{record})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (f *FakeService) InsertMany(ctx context.Context, c model.Collection, records []model.ContentItem) ([]int64, error) {
	f.mu.Lock()
	f.InsertManyCalls = append(f.InsertManyCalls, append([]model.ContentItem(nil), records...))
	if f.InsertErr != nil {
		f.mu.Unlock()
		return nil, f.InsertErr
	}
	inserted := make([]model.ContentItem, len(records))
	ids := make([]int64, len(records))
	for i, r := range records {
		f.nextID[c]++
		r.ID = f.nextID[c]
		f.rows[c] = append(f.rows[c], r)
		inserted[i] = r
		ids[i] = r.ID
	}
	f.mu.Unlock()

	for _, r := range inserted {
		f.Emit(model.ChangeEvent{Kind: model.EventInsert, Collection: c, Row: r, Timestamp: time.Now()})
	}
	return ids, nil
}

func (f *FakeService) UpdateOne(ctx context.Context, c model.Collection, id int64, patch model.Patch) error {
	f.mu.Lock()
	f.UpdateCalls = append(f.UpdateCalls, patch)
	if f.UpdateErr != nil {
		f.mu.Unlock()
		return f.UpdateErr
	}
	var updated *model.ContentItem
	for i := range f.rows[c] {
		if f.rows[c][i].ID == id {
			patch.ApplyTo(&f.rows[c][i])
			row := f.rows[c][i]
			updated = &row
			break
		}
	}
	f.mu.Unlock()

	if updated == nil {
		return apperrors.NewNotFoundError("record")
	}
	f.Emit(model.ChangeEvent{Kind: model.EventUpdate, Collection: c, Row: *updated, Timestamp: time.Now()})
	return nil
}

func (f *FakeService) DeleteOne(ctx context.Context, c model.Collection, id int64) error {
	f.mu.Lock()
	found := false
	for i := range f.rows[c] {
		if f.rows[c][i].ID == id {
			f.rows[c] = append(f.rows[c][:i], f.rows[c][i+1:]...)
			found = true
			break
		}
	}
	f.mu.Unlock()

	if !found {
		return apperrors.NewNotFoundError("record")
	}
	f.Emit(model.ChangeEvent{Kind: model.EventDelete, Collection: c, Row: model.ContentItem{ID: id}, Timestamp: time.Now()})
	return nil
}

func (f *FakeService) UploadBlob(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.UploadCalls)
	f.UploadCalls = append(f.UploadCalls, path)
	if err, ok := f.uploadFailures[n]; ok {
		return err
	}
	f.blobs[path] = append([]byte(nil), data...)
	return nil
}

func (f *FakeService) PublicURL(path string) string {
	return "https://storage.test/" + path
}

func (f *FakeService) SubscribeChanges(ctx context.Context, c model.Collection, handler repository.ChangeHandler) (repository.ReleaseFunc, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.mu.Lock()
	if f.subscribers[c] == nil {
		f.subscribers[c] = make(map[int]repository.ChangeHandler)
	}
	id := f.nextSub
	f.nextSub++
	f.subscribers[c][id] = handler
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subscribers[c][id]; ok {
			delete(f.subscribers[c], id)
			f.Releases++
		}
	}, nil
}
