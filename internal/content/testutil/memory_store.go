package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
)

// MemoryRecords is an in-memory repository.RecordRepository.
type MemoryRecords struct {
	mu     sync.Mutex
	rows   map[model.Collection][]model.ContentItem
	nextID map[model.Collection]int64

	InsertErr error
	PingErr   error
}

var _ repository.RecordRepository = (*MemoryRecords)(nil)

// NewMemoryRecords returns an empty store.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		rows:   make(map[model.Collection][]model.ContentItem),
		nextID: make(map[model.Collection]int64),
	}
}

func (m *MemoryRecords) List(ctx context.Context, c model.Collection, dir repository.Direction) ([]model.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.ContentItem{}, m.rows[c]...)
	model.SortAscending(out)
	if dir == repository.Descending {
		out = model.Descending(out)
	}
	return out, nil
}

func (m *MemoryRecords) Get(ctx context.Context, c model.Collection, id int64) (*model.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(c, id); i >= 0 {
		row := m.rows[c][i]
		return &row, nil
	}
	return nil, apperrors.NewNotFoundError("record")
}

func (m *MemoryRecords) Insert(ctx context.Context, c model.Collection, records []model.ContentItem) ([]model.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	out := make([]model.ContentItem, len(records))
	for i, r := range records {
		m.nextID[c]++
		r.ID = m.nextID[c]
		m.rows[c] = append(m.rows[c], r)
		out[i] = r
	}
	return out, nil
}

func (m *MemoryRecords) Update(ctx context.Context, c model.Collection, id int64, patch model.Patch) (*model.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(c, id)
	if i < 0 {
		return nil, apperrors.NewNotFoundError("record")
	}
	patch.ApplyTo(&m.rows[c][i])
	row := m.rows[c][i]
	return &row, nil
}

func (m *MemoryRecords) Delete(ctx context.Context, c model.Collection, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(c, id)
	if i < 0 {
		return apperrors.NewNotFoundError("record")
	}
	m.rows[c] = append(m.rows[c][:i], m.rows[c][i+1:]...)
	return nil
}

func (m *MemoryRecords) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MemoryRecords) index(c model.Collection, id int64) int {
	for i, r := range m.rows[c] {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// MemoryBlobs is an in-memory repository.BlobStore.
type MemoryBlobs struct {
	mu    sync.Mutex
	data  map[string][]byte
	types map[string]string

	PutErr error
}

var _ repository.BlobStore = (*MemoryBlobs)(nil)

// NewMemoryBlobs returns an empty blob store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{data: make(map[string][]byte), types: make(map[string]string)}
}

func (m *MemoryBlobs) Put(ctx context.Context, path string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	m.data[path] = append([]byte(nil), data...)
	m.types[path] = contentType
	return nil
}

func (m *MemoryBlobs) Open(ctx context.Context, path string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[path]
	if !ok {
		return nil, "", apperrors.NewNotFoundError("blob")
	}
	return io.NopCloser(bytes.NewReader(b)), m.types[path], nil
}

// Len returns the number of stored blobs.
func (m *MemoryBlobs) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
