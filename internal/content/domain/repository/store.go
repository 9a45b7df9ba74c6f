package repository

import (
	"context"
	"io"

	"keepsake/internal/content/domain/model"
)

// RecordRepository is the server-side durable record store.
// Ids are assigned by the repository and increase monotonically per collection.
type RecordRepository interface {
	List(ctx context.Context, collection model.Collection, dir Direction) ([]model.ContentItem, error)
	Get(ctx context.Context, collection model.Collection, id int64) (*model.ContentItem, error)
	Insert(ctx context.Context, collection model.Collection, records []model.ContentItem) ([]model.ContentItem, error)
	Update(ctx context.Context, collection model.Collection, id int64, patch model.Patch) (*model.ContentItem, error)
	Delete(ctx context.Context, collection model.Collection, id int64) error
	Ping(ctx context.Context) error
}

// BlobStore is the server-side binary store behind the storage endpoints.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
}

// EventRelay distributes change events between server instances.
// Publish sends to every instance, including the caller; Listen delivers what others published.
type EventRelay interface {
	Publish(ctx context.Context, event model.ChangeEvent) error
	Listen(ctx context.Context, deliver func(model.ChangeEvent)) error
	Close() error
}
