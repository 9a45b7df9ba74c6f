package repository

import (
	"context"

	"keepsake/internal/content/domain/model"
)

// Direction is the sort direction of an ordered read.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// OrderByID is the only order key the service supports.
const OrderByID = "id"

// ChangeHandler receives change events one at a time, in arrival order.
type ChangeHandler func(event model.ChangeEvent)

// ReleaseFunc ends a subscription. Calling it more than once is safe.
type ReleaseFunc func()

// SnapshotReader performs the one-shot ordered read that seeds a replica.
type SnapshotReader interface {
	FetchOrdered(ctx context.Context, collection model.Collection, orderKey string, dir Direction) ([]model.ContentItem, error)
}

// RecordWriter mutates records. Every committed write produces a change event.
type RecordWriter interface {
	InsertOne(ctx context.Context, collection model.Collection, record model.ContentItem) (int64, error)
	InsertMany(ctx context.Context, collection model.Collection, records []model.ContentItem) ([]int64, error)
	UpdateOne(ctx context.Context, collection model.Collection, id int64, patch model.Patch) error
	DeleteOne(ctx context.Context, collection model.Collection, id int64) error
}

// BlobUploader stores binary media and resolves its public reference.
type BlobUploader interface {
	UploadBlob(ctx context.Context, path string, data []byte) error
	PublicURL(path string) string
}

// ChangeFeed opens a live subscription to a collection.
// The handler is invoked from a single goroutine so events never overlap.
type ChangeFeed interface {
	SubscribeChanges(ctx context.Context, collection model.Collection, handler ChangeHandler) (ReleaseFunc, error)
}

// CollectionService is the remote collection store as consumed by clients.
type CollectionService interface {
	SnapshotReader
	RecordWriter
	BlobUploader
	ChangeFeed
}
