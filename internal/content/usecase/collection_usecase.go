package usecase

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/eventbus"
	"keepsake/internal/shared/logger"
)

const eventSource = "collection_usecase"

// StoragePrefix is the URL path blobs are served under.
const StoragePrefix = "/v1/storage/"

// CollectionUsecaseInterface is what the HTTP adapter needs from the collection usecase.
type CollectionUsecaseInterface interface {
	List(ctx context.Context, c model.Collection, dir repository.Direction) ([]model.ContentItem, error)
	Create(ctx context.Context, c model.Collection, records []model.ContentItem) ([]model.ContentItem, error)
	Update(ctx context.Context, c model.Collection, id int64, patch model.Patch) (*model.ContentItem, error)
	Delete(ctx context.Context, c model.Collection, id int64) error
	PutBlob(ctx context.Context, p string, data []byte, contentType string) (string, error)
	OpenBlob(ctx context.Context, p string) (*Blob, error)
	Health(ctx context.Context) error
}

var _ CollectionUsecaseInterface = (*CollectionUsecase)(nil)

// CollectionUsecase is the server side of the remote collection service. Every committed write
// is published on the event bus as a model.ChangeEvent.
type CollectionUsecase struct {
	records    repository.RecordRepository
	blobs      repository.BlobStore
	bus        eventbus.EventBusInterface
	publicBase string
	now        func() time.Time
	log        logger.Logger
}

// NewCollectionUsecase creates the usecase. publicBase is the origin media URLs are built on.
func NewCollectionUsecase(
	records repository.RecordRepository,
	blobs repository.BlobStore,
	bus eventbus.EventBusInterface,
	publicBase string,
	log logger.Logger,
) *CollectionUsecase {
	if log == nil {
		log = logger.Nop()
	}
	return &CollectionUsecase{
		records:    records,
		blobs:      blobs,
		bus:        bus,
		publicBase: strings.TrimRight(publicBase, "/"),
		now:        time.Now,
		log:        log.WithComponent("collections"),
	}
}

// List returns every record of c ordered by id.
func (uc *CollectionUsecase) List(ctx context.Context, c model.Collection, dir repository.Direction) ([]model.ContentItem, error) {
	if err := validateCollection(c); err != nil {
		return nil, err
	}
	return uc.records.List(ctx, c, dir)
}

// Create stores records and announces each one as an INSERT, in id order.
func (uc *CollectionUsecase) Create(ctx context.Context, c model.Collection, records []model.ContentItem) ([]model.ContentItem, error) {
	if err := validateCollection(c); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewValidationError("at least one record is required")
	}
	rows := make([]model.ContentItem, len(records))
	for i, r := range records {
		r.ID = 0
		rows[i] = r
	}

	inserted, err := uc.records.Insert(ctx, c, rows)
	if err != nil {
		return nil, err
	}
	for _, row := range inserted {
		uc.publish(ctx, model.EventInsert, c, row)
	}
	uc.log.Infof("Inserted %d records into %s", len(inserted), c)
	return inserted, nil
}

// Update applies patch to record id and announces the full new row as an UPDATE.
func (uc *CollectionUsecase) Update(ctx context.Context, c model.Collection, id int64, patch model.Patch) (*model.ContentItem, error) {
	if err := validateCollection(c); err != nil {
		return nil, err
	}
	row, err := uc.records.Update(ctx, c, id, patch)
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, model.EventUpdate, c, *row)
	return row, nil
}

// Delete removes record id and announces it as a DELETE carrying only the id.
func (uc *CollectionUsecase) Delete(ctx context.Context, c model.Collection, id int64) error {
	if err := validateCollection(c); err != nil {
		return err
	}
	if err := uc.records.Delete(ctx, c, id); err != nil {
		return err
	}
	uc.publish(ctx, model.EventDelete, c, model.ContentItem{ID: id})
	return nil
}

// PutBlob stores data under p. An empty contentType is derived from the extension.
func (uc *CollectionUsecase) PutBlob(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	clean, err := CleanBlobPath(p)
	if err != nil {
		return "", err
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ContentTypeFor(clean)
	}
	if err := uc.blobs.Put(ctx, clean, data, contentType); err != nil {
		return "", err
	}
	uc.log.Debugf("Stored %s (%s, %d bytes)", clean, contentType, len(data))
	return uc.PublicURL(clean), nil
}

// OpenBlob is the read side of PutBlob.
func (uc *CollectionUsecase) OpenBlob(ctx context.Context, p string) (*Blob, error) {
	clean, err := CleanBlobPath(p)
	if err != nil {
		return nil, err
	}
	rc, contentType, err := uc.blobs.Open(ctx, clean)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = ContentTypeFor(clean)
	}
	return &Blob{Path: clean, ContentType: contentType, Body: rc}, nil
}

// PublicURL returns the public reference of a stored blob.
func (uc *CollectionUsecase) PublicURL(p string) string {
	return uc.publicBase + StoragePrefix + strings.TrimLeft(p, "/")
}

// Health pings the record store.
func (uc *CollectionUsecase) Health(ctx context.Context) error {
	return uc.records.Ping(ctx)
}

func (uc *CollectionUsecase) publish(ctx context.Context, kind model.EventKind, c model.Collection, row model.ContentItem) {
	event := model.ChangeEvent{Kind: kind, Collection: c, Row: row, Timestamp: uc.now()}
	// The write is committed; a failing subscriber must not turn it into an error.
	if err := uc.bus.Publish(ctx, eventbus.NewBasicEventWithSource(eventbus.EventTypeRecordChanged, event, eventSource)); err != nil {
		uc.log.Errorf("Failed to publish %s for %s/%d: %v", kind, c, row.ID, err)
	}
}

// CleanBlobPath normalizes a storage path and rejects escapes out of the storage root.
func CleanBlobPath(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", apperrors.NewValidationError("storage path is required")
	}
	clean := path.Clean(p)
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", apperrors.NewValidationError("invalid storage path").WithDetail("path", p)
	}
	return clean, nil
}

// ContentTypeFor guesses a media type from the file extension of p.
func ContentTypeFor(p string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(p))); ct != "" {
		return ct
	}
	switch model.Extension(p) {
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	case "ogg":
		return "video/ogg"
	case "mov":
		return "video/quicktime"
	}
	return "application/octet-stream"
}

func validateCollection(c model.Collection) error {
	if !c.Valid() {
		return apperrors.NewValidationError("unknown collection " + string(c)).
			WithCause(apperrors.ErrUnknownCollection).
			WithDetail("collection", string(c))
	}
	return nil
}
