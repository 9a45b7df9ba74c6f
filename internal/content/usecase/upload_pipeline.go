package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"
)

// UploadTarget is the part of the remote service the pipeline writes to.
type UploadTarget interface {
	repository.RecordWriter
	repository.BlobUploader
}

// ProgressFunc receives the upload cursor before each file is processed.
type ProgressFunc func(p model.Progress)

// UploadPipeline turns local files plus shared metadata into persisted records of one collection.
// Files are uploaded strictly one after another and records are inserted only once every upload
// succeeded. Uploads that finished before a failure are left in storage.
type UploadPipeline struct {
	collection model.Collection
	target     UploadTarget
	now        func() time.Time
	log        logger.Logger

	mu        sync.Mutex
	inFlight  bool
	progress  model.Progress
	lastStamp int64
}

// NewUploadPipeline creates a pipeline writing to collection through target.
func NewUploadPipeline(collection model.Collection, target UploadTarget, log logger.Logger) *UploadPipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &UploadPipeline{
		collection: collection,
		target:     target,
		now:        time.Now,
		log:        log.WithComponent("upload").WithFields(map[string]interface{}{"collection": string(collection)}),
	}
}

// SubmitCreate uploads files in order and then inserts one record per file, all sharing meta.
// Any upload failure aborts the batch: later files are not attempted and no record is inserted.
func (p *UploadPipeline) SubmitCreate(ctx context.Context, files []model.UploadFile, meta model.Metadata, onProgress ProgressFunc) ([]int64, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ErrEmptyBatch.Error()).WithCause(apperrors.ErrEmptyBatch)
	}
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.end()

	// Started uploads are not cancellable.
	ctx = context.WithoutCancel(ctx)

	total := len(files)
	refs := make([]string, 0, total)
	for i, f := range files {
		p.report(model.Progress{Completed: i, Total: total}, onProgress)

		ref, err := p.uploadOne(ctx, f)
		if err != nil {
			if i > 0 {
				p.log.Warnf("Batch aborted at file %d/%d; %d uploaded blobs are left without records", i+1, total, i)
			}
			return nil, apperrors.NewUploadError(f.Name, i, err)
		}
		refs = append(refs, ref)
	}
	p.report(model.Progress{Completed: total, Total: total}, onProgress)

	records := make([]model.ContentItem, len(refs))
	for i, ref := range refs {
		records[i] = meta.Record(p.collection, ref)
	}

	ids, err := p.target.InsertMany(ctx, p.collection, records)
	if err != nil {
		return nil, apperrors.NewPersistenceError("insert", err)
	}

	p.log.Infof("Created %d records", len(ids))
	return ids, nil
}

// SubmitEdit updates an existing record. Metadata fields are always overwritten. When file is
// non-nil it is uploaded and replaces the media reference; otherwise the reference is kept.
func (p *UploadPipeline) SubmitEdit(ctx context.Context, id int64, file *model.UploadFile, meta model.Metadata) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.end()

	ctx = context.WithoutCancel(ctx)
	patch := meta.Patch(p.collection)

	if file != nil {
		p.report(model.Progress{Completed: 0, Total: 1}, nil)
		ref, err := p.uploadOne(ctx, *file)
		if err != nil {
			return apperrors.NewUploadError(file.Name, 0, err)
		}
		p.report(model.Progress{Completed: 1, Total: 1}, nil)
		patch = patch.WithMediaRef(ref)
	}

	if err := p.target.UpdateOne(ctx, p.collection, id, patch); err != nil {
		return apperrors.NewPersistenceError("update", err)
	}
	p.log.Infof("Updated record %d", id)
	return nil
}

// CreateWithoutMedia inserts a single record with an empty media reference.
func (p *UploadPipeline) CreateWithoutMedia(ctx context.Context, meta model.Metadata) (int64, error) {
	if err := p.begin(); err != nil {
		return 0, err
	}
	defer p.end()

	id, err := p.target.InsertOne(ctx, p.collection, meta.Record(p.collection, ""))
	if err != nil {
		return 0, apperrors.NewPersistenceError("insert", err)
	}
	return id, nil
}

// Delete removes a record. The media blob it referenced stays in storage.
func (p *UploadPipeline) Delete(ctx context.Context, id int64) error {
	if err := p.target.DeleteOne(ctx, p.collection, id); err != nil {
		return apperrors.NewPersistenceError("delete", err)
	}
	return nil
}

// Progress returns the last reported upload cursor.
func (p *UploadPipeline) Progress() model.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// InFlight reports whether a submission is running. Callers disable their submit control while true.
func (p *UploadPipeline) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// StorageKey builds the blob path for a file: <folder>/<unix nanos>.<ext>.
// Keys are strictly increasing within one pipeline even when the clock does not advance.
func (p *UploadPipeline) StorageKey(fileName string) string {
	p.mu.Lock()
	stamp := p.now().UnixNano()
	if stamp <= p.lastStamp {
		stamp = p.lastStamp + 1
	}
	p.lastStamp = stamp
	p.mu.Unlock()

	if ext := model.Extension(fileName); ext != "" {
		return fmt.Sprintf("%s/%d.%s", p.collection.Folder(), stamp, ext)
	}
	return fmt.Sprintf("%s/%d", p.collection.Folder(), stamp)
}

func (p *UploadPipeline) uploadOne(ctx context.Context, f model.UploadFile) (string, error) {
	key := p.StorageKey(f.Name)
	if err := p.target.UploadBlob(ctx, key, f.Data); err != nil {
		return "", err
	}
	p.log.Debugf("Uploaded %s as %s", f.Name, key)
	return p.target.PublicURL(key), nil
}

func (p *UploadPipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return apperrors.NewConflictError(apperrors.ErrBatchInFlight.Error()).WithCause(apperrors.ErrBatchInFlight)
	}
	p.inFlight = true
	p.progress = model.Progress{}
	return nil
}

func (p *UploadPipeline) end() {
	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()
}

func (p *UploadPipeline) report(progress model.Progress, onProgress ProgressFunc) {
	p.mu.Lock()
	p.progress = progress
	p.mu.Unlock()
	if onProgress != nil {
		onProgress(progress)
	}
}
