package mongodb

import (
	"bytes"
	"context"
	"errors"
	"io"

	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MediaBucket is the GridFS bucket uploaded media is stored in.
const MediaBucket = "media"

// GridFSBlobStore keeps uploaded media in GridFS, one file per storage path.
// Writing an existing path adds a revision; reads return the newest one.
type GridFSBlobStore struct {
	bucket *gridfs.Bucket
	logger logger.Logger
}

var _ repository.BlobStore = (*GridFSBlobStore)(nil)

type fileDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	Metadata struct {
		ContentType string `bson:"contentType"`
	} `bson:"metadata"`
}

// NewGridFSBlobStore opens the media bucket of db.
func NewGridFSBlobStore(db *mongo.Database, log logger.Logger) (*GridFSBlobStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(MediaBucket))
	if err != nil {
		return nil, err
	}
	return &GridFSBlobStore{bucket: bucket, logger: log.WithComponent("gridfs")}, nil
}

func (s *GridFSBlobStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	id, err := s.bucket.UploadFromStream(path, bytes.NewReader(data), opts)
	if err != nil {
		s.logger.Errorf("Failed to store blob %s: %v", path, err)
		return apperrors.NewPersistenceError("store blob", err)
	}
	s.logger.Debugf("Stored blob %s (%d bytes) as %s", path, len(data), id.Hex())
	return nil
}

// Open returns the newest revision stored under path and its content type.
func (s *GridFSBlobStore) Open(ctx context.Context, path string) (io.ReadCloser, string, error) {
	cursor, err := s.bucket.Find(bson.M{"filename": path},
		options.GridFSFind().SetSort(bson.D{{Key: "uploadDate", Value: -1}}).SetLimit(1))
	if err != nil {
		return nil, "", apperrors.NewPersistenceError("find blob", err)
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, "", apperrors.NewPersistenceError("find blob", err)
		}
		return nil, "", apperrors.NewNotFoundError("blob").WithCause(apperrors.ErrNotFound)
	}

	var file fileDoc
	if err := cursor.Decode(&file); err != nil {
		return nil, "", apperrors.NewPersistenceError("find blob", err)
	}

	stream, err := s.bucket.OpenDownloadStream(file.ID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, "", apperrors.NewNotFoundError("blob").WithCause(apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, "", apperrors.NewPersistenceError("open blob", err)
	}
	return stream, file.Metadata.ContentType, nil
}
