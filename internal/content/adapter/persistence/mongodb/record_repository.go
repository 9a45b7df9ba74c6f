package mongodb

import (
	"context"
	"errors"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CountersCollection stores one sequence document per content collection.
const CountersCollection = "counters"

// RecordRepository stores content records with integer ids. Ids come from a per-collection
// counter document so they increase monotonically and are never reused.
type RecordRepository struct {
	db     *mongo.Database
	logger logger.Logger
}

var _ repository.RecordRepository = (*RecordRepository)(nil)

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// NewRecordRepository creates a repository over db.
func NewRecordRepository(db *mongo.Database, log logger.Logger) *RecordRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &RecordRepository{db: db, logger: log.WithComponent("mongodb")}
}

func (r *RecordRepository) List(ctx context.Context, c model.Collection, dir repository.Direction) ([]model.ContentItem, error) {
	order := 1
	if dir == repository.Descending {
		order = -1
	}
	cursor, err := r.db.Collection(string(c)).Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: order}}))
	if err != nil {
		r.logger.Errorf("Failed to list %s: %v", c, err)
		return nil, apperrors.NewPersistenceError("list", err)
	}
	defer cursor.Close(ctx)

	items := []model.ContentItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, apperrors.NewPersistenceError("list", err)
	}
	return items, nil
}

func (r *RecordRepository) Get(ctx context.Context, c model.Collection, id int64) (*model.ContentItem, error) {
	var item model.ContentItem
	err := r.db.Collection(string(c)).FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("record").WithCause(apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get", err)
	}
	return &item, nil
}

// Insert assigns ids to records and stores them with one InsertMany. The returned items carry their ids.
func (r *RecordRepository) Insert(ctx context.Context, c model.Collection, records []model.ContentItem) ([]model.ContentItem, error) {
	if len(records) == 0 {
		return []model.ContentItem{}, nil
	}

	last, err := r.reserveIDs(ctx, c, int64(len(records)))
	if err != nil {
		return nil, err
	}

	first := last - int64(len(records)) + 1
	inserted := make([]model.ContentItem, len(records))
	docs := make([]interface{}, len(records))
	for i, rec := range records {
		rec.ID = first + int64(i)
		inserted[i] = rec
		docs[i] = rec
	}

	if _, err := r.db.Collection(string(c)).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		r.logger.Errorf("Failed to insert %d records into %s: %v", len(docs), c, err)
		return nil, apperrors.NewPersistenceError("insert", err)
	}

	r.logger.Debugf("Inserted ids %d..%d into %s", first, last, c)
	return inserted, nil
}

// Update applies patch and returns the full record after the update.
func (r *RecordRepository) Update(ctx context.Context, c model.Collection, id int64, patch model.Patch) (*model.ContentItem, error) {
	if patch.Empty() {
		return r.Get(ctx, c, id)
	}

	var item model.ContentItem
	err := r.db.Collection(string(c)).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": patch.Fields()},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("record").WithCause(apperrors.ErrNotFound)
	}
	if err != nil {
		r.logger.Errorf("Failed to update %s/%d: %v", c, id, err)
		return nil, apperrors.NewPersistenceError("update", err)
	}
	return &item, nil
}

func (r *RecordRepository) Delete(ctx context.Context, c model.Collection, id int64) error {
	res, err := r.db.Collection(string(c)).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Errorf("Failed to delete %s/%d: %v", c, id, err)
		return apperrors.NewPersistenceError("delete", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError("record").WithCause(apperrors.ErrNotFound)
	}
	return nil
}

func (r *RecordRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

// reserveIDs advances the counter of c by n and returns the new value, the last reserved id.
func (r *RecordRepository) reserveIDs(ctx context.Context, c model.Collection, n int64) (int64, error) {
	var counter counterDoc
	err := r.db.Collection(CountersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": string(c)},
		bson.M{"$inc": bson.M{"seq": n}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		r.logger.Errorf("Failed to reserve %d ids for %s: %v", n, c, err)
		return 0, apperrors.NewPersistenceError("reserve ids", err)
	}
	return counter.Seq, nil
}
