package usecase

import (
	"context"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"
)

// SeedResult is the outcome of seeding one collection.
type SeedResult struct {
	Collection model.Collection
	Inserted   int
	Err        error
}

// SeedFromDatasets copies static datasets into the remote collections with one bulk insert each.
// Ids are reassigned by the service, so running it twice duplicates every row. A failing collection
// is logged and the remaining ones are still attempted.
func SeedFromDatasets(ctx context.Context, writer repository.RecordWriter, datasets map[model.Collection][]model.ContentItem, log logger.Logger) []SeedResult {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("seed")

	results := make([]SeedResult, 0, len(datasets))
	for _, c := range model.Collections {
		items, ok := datasets[c]
		if !ok || len(items) == 0 {
			continue
		}

		records := make([]model.ContentItem, len(items))
		for i, it := range items {
			it.ID = 0
			records[i] = it
		}

		ids, err := writer.InsertMany(ctx, c, records)
		res := SeedResult{Collection: c, Inserted: len(ids)}
		if err != nil {
			res.Err = apperrors.NewPersistenceError("seed "+string(c), err)
			log.Errorf("Seeding %s failed: %v", c, err)
		} else {
			log.Infof("Seeded %d records into %s", len(ids), c)
		}
		results = append(results, res)
	}
	return results
}
