package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/testutil"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func files(names ...string) []model.UploadFile {
	out := make([]model.UploadFile, len(names))
	for i, n := range names {
		out[i] = model.UploadFile{Name: n, Data: []byte("data-" + n)}
	}
	return out
}

type progressRecorder struct {
	mu    sync.Mutex
	calls []model.Progress
}

func (r *progressRecorder) record(p model.Progress) {
	r.mu.Lock()
	r.calls = append(r.calls, p)
	r.mu.Unlock()
}

func TestUploadPipeline_SubmitCreateSharesMetadata(t *testing.T) {
	svc := testutil.NewFakeService()
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())
	rec := &progressRecorder{}

	ids, err := p.SubmitCreate(context.Background(), files("a.jpg", "b.mp4"), model.Metadata{Caption: "Beach"}, rec.record)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	rows := svc.Rows(model.CollectionPhotos)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "Beach", row.Caption)
		assert.True(t, strings.HasPrefix(row.MediaRef, "https://storage.test/gallery/"))
	}
	assert.True(t, strings.HasSuffix(rows[0].MediaRef, ".jpg"))
	assert.True(t, strings.HasSuffix(rows[1].MediaRef, ".mp4"))
	assert.Equal(t, model.MediaVideo, rows[1].Kind())

	require.Len(t, svc.InsertManyCalls, 1, "records are inserted with a single bulk call")
	assert.Equal(t, []model.Progress{{Completed: 0, Total: 2}, {Completed: 1, Total: 2}, {Completed: 2, Total: 2}}, rec.calls)
	assert.True(t, p.Progress().Done())
	assert.False(t, p.InFlight())
}

func TestUploadPipeline_SubmitCreateCardsUsesCardFields(t *testing.T) {
	svc := testutil.NewFakeService()
	p := NewUploadPipeline(model.CollectionCards, svc, logger.Nop())

	_, err := p.SubmitCreate(context.Background(), files("x.png"), model.Metadata{
		Title: "First trip", Date: "2023-05-01", Description: "Lisbon", Caption: "ignored",
	}, nil)
	require.NoError(t, err)

	rows := svc.Rows(model.CollectionCards)
	require.Len(t, rows, 1)
	assert.Equal(t, "First trip", rows[0].Title)
	assert.Equal(t, "2023-05-01", rows[0].Date)
	assert.Equal(t, "Lisbon", rows[0].Description)
	assert.Empty(t, rows[0].Caption)
	assert.True(t, strings.HasPrefix(svc.UploadCalls[0], "memories/"))
}

func TestUploadPipeline_UploadFailureAbortsWithoutInserts(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.FailUpload(1, errors.New("storage unavailable"))
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())
	rec := &progressRecorder{}

	ids, err := p.SubmitCreate(context.Background(), files("f1.jpg", "f2.jpg", "f3.jpg"), model.Metadata{Caption: "x"}, rec.record)

	require.Error(t, err)
	assert.Nil(t, ids)
	assert.True(t, apperrors.IsUpload(err))
	assert.Contains(t, err.Error(), "f2.jpg")

	assert.Empty(t, svc.InsertManyCalls)
	assert.Empty(t, svc.Rows(model.CollectionPhotos))
	assert.Len(t, svc.UploadCalls, 2, "f3 is never attempted")
	assert.Equal(t, []model.Progress{{Completed: 0, Total: 3}, {Completed: 1, Total: 3}}, rec.calls)

	// f1 stays in storage without a record.
	_, ok := svc.Blob(svc.UploadCalls[0])
	assert.True(t, ok)
	assert.False(t, p.InFlight())
}

func TestUploadPipeline_InsertFailureIsPersistenceError(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.InsertErr = errors.New("write conflict")
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())

	_, err := p.SubmitCreate(context.Background(), files("a.jpg"), model.Metadata{}, nil)

	assert.True(t, apperrors.IsPersistence(err))
	assert.Len(t, svc.UploadCalls, 1)
}

func TestUploadPipeline_EmptyBatchRejectedBeforeIO(t *testing.T) {
	svc := testutil.NewFakeService()
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())

	_, err := p.SubmitCreate(context.Background(), nil, model.Metadata{Caption: "x"}, nil)

	assert.True(t, apperrors.IsValidation(err))
	assert.ErrorIs(t, err, apperrors.ErrEmptyBatch)
	assert.Empty(t, svc.UploadCalls)
	assert.Empty(t, svc.InsertManyCalls)
}

func TestUploadPipeline_CancelledContextDoesNotInterruptUploads(t *testing.T) {
	svc := testutil.NewFakeService()
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ids, err := p.SubmitCreate(ctx, files("a.jpg", "b.jpg"), model.Metadata{}, nil)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestUploadPipeline_SubmitEditWithoutFileKeepsMedia(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.Seed(model.CollectionPhotos, model.ContentItem{ID: 4, MediaRef: "u", Caption: "a"})
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())

	err := p.SubmitEdit(context.Background(), 4, nil, model.Metadata{Caption: "b"})
	require.NoError(t, err)

	rows := svc.Rows(model.CollectionPhotos)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ContentItem{ID: 4, MediaRef: "u", Caption: "b"}, rows[0])

	require.Len(t, svc.UpdateCalls, 1)
	assert.Equal(t, map[string]interface{}{"caption": "b"}, svc.UpdateCalls[0].Fields())
	assert.Empty(t, svc.UploadCalls)
}

func TestUploadPipeline_SubmitEditWithFileReplacesMedia(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.Seed(model.CollectionCards, model.ContentItem{ID: 2, MediaRef: "old.jpg", Title: "t"})
	p := NewUploadPipeline(model.CollectionCards, svc, logger.Nop())

	file := model.UploadFile{Name: "clip.webm", Data: []byte("v")}
	require.NoError(t, p.SubmitEdit(context.Background(), 2, &file, model.Metadata{Title: "new"}))

	row := svc.Rows(model.CollectionCards)[0]
	assert.Equal(t, "new", row.Title)
	assert.True(t, strings.HasSuffix(row.MediaRef, ".webm"))
	assert.Equal(t, model.MediaVideo, row.Kind())
}

func TestUploadPipeline_SubmitEditUploadFailureLeavesRecord(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.Seed(model.CollectionPhotos, model.ContentItem{ID: 1, MediaRef: "keep.jpg"})
	svc.FailUpload(0, errors.New("boom"))
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())

	file := model.UploadFile{Name: "n.jpg"}
	err := p.SubmitEdit(context.Background(), 1, &file, model.Metadata{Caption: "z"})

	assert.True(t, apperrors.IsUpload(err))
	assert.Empty(t, svc.UpdateCalls)
	assert.Equal(t, "keep.jpg", svc.Rows(model.CollectionPhotos)[0].MediaRef)
}

func TestUploadPipeline_CreateWithoutMedia(t *testing.T) {
	svc := testutil.NewFakeService()
	p := NewUploadPipeline(model.CollectionCards, svc, logger.Nop())

	id, err := p.CreateWithoutMedia(context.Background(), model.Metadata{Title: "note"})
	require.NoError(t, err)

	row := svc.Rows(model.CollectionCards)[0]
	assert.Equal(t, id, row.ID)
	assert.Empty(t, row.MediaRef)
	assert.Empty(t, svc.UploadCalls)
}

func TestUploadPipeline_DeleteLeavesBlob(t *testing.T) {
	ctx := context.Background()
	svc := testutil.NewFakeService()
	p := NewUploadPipeline(model.CollectionPhotos, svc, logger.Nop())

	ids, err := p.SubmitCreate(ctx, files("a.jpg"), model.Metadata{}, nil)
	require.NoError(t, err)

	require.NoError(t, p.Delete(ctx, ids[0]))
	assert.Empty(t, svc.Rows(model.CollectionPhotos))
	_, ok := svc.Blob(svc.UploadCalls[0])
	assert.True(t, ok)

	assert.True(t, apperrors.IsPersistence(p.Delete(ctx, ids[0])))
}

func TestUploadPipeline_StorageKeyStrictlyIncreasing(t *testing.T) {
	p := NewUploadPipeline(model.CollectionPhotos, testutil.NewFakeService(), logger.Nop())
	frozen := time.Unix(1700000000, 0)
	p.now = func() time.Time { return frozen }

	first := p.StorageKey("A.JPG")
	second := p.StorageKey("b.jpg")
	third := p.StorageKey("noext")

	assert.Equal(t, "gallery/1700000000000000000.jpg", first)
	assert.Equal(t, "gallery/1700000000000000001.jpg", second)
	assert.Equal(t, "gallery/1700000000000000002", third)
}

type mockTarget struct {
	mock.Mock
	release chan struct{}
}

func (m *mockTarget) InsertOne(ctx context.Context, c model.Collection, record model.ContentItem) (int64, error) {
	args := m.Called(ctx, c, record)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTarget) InsertMany(ctx context.Context, c model.Collection, records []model.ContentItem) ([]int64, error) {
	args := m.Called(ctx, c, records)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *mockTarget) UpdateOne(ctx context.Context, c model.Collection, id int64, patch model.Patch) error {
	return m.Called(ctx, c, id, patch).Error(0)
}

func (m *mockTarget) DeleteOne(ctx context.Context, c model.Collection, id int64) error {
	return m.Called(ctx, c, id).Error(0)
}

func (m *mockTarget) UploadBlob(ctx context.Context, path string, data []byte) error {
	if m.release != nil {
		<-m.release
	}
	return m.Called(ctx, path, data).Error(0)
}

func (m *mockTarget) PublicURL(path string) string {
	return "/v1/storage/" + path
}

func TestUploadPipeline_SecondSubmitWhileInFlightIsRejected(t *testing.T) {
	target := &mockTarget{release: make(chan struct{})}
	target.On("UploadBlob", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil)
	target.On("InsertMany", mock.Anything, model.CollectionPhotos, mock.Anything).Return([]int64{1}, nil)
	p := NewUploadPipeline(model.CollectionPhotos, target, logger.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := p.SubmitCreate(context.Background(), files("slow.jpg"), model.Metadata{}, nil)
		done <- err
	}()

	require.Eventually(t, p.InFlight, time.Second, time.Millisecond)

	_, err := p.SubmitCreate(context.Background(), files("other.jpg"), model.Metadata{}, nil)
	assert.True(t, apperrors.IsConflict(err))
	assert.ErrorIs(t, err, apperrors.ErrBatchInFlight)
	assert.True(t, apperrors.IsConflict(p.SubmitEdit(context.Background(), 1, nil, model.Metadata{})))

	close(target.release)
	require.NoError(t, <-done)
	assert.False(t, p.InFlight())
	target.AssertNumberOfCalls(t, "UploadBlob", 1)
	target.AssertNumberOfCalls(t, "InsertMany", 1)
}

func TestUploadPipeline_RecordsCarryPublicURL(t *testing.T) {
	target := &mockTarget{}
	target.On("UploadBlob", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "memories/")
	}), []byte("data-a.jpg")).Return(nil).Once()
	target.On("InsertMany", mock.Anything, model.CollectionCards, mock.MatchedBy(func(records []model.ContentItem) bool {
		return len(records) == 1 && strings.HasPrefix(records[0].MediaRef, "/v1/storage/memories/") && records[0].Title == "T"
	})).Return([]int64{11}, nil).Once()

	p := NewUploadPipeline(model.CollectionCards, target, logger.Nop())
	ids, err := p.SubmitCreate(context.Background(), files("a.jpg"), model.Metadata{Title: "T"}, nil)

	require.NoError(t, err)
	assert.Equal(t, []int64{11}, ids)
	target.AssertExpectations(t)
}
