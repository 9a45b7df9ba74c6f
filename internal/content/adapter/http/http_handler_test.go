package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contenthttp "keepsake/internal/content/adapter/http"
	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/testutil"
	"keepsake/internal/content/usecase"
	"keepsake/internal/session"
	"keepsake/internal/shared/eventbus"
	"keepsake/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var gateCodes = []string{"020747", "231147", "150266"}

type stubEventLog struct {
	events []model.ChangeEvent
	err    error
	count  int64
}

func (s *stubEventLog) Recent(ctx context.Context, c model.Collection, count int64) ([]model.ChangeEvent, error) {
	s.count = count
	return s.events, s.err
}

type HTTPHandlerTestSuite struct {
	suite.Suite
	app     *fiber.App
	records *testutil.MemoryRecords
	events  *stubEventLog
	changes []model.ChangeEvent
	tokens  *session.TokenService
	token   string
}

func (s *HTTPHandlerTestSuite) SetupTest() {
	var err error
	s.tokens, err = session.NewTokenService("http-test-secret-32-characters-long", "keepsake-test", time.Hour)
	s.Require().NoError(err)
	s.token, err = s.tokens.IssueAdmin(context.Background())
	s.Require().NoError(err)

	hashes := make([]string, len(gateCodes))
	for i, code := range gateCodes {
		hashes[i], err = session.HashCode(code)
		s.Require().NoError(err)
	}
	gate, err := session.NewGate(hashes)
	s.Require().NoError(err)

	s.changes = nil
	bus := eventbus.NewEventBus(logger.Nop())
	bus.Subscribe(eventbus.EventTypeRecordChanged, usecase.ChangeEventHandler(func(ctx context.Context, e model.ChangeEvent) error {
		s.changes = append(s.changes, e)
		return nil
	}))

	s.records = testutil.NewMemoryRecords()
	s.events = &stubEventLog{}
	uc := usecase.NewCollectionUsecase(s.records, testutil.NewMemoryBlobs(), bus, "http://media.test", logger.Nop())
	handler := contenthttp.NewHTTPHandler(
		uc,
		session.NewUnlocker(gate, s.tokens, logger.Nop()),
		s.events,
		contenthttp.NewAdminMiddleware(s.tokens, logger.Nop()),
		logger.Nop(),
	)

	s.app = fiber.New(fiber.Config{ErrorHandler: contenthttp.ErrorHandler(logger.Nop())})
	handler.RegisterRoutes(s.app)
}

func (s *HTTPHandlerTestSuite) do(method, path string, body []byte, token string) *http.Response {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *HTTPHandlerTestSuite) TestHealth() {
	resp := s.do("GET", "/health", nil, "")
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	s.records.PingErr = errors.New("mongo down")
	resp = s.do("GET", "/health", nil, "")
	assert.Equal(s.T(), http.StatusServiceUnavailable, resp.StatusCode)
}

func (s *HTTPHandlerTestSuite) TestListEmptyCollection() {
	resp := s.do("GET", "/v1/collections/memories/records?order=id&direction=asc", nil, "")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Empty(s.T(), decode[[]model.ContentItem](s.T(), resp))
}

func (s *HTTPHandlerTestSuite) TestUnknownCollectionIsBadRequest() {
	resp := s.do("GET", "/v1/collections/diary/records", nil, "")
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
	body := decode[contenthttp.ErrorResponse](s.T(), resp)
	assert.Equal(s.T(), "diary", body.Details["collection"])
}

func (s *HTTPHandlerTestSuite) TestListRejectsBadOrdering() {
	resp := s.do("GET", "/v1/collections/gallery/records?order=caption", nil, "")
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)

	resp = s.do("GET", "/v1/collections/gallery/records?direction=sideways", nil, "")
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *HTTPHandlerTestSuite) TestCreateRequiresAdminToken() {
	body := []byte(`{"img":"a.jpg","caption":"hi"}`)

	resp := s.do("POST", "/v1/collections/gallery/records", body, "")
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	resp = s.do("POST", "/v1/collections/gallery/records", body, "not-a-jwt")
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	ticket, err := s.tokens.IssueTicket(context.Background(), 1)
	s.Require().NoError(err)
	resp = s.do("POST", "/v1/collections/gallery/records", body, ticket)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode, "gate tickets are not admin tokens")

	assert.Empty(s.T(), s.changes)
}

func (s *HTTPHandlerTestSuite) TestCreateArrayAndSingle() {
	resp := s.do("POST", "/v1/collections/photos/records", []byte(`[{"img":"a.jpg","caption":"x"},{"img":"b.mp4","caption":"x"}]`), s.token)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	created := decode[contenthttp.CreateRecordsResponse](s.T(), resp)
	assert.Equal(s.T(), []int64{1, 2}, created.IDs)

	resp = s.do("POST", "/v1/collections/gallery/records", []byte(`{"id":77,"img":"c.jpg"}`), s.token)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	assert.Equal(s.T(), []int64{3}, decode[contenthttp.CreateRecordsResponse](s.T(), resp).IDs)

	require.Len(s.T(), s.changes, 3)
	for _, e := range s.changes {
		assert.Equal(s.T(), model.EventInsert, e.Kind)
		assert.Equal(s.T(), model.CollectionPhotos, e.Collection)
	}

	resp = s.do("GET", "/v1/collections/gallery/records?order=id&direction=desc", nil, "")
	rows := decode[[]model.ContentItem](s.T(), resp)
	assert.Equal(s.T(), []int64{3, 2, 1}, model.IDs(rows))
	assert.Equal(s.T(), "b.mp4", rows[1].MediaRef)
}

func (s *HTTPHandlerTestSuite) TestCreateRejectsBadBodies() {
	for _, body := range []string{"", "[]", "{nope", "[1,2]"} {
		resp := s.do("POST", "/v1/collections/memories/records", []byte(body), s.token)
		assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Empty(s.T(), s.changes)
}

func (s *HTTPHandlerTestSuite) TestUpdateAndDelete() {
	resp := s.do("POST", "/v1/collections/memories/records", []byte(`{"img":"a.jpg","title":"t","date":"d","description":"x"}`), s.token)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	resp = s.do("PATCH", "/v1/collections/memories/records/1", []byte(`{"title":"new"}`), s.token)
	assert.Equal(s.T(), http.StatusNoContent, resp.StatusCode)

	rows := decode[[]model.ContentItem](s.T(), s.do("GET", "/v1/collections/memories/records", nil, ""))
	require.Len(s.T(), rows, 1)
	assert.Equal(s.T(), model.ContentItem{ID: 1, MediaRef: "a.jpg", Title: "new", Date: "d", Description: "x"}, rows[0])

	last := s.changes[len(s.changes)-1]
	assert.Equal(s.T(), model.EventUpdate, last.Kind)
	assert.Equal(s.T(), rows[0], last.Row)

	assert.Equal(s.T(), http.StatusBadRequest, s.do("PATCH", "/v1/collections/memories/records/abc", []byte(`{}`), s.token).StatusCode)
	assert.Equal(s.T(), http.StatusNotFound, s.do("PATCH", "/v1/collections/memories/records/9", []byte(`{"title":"x"}`), s.token).StatusCode)

	assert.Equal(s.T(), http.StatusUnauthorized, s.do("DELETE", "/v1/collections/memories/records/1", nil, "").StatusCode)
	assert.Equal(s.T(), http.StatusNoContent, s.do("DELETE", "/v1/collections/memories/records/1", nil, s.token).StatusCode)
	assert.Equal(s.T(), http.StatusNotFound, s.do("DELETE", "/v1/collections/memories/records/1", nil, s.token).StatusCode)

	last = s.changes[len(s.changes)-1]
	assert.Equal(s.T(), model.EventDelete, last.Kind)
	assert.Equal(s.T(), int64(1), last.Row.ID)
}

func (s *HTTPHandlerTestSuite) TestStorageRoundTrip() {
	req := httptest.NewRequest("PUT", "/v1/storage/gallery/1700000000000000000.jpg", bytes.NewReader([]byte("jpeg-bytes")))
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("PUT", "/v1/storage/gallery/1700000000000000000.jpg", bytes.NewReader([]byte("jpeg-bytes")))
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err = s.app.Test(req, -1)
	s.Require().NoError(err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	assert.Equal(s.T(), "http://media.test/v1/storage/gallery/1700000000000000000.jpg", decode[contenthttp.UploadResponse](s.T(), resp).URL)

	resp = s.do("GET", "/v1/storage/gallery/1700000000000000000.jpg", nil, "")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "image/jpeg", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	assert.Equal(s.T(), "jpeg-bytes", string(data))

	assert.Equal(s.T(), http.StatusNotFound, s.do("GET", "/v1/storage/gallery/missing.jpg", nil, "").StatusCode)
	assert.Equal(s.T(), http.StatusBadRequest, s.do("PUT", "/v1/storage/gallery/empty.jpg", nil, s.token).StatusCode)
}

func (s *HTTPHandlerTestSuite) TestUnlockSequence() {
	unlock := func(ticket, code string) *http.Response {
		body, err := json.Marshal(contenthttp.UnlockRequest{Ticket: ticket, Code: code})
		s.Require().NoError(err)
		return s.do("POST", "/v1/session/unlock", body, "")
	}

	resp := unlock("", "000000")
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	first := decode[session.UnlockResult](s.T(), unlock("", gateCodes[0]))
	assert.Equal(s.T(), 1, first.Step)
	assert.Equal(s.T(), 3, first.Total)
	require.NotEmpty(s.T(), first.Ticket)
	assert.Empty(s.T(), first.Token)

	second := decode[session.UnlockResult](s.T(), unlock(first.Ticket, gateCodes[1]))
	assert.Equal(s.T(), 2, second.Step)

	done := decode[session.UnlockResult](s.T(), unlock(second.Ticket, gateCodes[2]))
	assert.True(s.T(), done.Unlocked)
	require.NotEmpty(s.T(), done.Token)

	resp = s.do("POST", "/v1/collections/gallery/records", []byte(`{"img":"a.jpg"}`), done.Token)
	assert.Equal(s.T(), http.StatusCreated, resp.StatusCode)
}

func (s *HTTPHandlerTestSuite) TestRecentEvents() {
	s.events.events = []model.ChangeEvent{{Kind: model.EventDelete, Collection: model.CollectionCards, Row: model.ContentItem{ID: 2}}}

	resp := s.do("GET", "/v1/collections/cards/events?count=5", nil, "")
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), s.events.events, decode[[]model.ChangeEvent](s.T(), resp))
	assert.Equal(s.T(), int64(5), s.events.count)

	assert.Equal(s.T(), http.StatusBadRequest, s.do("GET", "/v1/collections/cards/events?count=0", nil, "").StatusCode)

	s.events.err = errors.New("redis down")
	assert.Equal(s.T(), http.StatusInternalServerError, s.do("GET", "/v1/collections/cards/events", nil, "").StatusCode)
}

func TestHTTPHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(HTTPHandlerTestSuite))
}

func TestReadOnlyServer(t *testing.T) {
	uc := usecase.NewCollectionUsecase(testutil.NewMemoryRecords(), testutil.NewMemoryBlobs(), eventbus.NewEventBus(logger.Nop()), "", logger.Nop())
	handler := contenthttp.NewHTTPHandler(uc, nil, nil, nil, logger.Nop())
	app := fiber.New()
	handler.RegisterRoutes(app)

	req := httptest.NewRequest("POST", "/v1/collections/gallery/records", bytes.NewReader([]byte(`{"img":"a"}`)))
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("POST", "/v1/session/unlock", bytes.NewReader([]byte(`{"code":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/v1/collections/gallery/events", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
