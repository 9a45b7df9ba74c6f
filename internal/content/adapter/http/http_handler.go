package http

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"keepsake/internal/content/domain/model"
	"keepsake/internal/content/domain/repository"
	"keepsake/internal/content/usecase"
	"keepsake/internal/session"
	"keepsake/internal/shared/contextkeys"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"
	"keepsake/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultRecentEvents = 50
	maxRecentEvents     = 500
)

// EventLog returns the most recent change events of a collection, newest first.
type EventLog interface {
	Recent(ctx context.Context, c model.Collection, count int64) ([]model.ChangeEvent, error)
}

// HTTPHandler serves the collection REST API, the storage endpoints and the gate.
type HTTPHandler struct {
	CollectionUC usecase.CollectionUsecaseInterface
	Unlocker     *session.Unlocker
	Events       EventLog
	Admin        *AdminMiddleware
	Log          logger.Logger
}

// NewHTTPHandler creates the handler. unlocker and events may be nil; the routes they back
// then answer 403 and 404 respectively.
func NewHTTPHandler(
	collectionUC usecase.CollectionUsecaseInterface,
	unlocker *session.Unlocker,
	events EventLog,
	admin *AdminMiddleware,
	log logger.Logger,
) *HTTPHandler {
	if log == nil {
		log = logger.Nop()
	}
	if admin == nil {
		admin = NewAdminMiddleware(nil, log)
	}
	return &HTTPHandler{
		CollectionUC: collectionUC,
		Unlocker:     unlocker,
		Events:       events,
		Admin:        admin,
		Log:          log.WithComponent("http"),
	}
}

// CreateRecordsResponse is the answer to a successful insert.
type CreateRecordsResponse struct {
	IDs     []int64             `json:"ids"`
	Records []model.ContentItem `json:"records"`
}

// UnlockRequest is one gate submission.
type UnlockRequest struct {
	Ticket string `json:"ticket"`
	Code   string `json:"code"`
}

// UploadResponse is the answer to a stored blob.
type UploadResponse struct {
	URL string `json:"url"`
}

func (h *HTTPHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.Health)

	v1 := router.Group("/v1")
	admin := h.Admin.RequireAdmin()

	records := v1.Group("/collections/:collection", h.resolveCollection)
	records.Get("/records", h.ListRecords)
	records.Post("/records", admin, h.CreateRecords)
	records.Patch("/records/:id", admin, h.UpdateRecord)
	records.Delete("/records/:id", admin, h.DeleteRecord)
	records.Get("/events", h.RecentEvents)

	v1.Put("/storage/*", admin, h.PutBlob)
	v1.Get("/storage/*", h.GetBlob)

	v1.Post("/session/unlock", GateRateLimiter(), h.Unlock)
}

// resolveCollection accepts remote names and aliases and rejects anything else with 400.
func (h *HTTPHandler) resolveCollection(c *fiber.Ctx) error {
	name := c.Params("collection")
	col, err := model.ParseCollection(name)
	if err != nil {
		return writeError(c, apperrors.NewValidationError(err.Error()).
			WithCause(apperrors.ErrUnknownCollection).
			WithDetail("collection", name))
	}
	c.Locals(string(contextkeys.CollectionKey), col)
	c.SetUserContext(utils.WithCollection(c.UserContext(), string(col)))
	return c.Next()
}

func collectionOf(c *fiber.Ctx) model.Collection {
	col, _ := c.Locals(string(contextkeys.CollectionKey)).(model.Collection)
	return col
}

func (h *HTTPHandler) ListRecords(c *fiber.Ctx) error {
	if order := c.Query("order", repository.OrderByID); order != repository.OrderByID {
		return writeError(c, apperrors.NewValidationError("records can only be ordered by id").WithDetail("order", order))
	}
	dir := repository.Direction(c.Query("direction", string(repository.Ascending)))
	if dir != repository.Ascending && dir != repository.Descending {
		return writeError(c, apperrors.NewValidationError("direction must be asc or desc").WithDetail("direction", string(dir)))
	}

	rows, err := h.CollectionUC.List(c.UserContext(), collectionOf(c), dir)
	if err != nil {
		return writeError(c, err)
	}
	if rows == nil {
		rows = []model.ContentItem{}
	}
	return c.JSON(rows)
}

// CreateRecords accepts either a single record object or an array of them.
func (h *HTTPHandler) CreateRecords(c *fiber.Ctx) error {
	rows, err := decodeRecords(c.Body())
	if err != nil {
		return writeError(c, err)
	}

	inserted, err := h.CollectionUC.Create(c.UserContext(), collectionOf(c), rows)
	if err != nil {
		h.Log.WithContext(c.UserContext()).Errorf("Failed to insert %d records: %v", len(rows), err)
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CreateRecordsResponse{IDs: model.IDs(inserted), Records: inserted})
}

func (h *HTTPHandler) UpdateRecord(c *fiber.Ctx) error {
	id, err := recordID(c)
	if err != nil {
		return writeError(c, err)
	}
	var patch model.Patch
	if err := json.Unmarshal(c.Body(), &patch); err != nil {
		return writeError(c, apperrors.NewValidationError("Failed to parse request body").WithCause(apperrors.ErrInvalidInput))
	}

	if _, err := h.CollectionUC.Update(c.UserContext(), collectionOf(c), id, patch); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *HTTPHandler) DeleteRecord(c *fiber.Ctx) error {
	id, err := recordID(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.CollectionUC.Delete(c.UserContext(), collectionOf(c), id); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RecentEvents returns the newest change events of a collection from the relay's stream log.
func (h *HTTPHandler) RecentEvents(c *fiber.Ctx) error {
	if h.Events == nil {
		return writeError(c, apperrors.NewNotFoundError("event log"))
	}
	count := int64(c.QueryInt("count", defaultRecentEvents))
	if count <= 0 || count > maxRecentEvents {
		return writeError(c, apperrors.NewValidationError("count must be between 1 and 500"))
	}

	events, err := h.Events.Recent(c.UserContext(), collectionOf(c), count)
	if err != nil {
		return writeError(c, apperrors.NewInternalError("failed to read event log").WithCause(err))
	}
	if events == nil {
		events = []model.ChangeEvent{}
	}
	return c.JSON(events)
}

func (h *HTTPHandler) PutBlob(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return writeError(c, apperrors.NewValidationError("blob body is empty"))
	}
	url, err := h.CollectionUC.PutBlob(c.UserContext(), c.Params("*"), body, c.Get(fiber.HeaderContentType))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(UploadResponse{URL: url})
}

func (h *HTTPHandler) GetBlob(c *fiber.Ctx) error {
	blob, err := h.CollectionUC.OpenBlob(c.UserContext(), c.Params("*"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentType, blob.ContentType)
	// Storage keys embed a timestamp and are never rewritten.
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.SendStream(blob.Body)
}

// Unlock checks one gate code. While steps remain the answer carries a ticket for the next
// call; the last correct code returns the admin token.
func (h *HTTPHandler) Unlock(c *fiber.Ctx) error {
	if h.Unlocker == nil {
		return writeError(c, apperrors.NewAppError(apperrors.ErrorTypeAuthentication, "writes are disabled on this server", fiber.StatusForbidden))
	}
	var req UnlockRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperrors.NewValidationError("Failed to parse request body").WithCause(apperrors.ErrInvalidInput))
	}

	res, err := h.Unlocker.Submit(c.UserContext(), req.Ticket, req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	if err := h.CollectionUC.Health(c.UserContext()); err != nil {
		h.Log.Warnf("Health check failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func recordID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("record id must be a positive integer").
			WithCause(apperrors.ErrInvalidInput).
			WithDetail("id", raw)
	}
	return id, nil
}

func decodeRecords(body []byte) ([]model.ContentItem, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, apperrors.NewValidationError("request body is empty").WithCause(apperrors.ErrInvalidInput)
	}

	var rows []model.ContentItem
	if body[0] == '[' {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, apperrors.NewValidationError("Failed to parse request body").WithCause(apperrors.ErrInvalidInput)
		}
		return rows, nil
	}

	var row model.ContentItem
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, apperrors.NewValidationError("Failed to parse request body").WithCause(apperrors.ErrInvalidInput)
	}
	return append(rows, row), nil
}
