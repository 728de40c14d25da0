// Paragraph HTTP handlers.
//
// This file exposes REST endpoints for paragraph resources:
//   - POST /paragraphs         (submit raw text for asynchronous indexing)
//   - GET  /paragraphs         (list, paginated, ETag support)
//   - GET  /paragraphs/search  (ranked single-word search)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Submission is
// asynchronous: the handler enqueues an ingestion task and returns its
// identifier; clients poll GET /tasks/{id} for the outcome.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
	"github.com/tbourn/go-paragraph-backend/internal/http/middleware"
	"github.com/tbourn/go-paragraph-backend/internal/repo"
	"github.com/tbourn/go-paragraph-backend/internal/services"
	"github.com/tbourn/go-paragraph-backend/internal/tasks"
	"github.com/tbourn/go-paragraph-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ParagraphService defines paragraph retrieval operations consumed by HTTP
// handlers. Implementations should be safe for concurrent use and must honor
// the provided context for cancellation and timeouts.
type ParagraphService interface {
	// ListPage returns a page of the user's paragraphs and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Paragraph, int64, error)
}

// SearchService defines ranked word search over stored paragraphs.
type SearchService interface {
	// Search returns one page of matches for word, ranked by occurrence
	// count, plus the total number of matching paragraphs.
	Search(ctx context.Context, userID, word string, page, pageSize int) ([]services.SearchResult, int64, error)
}

// UserService defines account operations consumed by HTTP handlers.
type UserService interface {
	// Create registers a new user.
	Create(ctx context.Context, name, email string) (*domain.User, error)
	// Get returns the user by id.
	Get(ctx context.Context, id string) (*domain.User, error)
}

// TaskRunner defines the asynchronous ingestion surface consumed by HTTP
// handlers: fire-and-poll task submission.
type TaskRunner interface {
	// Submit enqueues raw input for indexing and returns the task id.
	Submit(ctx context.Context, userID, raw string) (string, error)
	// Status returns a snapshot of the task, or ok=false when unknown.
	Status(id string) (tasks.Task, bool)
}

// IdempotencyStore persists the (user, key) → task id association used to
// deduplicate paragraph submissions.
type IdempotencyStore interface {
	// Lookup returns the task id previously stored for (userID, key), if a
	// non-expired record exists.
	Lookup(ctx context.Context, userID, key string, now time.Time) (taskID string, ok bool, err error)
	// Remember stores the association for future replays.
	Remember(ctx context.Context, userID, key, taskID string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for paragraphs, tasks, and users. It depends
// on abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	paraSvc   ParagraphService
	searchSvc SearchService
	userSvc   UserService
	runner    TaskRunner
	idem      IdempotencyStore
}

// New constructs and returns a Handlers instance bound to the given services.
// idem may be nil, which disables submission replay.
func New(paraSvc ParagraphService, searchSvc SearchService, userSvc UserService, runner TaskRunner, idem IdempotencyStore) *Handlers {
	return &Handlers{paraSvc: paraSvc, searchSvc: searchSvc, userSvc: userSvc, runner: runner, idem: idem}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// SubmitParagraphsRequest is the JSON payload for submitting raw text.
type SubmitParagraphsRequest struct {
	// Content is the raw input; blank-line separated blocks become
	// individual paragraphs.
	Content string `json:"content" binding:"required" example:"First paragraph.\n\nSecond paragraph."`
}

// SubmitParagraphsResponse acknowledges an asynchronous submission.
type SubmitParagraphsResponse struct {
	// TaskID identifies the ingestion task for status polling.
	TaskID string `json:"task_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// Replayed is true when an identical prior submission was detected via
	// Idempotency-Key and no new task was enqueued.
	Replayed bool `json:"replayed,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListParagraphsResponse wraps a page of paragraphs and pagination info.
type ListParagraphsResponse struct {
	Paragraphs []domain.Paragraph `json:"paragraphs"`
	Pagination Pagination         `json:"pagination"`
}

// SearchResponse wraps one page of ranked search results.
type SearchResponse struct {
	Word       string                  `json:"word"`
	Results    []services.SearchResult `json:"results"`
	Pagination Pagination              `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// clampSearchPagination bounds search paging: default 10 per page, cap 50.
func clampSearchPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 10
		maxPageSize     = 50
	)
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

func paginationMeta(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// SubmitParagraphs godoc
// @ID          submitParagraphs
// @Summary     Submit raw text for indexing
// @Description Accepts raw text, splits it into paragraphs on blank lines, and indexes them asynchronously. Returns the ingestion task id for polling. Supports Idempotency-Key for safe retries.
// @Tags        Paragraphs
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Dedup key for safe retries"
// @Param       body             body    handlers.SubmitParagraphsRequest  true  "Raw text payload"
//
// @Success     202  {object}  handlers.SubmitParagraphsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Ingestion queue full"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /paragraphs [post]
func (h *Handlers) SubmitParagraphs(c *gin.Context) {
	var req SubmitParagraphsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ctx := c.Request.Context()
	uid := userID(c)
	key, hasKey := middleware.GetIdempotencyKey(c)

	// Replay a previously accepted submission for the same (user, key).
	if hasKey && h.idem != nil {
		if taskID, found, err := h.idem.Lookup(ctx, uid, key, time.Now().UTC()); err == nil && found {
			accepted(c, SubmitParagraphsResponse{TaskID: taskID, Replayed: true})
			return
		}
	}

	taskID, err := h.runner.Submit(ctx, uid, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyInput):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrEmptyInput.Error())
		case errors.Is(err, tasks.ErrQueueFull):
			c.Header("Retry-After", "1")
			fail(c, http.StatusServiceUnavailable, ErrCodeQueueFull, "ingestion queue full, retry later")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, err.Error())
		}
		return
	}

	if hasKey && h.idem != nil {
		// Best effort: a failed write only disables replay for this key.
		if err := h.idem.Remember(ctx, uid, key, taskID); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	accepted(c, SubmitParagraphsResponse{TaskID: taskID})
}

// ListParagraphs godoc
// @ID          listParagraphs
// @Summary     List paragraphs (paginated)
// @Description Returns a page of the user's paragraphs, most recent first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Paragraphs
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListParagraphsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /paragraphs [get]
func (h *Handlers) ListParagraphs(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.paraSvc.(*services.ParagraphService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ParagraphsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"paragraphs:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.paraSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListParagraphsResponse{
		Paragraphs: items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// SearchParagraphs godoc
// @ID          searchParagraphs
// @Summary     Search paragraphs by word
// @Description Returns the user's paragraphs containing the given word, ranked by occurrence count descending. The word is matched case-insensitively against the stored index.
// @Tags        Paragraphs
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       word       query   string  true  "Single word to search for"  example(lorem)
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(50) default(10)
//
// @Success     200  {object} handlers.SearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing or blank word"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /paragraphs/search [get]
func (h *Handlers) SearchParagraphs(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	word := c.Query("word")
	page, pageSize := clampSearchPagination(c)

	results, total, err := h.searchSvc.Search(ctx, uid, word, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrEmptySearchWord) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrEmptySearchWord.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}

	if results == nil {
		results = []services.SearchResult{}
	}
	ok(c, http.StatusOK, SearchResponse{
		Word:       strings.TrimSpace(word),
		Results:    results,
		Pagination: paginationMeta(page, pageSize, total),
	})
}
