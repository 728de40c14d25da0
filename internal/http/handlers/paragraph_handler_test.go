package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
	"github.com/tbourn/go-paragraph-backend/internal/http/middleware"
	"github.com/tbourn/go-paragraph-backend/internal/repo"
	"github.com/tbourn/go-paragraph-backend/internal/services"
	"github.com/tbourn/go-paragraph-backend/internal/tasks"
)

// ---------- stubs ----------

type stubParaSvc struct {
	listPage func(ctx context.Context, userID string, page, pageSize int) ([]domain.Paragraph, int64, error)
}

func (s stubParaSvc) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Paragraph, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, userID, page, pageSize)
	}
	return nil, 0, nil
}

type stubSearchSvc struct {
	search func(ctx context.Context, userID, word string, page, pageSize int) ([]services.SearchResult, int64, error)
}

func (s stubSearchSvc) Search(ctx context.Context, userID, word string, page, pageSize int) ([]services.SearchResult, int64, error) {
	if s.search != nil {
		return s.search(ctx, userID, word, page, pageSize)
	}
	return nil, 0, nil
}

type stubUserSvc struct {
	create func(ctx context.Context, name, email string) (*domain.User, error)
	get    func(ctx context.Context, id string) (*domain.User, error)
}

func (s stubUserSvc) Create(ctx context.Context, name, email string) (*domain.User, error) {
	if s.create != nil {
		return s.create(ctx, name, email)
	}
	return &domain.User{ID: uuid.NewString(), Name: name, Email: email, IsActive: true}, nil
}

func (s stubUserSvc) Get(ctx context.Context, id string) (*domain.User, error) {
	if s.get != nil {
		return s.get(ctx, id)
	}
	return &domain.User{ID: id}, nil
}

type stubRunner struct {
	submit func(ctx context.Context, userID, raw string) (string, error)
	status func(id string) (tasks.Task, bool)
}

func (s stubRunner) Submit(ctx context.Context, userID, raw string) (string, error) {
	if s.submit != nil {
		return s.submit(ctx, userID, raw)
	}
	return "task-1", nil
}

func (s stubRunner) Status(id string) (tasks.Task, bool) {
	if s.status != nil {
		return s.status(id)
	}
	return tasks.Task{}, false
}

type stubIdem struct {
	lookup   func(ctx context.Context, userID, key string, now time.Time) (string, bool, error)
	remember func(ctx context.Context, userID, key, taskID string) error
}

func (s stubIdem) Lookup(ctx context.Context, userID, key string, now time.Time) (string, bool, error) {
	if s.lookup != nil {
		return s.lookup(ctx, userID, key, now)
	}
	return "", false, nil
}

func (s stubIdem) Remember(ctx context.Context, userID, key, taskID string) error {
	if s.remember != nil {
		return s.remember(ctx, userID, key, taskID)
	}
	return nil
}

// newTestRouter mounts the handlers the way the production router does,
// including the idempotency validator so header-based replays work.
func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/paragraphs", h.SubmitParagraphs)
	r.GET("/paragraphs", h.ListParagraphs)
	r.GET("/paragraphs/search", h.SearchParagraphs)
	r.GET("/tasks/:id", h.GetTask)
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------- helpers ----------

func Test_userID_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c := gin.CreateTestContextOnly(httptest.NewRecorder(), gin.New())
	if got := userID(c); got != "demo-user" {
		t.Fatalf("fallback userID = %q", got)
	}
	c.Set("userID", "u1")
	if got := userID(c); got != "u1" {
		t.Fatalf("ctx userID = %q", got)
	}
	c.Set("userID", 123) // wrong type → header/fallback
	if got := userID(c); got != "demo-user" {
		t.Fatalf("wrong-type fallback userID = %q", got)
	}

	cH, _ := gin.CreateTestContext(httptest.NewRecorder())
	cH.Request = httptest.NewRequest("GET", "/", nil)
	cH.Request.Header.Set("X-User-ID", " header-user ")
	if got := userID(cH); got != "header-user" {
		t.Fatalf("header userID = %q", got)
	}
}

func Test_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mk := func(q string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/?"+q, nil)
		return c
	}

	if p, ps := clampPagination(mk("")); p != 1 || ps != 20 {
		t.Fatalf("defaults = (%d,%d), want (1,20)", p, ps)
	}
	if p, ps := clampPagination(mk("page=-1&page_size=0")); p != 1 || ps != 1 {
		t.Fatalf("bounds = (%d,%d), want (1,1)", p, ps)
	}
	if p, ps := clampPagination(mk("page=3&page_size=999")); p != 3 || ps != 100 {
		t.Fatalf("cap = (%d,%d), want (3,100)", p, ps)
	}

	if p, ps := clampSearchPagination(mk("")); p != 1 || ps != 10 {
		t.Fatalf("search defaults = (%d,%d), want (1,10)", p, ps)
	}
	if p, ps := clampSearchPagination(mk("page=2&page_size=80")); p != 2 || ps != 50 {
		t.Fatalf("search cap = (%d,%d), want (2,50)", p, ps)
	}
}

func Test_paginationMeta(t *testing.T) {
	m := paginationMeta(2, 10, 25)
	if m.TotalPages != 3 || !m.HasNext || m.Total != 25 {
		t.Fatalf("meta = %+v", m)
	}
	m = paginationMeta(3, 10, 25)
	if m.HasNext {
		t.Fatalf("last page must not have next: %+v", m)
	}
}

// ---------- SubmitParagraphs ----------

func TestSubmitParagraphs_InvalidJSON(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{}, stubUserSvc{}, stubRunner{}, stubIdem{}))

	req := httptest.NewRequest("POST", "/paragraphs", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != ErrCodeBadRequest {
		t.Fatalf("body = %s, err %v", w.Body.String(), err)
	}
}

func TestSubmitParagraphs_EmptyInput(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{}, stubUserSvc{}, stubRunner{
		submit: func(context.Context, string, string) (string, error) {
			return "", services.ErrEmptyInput
		},
	}, stubIdem{}))

	w := doJSON(t, r, "POST", "/paragraphs", SubmitParagraphsRequest{Content: "   "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSubmitParagraphs_QueueFull(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{}, stubUserSvc{}, stubRunner{
		submit: func(context.Context, string, string) (string, error) {
			return "", tasks.ErrQueueFull
		},
	}, stubIdem{}))

	w := doJSON(t, r, "POST", "/paragraphs", SubmitParagraphsRequest{Content: "text"}, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != ErrCodeQueueFull {
		t.Fatalf("body = %s, err %v", w.Body.String(), err)
	}
}

func TestSubmitParagraphs_InternalError(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{}, stubUserSvc{}, stubRunner{
		submit: func(context.Context, string, string) (string, error) {
			return "", errors.New("boom")
		},
	}, stubIdem{}))

	w := doJSON(t, r, "POST", "/paragraphs", SubmitParagraphsRequest{Content: "text"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestSubmitParagraphs_SuccessRemembersKey(t *testing.T) {
	var remembered string
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{}, stubUserSvc{},
		stubRunner{
			submit: func(_ context.Context, userID, raw string) (string, error) {
				if userID != "u1" || raw != "hello" {
					t.Fatalf("submit args = (%q, %q)", userID, raw)
				}
				return "task-42", nil
			},
		},
		stubIdem{
			remember: func(_ context.Context, userID, key, taskID string) error {
				remembered = fmt.Sprintf("%s/%s/%s", userID, key, taskID)
				return nil
			},
		}))

	w := doJSON(t, r, "POST", "/paragraphs", SubmitParagraphsRequest{Content: "hello"}, map[string]string{
		"X-User-ID":       "u1",
		"Idempotency-Key": "k-1",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	var resp SubmitParagraphsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID != "task-42" || resp.Replayed {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if remembered != "u1/k-1/task-42" {
		t.Fatalf("idempotency record = %q", remembered)
	}
}

func TestSubmitParagraphs_ReplaySkipsRunner(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{}, stubUserSvc{},
		stubRunner{
			submit: func(context.Context, string, string) (string, error) {
				t.Fatalf("runner must not be called on replay")
				return "", nil
			},
		},
		stubIdem{
			lookup: func(context.Context, string, string, time.Time) (string, bool, error) {
				return "task-old", true, nil
			},
		}))

	w := doJSON(t, r, "POST", "/paragraphs", SubmitParagraphsRequest{Content: "hello"}, map[string]string{
		"Idempotency-Key": "k-1",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var resp SubmitParagraphsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID != "task-old" || !resp.Replayed {
		t.Fatalf("unexpected replay response: %+v", resp)
	}
}

// ---------- ListParagraphs ----------

func TestListParagraphs_Success(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{
		listPage: func(_ context.Context, _ string, page, pageSize int) ([]domain.Paragraph, int64, error) {
			if page != 1 || pageSize != 2 {
				t.Fatalf("paging = (%d,%d)", page, pageSize)
			}
			return []domain.Paragraph{{ID: "p1"}, {ID: "p2"}}, 3, nil
		},
	}, stubSearchSvc{}, stubUserSvc{}, stubRunner{}, stubIdem{}))

	w := doJSON(t, r, "GET", "/paragraphs?page=1&page_size=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp ListParagraphsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Paragraphs) != 2 || resp.Pagination.Total != 3 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestListParagraphs_ServiceError(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{
		listPage: func(context.Context, string, int, int) ([]domain.Paragraph, int64, error) {
			return nil, 0, errors.New("boom")
		},
	}, stubSearchSvc{}, stubUserSvc{}, stubRunner{}, stubIdem{}))

	w := doJSON(t, r, "GET", "/paragraphs", nil, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestListParagraphs_ETagNotModified(t *testing.T) {
	// The ETag path needs the concrete service with a real DB handle.
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Paragraph{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	u, err := repo.CreateUser(context.Background(), db, "Ada", "ada@example.com")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := repo.CreateParagraph(context.Background(), db, u.ID, "hello", domain.WordIndex{}); err != nil {
		t.Fatalf("seed paragraph: %v", err)
	}

	svc := services.NewParagraphService(db, etagParagraphRepo{})
	r := newTestRouter(New(svc, stubSearchSvc{}, stubUserSvc{}, stubRunner{}, stubIdem{}))

	w1 := doJSON(t, r, "GET", "/paragraphs", nil, map[string]string{"X-User-ID": u.ID})
	if w1.Code != http.StatusOK {
		t.Fatalf("first GET = %d: %s", w1.Code, w1.Body.String())
	}
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag header")
	}

	w2 := doJSON(t, r, "GET", "/paragraphs", nil, map[string]string{
		"X-User-ID":     u.ID,
		"If-None-Match": etag,
	})
	if w2.Code != http.StatusNotModified {
		t.Fatalf("conditional GET = %d, want 304", w2.Code)
	}
}

// etagParagraphRepo adapts the repo free functions for the concrete service.
type etagParagraphRepo struct{}

func (etagParagraphRepo) CreateParagraph(ctx context.Context, db *gorm.DB, userID, content string, idx domain.WordIndex) (*domain.Paragraph, error) {
	return repo.CreateParagraph(ctx, db, userID, content, idx)
}

func (etagParagraphRepo) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

func (etagParagraphRepo) CountParagraphs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountParagraphs(ctx, db, userID)
}

func (etagParagraphRepo) ListParagraphsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Paragraph, error) {
	return repo.ListParagraphsPage(ctx, db, userID, offset, limit)
}

// ---------- SearchParagraphs ----------

func TestSearchParagraphs_BlankWord(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{
		search: func(context.Context, string, string, int, int) ([]services.SearchResult, int64, error) {
			return nil, 0, services.ErrEmptySearchWord
		},
	}, stubUserSvc{}, stubRunner{}, stubIdem{}))

	w := doJSON(t, r, "GET", "/paragraphs/search", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestSearchParagraphs_Success(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{
		search: func(_ context.Context, _ string, word string, page, pageSize int) ([]services.SearchResult, int64, error) {
			if word != " lorem " || page != 1 || pageSize != 10 {
				t.Fatalf("search args = (%q,%d,%d)", word, page, pageSize)
			}
			return []services.SearchResult{{Paragraph: domain.Paragraph{ID: "p1"}, MatchCount: 2}}, 1, nil
		},
	}, stubUserSvc{}, stubRunner{}, stubIdem{}))

	w := doJSON(t, r, "GET", "/paragraphs/search?word=%20lorem%20", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Word != "lorem" || len(resp.Results) != 1 || resp.Results[0].MatchCount != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchParagraphs_NilResultsBecomeEmptyArray(t *testing.T) {
	r := newTestRouter(New(stubParaSvc{}, stubSearchSvc{
		search: func(context.Context, string, string, int, int) ([]services.SearchResult, int64, error) {
			return nil, 0, nil
		},
	}, stubUserSvc{}, stubRunner{}, stubIdem{}))

	w := doJSON(t, r, "GET", "/paragraphs/search?word=missing", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"results":[]`)) {
		t.Fatalf("results not an empty array: %s", w.Body.String())
	}
}
