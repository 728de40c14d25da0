// Package services – ParagraphService
//
// This file implements ParagraphService, the application-level component
// that owns paragraph ingestion and listing. Ingestion splits raw input on
// blank lines, tokenizes each candidate, aggregates the per-word occurrence
// index, and persists one Paragraph row per candidate in original order.
//
// Persistence is deliberately not transactional across paragraphs: a
// submission that fails midway leaves the already-created paragraphs in
// place, matching the at-least-once semantics of the retrying ingestion
// pipeline built on top of this service.
//
// Observability: public methods are OpenTelemetry-instrumented; spans
// include the owner identifier and result counts.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
	"github.com/tbourn/go-paragraph-backend/internal/textindex"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ParagraphRepo defines the repository contract required by
// ParagraphService. Implementations are responsible for persistence of
// paragraph aggregates and for the user existence check.
type ParagraphRepo interface {
	// CreateParagraph inserts one paragraph row for the given user.
	CreateParagraph(ctx context.Context, db *gorm.DB, userID, content string, idx domain.WordIndex) (*domain.Paragraph, error)

	// GetUser fetches a user by ID (gorm.ErrRecordNotFound when missing).
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// CountParagraphs returns the total number of paragraphs for pagination.
	CountParagraphs(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListParagraphsPage returns a page of the user's paragraphs,
	// most recent first.
	ListParagraphsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Paragraph, error)
}

// ParagraphService coordinates paragraph ingestion and retrieval.
type ParagraphService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the paragraph repository used by this service.
	Repo ParagraphRepo

	// MaxInputRunes caps accepted raw submissions by rune length.
	// Zero disables the guard.
	MaxInputRunes int
}

// NewParagraphService constructs a ParagraphService with a sane default
// input guard.
func NewParagraphService(db *gorm.DB, r ParagraphRepo) *ParagraphService {
	return &ParagraphService{
		DB:            db,
		Repo:          r,
		MaxInputRunes: 100_000,
	}
}

// Index validates raw input, verifies the owner exists, splits the input
// into paragraphs, builds each paragraph's word index, and persists the
// units in original order. It returns every created paragraph.
//
// Errors:
//   - ErrEmptyInput when raw is blank (nothing persisted).
//   - ErrInputTooLong when raw exceeds MaxInputRunes.
//   - ErrUserNotFound when ownerID does not reference an existing user.
//   - The underlying DB error when persistence fails; paragraphs created
//     before the failure remain persisted.
func (s *ParagraphService) Index(ctx context.Context, ownerID, raw string) ([]domain.Paragraph, error) {
	tr := otel.Tracer("services/ParagraphService")
	ctx, span := tr.Start(ctx, "Index",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyInput
	}
	if s.MaxInputRunes > 0 && utf8.RuneCountInString(raw) > s.MaxInputRunes {
		return nil, ErrInputTooLong
	}

	if _, err := s.Repo.GetUser(ctx, s.DB, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	candidates := textindex.SplitParagraphs(raw)
	created := make([]domain.Paragraph, 0, len(candidates))
	for _, content := range candidates {
		idx := textindex.BuildWordIndex(content)
		p, err := s.Repo.CreateParagraph(ctx, s.DB, ownerID, content, idx)
		if err != nil {
			// No rollback across paragraphs; report the failure with
			// whatever was persisted so far left in place.
			return created, err
		}
		created = append(created, *p)
	}

	span.SetAttributes(attribute.Int("paragraphs.created", len(created)))
	return created, nil
}

// ListPage returns a page of the user's paragraphs, most recent first,
// along with the total count. It applies defaults for invalid page and
// pageSize values.
func (s *ParagraphService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Paragraph, int64, error) {
	tr := otel.Tracer("services/ParagraphService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountParagraphs(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Paragraph{}, 0, nil
	}

	items, err := s.Repo.ListParagraphsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}
