// Package services – SearchService
//
// This file implements SearchService, which answers single-word ranked
// queries over a user's stored paragraphs. The stored word index already
// holds case-folded keys, so the service folds the query the same way
// before matching; callers never need to normalize.
//
// Ranking is by match count descending. Ties keep the storage order, which
// is most-recent-first, via a stable sort. Pagination happens in memory
// after ranking: the durable store exposes no query language, so the whole
// owner scan is filtered and sorted here.
package services

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/tbourn/go-paragraph-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SearchResult is one ranked hit: the matching paragraph, the number of
// occurrences of the queried word inside it, and the rune offsets of those
// occurrences. It is a derived view and is never persisted.
type SearchResult struct {
	Paragraph  domain.Paragraph `json:"paragraph"`
	MatchCount int              `json:"match_count"`
	Positions  []int            `json:"positions"`
}

// SearchRepo defines the repository contract required by SearchService.
type SearchRepo interface {
	// ListParagraphs returns all paragraphs for the user, most recent first.
	ListParagraphs(ctx context.Context, db *gorm.DB, userID string) ([]domain.Paragraph, error)
}

// SearchService answers ranked word queries over stored paragraphs.
type SearchService struct {
	// DB is the GORM handle used for retrieval.
	DB *gorm.DB
	// Repo is the paragraph listing repository.
	Repo SearchRepo

	// DefaultPageSize is used when the caller passes pageSize <= 0.
	DefaultPageSize int
	// MaxPageSize caps caller-supplied page sizes.
	MaxPageSize int
}

// NewSearchService constructs a SearchService with the standard page sizing
// (default 10, cap 50).
func NewSearchService(db *gorm.DB, r SearchRepo) *SearchService {
	return &SearchService{
		DB:              db,
		Repo:            r,
		DefaultPageSize: 10,
		MaxPageSize:     50,
	}
}

// Search returns one page of paragraphs containing word, ranked by match
// count descending, plus the total number of matching paragraphs.
//
// The query word is case-folded internally, mirroring index-time folding.
// A blank word yields ErrEmptySearchWord; a query with no matches yields an
// empty page and total 0, not an error.
func (s *SearchService) Search(ctx context.Context, userID, word string, page, pageSize int) ([]SearchResult, int64, error) {
	tr := otel.Tracer("services/SearchService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	word = strings.TrimSpace(word)
	if word == "" {
		return nil, 0, ErrEmptySearchWord
	}
	word = cases.Fold().String(word)

	page, pageSize = s.clampPage(page, pageSize)

	paragraphs, err := s.Repo.ListParagraphs(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}

	// Filter to paragraphs that contain the word at least once. The slice
	// arrives most-recent-first; the stable sort below preserves that order
	// for equal match counts.
	matches := make([]SearchResult, 0, len(paragraphs))
	for _, p := range paragraphs {
		occ, ok := p.WordIndex[word]
		if !ok || occ == nil || occ.Count <= 0 {
			continue
		}
		matches = append(matches, SearchResult{
			Paragraph:  p,
			MatchCount: occ.Count,
			Positions:  occ.Positions,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchCount > matches[j].MatchCount
	})

	total := int64(len(matches))
	span.SetAttributes(attribute.Int64("results.total", total))

	start := (page - 1) * pageSize
	if start >= len(matches) {
		return []SearchResult{}, total, nil
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

// clampPage applies page and page-size defaults and caps.
func (s *SearchService) clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	def := s.DefaultPageSize
	if def <= 0 {
		def = 10
	}
	max := s.MaxPageSize
	if max <= 0 {
		max = 50
	}
	if pageSize <= 0 {
		pageSize = def
	}
	if pageSize > max {
		pageSize = max
	}
	return page, pageSize
}
