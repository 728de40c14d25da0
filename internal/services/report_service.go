// Package services – ReportService
//
// This file implements ReportService, the aggregate reporter behind the
// daily writing digest. For one user and a half-open time window it merges
// every stored paragraph's word index into a single tally and derives a
// top-N summary; for a scheduling tick it renders and mails that summary
// to every active user.
//
// Failure isolation: one user's report or delivery failure is logged and
// never aborts processing of the remaining users.
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
	"github.com/tbourn/go-paragraph-backend/internal/mail"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WordCount is one ranked entry of the digest: a word and its merged count
// across every paragraph in the reporting window.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Summary is the aggregate digest for one user over one time window.
type Summary struct {
	ParagraphCount int         `json:"paragraph_count"`
	TotalWordCount int         `json:"total_word_count"`
	TopWords       []WordCount `json:"top_words"`
}

// ReportRepo defines the repository contract required by ReportService.
type ReportRepo interface {
	// ListParagraphsWindow returns the user's paragraphs created within
	// [start, end), oldest first.
	ListParagraphsWindow(ctx context.Context, db *gorm.DB, userID string, start, end time.Time) ([]domain.Paragraph, error)

	// ListActiveUsers returns every active user.
	ListActiveUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error)
}

// ReportService produces and delivers per-user writing digests.
type ReportService struct {
	// DB is the GORM handle used for retrieval.
	DB *gorm.DB
	// Repo is the reporting repository.
	Repo ReportRepo
	// Sender delivers the rendered digest. A nil Sender disables delivery
	// (RunOnce still computes summaries, useful in tests).
	Sender mail.Sender

	// TopN caps the number of ranked words in a summary (default 5).
	TopN int
}

// NewReportService constructs a ReportService with the standard top-5 word
// ranking.
func NewReportService(db *gorm.DB, r ReportRepo, sender mail.Sender) *ReportService {
	return &ReportService{
		DB:     db,
		Repo:   r,
		Sender: sender,
		TopN:   5,
	}
}

// Report merges the word indexes of every paragraph the user created in
// the half-open window [start, end) and returns the aggregate summary.
//
// TopWords is ranked by merged count descending. Ties rank alphabetically
// so repeated runs over the same window always agree.
func (s *ReportService) Report(ctx context.Context, userID string, start, end time.Time) (Summary, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Report",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	paragraphs, err := s.Repo.ListParagraphsWindow(ctx, s.DB, userID, start, end)
	if err != nil {
		return Summary{}, err
	}

	// Merge counts across the whole window.
	tally := make(map[string]int)
	total := 0
	for _, p := range paragraphs {
		for word, occ := range p.WordIndex {
			if occ == nil || occ.Count <= 0 {
				continue
			}
			tally[word] += occ.Count
			total += occ.Count
		}
	}

	// Map iteration order is randomized; anchor ties on the word itself so
	// repeated runs over the same window agree.
	order := make([]string, 0, len(tally))
	for w := range tally {
		order = append(order, w)
	}
	sort.Strings(order)

	ranked := make([]WordCount, 0, len(order))
	for _, w := range order {
		ranked = append(ranked, WordCount{Word: w, Count: tally[w]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	topN := s.TopN
	if topN <= 0 {
		topN = 5
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	span.SetAttributes(
		attribute.Int("paragraphs", len(paragraphs)),
		attribute.Int("words.total", total),
	)
	return Summary{
		ParagraphCount: len(paragraphs),
		TotalWordCount: total,
		TopWords:       ranked,
	}, nil
}

// RunOnce executes one reporting tick: it computes the summary for the
// calendar day containing now (UTC) for every active user and mails each
// user their digest. Per-user failures are logged and skipped; RunOnce
// itself only fails when the user listing cannot be read.
func (s *ReportService) RunOnce(ctx context.Context, now time.Time) error {
	day := now.UTC().Truncate(24 * time.Hour)
	start, end := day, day.Add(24*time.Hour)

	users, err := s.Repo.ListActiveUsers(ctx, s.DB)
	if err != nil {
		return err
	}

	for _, u := range users {
		summary, err := s.Report(ctx, u.ID, start, end)
		if err != nil {
			log.Error().Err(err).Str("user_id", u.ID).Msg("daily digest: report failed")
			continue
		}
		if s.Sender == nil {
			continue
		}
		subject := fmt.Sprintf("Your Daily Writing Stats - %s", day.Format("2006-01-02"))
		body := RenderDigest(summary, day)
		if err := s.Sender.Send(ctx, u.Email, subject, body); err != nil {
			log.Error().Err(err).Str("user_id", u.ID).Msg("daily digest: send failed")
			continue
		}
		log.Info().
			Str("user_id", u.ID).
			Int("paragraphs", summary.ParagraphCount).
			Int("total_words", summary.TotalWordCount).
			Msg("daily digest sent")
	}
	return nil
}

// RenderDigest formats a Summary as the plain-text body of the daily
// digest email.
func RenderDigest(s Summary, day time.Time) string {
	topWords := "None"
	if len(s.TopWords) > 0 {
		parts := make([]string, 0, len(s.TopWords))
		for _, wc := range s.TopWords {
			parts = append(parts, fmt.Sprintf("%s (%d)", wc.Word, wc.Count))
		}
		topWords = strings.Join(parts, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daily Writing Report for %s:\n\n", day.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Paragraphs Written: %d\n", s.ParagraphCount)
	fmt.Fprintf(&b, "- Total Words: %d\n", s.TotalWordCount)
	fmt.Fprintf(&b, "- Most Used Words: %s\n", topWords)
	return b.String()
}
