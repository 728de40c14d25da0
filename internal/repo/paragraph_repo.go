// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Paragraph
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a paragraph is not found, functions return gorm.ErrRecordNotFound
//     (exported from this package as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Storage ordering: listings return most-recent-first (created_at DESC),
// which is also the tie-break order the search ranking relies on. A
// paragraph write is a single-row insert, so a unit is never observed
// half-written.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
)

// CreateParagraph inserts a new Paragraph row owned by userID, holding the
// original candidate text and its derived word index. The paragraph ID is a
// randomly generated UUID and CreatedAt is set to UTC.
func CreateParagraph(ctx context.Context, db *gorm.DB, userID, content string, idx domain.WordIndex) (*domain.Paragraph, error) {
	p := &domain.Paragraph{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		WordIndex: idx,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// ListParagraphs returns all paragraphs belonging to userID, most recent
// first (created_at DESC, id DESC for determinism on equal timestamps).
func ListParagraphs(ctx context.Context, db *gorm.DB, userID string) ([]domain.Paragraph, error) {
	var out []domain.Paragraph
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// CountParagraphs returns the total number of paragraphs owned by userID.
func CountParagraphs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Paragraph{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListParagraphsPage returns a paginated slice ordered most recent first.
func ListParagraphsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Paragraph, error) {
	var out []domain.Paragraph
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListParagraphsWindow returns the user's paragraphs created within the
// half-open window [start, end), oldest first. Used by the aggregate
// reporter, whose tie-break depends on scan order.
func ListParagraphsWindow(ctx context.Context, db *gorm.DB, userID string, start, end time.Time) ([]domain.Paragraph, error) {
	var out []domain.Paragraph
	err := db.WithContext(ctx).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// GetParagraph fetches a paragraph by ID ensuring it belongs to the user,
// or ErrNotFound.
func GetParagraph(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Paragraph, error) {
	var p domain.Paragraph
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
