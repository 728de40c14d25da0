// Package domain defines the persistence models for users and paragraphs.
// These types are mapped with GORM and form the core data layer of the
// paragraph ingestion and search application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// WordOccurrence records how often a single word appears inside one
// paragraph and the rune offset of every occurrence, in scan order.
//
// Invariant: Count == len(Positions).
type WordOccurrence struct {
	Count     int   `json:"count"`
	Positions []int `json:"positions"`
}

// WordIndex maps a lower-cased word to its occurrence data within one
// paragraph. It is persisted as a JSON column via GORM's serializer.
type WordIndex map[string]*WordOccurrence

// User is the minimal identity record the core reads. Authentication is an
// external concern; the application only needs existence checks for the
// ingestion pipeline and an email address plus active flag for the daily
// digest.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name used in digest emails.
//   - Email: digest recipient; unique.
//   - IsActive: inactive users are skipped by the aggregate reporter.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type User struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name"       gorm:"type:varchar(150);not null"`
	Email     string         `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	IsActive  bool           `json:"is_active"  gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Paragraph is one persisted block of text together with its derived
// word-occurrence index. Paragraphs are immutable once created: the
// ingestion pipeline writes them whole or not at all, and no update path
// exists.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: identifier of the owning user; indexed with CreatedAt so the
//     default most-recent-first listing and the reporting window scan stay
//     cheap.
//   - Content: the original paragraph text, untouched by tokenization.
//   - WordIndex: word → occurrence data, serialized to a JSON column.
//   - CreatedAt: set once at creation; defines storage order.
//   - DeletedAt: soft deletion marker (rows follow the user's lifetime).
type Paragraph struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_paragraphs,priority:1"`
	Content   string         `json:"content"    gorm:"type:text;not null"`
	WordIndex WordIndex      `json:"word_index" gorm:"serializer:json;type:text;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_user_paragraphs,priority:2"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	// User is the owning account. Paragraphs are cascade-deleted when the
	// user row is removed.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Paragraph.
func (Paragraph) TableName() string { return "paragraphs" }
