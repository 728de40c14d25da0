package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
	"gorm.io/gorm"
)

func seedParagraphUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	u := domain.User{ID: id, Name: "N", Email: id + "@example.com", IsActive: true}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func TestCreateParagraph_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)
	p, err := CreateParagraph(context.Background(), db, "u1", "text", nil)
	if err == nil || p != nil {
		t.Fatalf("expected error creating without table, got p=%v err=%v", p, err)
	}
}

func TestCreateParagraph_Success_RoundTripsWordIndex(t *testing.T) {
	db := newRepoDB(t, &domain.User{}, &domain.Paragraph{})
	seedParagraphUser(t, db, "u1")

	idx := domain.WordIndex{
		"hello": {Count: 2, Positions: []int{0, 12}},
		"world": {Count: 1, Positions: []int{6}},
	}
	start := time.Now().UTC().Add(-time.Minute)
	p, err := CreateParagraph(context.Background(), db, "u1", "hello world hello", idx)
	if err != nil {
		t.Fatalf("CreateParagraph: %v", err)
	}
	if p.ID == "" || p.UserID != "u1" || p.Content != "hello world hello" {
		t.Fatalf("unexpected Paragraph fields: %+v", p)
	}
	if p.CreatedAt.Before(start) {
		t.Fatalf("CreatedAt seems unset/really old: %v", p.CreatedAt)
	}

	// The index must survive the JSON serializer round-trip.
	var got domain.Paragraph
	if err := db.First(&got, "id = ?", p.ID).Error; err != nil {
		t.Fatalf("load created paragraph: %v", err)
	}
	occ := got.WordIndex["hello"]
	if occ == nil || occ.Count != 2 || len(occ.Positions) != 2 || occ.Positions[1] != 12 {
		t.Fatalf("word index round-trip mismatch: %#v", got.WordIndex)
	}
}

func TestListParagraphs_OrderDescendingAndFilter(t *testing.T) {
	db := newRepoDB(t, &domain.User{}, &domain.Paragraph{})
	seedParagraphUser(t, db, "u1")
	seedParagraphUser(t, db, "u2")

	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seed := []domain.Paragraph{
		{ID: "p1", UserID: "u1", Content: "a", WordIndex: domain.WordIndex{}, CreatedAt: t1},
		{ID: "p2", UserID: "u1", Content: "b", WordIndex: domain.WordIndex{}, CreatedAt: t1.Add(time.Hour)},
		{ID: "p3", UserID: "u1", Content: "c", WordIndex: domain.WordIndex{}, CreatedAt: t1.Add(2 * time.Hour)},
		{ID: "px", UserID: "u2", Content: "x", WordIndex: domain.WordIndex{}, CreatedAt: t1.Add(time.Hour)},
	}
	for _, p := range seed {
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
	}

	list, err := ListParagraphs(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("ListParagraphs: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 paragraphs for u1, got %d", len(list))
	}
	// Descending by CreatedAt: p3, p2, p1
	if list[0].ID != "p3" || list[1].ID != "p2" || list[2].ID != "p1" {
		t.Fatalf("unexpected order: %#v", list)
	}
}

func TestCountParagraphs(t *testing.T) {
	db := newRepoDB(t, &domain.User{}, &domain.Paragraph{})
	seedParagraphUser(t, db, "u1")

	if n, err := CountParagraphs(context.Background(), db, "u1"); err != nil || n != 0 {
		t.Fatalf("empty count = %d, err %v", n, err)
	}
	for _, id := range []string{"a", "b"} {
		p := domain.Paragraph{ID: id, UserID: "u1", Content: "t", WordIndex: domain.WordIndex{}}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	n, err := CountParagraphs(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("CountParagraphs: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestListParagraphsPage_OffsetAndLimit(t *testing.T) {
	db := newRepoDB(t, &domain.User{}, &domain.Paragraph{})
	seedParagraphUser(t, db, "u1")

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	for i, id := range ids {
		p := domain.Paragraph{ID: id, UserID: "u1", Content: id, WordIndex: domain.WordIndex{}, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	// Second page of size 2: newest-first overall order is p5 p4 p3 p2 p1.
	page, err := ListParagraphsPage(context.Background(), db, "u1", 2, 2)
	if err != nil {
		t.Fatalf("ListParagraphsPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "p3" || page[1].ID != "p2" {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestListParagraphsWindow_HalfOpenAndAscending(t *testing.T) {
	db := newRepoDB(t, &domain.User{}, &domain.Paragraph{})
	seedParagraphUser(t, db, "u1")

	day := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	seed := []domain.Paragraph{
		{ID: "before", UserID: "u1", Content: "x", WordIndex: domain.WordIndex{}, CreatedAt: day.Add(-time.Second)},
		{ID: "start", UserID: "u1", Content: "x", WordIndex: domain.WordIndex{}, CreatedAt: day},
		{ID: "mid", UserID: "u1", Content: "x", WordIndex: domain.WordIndex{}, CreatedAt: day.Add(12 * time.Hour)},
		{ID: "end", UserID: "u1", Content: "x", WordIndex: domain.WordIndex{}, CreatedAt: day.Add(24 * time.Hour)},
	}
	for _, p := range seed {
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
	}

	got, err := ListParagraphsWindow(context.Background(), db, "u1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListParagraphsWindow: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 in window, got %d: %#v", len(got), got)
	}
	// Inclusive start, exclusive end, oldest first.
	if got[0].ID != "start" || got[1].ID != "mid" {
		t.Fatalf("unexpected window contents/order: %#v", got)
	}
}

func TestGetParagraph_ScopedToOwner(t *testing.T) {
	db := newRepoDB(t, &domain.User{}, &domain.Paragraph{})
	seedParagraphUser(t, db, "u1")

	p, err := CreateParagraph(context.Background(), db, "u1", "mine", domain.WordIndex{})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := GetParagraph(context.Background(), db, p.ID, "u1")
	if err != nil || got.ID != p.ID {
		t.Fatalf("GetParagraph: got=%v err=%v", got, err)
	}

	// Another user must not see it.
	if _, err := GetParagraph(context.Background(), db, p.ID, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}
