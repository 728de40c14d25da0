package textindex

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTokenize_Empty(t *testing.T) {
	if got := Tokenize(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestTokenize_PunctuationOnly(t *testing.T) {
	if got := Tokenize("... !!! ---- ;;; ???"); got != nil {
		t.Fatalf("expected nil for punctuation-only input, got %v", got)
	}
}

func TestTokenize_LowercasesAndPositions(t *testing.T) {
	got := Tokenize("Cats chase cats.")
	want := []Token{
		{Word: "cats", Position: 0},
		{Word: "chase", Position: 5},
		{Word: "cats", Position: 11},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokens mismatch:\n got  %v\n want %v", got, want)
	}
}

func TestTokenize_SplitsAtPunctuation(t *testing.T) {
	got := Tokenize("rock-solid")
	want := []Token{
		{Word: "rock", Position: 0},
		{Word: "solid", Position: 5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokens mismatch:\n got  %v\n want %v", got, want)
	}
}

func TestTokenize_KeepsApostropheAndUnderscore(t *testing.T) {
	got := Tokenize("don't snake_case")
	want := []Token{
		{Word: "don't", Position: 0},
		{Word: "snake_case", Position: 6},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokens mismatch:\n got  %v\n want %v", got, want)
	}
}

func TestTokenize_RuneOffsetsForMultibyteText(t *testing.T) {
	// "héllo wörld" contains multi-byte runes before the second word; the
	// offset must count runes, not bytes.
	got := Tokenize("héllo wörld")
	if len(got) != 2 {
		t.Fatalf("expected 2 tokens, got %v", got)
	}
	if got[0].Position != 0 || got[1].Position != 6 {
		t.Fatalf("expected positions 0 and 6, got %d and %d", got[0].Position, got[1].Position)
	}
	if got[0].Word != "héllo" || got[1].Word != "wörld" {
		t.Fatalf("unexpected words: %v", got)
	}
}

// Every token's position must point at the folded word within the folded
// source text, and spans must not overlap.
func TestTokenize_SpansReproduceWordsWithoutOverlap(t *testing.T) {
	inputs := []string{
		"The quick brown fox jumps over the lazy dog.",
		"It's a test -- with punctuation!  And   spacing.",
		"Ünïcode wörds, mixed ASCII, and 42 numbers.",
	}
	for _, in := range inputs {
		toks := Tokenize(in)
		runes := []rune(strings.ToLower(in))
		lastEnd := -1
		for _, tok := range toks {
			n := utf8.RuneCountInString(tok.Word)
			if tok.Position <= lastEnd {
				t.Fatalf("input %q: token %q at %d overlaps previous span", in, tok.Word, tok.Position)
			}
			span := string(runes[tok.Position : tok.Position+n])
			if span != tok.Word {
				t.Fatalf("input %q: span at %d is %q, want %q", in, tok.Position, span, tok.Word)
			}
			lastEnd = tok.Position + n - 1
		}
	}
}

func TestSplitParagraphs_TwoParagraphs(t *testing.T) {
	got := SplitParagraphs("alpha beta\n\ncharlie")
	want := []string{"alpha beta", "charlie"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("split mismatch: got %v want %v", got, want)
	}
}

func TestSplitParagraphs_TrimsAndDropsEmpties(t *testing.T) {
	got := SplitParagraphs("  first  \n\n   \n\nsecond\n\n")
	want := []string{"first", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("split mismatch: got %v want %v", got, want)
	}
}

func TestSplitParagraphs_NormalizesCRLF(t *testing.T) {
	got := SplitParagraphs("first\r\n\r\nsecond\r\nstill second")
	want := []string{"first", "second\nstill second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("split mismatch: got %v want %v", got, want)
	}
}

func TestSplitParagraphs_Blank(t *testing.T) {
	if got := SplitParagraphs("   \n\n  "); len(got) != 0 {
		t.Fatalf("expected no paragraphs, got %v", got)
	}
}

func TestBuildWordIndex_CountsAndPositions(t *testing.T) {
	idx := BuildWordIndex("Cats chase cats.")

	occ := idx["cats"]
	if occ == nil {
		t.Fatalf("expected entry for %q", "cats")
	}
	if occ.Count != 2 || !reflect.DeepEqual(occ.Positions, []int{0, 11}) {
		t.Fatalf("cats occurrence mismatch: %+v", occ)
	}
	if chase := idx["chase"]; chase == nil || chase.Count != 1 || chase.Positions[0] != 5 {
		t.Fatalf("chase occurrence mismatch: %+v", chase)
	}
}

func TestBuildWordIndex_CountEqualsLenPositions(t *testing.T) {
	idx := BuildWordIndex("a b a c b a, a-b b? c!")
	if len(idx) == 0 {
		t.Fatal("expected non-empty index")
	}
	for w, occ := range idx {
		if occ.Count != len(occ.Positions) {
			t.Fatalf("word %q: count %d != len(positions) %d", w, occ.Count, len(occ.Positions))
		}
		for i := 1; i < len(occ.Positions); i++ {
			if occ.Positions[i] <= occ.Positions[i-1] {
				t.Fatalf("word %q: positions not ascending: %v", w, occ.Positions)
			}
		}
	}
}

func TestBuildWordIndex_Empty(t *testing.T) {
	if idx := BuildWordIndex("?!"); len(idx) != 0 {
		t.Fatalf("expected empty index, got %v", idx)
	}
}
