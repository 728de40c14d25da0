// Package textindex provides the pure text-processing core of the
// application: paragraph splitting, positional tokenization, and the
// per-paragraph word-occurrence index built from the two. It is
// deterministic, side-effect free, and safe for concurrent use:
//
//   - No logging and no persistence (callers own both)
//   - Unicode-aware word matching with case folding on output
//   - Positions are rune offsets relative to the text passed in
//   - The same input always produces the same index
//
// A word is a maximal run of letters, digits, underscores, and apostrophes.
// Punctuation never becomes part of a word; words straddling punctuation are
// split at the boundary.
package textindex

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-paragraph-backend/internal/domain"
)

// Token is a single matched word and the zero-based rune offset of its
// first character within the tokenized text.
type Token struct {
	Word     string
	Position int
}

// wordRE matches a maximal run of word characters: letters, digits,
// underscore, and the apostrophe.
var wordRE = regexp.MustCompile(`[\p{L}\p{N}_']+`)

// Tokenize extracts every word from text together with its rune offset, in
// left-to-right order. Matched words are case-folded, so "Cats" and "cats"
// index to the same key. Empty input and input without any word characters
// yield a nil slice.
func Tokenize(text string) []Token {
	if text == "" {
		return nil
	}
	spans := wordRE.FindAllStringIndex(text, -1)
	if len(spans) == 0 {
		return nil
	}

	fold := cases.Fold()
	out := make([]Token, 0, len(spans))

	// Convert byte offsets to rune offsets incrementally; spans are sorted,
	// so each gap is only counted once.
	runePos := 0
	prevEnd := 0
	for _, sp := range spans {
		start, end := sp[0], sp[1]
		runePos += utf8.RuneCountInString(text[prevEnd:start])
		word := text[start:end]
		out = append(out, Token{
			Word:     fold.String(word),
			Position: runePos,
		})
		runePos += utf8.RuneCountInString(word)
		prevEnd = end
	}
	return out
}

// SplitParagraphs splits raw input into paragraph candidates on the
// blank-line delimiter ("\n\n"), trims surrounding whitespace from each
// candidate, and drops candidates that end up empty. CRLF line endings are
// normalized to LF first, so clients on any platform get the same split.
// The original order is preserved. Runs of three or more newlines just
// produce empty candidates, which are dropped.
func SplitParagraphs(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	chunks := strings.Split(strings.TrimSpace(raw), "\n\n")
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// BuildWordIndex tokenizes text and aggregates the tokens into a
// domain.WordIndex: one WordOccurrence per distinct word, counting
// occurrences and collecting positions in scan order. Positions are
// ascending by construction; they are never re-sorted.
//
// For every entry, Count == len(Positions).
func BuildWordIndex(text string) domain.WordIndex {
	idx := make(domain.WordIndex)
	for _, tok := range Tokenize(text) {
		occ, ok := idx[tok.Word]
		if !ok {
			occ = &domain.WordOccurrence{}
			idx[tok.Word] = occ
		}
		occ.Count++
		occ.Positions = append(occ.Positions, tok.Position)
	}
	return idx
}
