// Package slug derives unique, URL-safe article identifiers from titles.
package slug

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxLength bounds a generated slug, suffix included.
	MaxLength = 250
	// MaxAttempts is the number of numbered candidates tried before falling
	// back to a timestamped slug.
	MaxAttempts = 10
	// fallbackPrefixRunes is how much of the title feeds the timestamped slug.
	fallbackPrefixRunes = 50
	emptyBase           = "article"
)

// symbolWords spells out symbols that carry meaning in a title.
var symbolWords = map[rune]string{
	'&': "and",
	'$': "dollar",
	'%': "percent",
	'<': "less",
	'>': "greater",
	'|': "or",
	'¢': "cent",
	'£': "pound",
	'¥': "yen",
	'€': "euro",
	'©': "c",
	'®': "r",
	'♥': "love",
	'∞': "infinity",
}

// Checker reports whether a candidate slug is already in use.
type Checker func(ctx context.Context, candidate string) (bool, error)

type Generator struct {
	now func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock returns a Generator whose timestamp fallback uses now.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Generate returns a slug for title that the checker reported as unused. The
// check and the caller's insert are separate statements, so callers must still
// handle a unique violation on insert.
func (g *Generator) Generate(ctx context.Context, title string, exists Checker) (string, error) {
	base := Normalize(title)
	if base == "" {
		base = emptyBase
	}

	for attempt := 0; attempt <= MaxAttempts; attempt++ {
		candidate := withSuffix(base, attempt)

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	prefix := Normalize(truncateRunes(title, fallbackPrefixRunes))
	if prefix == "" {
		prefix = emptyBase
	}
	return withSuffix(prefix, int(g.now().UnixMilli())), nil
}

// Normalize lowercases title, strips diacritics, spells out symbols such as
// "&" and "$", drops other punctuation and joins the words with single hyphens.
func Normalize(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingDash := false
	write := func(s string) {
		if pendingDash && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingDash = false
		b.WriteString(s)
	}
	for _, r := range strings.ToLower(folded) {
		word, isSymbol := symbolWords[r]
		switch {
		case r == '\'' || r == '"' || r == '’':
			// apostrophes join words: "Tokyo's" -> "tokyos"
		case isSlugRune(r):
			write(string(r))
		case isSymbol:
			write(word)
		default:
			pendingDash = true
		}
	}

	return trimToLength(b.String(), MaxLength)
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func withSuffix(base string, n int) string {
	if n == 0 {
		return trimToLength(base, MaxLength)
	}
	suffix := "-" + strconv.Itoa(n)
	return trimToLength(base, MaxLength-len(suffix)) + suffix
}

func trimToLength(s string, max int) string {
	if len(s) > max {
		s = s[:max]
	}
	return strings.TrimRight(s, "-")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
