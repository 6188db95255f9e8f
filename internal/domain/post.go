package domain

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// MaxPostLength is the maximum number of runes a post may contain after
	// sanitization.
	MaxPostLength = 5000

	// DisplayDateLayout is the layout of Post.Timestamp.
	DisplayDateLayout = "Jan 2, 2006"

	maxSanitizePasses = 4
)

// textPolicy strips every element. Content of script, style and similar
// elements is dropped entirely.
var textPolicy = bluemonday.StrictPolicy()

// Post is a single journal entry. Posts are never mutated after creation.
type Post struct {
	// ID is a ULID assigned at creation. Entries from legacy documents may
	// have no ID.
	ID string `json:"id,omitempty"`

	// Text is sanitized plain text. It may be a bare URL or image URL.
	Text string `json:"text"`

	// Timestamp is the display rendering of CreatedAt (e.g. "Jan 2, 2006").
	Timestamp string `json:"timestamp"`

	// CreatedAt is the canonical creation instant in UTC.
	CreatedAt time.Time `json:"isoTimestamp"`
}

// NewPost sanitizes raw text and builds a post stamped with now. It returns
// an error wrapping ErrValidation if nothing remains after sanitization or
// the text is too long.
func NewPost(id, raw string, now time.Time) (Post, error) {
	text, err := ValidateText(raw)
	if err != nil {
		return Post{}, err
	}
	now = now.UTC()
	return Post{
		ID:        id,
		Text:      text,
		Timestamp: now.Format(DisplayDateLayout),
		CreatedAt: now,
	}, nil
}

// ValidateText sanitizes raw and checks the result is postable.
func ValidateText(raw string) (string, error) {
	text := SanitizeText(raw)
	if text == "" {
		return "", fmt.Errorf("%w: post text is empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n > MaxPostLength {
		return "", fmt.Errorf("%w: post text is %d characters, maximum is %d", ErrValidation, n, MaxPostLength)
	}
	return text, nil
}

// SanitizeText removes all markup from raw and returns trimmed plain text.
// Entity-encoded markup is decoded and stripped again until the text is
// stable, so the result never contains a tag. Invalid UTF-8 is replaced
// with U+FFFD, matching what the JSON document would store.
func SanitizeText(raw string) string {
	s := strings.ToValidUTF8(raw, "\uFFFD")
	for range maxSanitizePasses {
		next := html.UnescapeString(textPolicy.Sanitize(s))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	// Still changing after the pass budget: keep the escaped form.
	return strings.TrimSpace(textPolicy.Sanitize(s))
}
