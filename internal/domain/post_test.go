package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "hello world", want: "hello world"},
		{name: "script stripped", input: "hello <script>alert(1)</script>", want: "hello"},
		{name: "tags stripped", input: "<b>bold</b> and <i>italic</i>", want: "bold and italic"},
		{name: "attributes dropped", input: `<img src=x onerror="alert(1)">caption`, want: "caption"},
		{name: "encoded markup", input: "&lt;script&gt;alert(1)&lt;/script&gt;ok", want: "ok"},
		{name: "comparison kept", input: "1 < 2 & 3 > 2", want: "1 < 2 & 3 > 2"},
		{name: "url kept", input: "https://example.com/a.png?x=1&y=2", want: "https://example.com/a.png?x=1&y=2"},
		{name: "whitespace trimmed", input: "  spaced  ", want: "spaced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "<script")
		})
	}
}

func TestValidateText_MarkupOnlyRejected(t *testing.T) {
	for _, input := range []string{"", "   ", "<script>alert(1)</script>", "<style>p{}</style> ", "<br><hr/>"} {
		_, err := ValidateText(input)
		assert.ErrorIs(t, err, ErrValidation, "input %q", input)
	}
}

func TestValidateText_TooLong(t *testing.T) {
	_, err := ValidateText(strings.Repeat("a", MaxPostLength+1))
	assert.ErrorIs(t, err, ErrValidation)

	text, err := ValidateText(strings.Repeat("é", MaxPostLength))
	require.NoError(t, err)
	assert.Len(t, []rune(text), MaxPostLength)
}

func TestValidateText_InvalidUTF8(t *testing.T) {
	text, err := ValidateText("caf\xe9 au lait")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(text))
	assert.Equal(t, "caf\uFFFD au lait", text)

	// stored text survives a trip through the JSON document unchanged
	b, err := json.Marshal(Post{Text: text})
	require.NoError(t, err)
	var back Post
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, text, back.Text)
}

func TestNewPost(t *testing.T) {
	now := time.Date(2025, 3, 7, 22, 15, 0, 0, time.FixedZone("X", -5*3600))

	p, err := NewPost("01ABC", "hello <script>alert(1)</script>", now)
	require.NoError(t, err)

	assert.Equal(t, "01ABC", p.ID)
	assert.Equal(t, "hello", p.Text)
	assert.Equal(t, time.UTC, p.CreatedAt.Location())
	assert.True(t, p.CreatedAt.Equal(now))
	assert.Equal(t, "Mar 8, 2025", p.Timestamp)
}

func TestNewPost_Invalid(t *testing.T) {
	_, err := NewPost("x", "<script>x</script>", time.Now())
	assert.True(t, errors.Is(err, ErrValidation))
}
