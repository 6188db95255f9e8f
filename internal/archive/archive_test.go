package archive

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/journal/internal/domain"
)

func post(id, text string, at time.Time) domain.Post {
	return domain.Post{ID: id, Text: text, Timestamp: at.Format(domain.DisplayDateLayout), CreatedAt: at}
}

var base = time.Date(2024, 11, 5, 10, 0, 0, 0, time.UTC)

// compress builds a raw archive from lines.
func compress(t *testing.T, lines ...any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	for _, l := range lines {
		b, err := json.Marshal(l)
		require.NoError(t, err)
		_, err = enc.Write(append(b, '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, enc.Close())
	return &buf
}

func TestExportImport(t *testing.T) {
	posts := []domain.Post{
		post("01JC0000000000000000000003", "https://example.com/cat.png", base.Add(2*time.Hour)),
		post("01JC0000000000000000000002", "fish and chips", base.Add(time.Hour)),
		post("", "legacy entry", base),
	}

	var buf bytes.Buffer
	n, err := Export(&buf, posts)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := Import(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range posts {
		assert.Equal(t, posts[i].ID, got[i].ID)
		assert.Equal(t, posts[i].Text, got[i].Text)
		assert.True(t, posts[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}

func TestExport_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := Export(&buf, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := Import(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestImport_Rejects(t *testing.T) {
	good := post("01JC0000000000000000000001", "hi", base)

	tests := []struct {
		name string
		data *bytes.Buffer
	}{
		{"not zstd", bytes.NewBufferString("plain text")},
		{"empty stream", compress(t)},
		{"wrong format", compress(t, Header{Format: "other", Version: 1, Count: 0})},
		{"future version", compress(t, Header{Format: Format, Version: Version + 1, Count: 0})},
		{"negative count", compress(t, Header{Format: Format, Version: 1, Count: -1}, good)},
		{"huge count", compress(t, Header{Format: Format, Version: 1, Count: math.MaxInt}, good)},
		{"count mismatch", compress(t, Header{Format: Format, Version: 1, Count: 2}, good)},
		{"markup", compress(t, Header{Format: Format, Version: 1, Count: 1}, post("x", "<b>hi</b>", base))},
		{"empty text", compress(t, Header{Format: Format, Version: 1, Count: 1}, post("x", "  ", base))},
		{"missing time", compress(t, Header{Format: Format, Version: 1, Count: 1}, domain.Post{ID: "x", Text: "hi"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestMerge(t *testing.T) {
	a := post("A", "first", base)
	b := post("B", "second", base.Add(time.Minute))
	c := post("C", "third", base.Add(2*time.Minute))
	legacy := post("", "old", base.Add(-time.Hour))

	got := Merge([]domain.Post{b, a, legacy}, []domain.Post{c, b, legacy})

	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID+p.Text)
	}
	assert.Equal(t, []string{"Cthird", "Bsecond", "Afirst", "old"}, ids)
}
