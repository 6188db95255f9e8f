// Package archive reads and writes portable post archives: a zstd stream of
// JSON lines, a header line followed by one post per line, newest first.
package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/blackmichael/journal/internal/domain"
)

const (
	// Format identifies journal archives.
	Format = "journal-archive"

	// Version is the archive version written by Export.
	Version = 1

	maxLineBytes = 1 << 20

	// maxPrealloc bounds the slice capacity taken from an archive header.
	maxPrealloc = 1024
)

// Header is the first line of an archive.
type Header struct {
	Format    string    `json:"format"`
	Version   int       `json:"version"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
}

// Export writes posts to w and returns how many were written.
func Export(w io.Writer, posts []domain.Post) (int, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("create encoder: %w", err)
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	je := json.NewEncoder(bw)
	je.SetEscapeHTML(false)

	header := Header{Format: Format, Version: Version, Count: len(posts), CreatedAt: time.Now().UTC()}
	if err := je.Encode(header); err != nil {
		enc.Close()
		return 0, fmt.Errorf("write header: %w", err)
	}

	for i, p := range posts {
		if err := je.Encode(p); err != nil {
			enc.Close()
			return i, fmt.Errorf("write post %d: %w", i, err)
		}
	}

	if err := bw.Flush(); err != nil {
		enc.Close()
		return 0, fmt.Errorf("flush archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("close encoder: %w", err)
	}
	return len(posts), nil
}

// Import reads an archive. Every post must carry text that is already
// sanitized and a creation time, and the number of posts must match the
// header.
func Import(r io.Reader) ([]domain.Post, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, errors.New("read header: archive is empty")
	}

	var header Header
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if header.Format != Format {
		return nil, fmt.Errorf("decode header: not a journal archive (format %q)", header.Format)
	}
	if header.Version < 1 || header.Version > Version {
		return nil, fmt.Errorf("decode header: unsupported archive version %d", header.Version)
	}

	if header.Count < 0 {
		return nil, fmt.Errorf("decode header: negative post count %d", header.Count)
	}

	posts := make([]domain.Post, 0, min(header.Count, maxPrealloc))
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var p domain.Post
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("decode post %d: %w", len(posts), err)
		}
		if err := check(p); err != nil {
			return nil, fmt.Errorf("post %d: %w", len(posts), err)
		}
		posts = append(posts, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if len(posts) != header.Count {
		return nil, fmt.Errorf("archive holds %d posts, header says %d", len(posts), header.Count)
	}
	return posts, nil
}

func check(p domain.Post) error {
	text, err := domain.ValidateText(p.Text)
	if err != nil {
		return err
	}
	if text != p.Text {
		return fmt.Errorf("%w: text contains markup", domain.ErrValidation)
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing isoTimestamp", domain.ErrValidation)
	}
	return nil
}

// Merge combines two post lists, dropping duplicates, and returns them
// newest first. Posts are the same if their IDs match, or, for posts
// without an ID, if text and creation time match. On a tie in creation time
// the order of existing is kept ahead of incoming.
func Merge(existing, incoming []domain.Post) []domain.Post {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]domain.Post, 0, len(existing)+len(incoming))

	for _, list := range [][]domain.Post{existing, incoming} {
		for _, p := range list {
			k := key(p)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, p)
		}
	}

	slices.SortStableFunc(out, func(a, b domain.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func key(p domain.Post) string {
	if p.ID != "" {
		return "id:" + p.ID
	}
	return "t:" + p.CreatedAt.UTC().Format(time.RFC3339Nano) + "\x00" + p.Text
}
