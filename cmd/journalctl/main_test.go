package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/journal/internal/api"
	"github.com/blackmichael/journal/internal/archive"
	"github.com/blackmichael/journal/internal/docstore"
	"github.com/blackmichael/journal/internal/domain"
)

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func mkPost(id, text string, age time.Duration) domain.Post {
	at := now.Add(-age)
	return domain.Post{ID: id, Text: text, Timestamp: at.Format(domain.DisplayDateLayout), CreatedAt: at}
}

func TestFormatPost(t *testing.T) {
	assert.Equal(t, "[2 hours ago] hello world", formatPost(mkPost("1", "hello\nworld", 2*time.Hour), now))
	assert.Equal(t, "[Jan 2, 2020] legacy", formatPost(domain.Post{Text: "legacy", Timestamp: "Jan 2, 2020"}, now))
}

func TestPrintPage(t *testing.T) {
	page := &api.PageResponse{
		Items: []api.PostView{
			{Post: mkPost("2", "newer", time.Minute)},
			{Post: mkPost("1", "older", time.Hour)},
		},
		Page:     2,
		HasOlder: true,
		HasNewer: true,
	}

	var buf bytes.Buffer
	printPage(&buf, page, now)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "older", "oldest printed first, like a log")
	assert.Contains(t, lines[1], "newer")
	assert.Equal(t, "page 2 (newer: page 1, older: page 3)", lines[2])
}

func writeArchive(t *testing.T, posts []domain.Post) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.jsonl.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = archive.Export(f, posts)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

// stoppedServer returns the URL of a server that is no longer listening.
func stoppedServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func TestImport_RefusesWhileServerRuns(t *testing.T) {
	postsPath := filepath.Join(t.TempDir(), "posts.json")
	t.Setenv("JOURNAL_STORAGE_DRIVER", "file")
	t.Setenv("JOURNAL_POSTS_PATH", postsPath)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	archivePath := writeArchive(t, []domain.Post{mkPost("A", "hello", time.Minute)})

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"import", "--server", srv.URL, "--config", "", archivePath})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop it before importing")

	_, statErr := os.Stat(postsPath)
	assert.True(t, os.IsNotExist(statErr), "nothing was written")

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"import", "--server", srv.URL, "--force", "--config", "", archivePath})
	require.NoError(t, root.Execute())

	got, err := docstore.NewFileStore(postsPath).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
}

func TestImport_MergesIntoFileDocument(t *testing.T) {
	dir := t.TempDir()
	postsPath := filepath.Join(dir, "posts.json")
	t.Setenv("JOURNAL_STORAGE_DRIVER", "file")
	t.Setenv("JOURNAL_POSTS_PATH", postsPath)

	doc := docstore.NewFileStore(postsPath)
	require.NoError(t, doc.Write(context.Background(), []domain.Post{mkPost("B", "kept", time.Hour)}))

	archivePath := writeArchive(t, []domain.Post{
		mkPost("C", "newest", time.Minute),
		mkPost("B", "kept", time.Hour),
		mkPost("A", "oldest", 24*time.Hour),
	})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"import", "--server", stoppedServer(t), "--config", "", archivePath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "imported 2 posts, journal now holds 3")

	got, err := doc.Read(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"C", "B", "A"}, ids)
}

func TestImport_Replace(t *testing.T) {
	dir := t.TempDir()
	postsPath := filepath.Join(dir, "posts.json")
	t.Setenv("JOURNAL_STORAGE_DRIVER", "file")
	t.Setenv("JOURNAL_POSTS_PATH", postsPath)

	doc := docstore.NewFileStore(postsPath)
	require.NoError(t, doc.Write(context.Background(), []domain.Post{mkPost("X", "gone", time.Hour)}))

	archivePath := writeArchive(t, []domain.Post{mkPost("A", "only", time.Minute)})

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"import", "--server", stoppedServer(t), "--config", "", "--replace", archivePath})
	require.NoError(t, root.Execute())

	got, err := doc.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ID)
}

func TestImport_SQLiteDriver(t *testing.T) {
	t.Setenv("JOURNAL_STORAGE_DRIVER", "sqlite")
	t.Setenv("JOURNAL_DATABASE_PATH", filepath.Join(t.TempDir(), "journal.db"))

	archivePath := writeArchive(t, []domain.Post{mkPost("A", "hello", time.Minute)})

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"import", "--server", stoppedServer(t), "--config", "", archivePath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "journal now holds 1")
}

func TestImport_RejectsBadArchive(t *testing.T) {
	t.Setenv("JOURNAL_POSTS_PATH", filepath.Join(t.TempDir(), "posts.json"))
	bad := filepath.Join(t.TempDir(), "bad.zst")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"import", "--server", stoppedServer(t), "--config", "", bad})
	assert.Error(t, root.Execute())
}

func TestResolveKey(t *testing.T) {
	root := newRootCmd()

	o := &options{key: "from-flag"}
	k, err := o.resolveKey(root)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", k)

	t.Setenv("JOURNAL_KEY", "from-env")
	k, err = (&options{}).resolveKey(root)
	require.NoError(t, err)
	assert.Equal(t, "from-env", k)
}
