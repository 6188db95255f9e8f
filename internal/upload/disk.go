// Package upload stores uploaded images on local disk.
package upload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/blackmichael/journal/internal/domain"
)

// DefaultMaxBytes is the default upload size limit (5 MiB).
const DefaultMaxBytes = 5 << 20

// DefaultTypes maps the accepted sniffed content types to file extensions.
var DefaultTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// DiskStore saves uploads under a directory and serves them from a URL
// prefix. Stored names are generated; the client's file name is only logged.
type DiskStore struct {
	dir       string
	urlPrefix string
	maxBytes  int64
	types     map[string]string
	logger    *slog.Logger
}

// NewDiskStore creates the upload directory if needed. A maxBytes of zero
// or less selects DefaultMaxBytes; an empty types map selects DefaultTypes.
func NewDiskStore(dir, urlPrefix string, maxBytes int64, types map[string]string, logger *slog.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(types) == 0 {
		types = DefaultTypes
	}
	if urlPrefix == "" {
		urlPrefix = "/uploads/"
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}

	return &DiskStore{
		dir:       dir,
		urlPrefix: urlPrefix,
		maxBytes:  maxBytes,
		types:     types,
		logger:    logger,
	}, nil
}

// Dir returns the directory uploads are written to.
func (d *DiskStore) Dir() string { return d.dir }

// MaxBytes returns the size limit.
func (d *DiskStore) MaxBytes() int64 { return d.maxBytes }

// Save sniffs the content type, then copies at most MaxBytes into a new
// file. Oversized content returns ErrPayloadTooLarge and leaves nothing on
// disk.
func (d *DiskStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		if isTooLarge(err) {
			return "", d.tooLarge()
		}
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return "", fmt.Errorf("%w: empty file", domain.ErrBadFile)
	}

	contentType := http.DetectContentType(head)
	ext, ok := d.types[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s files are not accepted", domain.ErrBadFile, contentType)
	}

	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(br, d.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if isTooLarge(err) {
			return "", d.tooLarge()
		}
		return "", fmt.Errorf("write upload: %w", err)
	}
	if n > d.maxBytes {
		return "", d.tooLarge()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := ulid.Make().String() + ext
	if err := os.Rename(tmpName, filepath.Join(d.dir, name)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	tmpName = ""

	d.logger.Info("upload saved",
		"original_name", filepath.Base(filename),
		"name", name,
		"content_type", contentType,
		"size", humanize.IBytes(uint64(n)),
	)
	return d.urlPrefix + name, nil
}

func (d *DiskStore) tooLarge() error {
	return fmt.Errorf("%w: the limit is %s", domain.ErrPayloadTooLarge, humanize.IBytes(uint64(d.maxBytes)))
}

// isTooLarge reports whether err comes from an http.MaxBytesReader that hit
// its limit upstream of the store.
func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
