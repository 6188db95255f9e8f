package domain

import (
	"net/url"
	"path"
	"strings"
)

// MediaKind is a presentation hint derived from post text.
type MediaKind string

const (
	KindText  MediaKind = "text"
	KindLink  MediaKind = "link"
	KindImage MediaKind = "image"
)

// DefaultImageExtensions and DefaultImageHosts are used when a MediaMatcher
// is built from empty lists.
var (
	DefaultImageExtensions = []string{"jpeg", "jpg", "gif", "png", "webp", "avif", "bmp"}
	DefaultImageHosts      = []string{"pbs.twimg.com/media/"}
)

// MediaMatcher classifies post text using an allow-list of image file
// extensions and host/path prefixes.
type MediaMatcher struct {
	exts  map[string]struct{}
	hosts []string
}

// NewMediaMatcher builds a matcher. Extensions may be given with or without
// a leading dot and are matched case-insensitively.
func NewMediaMatcher(extensions, hosts []string) *MediaMatcher {
	if len(extensions) == 0 {
		extensions = DefaultImageExtensions
	}
	if len(hosts) == 0 {
		hosts = DefaultImageHosts
	}

	m := &MediaMatcher{exts: make(map[string]struct{}, len(extensions))}
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			m.exts[e] = struct{}{}
		}
	}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			m.hosts = append(m.hosts, h)
		}
	}
	return m
}

// Kind classifies text. Site-relative upload paths such as
// "/uploads/01J....png" count as images.
func (m *MediaMatcher) Kind(text string) MediaKind {
	if m.IsImage(text) {
		return KindImage
	}
	if strings.Contains(text, "http") {
		return KindLink
	}
	return KindText
}

// IsImage reports whether text is a URL that points at an image.
func (m *MediaMatcher) IsImage(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return false
	}

	u, err := url.Parse(text)
	if err != nil {
		return false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if _, ok := m.exts[ext]; ok {
		return true
	}

	hostPath := strings.ToLower(u.Host + u.Path)
	for _, h := range m.hosts {
		if strings.HasPrefix(hostPath, h) {
			return true
		}
	}
	return false
}
