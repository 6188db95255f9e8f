package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/blackmichael/journal/internal/api"
	"github.com/blackmichael/journal/internal/domain"
)

const (
	maxJSONBody = 1 << 20

	// multipartOverhead is the allowance for boundaries and part headers on
	// top of the upload limit.
	multipartOverhead = 64 << 10
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, api.ErrTypeInvalidRequest, "request body must be JSON")
		return
	}

	sess, token, err := s.sessions.Login(r.Context(), req.APIKey, req.RememberMe)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.sessions.SetCookie(w, token, sess)
	writeJSON(w, http.StatusOK, api.LoginResponse{OK: true, Role: sess.Role})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, token, err := s.sessions.FromRequest(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := domain.RequireSession(sess); err != nil {
		s.sessions.ClearCookie(w)
		s.writeDomainError(w, r, err)
		return
	}

	if _, err := s.sessions.Logout(r.Context(), token); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.hub.DropSession(sess.ID)

	s.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	role, err := s.sessions.CurrentRole(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.SessionResponse{
		LoggedIn: role.Valid(),
		Role:     role,
	})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessions.FromRequest(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// Missing or malformed page numbers mean the first page; the engine
	// clamps the rest.
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}

	result, err := s.service.Page(r.Context(), sess, page)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	items := make([]api.PostView, len(result.Items))
	for i, p := range result.Items {
		items[i] = s.view(p)
	}
	writeJSON(w, http.StatusOK, api.PageResponse{
		Items:    items,
		Page:     result.Page,
		HasOlder: result.HasOlder,
		HasNewer: result.HasNewer,
		IsEdit:   result.IsEdit,
		Role:     result.Role,
	})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessions.FromRequest(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := domain.RequireEditor(sess); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	text, err := postText(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, api.ErrTypeInvalidRequest, err.Error())
		return
	}

	post, err := s.service.CreatePost(r.Context(), sess, text)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.CreatePostResponse{OK: true, Post: s.view(post)})
}

// postText reads the post text from a JSON body or a form.
func postText(w http.ResponseWriter, r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("invalid form body")
		}
		return r.PostForm.Get("text"), nil
	}

	var req api.CreatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", fmt.Errorf("request body must be JSON")
	}
	return req.Text, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessions.FromRequest(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := domain.RequireEditor(sess); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if r.ContentLength > s.cfg.Uploads.MaxBytes+multipartOverhead {
		s.writeDomainError(w, r, fmt.Errorf("%w: request body is %d bytes", domain.ErrPayloadTooLarge, r.ContentLength))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Uploads.MaxBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("%w: expected a multipart form", domain.ErrBadFile))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeDomainError(w, r, fmt.Errorf("%w: no %q file in the form", domain.ErrBadFile, api.UploadField))
			return
		}
		if err != nil {
			s.writeDomainError(w, r, uploadReadError(err))
			return
		}
		if part.FormName() != api.UploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		url, err := s.service.Upload(r.Context(), sess, part.FileName(), part)
		part.Close()
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, api.UploadResponse{OK: true, URL: url})
		return
	}
}

// uploadReadError classifies a failure to parse the multipart body.
func uploadReadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: the limit is %d bytes", domain.ErrPayloadTooLarge, mbe.Limit)
	}
	return fmt.Errorf("%w: %v", domain.ErrBadFile, err)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, _, err := s.sessions.FromRequest(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := domain.RequireSession(sess); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if err := s.hub.ServeWS(w, r, sess); err != nil {
		s.logger.Warn("live connection rejected", "session", sess.ID, "error", err)
	}
}

func (s *Server) view(p domain.Post) api.PostView {
	return api.PostView{Post: p, Kind: s.service.MediaKind(p.Text)}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}
