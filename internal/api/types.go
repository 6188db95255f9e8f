// Package api holds the JSON request and response bodies of the HTTP API,
// shared by the server and the Go client.
package api

import (
	"errors"
	"net/http"

	"github.com/blackmichael/journal/internal/domain"
)

// Error types carried in ErrorResponse.Error.
const (
	ErrTypeInvalidCredential = "InvalidCredential"
	ErrTypeUnauthorized      = "Unauthorized"
	ErrTypeForbidden         = "Forbidden"
	ErrTypeValidation        = "ValidationError"
	ErrTypePayloadTooLarge   = "PayloadTooLarge"
	ErrTypeBadFile           = "BadFile"
	ErrTypePersistence       = "PersistenceFailure"
	ErrTypeInvalidRequest    = "InvalidRequest"
	ErrTypeInternal          = "InternalError"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type LoginRequest struct {
	APIKey     string `json:"apiKey"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginResponse struct {
	OK   bool        `json:"ok"`
	Role domain.Role `json:"role"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type SessionResponse struct {
	LoggedIn bool        `json:"loggedIn"`
	Role     domain.Role `json:"role"`
}

// PostView is a post with its presentation hint.
type PostView struct {
	domain.Post
	Kind domain.MediaKind `json:"kind"`
}

type PageResponse struct {
	Items    []PostView  `json:"items"`
	Page     int         `json:"page"`
	HasOlder bool        `json:"hasOlder"`
	HasNewer bool        `json:"hasNewer"`
	IsEdit   bool        `json:"isEdit"`
	Role     domain.Role `json:"role"`
}

type CreatePostRequest struct {
	Text string `json:"text"`
}

type CreatePostResponse struct {
	OK   bool     `json:"ok"`
	Post PostView `json:"post"`
}

type UploadResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

// UploadField is the multipart form field carrying the file.
const UploadField = "image"

type errorMapping struct {
	sentinel error
	status   int
	errType  string
	message  string
}

var mappings = []errorMapping{
	{domain.ErrInvalidCredential, http.StatusUnauthorized, ErrTypeInvalidCredential, "Invalid key"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, ErrTypeUnauthorized, "Please log in"},
	{domain.ErrForbidden, http.StatusForbidden, ErrTypeForbidden, "You do not have permission"},
	{domain.ErrValidation, http.StatusBadRequest, ErrTypeValidation, ""},
	{domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, ErrTypePayloadTooLarge, ""},
	{domain.ErrBadFile, http.StatusBadRequest, ErrTypeBadFile, ""},
	{domain.ErrPersistence, http.StatusInternalServerError, ErrTypePersistence, "The post could not be saved"},
}

// Classify maps an error to its HTTP status, error type and user-facing
// message. Validation and upload errors carry their own message; everything
// unrecognised is an InternalError.
func Classify(err error) (status int, errType, message string) {
	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return m.status, m.errType, msg
		}
	}
	return http.StatusInternalServerError, ErrTypeInternal, "Something went wrong"
}

// Sentinel returns the domain error for an error type, or nil.
func Sentinel(errType string) error {
	for _, m := range mappings {
		if m.errType == errType {
			return m.sentinel
		}
	}
	return nil
}
