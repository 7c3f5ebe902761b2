package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/one-click-apply/internal/backend"
	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/credits"
	"github.com/jonathan/one-click-apply/internal/files"
	"github.com/jonathan/one-click-apply/internal/questions"
	"github.com/jonathan/one-click-apply/internal/session"
	"github.com/jonathan/one-click-apply/internal/tabs"
)

// ErrBadRequest wraps request decoding and validation failures.
var ErrBadRequest = errors.New("bad request")

// HTTPStatus maps a domain error to its response status.
func HTTPStatus(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, files.ErrInvalidFileType),
		errors.Is(err, files.ErrStorageCapExceeded),
		errors.Is(err, files.ErrTooManySupportingDocs),
		errors.Is(err, files.ErrInvalidCategory),
		errors.Is(err, files.ErrEmptyFile),
		errors.Is(err, session.ErrNoResume),
		errors.Is(err, session.ErrNoPageContent),
		errors.Is(err, questions.ErrEmptyQuestion),
		errors.Is(err, questions.ErrNoGeneration),
		errors.Is(err, questions.ErrNoResume),
		errors.Is(err, credits.ErrUnknownPackage),
		errors.Is(err, coordinator.ErrInvalidEvent),
		errors.Is(err, backend.ErrNotJobPosting):
		return http.StatusBadRequest
	case errors.Is(err, credits.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, tabs.ErrNoActiveTab),
		errors.Is(err, tabs.ErrUnknownTab),
		errors.Is(err, files.ErrFileNotFound):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
