package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ErrNotJobPosting is returned when the backend judges the page not to be a job posting.
var ErrNotJobPosting = errors.New("this page does not look like a job posting")

// APIError is a non-2xx response of the backend. Its message is the backend's
// detail text, shown to the user verbatim.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return e.Detail
}

// IsAPIError reports whether err carries a backend error response.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// newAPIError decodes the {"detail": ...} body of a failed response. Validation
// failures carry a list of {"msg": ...} objects instead of a string.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if err := json.Unmarshal(payload.Detail, &text); err == nil && text != "" {
			return &APIError{Status: status, Detail: text}
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return &APIError{Status: status, Detail: strings.Join(msgs, "; ")}
			}
		}
	}
	return &APIError{Status: status, Detail: http.StatusText(status)}
}
