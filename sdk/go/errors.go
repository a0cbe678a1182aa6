package mailbolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoToken is returned when a confirmation link carries no token.
var ErrNoToken = errors.New("mailbolt: no subscription token in link")

// APIError represents an error response from the mailbolt API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailbolt: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// IsInvalidInput reports a rejected form or missing token (400).
func (e *APIError) IsInvalidInput() bool { return e.StatusCode == http.StatusBadRequest }

// IsUnknownToken reports a confirmation token the server does not know (401).
func (e *APIError) IsUnknownToken() bool { return e.StatusCode == http.StatusUnauthorized }

// apiErrorWrapper matches the mailbolt API error envelope.
type apiErrorWrapper struct {
	Error APIError `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var wrapper apiErrorWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Code != "" {
		wrapper.Error.StatusCode = statusCode
		return &wrapper.Error
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       "unknown",
		Message:    string(body),
	}
}

// IsAPIError checks whether err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
