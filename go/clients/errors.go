package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnreachable means the request timed out or never reached the server
var ErrUnreachable = errors.New("server unreachable")

// UnreachableMessage is shown to the user instead of a rejection
const UnreachableMessage = "Server unreachable. Check your connection and server configuration."

// HTTPError is returned when the server evaluated a request and declined it
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API returned status code: %d, message: %s", e.StatusCode, e.Message)
}

func newHTTPError(status int, body []byte) *HTTPError {
	msg := strings.TrimSpace(string(body))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &HTTPError{StatusCode: status, Message: msg, Body: string(body)}
}

// IsStatus reports whether err is an HTTPError with the given status code
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

// UserMessage renders an action error for display
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnreachable) {
		return UnreachableMessage
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return err.Error()
}
