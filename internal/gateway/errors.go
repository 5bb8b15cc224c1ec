package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigurationMissing = errors.New("API credential not configured")
	ErrMalformedResponse    = errors.New("unexpected API response shape")
)

const genericFailure = "API request failed"

// NetworkError is a failure to reach the endpoint at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-success status. Message is the server-provided message,
// or a generic one.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func newHTTPError(status int, body []byte) *HTTPError {
	var eb errorBody
	msg := genericFailure
	if err := json.Unmarshal(body, &eb); err == nil && strings.TrimSpace(eb.Error.Message) != "" {
		msg = strings.TrimSpace(eb.Error.Message)
	}
	return &HTTPError{Status: status, Message: msg}
}
