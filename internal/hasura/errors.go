package hasura

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TransportError is returned when the metadata API answers with a
// non-success status. Body holds the raw response text.
type TransportError struct {
	Op     string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	verb := "call metadata API"
	switch e.Op {
	case OpExport:
		verb = "export metadata"
	case OpReplace:
		verb = "replace metadata"
	}
	return fmt.Sprintf("failed to %s: %d %s", verb, e.Status, e.Body)
}

// APIError is the error object the metadata API puts in failed responses.
type APIError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Detail decodes the API error object carried in the body, if any.
func (e *TransportError) Detail() (APIError, bool) {
	var detail APIError
	if err := json.Unmarshal([]byte(e.Body), &detail); err != nil || detail.Error == "" {
		return APIError{}, false
	}
	return detail, true
}

// IsTransportError reports whether err wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
