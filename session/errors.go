package session

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/internal/wire"
)

// ErrConnectionClosed is the rejection reason every outstanding request
// receives when Close tears the client down.
var ErrConnectionClosed = errors.New("session: connection closed")

// ErrDiscoveryFailed is returned when no server host could be determined:
// no literal server list configured, and the discovery endpoint (if any)
// could not be reached, with no account id to fall back to.
var ErrDiscoveryFailed = errors.New("session: server discovery failed")

// ValidationError is the reconstructed form of a rejected request whose
// wire payload carried structured per-field validation failures.
type ValidationError struct {
	Fields   map[string]string
	NonField []string
}

func (e *ValidationError) Error() string {
	if len(e.NonField) > 0 {
		return e.NonField[0]
	}
	for _, msg := range e.Fields {
		return msg
	}
	return "validation failed"
}

// ServerError is the reconstructed form of any other rejected request: an
// opaque message tagged with the server's reported error type.
type ServerError struct {
	Type    string
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// validationErrorType is the wire value wire.Record.ErrorType carries when
// the server rejected a request for structured validation reasons rather
// than a generic failure.
const validationErrorType = "ValidationError"

// reconstructError builds the typed error a rejected Record represents:
// ValidationError when ErrorType names it (Error is then a JSON-encoded
// {fields, nonField} payload), otherwise a tagged ServerError.
func reconstructError(rec wire.Record) error {
	if rec.ErrorType == validationErrorType {
		var payload struct {
			Fields   map[string]string `json:"fields"`
			NonField []string          `json:"nonField"`
		}
		if err := json.Unmarshal([]byte(rec.Error), &payload); err == nil {
			return &ValidationError{Fields: payload.Fields, NonField: payload.NonField}
		}
	}
	return &ServerError{Type: rec.ErrorType, Message: rec.Error}
}
