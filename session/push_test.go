package session

import (
	"encoding/json"
	"testing"

	"github.com/forbearing/sqlwhitelist/internal/wire"
)

func TestDispatchPushInvokesRegisteredHandler(t *testing.T) {
	c := &Client{pushHandlers: make(map[wire.EventType]PushHandler)}
	var got PushEvent
	c.OnPush(wire.EventDataChange, func(e PushEvent) { got = e })

	c.dispatchPush(wire.Record{EventType: wire.EventDataChange, Result: json.RawMessage(`{"table":"orders"}`)})

	if got.Type != wire.EventDataChange {
		t.Fatalf("dispatched type = %v, want %v", got.Type, wire.EventDataChange)
	}
	if string(got.Data) != `{"table":"orders"}` {
		t.Fatalf("dispatched data = %s", got.Data)
	}
}

func TestDispatchPushWithNoHandlerDoesNotPanic(t *testing.T) {
	c := &Client{pushHandlers: make(map[wire.EventType]PushHandler)}
	c.dispatchPush(wire.Record{EventType: wire.EventVersionChange})
}

func TestReconstructErrorValidation(t *testing.T) {
	rec := wire.Record{ErrorType: "ValidationError", Error: `{"fields":{"age":"must be positive"},"nonField":["too many requests"]}`}
	err := reconstructError(rec)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	if ve.Error() != "too many requests" {
		t.Fatalf("Error() = %q, want nonField message", ve.Error())
	}
}

func TestReconstructErrorServer(t *testing.T) {
	rec := wire.Record{ErrorType: "InternalError", Error: "boom"}
	err := reconstructError(rec)
	se, ok := err.(*ServerError)
	if !ok {
		t.Fatalf("error type = %T, want *ServerError", err)
	}
	if se.Error() != "boom" {
		t.Fatalf("Error() = %q, want boom", se.Error())
	}
}
