package session

import (
	"encoding/json"
	"testing"

	"github.com/forbearing/sqlwhitelist/internal/wire"
)

func TestRequestTableIDMonotonicAndEncodesElapsed(t *testing.T) {
	tbl := newRequestTable()

	if id := tbl.next(0); id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}
	if id := tbl.next(0); id != 2 {
		t.Fatalf("second id = %d, want 2", id)
	}
	// A large elapsed-ms jump forces the id forward past lastId+1.
	if id := tbl.next(1000); id != 1000 {
		t.Fatalf("id after jump = %d, want 1000", id)
	}
	if id := tbl.next(500); id != 1001 {
		t.Fatalf("id after smaller elapsed = %d, want 1001 (monotonic)", id)
	}
}

func TestResolveRecordMatchesByID(t *testing.T) {
	tbl := newRequestTable()
	var got any
	tbl.add(7, &pendingRequest{
		resolve: func(v any) { got = v },
		reject:  func(error) {},
	})

	rec := wire.Record{ID: 7, Result: json.RawMessage(`"hello"`)}
	if !tbl.resolveRecord(rec) {
		t.Fatal("expected resolveRecord to match pending request 7")
	}
	if got != "hello" {
		t.Fatalf("resolved value = %v, want hello", got)
	}
	if !tbl.isEmpty() {
		t.Fatal("expected request table to be empty after resolution")
	}
}

func TestResolveRecordUnknownIDIsPush(t *testing.T) {
	tbl := newRequestTable()
	rec := wire.Record{ID: 42, EventType: wire.EventVersionChange}
	if tbl.resolveRecord(rec) {
		t.Fatal("expected no match for an id with no pending request")
	}
}

func TestResolveRecordRejectsValidationError(t *testing.T) {
	tbl := newRequestTable()
	var gotErr error
	tbl.add(3, &pendingRequest{
		resolve: func(any) {},
		reject:  func(err error) { gotErr = err },
	})

	payload := `{"fields":{"email":"required"},"nonField":[]}`
	rec := wire.Record{ID: 3, Error: payload, ErrorType: "ValidationError"}
	if !tbl.resolveRecord(rec) {
		t.Fatal("expected resolveRecord to match pending request 3")
	}
	ve, ok := gotErr.(*ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want *ValidationError", gotErr)
	}
	if ve.Fields["email"] != "required" {
		t.Fatalf("fields = %v, want email=required", ve.Fields)
	}
}

func TestRejectAllEmptiesTable(t *testing.T) {
	tbl := newRequestTable()
	var rejections int
	for i := range uint32(3) {
		tbl.add(i+1, &pendingRequest{resolve: func(any) {}, reject: func(error) { rejections++ }})
	}
	tbl.rejectAll(ErrConnectionClosed)
	if rejections != 3 {
		t.Fatalf("rejections = %d, want 3", rejections)
	}
	if !tbl.isEmpty() {
		t.Fatal("expected table empty after rejectAll")
	}
}
