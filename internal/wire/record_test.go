package wire

import (
	"encoding/json"
	"testing"
)

func TestParseResultRowEnvelope(t *testing.T) {
	raw := json.RawMessage(`{"__C_":["id","name"],"__R_":[[1,"a"],[2,"b"]]}`)
	v, err := ParseResult(raw)
	if err != nil {
		t.Fatal(err)
	}
	rr, ok := v.(*RowResult)
	if !ok {
		t.Fatalf("expected *RowResult, got %T", v)
	}
	if len(rr.Columns) != 2 || rr.Columns[0] != "id" {
		t.Fatalf("unexpected columns: %v", rr.Columns)
	}
	maps := rr.AsMaps()
	if len(maps) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(maps))
	}
	if maps[0]["name"] != "a" || maps[1]["id"].(float64) != 2 {
		t.Fatalf("unexpected row contents: %+v", maps)
	}
}

func TestParseResultArbitraryJSON(t *testing.T) {
	raw := json.RawMessage(`{"ok":true}`)
	v, err := ParseResult(raw)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("unexpected result: %#v", v)
	}
}

func TestParseResultEmpty(t *testing.T) {
	v, err := ParseResult(nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("expected nil result for empty payload, got %v", v)
	}
}

func TestRecordIsErrorAndIsPush(t *testing.T) {
	errRec := Record{ID: 1, Error: "boom", ErrorType: "ValidationError"}
	if !errRec.IsError() {
		t.Fatal("expected IsError true")
	}
	if errRec.IsPush() {
		t.Fatal("an error record is never a push")
	}

	pushRec := Record{EventType: EventVersionChange}
	if !pushRec.IsPush() {
		t.Fatal("expected IsPush true for a record carrying only an eventType")
	}
	if pushRec.IsError() {
		t.Fatal("a push record carries no error")
	}
}

func TestParseRecordDecodesFields(t *testing.T) {
	data := []byte(`{"id":7,"session":"s1","result":{"ok":true}}`)
	rec, err := ParseRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != 7 || rec.Session != "s1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
