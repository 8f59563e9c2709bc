package wire

import "testing"

func TestFrameEncodeParseRoundTrip(t *testing.T) {
	f := Frame{Cmd: CmdQuery, ID: 42, Target: "abc123", Args: `{"x":1}`}
	encoded := f.Encode()
	if encoded != `Q42;abc123;{"x":1}` {
		t.Fatalf("unexpected encoding: %q", encoded)
	}
	got, err := ParseFrame(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestParseFrameRejectsUnknownCmd(t *testing.T) {
	if _, err := ParseFrame("Z1;x;{}"); err == nil {
		t.Fatal("expected error for unknown command byte")
	}
}

func TestParseFrameRejectsMissingSeparators(t *testing.T) {
	cases := []string{"", "Q", "Q1", "Q1;target"}
	for _, c := range cases {
		if _, err := ParseFrame(c); err == nil {
			t.Fatalf("expected error parsing %q", c)
		}
	}
}

func TestParseFrameArgsMayContainSemicolons(t *testing.T) {
	got, err := ParseFrame(`H7;;{"a":"b;c"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got.Args != `{"a":"b;c"}` {
		t.Fatalf("unexpected args: %q", got.Args)
	}
	if got.Target != "" {
		t.Fatalf("expected empty target, got %q", got.Target)
	}
}
