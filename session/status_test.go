package session

import "testing"

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusNotConnected: "not_connected",
		StatusConnecting:   "connecting",
		StatusOpen:         "open",
		StatusActive:       "active",
		StatusClosing:      "closing",
		StatusClosed:       "closed",
		Status(99):         "unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
