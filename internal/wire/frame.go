// Package wire implements the text framing shared by the session client and
// the tenant runtime: outbound request frames, inbound JSON records, and the
// host/tenant inbox/outbox slot encoding.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Cmd identifies the kind of an outbound request frame.
type Cmd byte

const (
	CmdHello Cmd = 'H'
	CmdQuery Cmd = 'Q'
	CmdCall  Cmd = 'C'
)

func (c Cmd) Valid() bool {
	switch c {
	case CmdHello, CmdQuery, CmdCall:
		return true
	default:
		return false
	}
}

// ErrMalformedFrame is returned when an outbound or inbound text frame
// cannot be parsed.
var ErrMalformedFrame = errors.New("malformed wire frame")

// Frame is one outbound text frame: "<CMD><id>;<target>;<jsonArgs>".
type Frame struct {
	Cmd    Cmd
	ID     uint32
	Target string
	Args   string // pre-encoded JSON
}

// Encode renders f as the literal text frame sent over the transport.
func (f Frame) Encode() string {
	var b strings.Builder
	b.WriteByte(byte(f.Cmd))
	b.WriteString(strconv.FormatUint(uint64(f.ID), 10))
	b.WriteByte(';')
	b.WriteString(f.Target)
	b.WriteByte(';')
	b.WriteString(f.Args)
	return b.String()
}

// ParseFrame decodes a text frame previously produced by Encode. Binary
// frames have no textual representation and are rejected by callers before
// reaching this function — receipt of one is a protocol error, not a parse
// error here.
func ParseFrame(text string) (Frame, error) {
	if len(text) == 0 {
		return Frame{}, errors.Wrap(ErrMalformedFrame, "empty frame")
	}
	cmd := Cmd(text[0])
	if !cmd.Valid() {
		return Frame{}, errors.Wrapf(ErrMalformedFrame, "unknown command byte %q", text[0])
	}

	rest := text[1:]
	firstSemi := strings.IndexByte(rest, ';')
	if firstSemi < 0 {
		return Frame{}, errors.Wrap(ErrMalformedFrame, "missing target separator")
	}
	idStr := rest[:firstSemi]
	rest = rest[firstSemi+1:]

	secondSemi := strings.IndexByte(rest, ';')
	if secondSemi < 0 {
		return Frame{}, errors.Wrap(ErrMalformedFrame, "missing args separator")
	}
	target := rest[:secondSemi]
	args := rest[secondSemi+1:]

	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return Frame{}, errors.Wrapf(ErrMalformedFrame, "bad request id %q", idStr)
	}

	return Frame{Cmd: cmd, ID: uint32(id), Target: target, Args: args}, nil
}

func (f Frame) String() string {
	return fmt.Sprintf("%c%d;%s;%s", f.Cmd, f.ID, f.Target, f.Args)
}
