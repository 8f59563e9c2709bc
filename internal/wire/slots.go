package wire

// MsgType identifies the kind of outbox message the tenant runtime writes
// for the host to relay onward.
type MsgType byte

const (
	MsgCallResult  MsgType = 144
	MsgCallError   MsgType = 145
	MsgFetch       MsgType = 146
	MsgLog         MsgType = 147
	MsgQuery       MsgType = 151
	MsgCreateTimer MsgType = 152
	MsgDeleteTimer MsgType = 153
)

const (
	// RequestIDMask isolates the low 24 bits of a packed request id, masking
	// off the flag/msgType byte occupying bits 24-31.
	RequestIDMask uint32 = 0x00ffffff

	// Resume marks an inbox slot as a subtask completion resolving its
	// promise/callback with data.
	Resume uint32 = 1 << 31
	// Reject marks an inbox slot as a subtask completion rejecting its
	// promise/callback with data.
	Reject uint32 = 1 << 30

	// RequestIsSubtask is set when either completion flag is present.
	RequestIsSubtask uint32 = Resume | Reject
)

// InboxSlot is one task-queue entry the host hands to the tenant runtime on
// a tick: [requestIdWithFlags, nameOrSubtaskId, argument].
type InboxSlot struct {
	RequestIDWithFlags uint32
	NameOrSubtaskID    any
	Argument           any
}

// IsSubtaskCompletion reports whether the slot's request id carries the
// Resume or Reject flag, meaning it resolves or rejects a previously issued
// subtask rather than starting a new task invocation.
func (s InboxSlot) IsSubtaskCompletion() bool {
	return s.RequestIDWithFlags&RequestIsSubtask != 0
}

// RequestID strips the flag byte, returning the bare 24-bit request id.
func (s InboxSlot) RequestID() uint32 {
	return s.RequestIDWithFlags & RequestIDMask
}

// OutboxSlot is one message the tenant runtime emits for the host to
// forward: [requestIdWithMsgTypeByte, subtaskId, varlen1, varlen2].
type OutboxSlot struct {
	RequestIDWithMsgType uint32
	SubtaskID            int32
	Arg1                 any
	Arg2                 any
}

// PackRequestID packs msgType into the top byte of requestID (the low 24
// bits of which must already fit RequestIDMask).
func PackRequestID(msgType MsgType, requestID uint32) uint32 {
	return (uint32(msgType) << 24) | (requestID & RequestIDMask)
}

// UnpackMsgType recovers the msgType byte written into the top byte of a
// packed outbox request id.
func UnpackMsgType(packed uint32) MsgType {
	return MsgType(packed >> 24)
}

// UnpackRequestID recovers the bare request id from a packed outbox value.
func UnpackRequestID(packed uint32) uint32 {
	return packed & RequestIDMask
}
