package runtime

import "github.com/forbearing/sqlwhitelist/internal/wire"

// Outbox accumulates the messages a tick's task dispatch emits for the host
// to relay onward. A fresh Outbox is installed at the start of every tick;
// its backing slice starts at the host-reported tail so slots the host
// still owns are never overwritten, and grows by append past that point.
type Outbox struct {
	slots []wire.OutboxSlot
	tail  int
}

// NewOutbox installs tail as the outbox's starting write position.
func NewOutbox(tail int) *Outbox {
	return &Outbox{slots: make([]wire.OutboxSlot, tail, tail+16), tail: tail}
}

// outTask packs msgType into the top byte of requestID and appends (or, if
// tail still points inside an already-allocated slot, overwrites in place)
// the four-value outbox slot, then advances the tail.
func (o *Outbox) outTask(msgType wire.MsgType, requestID uint32, subtaskID int32, arg1, arg2 any) {
	slot := wire.OutboxSlot{
		RequestIDWithMsgType: wire.PackRequestID(msgType, requestID),
		SubtaskID:            subtaskID,
		Arg1:                 arg1,
		Arg2:                 arg2,
	}
	if o.tail < len(o.slots) {
		o.slots[o.tail] = slot
	} else {
		o.slots = append(o.slots, slot)
	}
	o.tail++
}

// Tail returns the outbox's current write position — the tenant runtime
// hands this back to the host as runTasks's return value.
func (o *Outbox) Tail() int { return o.tail }

// Slots returns the backing slice: the first tail-at-install entries are
// zero-valued placeholders for the slots the host already owned at tick
// start, followed by every slot written this tick.
func (o *Outbox) Slots() []wire.OutboxSlot { return o.slots }
