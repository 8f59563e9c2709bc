package session

import (
	"encoding/json"

	"github.com/forbearing/sqlwhitelist/internal/wire"
)

// PushEvent is a server-initiated record carrying no matching request id,
// modeled on the same id/type/data shape as an SSE event: a type that
// selects the handler plus an opaque payload.
type PushEvent struct {
	Type wire.EventType
	Data json.RawMessage
}

// PushHandler receives dispatched server pushes by event type. A handler is
// looked up by exact type match; VersionChange and DataChange are the only
// types the wire protocol currently names.
type PushHandler func(PushEvent)

func (c *Client) dispatchPush(rec wire.Record) {
	evt := PushEvent{Type: rec.EventType, Data: rec.Result}
	c.mu.RLock()
	handler := c.pushHandlers[rec.EventType]
	c.mu.RUnlock()
	if handler != nil {
		handler(evt)
		return
	}
	if c.logger != nil {
		c.logger.Warnw("session: unhandled server push", "eventType", string(rec.EventType))
	}
}
