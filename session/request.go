package session

import (
	"strconv"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/forbearing/sqlwhitelist/internal/wire"
)

// pendingRequest is one outstanding request awaiting its correlated Record.
type pendingRequest struct {
	resolve func(any)
	reject  func(error)
}

func requestKey(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

// requestTable tracks outstanding requests by id and allocates new,
// monotonically increasing ids that additionally encode milliseconds
// elapsed since connect, per spec.md's id allocation rule:
// id = max(lastId+1, now-connectedAt); lastId <- id.
type requestTable struct {
	mu      sync.Mutex
	lastID  uint32
	entries cmap.ConcurrentMap[string, *pendingRequest]
}

func newRequestTable() *requestTable {
	return &requestTable{entries: cmap.New[*pendingRequest]()}
}

// next allocates the next request id given milliseconds elapsed since the
// transport connected.
func (t *requestTable) next(msSinceConnect int64) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	candidate := t.lastID + 1
	if msSinceConnect > 0 && uint32(msSinceConnect) > candidate {
		candidate = uint32(msSinceConnect)
	}
	t.lastID = candidate
	return candidate
}

func (t *requestTable) add(id uint32, p *pendingRequest) { t.entries.Set(requestKey(id), p) }

func (t *requestTable) take(id uint32) (*pendingRequest, bool) {
	p, ok := t.entries.Get(requestKey(id))
	if ok {
		t.entries.Remove(requestKey(id))
	}
	return p, ok
}

func (t *requestTable) isEmpty() bool { return t.entries.Count() == 0 }

// rejectAll rejects and removes every outstanding request with err — used
// on Close and on transport loss.
func (t *requestTable) rejectAll(err error) {
	var keys []string
	t.entries.IterCb(func(key string, p *pendingRequest) {
		keys = append(keys, key)
		p.reject(err)
	})
	for _, key := range keys {
		t.entries.Remove(key)
	}
}

// resolveRecord dispatches rec to its pending request, if any is found. ok
// is false when rec.ID has no matching entry — the caller should then treat
// rec as a server push.
func (t *requestTable) resolveRecord(rec wire.Record) (ok bool) {
	p, found := t.take(rec.ID)
	if !found {
		return false
	}
	if rec.IsError() {
		p.reject(reconstructError(rec))
		return true
	}
	result, err := wire.ParseResult(rec.Result)
	if err != nil {
		p.reject(err)
		return true
	}
	p.resolve(result)
	return true
}
