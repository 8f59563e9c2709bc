// Package session implements the client-side session core: a single
// persistent, ordered, duplex connection to one of the service's hosts,
// with discovery, reconnection, request/response correlation, and
// server-push dispatch.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/forbearing/sqlwhitelist/internal/wire"
	"github.com/forbearing/sqlwhitelist/metrics"
	"github.com/forbearing/sqlwhitelist/types"
)

// readyPollInterval is how often the ready barrier polls for the transport
// to finish opening before sending HELLO.
const readyPollInterval = 5 * time.Millisecond

// helloPayload is the JSON body of the first frame sent on every new
// connection, negotiating protocol and application versions.
type helloPayload struct {
	ProtocolVersion string `json:"protocolVersion"`
	AppVersion      string `json:"appVersion,omitempty"`
}

// Client is one tenant's session to the service: it owns at most one live
// transport at a time, discovers and reconnects across transport loss, and
// correlates every outbound request with its eventual response or
// rejection.
type Client struct {
	mu sync.RWMutex

	discoverer *discoverer
	httpClient *http.Client
	dialer     *websocket.Dialer
	reconnect  *rate.Limiter
	logger     types.Logger
	ctx        context.Context

	protocolVersion string
	appVersion      string
	preventUnload   bool

	conn         *websocket.Conn
	connectedAt  time.Time
	status       Status
	reqs         *requestTable
	pushHandlers map[wire.EventType]PushHandler

	sendCh       chan []byte
	sendBuffered int64
	closeOnce    sync.Once
	connCancel   context.CancelFunc
}

// New dials a session using opts to configure discovery, transport, and
// logging, then blocks until the ready barrier passes (transport open and
// HELLO sent) or ctx is done.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{
		ctx:             ctx,
		protocolVersion: "1.0",
		dialer:          websocket.DefaultDialer,
		reqs:            newRequestTable(),
		pushHandlers:    make(map[wire.EventType]PushHandler),
		status:          StatusNotConnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.discoverer == nil {
		return nil, errors.New("session: no discovery configured; use WithServers, WithDiscoveryURL, or WithAccountFallback")
	}

	if c.preventUnload {
		registerUnloadGuard(c)
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	host, err := c.discoverer.host(ctx)
	if err != nil {
		c.setStatus(StatusNotConnected)
		return errors.Wrap(err, "session: connect")
	}

	url := host
	if !strings.Contains(url, "://") {
		url = "wss://" + url
	}
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.discoverer.forget()
		c.setStatus(StatusNotConnected)
		return errors.Wrapf(err, "session: dialing %s", url)
	}

	connCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.connectedAt = time.Now()
	c.connCancel = cancel
	c.sendCh = make(chan []byte, 64)
	c.mu.Unlock()

	go c.writeLoop(connCtx)
	go c.readLoop(connCtx)

	if err := c.awaitReady(connCtx); err != nil {
		return err
	}

	return c.sendHello()
}

// awaitReady cooperatively polls every readyPollInterval until the
// transport handle is non-nil, mirroring the browser client's readiness
// barrier against an asynchronous socket open event.
func (c *Client) awaitReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		c.mu.RLock()
		ready := c.conn != nil
		c.mu.RUnlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "session: waiting for transport to open")
		case <-ticker.C:
		}
	}
}

func (c *Client) sendHello() error {
	args, err := json.Marshal(helloPayload{ProtocolVersion: c.protocolVersion, AppVersion: c.appVersion})
	if err != nil {
		return errors.Wrap(err, "session: encoding HELLO")
	}
	frame := wire.Frame{Cmd: wire.CmdHello, ID: 0, Target: "", Args: string(args)}
	if err := c.write(frame.Encode()); err != nil {
		return errors.Wrap(err, "session: sending HELLO")
	}
	c.setStatus(StatusOpen)
	return nil
}

func (c *Client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.sendCh:
			if !ok {
				return
			}
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				continue
			}
			err := conn.WriteMessage(websocket.TextMessage, payload)
			c.mu.Lock()
			c.sendBuffered -= int64(len(payload))
			c.mu.Unlock()
			if err != nil {
				c.onTransportLoss(err)
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.onTransportLoss(err)
			return
		}
		rec, err := wire.ParseRecord(data)
		if err != nil {
			if c.logger != nil {
				c.logger.Warnw("session: dropping malformed record", "error", err)
			}
			continue
		}
		if ok := c.reqs.resolveRecord(rec); ok {
			c.touchStatus()
			continue
		}
		c.dispatchPush(rec)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// onTransportLoss tears down the dead connection and returns the client to
// StatusNotConnected, forgetting the discovered host so the next reconnect
// attempt re-discovers rather than redialing a host that just failed.
func (c *Client) onTransportLoss(err error) {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.conn.Close() //nolint:errcheck
	c.conn = nil
	if c.connCancel != nil {
		c.connCancel()
	}
	closed := c.status == StatusClosed || c.status == StatusClosing
	c.mu.Unlock()

	c.discoverer.forget()
	if closed {
		return
	}
	c.setStatus(StatusNotConnected)
	c.reqs.rejectAll(errors.Wrap(err, "session: transport lost"))
	if c.logger != nil {
		c.logger.Warnw("session: transport lost", "error", err)
	}
}

// Reconnect dials a fresh transport after a loss, rate-limited by
// WithReconnectRateLimit to avoid hammering a host that is down.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.reconnect != nil {
		if err := c.reconnect.Wait(ctx); err != nil {
			return errors.Wrap(err, "session: reconnect rate limit")
		}
	}
	return c.connect(ctx)
}

func (c *Client) write(frame string) error {
	payload := []byte(frame)
	c.mu.Lock()
	if c.status == StatusClosed || c.status == StatusClosing {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.sendBuffered += int64(len(payload))
	ch := c.sendCh
	c.mu.Unlock()

	select {
	case ch <- payload:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Call issues a request against target with args and returns its eventual
// result or rejection. Exactly one of the two returned channels receives a
// single value.
func (c *Client) Call(target string, args any) (<-chan any, <-chan error) {
	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	encoded, err := json.Marshal(args)
	if err != nil {
		errCh <- errors.Wrap(err, "session: encoding call arguments")
		return resultCh, errCh
	}

	c.mu.Lock()
	msSinceConnect := time.Since(c.connectedAt).Milliseconds()
	id := c.reqs.next(msSinceConnect)
	c.mu.Unlock()

	c.reqs.add(id, &pendingRequest{
		resolve: func(v any) {
			if metrics.SessionRequestsTotal != nil {
				metrics.SessionRequestsTotal.WithLabelValues("resolved").Inc()
			}
			resultCh <- v
		},
		reject: func(err error) {
			if metrics.SessionRequestsTotal != nil {
				metrics.SessionRequestsTotal.WithLabelValues("rejected").Inc()
			}
			errCh <- err
		},
	})
	c.touchStatus()

	frame := wire.Frame{Cmd: wire.CmdCall, ID: id, Target: target, Args: string(encoded)}
	if err := c.write(frame.Encode()); err != nil {
		if p, ok := c.reqs.take(id); ok {
			p.reject(err)
		}
	}
	return resultCh, errCh
}

// CancelCall cancels the outstanding request id, if any, rejecting it with a
// "session: request cancelled" error.
func (c *Client) CancelCall(id uint32) {
	if p, ok := c.reqs.take(id); ok {
		p.reject(errors.New("session: request cancelled"))
	}
}

// OnPush registers handler for server pushes of the given event type,
// replacing any prior handler for that type.
func (c *Client) OnPush(eventType wire.EventType, handler PushHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushHandlers[eventType] = handler
}

// WaitFor selects how long Drain blocks.
type WaitFor int

const (
	// NeverWait returns from Drain immediately.
	NeverWait WaitFor = iota
	// WaitForSend blocks until every buffered outbound byte has been
	// written to the transport.
	WaitForSend
	// WaitForAck additionally blocks until every outstanding request has
	// been acknowledged (resolved or rejected).
	WaitForAck
)

// Drain blocks according to waitFor, cooperatively polling every
// readyPollInterval.
func (c *Client) Drain(waitFor WaitFor) {
	if waitFor == NeverWait {
		return
	}
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.RLock()
		sent := c.sendBuffered == 0
		c.mu.RUnlock()
		if !sent {
			continue
		}
		if waitFor == WaitForSend {
			return
		}
		if c.reqs.isEmpty() {
			return
		}
	}
}

// Close terminally closes the client: it rejects every outstanding request
// with ErrConnectionClosed, closes the transport, and unregisters from the
// unload guard. Close is idempotent.
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.setStatus(StatusClosing)
		c.reqs.rejectAll(ErrConnectionClosed)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		if c.connCancel != nil {
			c.connCancel()
		}
		if c.sendCh != nil {
			close(c.sendCh)
		}
		c.mu.Unlock()

		if conn != nil {
			closeErr = conn.Close()
		}
		c.setStatus(StatusClosed)
		if c.preventUnload {
			unregisterUnloadGuard(c)
		}
	})
	return closeErr
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// touchStatus promotes StatusOpen to StatusActive (or the reverse) based on
// whether any request is currently outstanding; Status is otherwise
// authoritative on its own.
func (c *Client) touchStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusOpen && c.status != StatusActive {
		return
	}
	if c.reqs.isEmpty() {
		c.status = StatusOpen
	} else {
		c.status = StatusActive
	}
}

// Status reports the client's current connection state.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Stats is a host-side observability snapshot, mirroring the teacher's
// Status()-style accessors.
type Stats struct {
	Status             Status
	OutstandingRequests int
	LastRequestID       uint32
}

// Stats returns a snapshot of the client's current state.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Status:              c.status,
		OutstandingRequests: c.reqs.entries.Count(),
		LastRequestID:       c.reqs.lastID,
	}
}
