package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// unloadGuard is this module's translation of the browser session core's
// "prevent unload" handler: a level-triggered registration across every
// live client, installed on the first client's edge into the registry and
// torn down on the last client's edge out. A browser intercepts page
// navigation; a long-running Go process has no such event, so the nearest
// analogue is intercepting the termination signals that would otherwise
// end the process while any registered client is live (whether or not it
// has requests outstanding; pending state is not consulted), giving
// Drain(WaitForSend) a chance to flush unsent frames before the signal is
// re-delivered with the interceptor removed.
var unloadGuard = struct {
	mu       sync.Mutex
	clients  map[*Client]struct{}
	sigCh    chan os.Signal
	stopCh   chan struct{}
}{clients: make(map[*Client]struct{})}

// registerUnloadGuard adds c to the live-client registry, installing the
// signal interceptor on the registry's 0->1 edge.
func registerUnloadGuard(c *Client) {
	unloadGuard.mu.Lock()
	defer unloadGuard.mu.Unlock()

	wasEmpty := len(unloadGuard.clients) == 0
	unloadGuard.clients[c] = struct{}{}
	if !wasEmpty {
		return
	}

	unloadGuard.sigCh = make(chan os.Signal, 1)
	unloadGuard.stopCh = make(chan struct{})
	signal.Notify(unloadGuard.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go runUnloadGuard(unloadGuard.sigCh, unloadGuard.stopCh)
}

// unregisterUnloadGuard removes c from the registry, tearing down the
// signal interceptor on the registry's 1->0 edge.
func unregisterUnloadGuard(c *Client) {
	unloadGuard.mu.Lock()
	defer unloadGuard.mu.Unlock()

	delete(unloadGuard.clients, c)
	if len(unloadGuard.clients) > 0 {
		return
	}
	if unloadGuard.stopCh != nil {
		signal.Stop(unloadGuard.sigCh)
		close(unloadGuard.stopCh)
		unloadGuard.sigCh = nil
		unloadGuard.stopCh = nil
	}
}

func runUnloadGuard(sigCh chan os.Signal, stopCh chan struct{}) {
	select {
	case sig := <-sigCh:
		unloadGuard.mu.Lock()
		clients := make([]*Client, 0, len(unloadGuard.clients))
		for c := range unloadGuard.clients {
			clients = append(clients, c)
		}
		unloadGuard.mu.Unlock()
		for _, c := range clients {
			c.Drain(WaitForSend)
		}
		signal.Stop(sigCh)
		if p, err := os.FindProcess(os.Getpid()); err == nil {
			_ = p.Signal(sig)
		}
	case <-stopCh:
	}
}
