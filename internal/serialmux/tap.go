package serialmux

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"tailscale.com/tsweb"
)

// Tap fans committed sample lines out to any number of subscribers. The
// acquisition loop publishes; debugging clients subscribe. Publish never
// blocks: a subscriber that is not keeping up misses lines.
type Tap struct {
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	bufferSize   int
}

// NewTap returns a Tap whose subscriber channels hold bufferSize lines.
func NewTap(bufferSize int) *Tap {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Tap{
		subscribers: make(map[string]chan string),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a new channel for receiving lines. The ID is used to
// unsubscribe. Subscribing to a closed Tap returns a closed channel.
func (t *Tap) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, t.bufferSize)

	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if t.closing {
		close(ch)
		return id, ch
	}
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tap) Unsubscribe(id string) {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}

// Subscribers returns the number of live subscribers.
func (t *Tap) Subscribers() int {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	return len(t.subscribers)
}

// Publish offers line to every subscriber without blocking.
func (t *Tap) Publish(line string) {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if t.closing {
		return
	}
	for _, ch := range t.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full skip so as not to block acquisition
		}
	}
}

// Close closes all subscriber channels. Later Publish calls are dropped.
func (t *Tap) Close() error {
	t.subscriberMu.Lock()
	defer t.subscriberMu.Unlock()
	if t.closing {
		return nil
	}
	t.closing = true
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
	return nil
}

// AttachAdminRoutes mounts /debug/tail, a Server-Sent Events stream of
// committed lines. tsweb restricts /debug/ to localhost and the tailnet.
func (t *Tap) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := t.Subscribe()
		defer t.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
