// Package playground streams authorization decisions to browsers over
// server-sent events.
package playground

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"go.uber.org/atomic"

	"github.com/TwigBush/methodsec/internal/events"
)

// SSEHub is an events.Publisher that fans decisions out to live subscribers.
// Slow subscribers lose events instead of blocking the caller.
type SSEHub struct {
	mu      sync.RWMutex
	clients map[chan events.Event]struct{}
	dropped *atomic.Int64
}

func NewSSEHub() *SSEHub {
	return &SSEHub{clients: map[chan events.Event]struct{}{}, dropped: atomic.NewInt64(0)}
}

func (h *SSEHub) Subscribe(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event, 128)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.clients, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func (h *SSEHub) Publish(_ context.Context, ev events.Event) error {
	h.mu.RLock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.dropped.Inc()
		}
	}
	h.mu.RUnlock()
	return nil
}

// Dropped counts events a full subscriber buffer refused.
func (h *SSEHub) Dropped() int64 { return h.dropped.Load() }

func (h *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	_, _ = w.Write([]byte("event: ping\ndata: {}\n\n"))
	flusher.Flush()

	slog.Debug("sse_subscribe", "remote", r.RemoteAddr)
	stream := h.Subscribe(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: authz\ndata: "))
			_, _ = w.Write(b)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
