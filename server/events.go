package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const (
	EventWishAdd    = "wish:add"
	EventWishUpdate = "wish:update"
	EventWishDelete = "wish:delete"
	EventListUpdate = "list:update"
	EventListDelete = "list:delete"
)

type Event struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Wish   *Wish  `json:"wish,omitempty"`
	WishID string `json:"wishId,omitempty"`
}

// EventBus fans mutation events out to subscribers of a board code.
// Delivery is at-most-once: a slow subscriber's events are dropped, and
// nothing is replayed after reconnect.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string]map[chan []byte]struct{})}
}

func (b *EventBus) Subscribe(code string) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[code] == nil {
		b.subs[code] = make(map[chan []byte]struct{})
	}
	b.subs[code][ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if subs, ok := b.subs[code]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, code)
			}
		}
		b.mu.Unlock()
		close(ch)
	}
}

func (b *EventBus) Publish(ev Event) {
	data, _ := json.Marshal(ev)
	b.mu.RLock()
	subs := b.subs[ev.Code]
	for ch := range subs {
		select {
		case ch <- data:
		default: // drop if slow
		}
	}
	b.mu.RUnlock()
}

// Serve a single SSE connection for the given board code.
func (b *EventBus) ServeSSE(w http.ResponseWriter, r *http.Request, code string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := b.Subscribe(code)
	defer cancel()

	// Initial comment to open the stream
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// heartbeat comment to keep connection alive through proxies
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
