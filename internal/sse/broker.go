// Package sse streams per-owner change notifications as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// Event is one notification for the subscribers of an owner.
type Event struct {
	OwnerID string `json:"-"`
	Type    string `json:"type"`
	Data    any    `json:"data"`
}

// Event types.
const (
	TypeEntryCreated = "entry.created"
	TypeEntryUpdated = "entry.updated"
	TypeEntryDeleted = "entry.deleted"
	TypeIndexUpdated = "index.updated"
	TypeChatMessage  = "chat.message"
)

type subscription struct {
	ownerID string
	ch      chan []byte
}

type entryEventReq struct {
	ownerID string
	kind    string
	entryID string
}

// Broker fans events out to the subscribers of each owner.
//
// A single event loop goroutine owns the subscriber table and the per-owner
// index throttle; public methods talk to it over channels.
type Broker struct {
	indexMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	entryEventCh  chan entryEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits index.updated at most once per
// indexThrottle for each owner.
func NewBroker(indexThrottle time.Duration) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = 2 * time.Second
	}

	b := &Broker{
		indexMin:      indexThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		entryEventCh:  make(chan entryEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	owners := make(map[string]map[chan []byte]struct{})
	ownerOf := make(map[chan []byte]string)
	lastIndex := make(map[string]time.Time)

	broadcast := func(event Event) {
		subs := owners[event.OwnerID]
		if len(subs) == 0 {
			return
		}
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
		for ch := range subs {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall every owner.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range ownerOf {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			if owners[sub.ownerID] == nil {
				owners[sub.ownerID] = make(map[chan []byte]struct{})
			}
			owners[sub.ownerID][sub.ch] = struct{}{}
			ownerOf[sub.ch] = sub.ownerID

		case ch := <-b.unsubscribeCh:
			owner, ok := ownerOf[ch]
			if !ok {
				continue
			}
			delete(ownerOf, ch)
			delete(owners[owner], ch)
			if len(owners[owner]) == 0 {
				delete(owners, owner)
				delete(lastIndex, owner)
			}
			close(ch)

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.entryEventCh:
			data := map[string]string{"entry_id": req.entryID}
			switch req.kind {
			case "created":
				broadcast(Event{OwnerID: req.ownerID, Type: TypeEntryCreated, Data: data})
			case "updated":
				broadcast(Event{OwnerID: req.ownerID, Type: TypeEntryUpdated, Data: data})
			case "deleted":
				broadcast(Event{OwnerID: req.ownerID, Type: TypeEntryDeleted, Data: data})
			}

			now := time.Now()
			if now.Sub(lastIndex[req.ownerID]) >= b.indexMin {
				lastIndex[req.ownerID] = now
				broadcast(Event{OwnerID: req.ownerID, Type: TypeIndexUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(ownerOf)
		}
	}
}

// Close stops the event loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for the events of ownerID.
func (b *Broker) Subscribe(ownerID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ownerID: ownerID, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients across owners.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to the subscribers of event.OwnerID.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishEntryEvent publishes an entry change and a throttled index.updated.
func (b *Broker) PublishEntryEvent(ownerID, kind, entryID string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.entryEventCh <- entryEventReq{ownerID: ownerID, kind: kind, entryID: entryID}:
	case <-b.stopped:
	}
}

// PublishChatEvent announces a stored agent reply.
func (b *Broker) PublishChatEvent(ownerID, conversationID string, messageID int64) {
	b.Publish(Event{
		OwnerID: ownerID,
		Type:    TypeChatMessage,
		Data: map[string]any{
			"conversation_id": conversationID,
			"message_id":      messageID,
		},
	})
}

// ServeHTTP streams events for the {ownerID} route parameter
// (GET /api/users/{ownerID}/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if ownerID == "" {
		http.Error(w, "owner required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(ownerID)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
