// Package events fans proof attempt transitions out to live subscribers.
package events

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/ashureev/sagredo/internal/prover"
)

const (
	defaultReplaySize    = 256
	subscriberBufferSize = 64
)

// Message is a sequenced event. IDs increase across the whole hub, so a
// client can resume with the last ID it saw.
type Message struct {
	ID    int64        `json:"id"`
	Event prover.Event `json:"event"`
}

// Hub buffers recent events per attempt and delivers new ones to subscribers.
// Each attempt gets its own bounded replay list so a chatty attempt cannot
// evict another attempt's history.
type Hub struct {
	mu        sync.Mutex
	queues    map[string]*list.List
	subs      map[string]map[int64]chan Message
	finished  map[string]bool
	maxSize   int
	nextID    int64
	nextSubID int64
	logger    *slog.Logger
}

var _ prover.Observer = (*Hub)(nil)

// NewHub creates a Hub keeping up to replaySize events per attempt.
func NewHub(replaySize int, logger *slog.Logger) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		queues:   make(map[string]*list.List),
		subs:     make(map[string]map[int64]chan Message),
		finished: make(map[string]bool),
		maxSize:  replaySize,
		logger:   logger,
	}
}

// Observe records ev and delivers it to the attempt's subscribers. A terminal
// event closes every subscription for the attempt.
func (h *Hub) Observe(ev prover.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	msg := Message{ID: h.nextID, Event: ev}

	l, ok := h.queues[ev.AttemptID]
	if !ok {
		l = list.New()
		h.queues[ev.AttemptID] = l
	}
	l.PushBack(msg)
	for l.Len() > h.maxSize {
		l.Remove(l.Front())
	}

	for id, ch := range h.subs[ev.AttemptID] {
		select {
		case ch <- msg:
		default:
			h.logger.Warn("Event subscriber too slow, dropping event",
				"attempt_id", ev.AttemptID, "subscriber", id, "event_id", msg.ID)
		}
	}

	if ev.State.Terminal() {
		h.finished[ev.AttemptID] = true
		for id, ch := range h.subs[ev.AttemptID] {
			close(ch)
			delete(h.subs[ev.AttemptID], id)
		}
		delete(h.subs, ev.AttemptID)
	}
}

// Subscribe returns the buffered events after afterID and a channel of later
// ones. The channel is closed when the attempt finishes or cancel is called.
// For an attempt that already finished the channel is closed immediately.
func (h *Hub) Subscribe(attemptID string, afterID int64) ([]Message, <-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	missed := h.missedLocked(attemptID, afterID)
	ch := make(chan Message, subscriberBufferSize)
	if h.finished[attemptID] {
		close(ch)
		return missed, ch, func() {}
	}

	h.nextSubID++
	subID := h.nextSubID
	if h.subs[attemptID] == nil {
		h.subs[attemptID] = make(map[int64]chan Message)
	}
	h.subs[attemptID][subID] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[attemptID][subID]; ok {
				close(c)
				delete(h.subs[attemptID], subID)
			}
		})
	}
	return missed, ch, cancel
}

// Missed returns buffered events for an attempt with ID greater than afterID.
func (h *Hub) Missed(attemptID string, afterID int64) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.missedLocked(attemptID, afterID)
}

func (h *Hub) missedLocked(attemptID string, afterID int64) []Message {
	l, ok := h.queues[attemptID]
	if !ok {
		return nil
	}
	var missed []Message
	for e := l.Front(); e != nil; e = e.Next() {
		msg := e.Value.(Message)
		if msg.ID > afterID {
			missed = append(missed, msg)
		}
	}
	return missed
}

// Prune drops everything the hub holds for an attempt.
func (h *Hub) Prune(attemptID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[attemptID] {
		close(ch)
	}
	delete(h.subs, attemptID)
	delete(h.queues, attemptID)
	delete(h.finished, attemptID)
}
