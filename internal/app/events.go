package app

import (
	"context"
	"log"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/logic"
)

// EventQueue is a bounded queue of input events fed by the button pump and
// the provisioner.
type EventQueue struct {
	ch chan logic.Event
}

// NewEventQueue returns a queue holding up to size events.
func NewEventQueue(size int) *EventQueue {
	if size < 1 {
		size = 1
	}
	return &EventQueue{ch: make(chan logic.Event, size)}
}

// Push enqueues e, dropping it when the queue is full.
func (q *EventQueue) Push(e logic.Event) {
	select {
	case q.ch <- e:
	default:
		log.Printf("app: event queue full, dropped %s", e.Type)
	}
}

// Wait returns the next event, or false on timeout or when ctx ends.
func (q *EventQueue) Wait(ctx context.Context, timeout time.Duration) (logic.Event, bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case e := <-q.ch:
		return e, true
	case <-expired:
		return logic.Event{}, false
	case <-ctx.Done():
		return logic.Event{}, false
	}
}
