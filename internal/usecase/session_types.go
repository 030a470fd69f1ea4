package usecase

import (
	"sync"

	"mimitomo/internal/domain"
)

// sessionEvent is one entry in a controller's inbox.
type sessionEvent interface{}

type startRequest struct{ reply chan error }

type stopRequest struct{ reply chan error }

type statusRequest struct{ reply chan domain.Status }

type closeRequest struct{}

type engineResult struct {
	generation uint64
	event      domain.RecognitionEvent
}

type engineEnd struct{ generation uint64 }

type engineError struct {
	generation uint64
	code       domain.EngineErrorCode
}

type silenceExpired struct{ seq uint64 }

// inbox is an unbounded FIFO. Engines may call back synchronously from inside
// Start, so pushes never block.
type inbox struct {
	mu     sync.Mutex
	queue  []sessionEvent
	notify chan struct{}
}

func newInbox() *inbox {
	return &inbox{notify: make(chan struct{}, 1)}
}

func (b *inbox) push(event sessionEvent) {
	b.mu.Lock()
	b.queue = append(b.queue, event)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *inbox) drain() []sessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.queue
	b.queue = nil
	return events
}

// engineSink forwards engine callbacks for one engine run.
type engineSink struct {
	generation uint64
	inbox      *inbox
}

func (s engineSink) Result(event domain.RecognitionEvent) {
	s.inbox.push(engineResult{generation: s.generation, event: event})
}

func (s engineSink) End() {
	s.inbox.push(engineEnd{generation: s.generation})
}

func (s engineSink) Error(code domain.EngineErrorCode) {
	s.inbox.push(engineError{generation: s.generation, code: code})
}
