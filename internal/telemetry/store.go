package telemetry

import (
	"fmt"
	"sync"
	"time"
)

// DefaultBufferSize bounds the in-memory event buffer between the emitting
// run and the (possibly slow) sinks.
const DefaultBufferSize = 1024

// Store is the engine's event log front end. Emission is non-blocking up to
// the buffer bound; a single flusher goroutine drains to the sinks. Under
// pressure the oldest non-terminal event is dropped; terminal events
// (final assessment, run finished) are always preserved.
//
// Sequence numbers are monotonic per run id and assigned at emission, so the
// on-disk order of one run's events always matches emission order.
type Store struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buffer  []Event
	seqs    map[string]int64
	sinks   []Sink
	maxSize int
	closed  bool
	dropped int64

	done chan struct{}
}

// NewStore creates a store draining into the given sinks and starts its
// flusher. bufferSize <= 0 selects DefaultBufferSize.
func NewStore(bufferSize int, sinks ...Sink) *Store {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	s := &Store{
		seqs:    make(map[string]int64),
		sinks:   sinks,
		maxSize: bufferSize,
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.flusher()
	return s
}

// Emit records an event for the run. The payload is redacted before it is
// buffered so secrets never sit in memory awaiting a slow sink.
func (s *Store) Emit(runID, kind string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("telemetry store is closed")
	}

	s.seqs[runID]++
	event := Event{
		Seq:     s.seqs[runID],
		RunID:   runID,
		TS:      time.Now().UTC(),
		Kind:    kind,
		Payload: Redact(payload),
	}

	if len(s.buffer) >= s.maxSize {
		if !s.dropOldestNonTerminal() {
			if !event.Terminal() {
				// Nothing droppable and the new event is expendable.
				s.dropped++
				return nil
			}
			// Buffer full of terminal events and this one is terminal too:
			// grow rather than lose it.
		}
	}

	s.buffer = append(s.buffer, event)
	s.cond.Signal()
	return nil
}

// dropOldestNonTerminal removes the oldest non-terminal buffered event.
// Returns false when every buffered event is terminal.
func (s *Store) dropOldestNonTerminal() bool {
	for i, e := range s.buffer {
		if !e.Terminal() {
			s.buffer = append(s.buffer[:i], s.buffer[i+1:]...)
			s.dropped++
			return true
		}
	}
	return false
}

// Dropped returns how many events were discarded under buffer pressure.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Seq returns the last sequence number assigned for the run (0 if none).
func (s *Store) Seq(runID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[runID]
}

// Flush blocks until every buffered event has reached the sinks. The
// executor flushes before reading back terminal state.
func (s *Store) Flush() {
	s.mu.Lock()
	for len(s.buffer) > 0 && !s.closed {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Close flushes remaining events, stops the flusher, and closes the sinks.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	for len(s.buffer) > 0 {
		s.cond.Wait()
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done

	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// flusher drains the buffer to the sinks one event at a time, preserving
// order. Sink errors are counted as drops; the log itself must never wedge
// a run.
func (s *Store) flusher() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.buffer) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.buffer) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		event := s.buffer[0]
		s.buffer = s.buffer[1:]
		s.mu.Unlock()

		for _, sink := range s.sinks {
			if err := sink.Emit(event); err != nil {
				s.mu.Lock()
				s.dropped++
				s.mu.Unlock()
			}
		}

		s.mu.Lock()
		if len(s.buffer) == 0 {
			s.cond.Broadcast()
		}
		s.mu.Unlock()
	}
}
