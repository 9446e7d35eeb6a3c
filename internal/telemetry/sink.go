package telemetry

import (
	"fmt"
	"sync"

	"github.com/superclaude/engine/internal/filelock"
)

// Sink receives fully redacted, sequence-stamped events. Implementations
// must be safe for use from the store's single flusher goroutine.
type Sink interface {
	Emit(event Event) error
	Close() error
}

// FileSink appends events as JSON lines to a shared events.jsonl file.
// Cross-process appends serialize on a flock; within a process the store
// already serializes emission.
type FileSink struct {
	path string
}

// NewFileSink creates a sink appending to the given file path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Emit writes one event as a JSON line.
func (fs *FileSink) Emit(event Event) error {
	line, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Kind, err)
	}
	return filelock.AppendLine(fs.path, line)
}

// Close is a no-op; the file is opened per append.
func (fs *FileSink) Close() error { return nil }

// Path returns the sink's target file.
func (fs *FileSink) Path() string { return fs.path }

// QueueSink collects events in memory. Tests use it to assert on emitted
// event streams without touching the filesystem.
type QueueSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewQueueSink creates an empty in-memory sink.
func NewQueueSink() *QueueSink {
	return &QueueSink{}
}

// Emit stores the event.
func (qs *QueueSink) Emit(event Event) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.closed {
		return fmt.Errorf("queue sink is closed")
	}
	qs.events = append(qs.events, event)
	return nil
}

// Close marks the sink closed; further emits fail.
func (qs *QueueSink) Close() error {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.closed = true
	return nil
}

// Events returns a copy of everything emitted so far.
func (qs *QueueSink) Events() []Event {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	out := make([]Event, len(qs.events))
	copy(out, qs.events)
	return out
}

// Kinds returns the emitted event kinds in order.
func (qs *QueueSink) Kinds() []string {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	kinds := make([]string, len(qs.events))
	for i, e := range qs.events {
		kinds[i] = e.Kind
	}
	return kinds
}
