package events

import (
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Log is the append-only notification log. Emission is fire-and-forget:
// it never blocks and never fails, even with no observer listening.
// Downstream consumers either poll History or subscribe for a channel;
// a subscriber that falls behind has events dropped rather than slowing
// the market.
//
// An optional file sink appends one JSON object per line, mirroring the
// in-memory log for offline consumers.
type Log struct {
	mu     sync.Mutex
	events []Event
	subs   []chan Event
	file   *os.File
	logger *zap.Logger
}

// NewLog creates an in-memory event log.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// NewLogWithFile creates an event log that also appends JSONL to path.
func NewLogWithFile(logger *zap.Logger, path string) (*Log, error) {
	l := NewLog(logger)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	l.file = f
	return l, nil
}

// Emit appends the event and fans it out to subscribers.
func (l *Log) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)

	if l.file != nil {
		line, err := json.Marshal(e)
		if err != nil {
			l.logger.Warn("event_encode_failed", zap.String("type", string(e.Type)), zap.Error(err))
		} else if _, err := l.file.Write(append(line, '\n')); err != nil {
			l.logger.Warn("event_sink_write_failed", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}

	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
			// Subscriber buffer full; drop rather than block the market.
			l.logger.Debug("event_dropped", zap.String("type", string(e.Type)))
		}
	}
}

// Subscribe returns a channel receiving all events emitted after the
// call. The channel is never closed by the log.
func (l *Log) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

// History returns a snapshot copy of every event emitted so far.
func (l *Log) History() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events emitted so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Close closes the file sink, if any.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
