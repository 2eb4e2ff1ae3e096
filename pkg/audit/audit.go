// Package audit is a best-effort, buffered sink for execution-lifecycle
// audit records: who started an execution, who provided input, what a
// VALIDATION step decided. Entries are dropped under backpressure rather
// than blocking the engine (spec.md §5: audit logging must never be on the
// critical path of a step dispatch).
package audit

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one audit record.
type Entry struct {
	Timestamp   time.Time
	ExecutionID string
	Actor       string
	Action      string
	Detail      string
}

// Sink is the contract the engine writes audit entries through.
type Sink interface {
	Record(e Entry)
	Close()
}

// BufferedSink drains a bounded channel of Entry on a single background
// goroutine, logging each via logrus so it lands wherever the rest of the
// service's structured logs go; entries are dropped (and counted) if the
// buffer is full.
type BufferedSink struct {
	ch      chan Entry
	log     *logrus.Logger
	dropped int64
	done    chan struct{}
}

func NewBufferedSink(log *logrus.Logger, bufferSize int) *BufferedSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	s := &BufferedSink{
		ch:   make(chan Entry, bufferSize),
		log:  log,
		done: make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *BufferedSink) drain() {
	defer close(s.done)
	for e := range s.ch {
		s.log.WithFields(logrus.Fields{
			"execution_id": e.ExecutionID,
			"actor":        e.Actor,
			"action":       e.Action,
			"detail":       e.Detail,
			"timestamp":    e.Timestamp,
		}).Info("audit")
	}
}

// Record enqueues e, dropping it silently if the buffer is full.
func (s *BufferedSink) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case s.ch <- e:
	default:
		s.dropped++
	}
}

// Dropped returns the number of entries discarded for backpressure.
func (s *BufferedSink) Dropped() int64 { return s.dropped }

// Close stops accepting entries and waits for the drain goroutine to finish
// flushing what's buffered.
func (s *BufferedSink) Close() {
	close(s.ch)
	<-s.done
}

// noopSink is used where audit is wired but disabled (e.g. in tests).
type noopSink struct{}

func NewNoopSink() Sink       { return noopSink{} }
func (noopSink) Record(Entry) {}
func (noopSink) Close()       {}
