// Package sink persists records as they are produced so a crash loses at
// most the row in flight.
package sink

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/use-agent/recoveryfinder/models"
)

// Sink accepts records one at a time. Append must make the record durable
// before returning.
type Sink interface {
	Append(rec models.Record) error
	Close() error
}

// Fanout writes to a primary sink and any number of secondary ones. Only
// primary failures are returned; secondary failures are logged.
type Fanout struct {
	primary     Sink
	secondaries []Sink
}

// NewFanout returns a Fanout. nil secondaries are skipped.
func NewFanout(primary Sink, secondaries ...Sink) *Fanout {
	f := &Fanout{primary: primary}
	for _, s := range secondaries {
		if s != nil {
			f.secondaries = append(f.secondaries, s)
		}
	}
	return f
}

func (f *Fanout) Append(rec models.Record) error {
	if err := f.primary.Append(rec); err != nil {
		return models.NewScrapeError(models.ErrCodeSink, "append record", err)
	}
	for _, s := range f.secondaries {
		if err := s.Append(rec); err != nil {
			slog.Warn("secondary sink append failed", "sink", kind(s), "error", err)
		}
	}
	return nil
}

// Close closes every sink and returns the primary's error.
func (f *Fanout) Close() error {
	for _, s := range f.secondaries {
		if err := s.Close(); err != nil {
			slog.Warn("secondary sink close failed", "sink", kind(s), "error", err)
		}
	}
	return f.primary.Close()
}

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("sink closed")

// Once makes Close idempotent and rejects appends after it.
type Once struct {
	mu     sync.Mutex
	sink   Sink
	closed bool
	err    error
	count  int
}

// NewOnce wraps s.
func NewOnce(s Sink) *Once {
	return &Once{sink: s}
}

func (o *Once) Append(rec models.Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if err := o.sink.Append(rec); err != nil {
		return err
	}
	o.count++
	return nil
}

// Close closes the wrapped sink the first time and returns that result on
// every call.
func (o *Once) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return o.err
	}
	o.closed = true
	o.err = o.sink.Close()
	return o.err
}

// Count returns the number of records appended.
func (o *Once) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

func kind(s Sink) string {
	switch s.(type) {
	case *CSV:
		return "csv"
	case *SQLite:
		return "sqlite"
	case *RedisStream:
		return "redis"
	default:
		return "custom"
	}
}
