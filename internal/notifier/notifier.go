// Package notifier delivers collected leads to the people who follow up on
// them: the visitor's WhatsApp, the lawyers, the operator console and the
// lead records.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/leadflow/internal/domain"
)

// Sink receives a collected lead.
type Sink interface {
	Notify(ctx context.Context, lead domain.LeadSnapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, lead domain.LeadSnapshot) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, lead domain.LeadSnapshot) error { return f(ctx, lead) }

type namedSink struct {
	name string
	sink Sink
}

// Multi fans a lead out to every registered sink concurrently.
type Multi struct {
	sinks []namedSink
}

// NewMulti returns an empty fan-out notifier.
func NewMulti() *Multi {
	return &Multi{}
}

// Add registers a sink under name.
func (m *Multi) Add(name string, sink Sink) *Multi {
	m.sinks = append(m.sinks, namedSink{name: name, sink: sink})
	return m
}

// Len returns the number of registered sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Notify calls every sink and joins their errors. A failing sink does not
// prevent delivery to the others.
func (m *Multi) Notify(ctx context.Context, lead domain.LeadSnapshot) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range m.sinks {
		wg.Add(1)
		go func(s namedSink) {
			defer wg.Done()
			if err := s.sink.Notify(ctx, lead); err != nil {
				slog.Warn("Notifier sink failed", "sink", s.name, "session_id", lead.SessionID, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// LeadSaver persists lead records.
type LeadSaver interface {
	SaveLead(ctx context.Context, lead domain.LeadSnapshot) error
}

// Recorder stores every notified lead through a LeadSaver.
type Recorder struct {
	repo LeadSaver
}

// NewRecorder returns a Recorder writing to repo.
func NewRecorder(repo LeadSaver) *Recorder {
	return &Recorder{repo: repo}
}

// Notify implements Sink.
func (r *Recorder) Notify(ctx context.Context, lead domain.LeadSnapshot) error {
	if err := r.repo.SaveLead(ctx, lead); err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	return nil
}
