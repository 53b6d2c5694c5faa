package test

import (
	"context"
	"sync"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// NotifierStub records published status events.
type NotifierStub struct {
	Err error

	mu     sync.Mutex
	events []model.StatusEvent
}

// Publish stores event and returns the configured error.
func (n *NotifierStub) Publish(_ context.Context, event model.StatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.Err
}

// Events returns a copy of recorded events.
func (n *NotifierStub) Events() []model.StatusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.StatusEvent(nil), n.events...)
}

// Targets returns the target status of every non-removal event in order.
func (n *NotifierStub) Targets() []model.OrderStatus {
	var out []model.OrderStatus
	for _, e := range n.Events() {
		if !e.Removed {
			out = append(out, e.To)
		}
	}
	return out
}

// ErrorSinkStub collects diagnostics.
type ErrorSinkStub struct {
	Err error

	mu    sync.Mutex
	texts []string
}

// AddErrorLog records text.
func (s *ErrorSinkStub) AddErrorLog(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.Err
}

// Texts returns recorded diagnostics.
func (s *ErrorSinkStub) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}
