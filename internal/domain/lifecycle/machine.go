// Package lifecycle holds the order status machine shared by every component that advances an order.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// Event disambiguates transitions out of a status.
type Event string

const (
	EventNone       Event = ""
	EventNotified   Event = "notified"
	EventSuccess    Event = "success"
	EventRepeat     Event = "repeat"
	EventFail       Event = "fail"
	EventSendResult Event = "send_result"
	EventRetry      Event = "retry"
	EventCancel     Event = "cancel"
)

var (
	ErrUnknownStatus   = errors.New("unknown order status")
	ErrFinalStatus     = errors.New("status has no outgoing transitions")
	ErrEventRequired   = errors.New("transition requires an event")
	ErrUnexpectedEvent = errors.New("event is not accepted by status")
)

// Outcome is the result of a transition. Removed means the order leaves the store.
type Outcome struct {
	Status  model.OrderStatus
	Removed bool
}

func to(status model.OrderStatus) Outcome { return Outcome{Status: status} }

var removed = Outcome{Removed: true}

// rule is either direct or branched.
type rule interface {
	resolve(event Event) (Outcome, error)
}

// direct moves to a single next status and accepts no event.
type direct Outcome

func (d direct) resolve(event Event) (Outcome, error) {
	if event != EventNone {
		return Outcome{}, ErrUnexpectedEvent
	}
	return Outcome(d), nil
}

// branched selects the next status by event, optionally falling back to a plain default.
type branched struct {
	plain  *Outcome
	events map[Event]Outcome
}

func (b branched) resolve(event Event) (Outcome, error) {
	if event == EventNone {
		if b.plain == nil {
			return Outcome{}, ErrEventRequired
		}
		return *b.plain, nil
	}
	next, ok := b.events[event]
	if !ok {
		return Outcome{}, ErrUnexpectedEvent
	}
	return next, nil
}

func withDefault(o Outcome) *Outcome { return &o }

var rules = map[model.OrderStatus]rule{
	model.OrderStatusQueued: direct(to(model.OrderStatusBuildStarted)),
	model.OrderStatusBuildStarted: branched{events: map[Event]Outcome{
		EventNotified: to(model.OrderStatusBuilding),
		EventRepeat:   to(model.OrderStatusQueued),
		EventFail:     to(model.OrderStatusFailed),
	}},
	model.OrderStatusBuilding: branched{events: map[Event]Outcome{
		EventSuccess: to(model.OrderStatusBuilt),
		EventRepeat:  to(model.OrderStatusQueued),
		EventFail:    to(model.OrderStatusFailed),
	}},
	model.OrderStatusBuilt: branched{events: map[Event]Outcome{
		EventSendResult: to(model.OrderStatusSendingResult),
		EventFail:       to(model.OrderStatusFailed),
	}},
	model.OrderStatusSendingResult: branched{
		plain: withDefault(to(model.OrderStatusFinished)),
		events: map[Event]Outcome{
			EventRepeat: to(model.OrderStatusBuilt),
			EventFail:   to(model.OrderStatusFailed),
		},
	},
	model.OrderStatusFailed: direct(to(model.OrderStatusFailedNotified)),
	model.OrderStatusFailedNotified: branched{events: map[Event]Outcome{
		EventRetry:  to(model.OrderStatusQueued),
		EventCancel: removed,
	}},

	model.OrderStatusGetSourcesQueued:  direct(to(model.OrderStatusSourcesDownloaded)),
	model.OrderStatusSourcesDownloaded: direct(to(model.OrderStatusSendingSources)),
	model.OrderStatusSendingSources: branched{
		plain: withDefault(to(model.OrderStatusGettingSourcesFinished)),
		events: map[Event]Outcome{
			EventRepeat: to(model.OrderStatusSourcesDownloaded),
			EventFail:   to(model.OrderStatusFailed),
		},
	},
}

// Initial returns the status a fully configured order enters the store with.
func Initial(sourcesOnly bool) model.OrderStatus {
	if sourcesOnly {
		return model.OrderStatusGetSourcesQueued
	}
	return model.OrderStatusQueued
}

// Next resolves the transition out of from for event.
func Next(from model.OrderStatus, event Event) (Outcome, error) {
	r, ok := rules[from]
	if !ok {
		if from.Valid() {
			return Outcome{}, fmt.Errorf("%w: %s", ErrFinalStatus, from)
		}
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	out, err := r.resolve(event)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s -> %q", err, from, event)
	}
	return out, nil
}

// MustNext is Next for transitions fixed at compile time; it panics on misuse.
func MustNext(from model.OrderStatus, event Event) Outcome {
	out, err := Next(from, event)
	if err != nil {
		panic(err)
	}
	return out
}

// Advance applies event to order. A sources-only order sent back to the queue re-enters its own queue.
func Advance(order model.Order, event Event) (Outcome, error) {
	out, err := Next(order.Status, event)
	if err != nil {
		return Outcome{}, err
	}
	if order.SourcesOnly && !out.Removed && out.Status == model.OrderStatusQueued {
		out.Status = model.OrderStatusGetSourcesQueued
	}
	return out, nil
}

// Success resolves the success branch of a leased order. An order the front-end has not yet
// acknowledged is advanced through notified first.
func Success(from model.OrderStatus) (Outcome, error) {
	if from == model.OrderStatusBuildStarted {
		building, err := Next(from, EventNotified)
		if err != nil {
			return Outcome{}, err
		}
		from = building.Status
	}
	return Next(from, EventSuccess)
}

// ParseEvent validates an event name received from outside the process.
func ParseEvent(name string) (Event, error) {
	switch ev := Event(name); ev {
	case EventNone, EventNotified, EventSuccess, EventRepeat, EventFail, EventSendResult, EventRetry, EventCancel:
		return ev, nil
	default:
		return EventNone, fmt.Errorf("%w: %q", ErrUnexpectedEvent, name)
	}
}
