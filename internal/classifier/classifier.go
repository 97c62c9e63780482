// Package classifier converts raw per-device press events into
// classified triggers (single, double or long press).
package classifier

import (
	"time"

	"usbtrigger/internal/device"
	"usbtrigger/internal/monitor"
)

// TriggerKind is the classified press pattern.
type TriggerKind string

const (
	SinglePress TriggerKind = "single-press"
	DoublePress TriggerKind = "double-press"

	// LongPress is part of the binding model but is not produced by the
	// current sources, which emit instantaneous presses only.
	LongPress TriggerKind = "long-press"
)

// TriggeredEvent is a classified press.
type TriggeredEvent struct {
	Identity device.Identity
	Trigger  TriggerKind
	At       time.Time
}

const (
	// DoubleWindow is the maximum gap between consecutive presses that
	// still counts as a multi-press.
	DoubleWindow = 400 * time.Millisecond

	// DebounceFloor is the minimum gap below which two observations are
	// treated as duplicates of one physical press. Both sources may see
	// the same press within a few milliseconds; this is where the
	// duplicate is resolved.
	DebounceFloor = 20 * time.Millisecond
)

type pressState struct {
	lastPressAt time.Time
	count       uint32
}

// Classifier tracks press timing per device. It is not safe for
// concurrent use; a single consuming goroutine owns it.
type Classifier struct {
	window   time.Duration
	debounce time.Duration
	states   map[string]*pressState
}

// New creates a classifier with the default press window and debounce floor.
func New() *Classifier {
	return &Classifier{
		window:   DoubleWindow,
		debounce: DebounceFloor,
		states:   make(map[string]*pressState),
	}
}

// Classify folds one raw event into the per-device state and returns the
// classified trigger. The second return is false when the event was
// dropped by the debounce floor.
func (c *Classifier) Classify(ev monitor.DeviceEvent) (TriggeredEvent, bool) {
	key := ev.Identity.String()
	s := c.states[key]
	if s == nil {
		s = &pressState{}
		c.states[key] = s
	}

	if !s.lastPressAt.IsZero() {
		delta := ev.At.Sub(s.lastPressAt)
		if delta < c.debounce {
			return TriggeredEvent{}, false
		}
		if delta < c.window && s.count >= 1 {
			s.count++
		} else {
			s.count = 1
		}
	} else {
		s.count = 1
	}
	s.lastPressAt = ev.At

	kind := SinglePress
	if s.count >= 2 {
		kind = DoublePress
	}
	return TriggeredEvent{Identity: ev.Identity, Trigger: kind, At: ev.At}, true
}

// Reset zeroes the consecutive press count for a device. The listener
// calls this after a double-press binding fires so a third press starts
// a fresh window instead of extending the old one.
func (c *Classifier) Reset(id device.Identity) {
	if s := c.states[id.String()]; s != nil {
		s.count = 0
	}
}
