// Package monitor provides input event sources and the fan-in that
// merges them into a single stream of per-device press events.
package monitor

import (
	"time"

	"usbtrigger/internal/device"
)

// Origin identifies which capture strategy observed an event.
type Origin string

const (
	OriginRawInput Origin = "raw-input"
	OriginHidPoll  Origin = "hid-poll"
)

// DeviceEvent is a single raw press observation. Sources only emit
// events whose identity parsed successfully.
type DeviceEvent struct {
	Identity device.Identity
	Origin   Origin
	At       time.Time
}

// Source is a capture strategy that publishes device events until
// stopped. Start is fatal when the underlying OS facility refuses to
// initialize; per-event failures are logged and dropped inside the
// source. Stop is cooperative and safe to call more than once.
type Source interface {
	Start() (<-chan DeviceEvent, error)
	Stop()
	Name() string
}
