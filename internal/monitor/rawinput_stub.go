//go:build !windows

package monitor

import "fmt"

// Stub implementation for platforms without the Raw Input facility; the
// daemon runs with the HID polling source alone.

// RawInput is a stub raw-input source.
type RawInput struct{}

// NewRawInput creates a stub source.
func NewRawInput() *RawInput {
	return &RawInput{}
}

// Start reports that raw input capture is unavailable here.
func (s *RawInput) Start() (<-chan DeviceEvent, error) {
	return nil, fmt.Errorf("raw input monitoring not supported on this platform")
}

// Stop is a no-op.
func (s *RawInput) Stop() {}

func (s *RawInput) Name() string { return "RawInput" }
