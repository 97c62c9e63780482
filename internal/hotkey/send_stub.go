//go:build !windows

package hotkey

import "errors"

// ErrUnsupported is returned where synthetic input injection is not
// implemented.
var ErrUnsupported = errors.New("hotkey injection not supported on this platform")

// Send is a stub; chords still parse everywhere so configuration can be
// validated off-platform.
func Send(keys []uint16) error {
	return ErrUnsupported
}
