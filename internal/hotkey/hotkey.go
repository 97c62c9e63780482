// Package hotkey parses chord strings like "Ctrl+Shift+V" into virtual
// key sequences and injects them as synthetic keyboard input.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChord marks chord strings that cannot be parsed.
var ErrInvalidChord = errors.New("invalid hotkey chord")

// Virtual key codes for modifiers and named keys.
const (
	vkBack     = 0x08
	vkTab      = 0x09
	vkReturn   = 0x0D
	vkShift    = 0x10
	vkControl  = 0x11
	vkMenu     = 0x12
	vkPause    = 0x13
	vkCapital  = 0x14
	vkEscape   = 0x1B
	vkSpace    = 0x20
	vkPrior    = 0x21
	vkNext     = 0x22
	vkEnd      = 0x23
	vkHome     = 0x24
	vkLeft     = 0x25
	vkUp       = 0x26
	vkRight    = 0x27
	vkDown     = 0x28
	vkSnapshot = 0x2C
	vkInsert   = 0x2D
	vkDelete   = 0x2E
	vkLWin     = 0x5B
	vkF1       = 0x70
	vkNumLock  = 0x90
	vkScroll   = 0x91

	vkVolumeMute     = 0xAD
	vkVolumeDown     = 0xAE
	vkVolumeUp       = 0xAF
	vkMediaNextTrack = 0xB0
	vkMediaPrevTrack = 0xB1
	vkMediaStop      = 0xB2
	vkMediaPlayPause = 0xB3
)

var namedKeys = map[string]uint16{
	"enter":       vkReturn,
	"return":      vkReturn,
	"tab":         vkTab,
	"escape":      vkEscape,
	"esc":         vkEscape,
	"space":       vkSpace,
	"backspace":   vkBack,
	"delete":      vkDelete,
	"del":         vkDelete,
	"insert":      vkInsert,
	"ins":         vkInsert,
	"home":        vkHome,
	"end":         vkEnd,
	"pageup":      vkPrior,
	"pagedown":    vkNext,
	"up":          vkUp,
	"down":        vkDown,
	"left":        vkLeft,
	"right":       vkRight,
	"printscreen": vkSnapshot,
	"prtsc":       vkSnapshot,
	"pause":       vkPause,
	"capslock":    vkCapital,
	"numlock":     vkNumLock,
	"scrolllock":  vkScroll,
	"volumeup":    vkVolumeUp,
	"volumedown":  vkVolumeDown,
	"volumemute":  vkVolumeMute,
	"mute":        vkVolumeMute,
	"playpause":   vkMediaPlayPause,
	"stop":        vkMediaStop,
	"nexttrack":   vkMediaNextTrack,
	"prevtrack":   vkMediaPrevTrack,
}

var modifiers = map[string]uint16{
	"ctrl":    vkControl,
	"control": vkControl,
	"alt":     vkMenu,
	"shift":   vkShift,
	"win":     vkLWin,
	"windows": vkLWin,
	"meta":    vkLWin,
}

// Parse turns a chord string into the virtual key sequence to press, in
// press order. Tokens are case-insensitive and separated by "+".
func Parse(chord string) ([]uint16, error) {
	var keys []uint16
	tokens := strings.Split(chord, "+")
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fmt.Errorf("%w: empty token in %q", ErrInvalidChord, chord)
		}
		vk, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		keys = append(keys, vk)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChord, chord)
	}
	return keys, nil
}

func parseToken(tok string) (uint16, error) {
	lower := strings.ToLower(tok)

	if vk, ok := modifiers[lower]; ok {
		return vk, nil
	}
	if vk, ok := namedKeys[lower]; ok {
		return vk, nil
	}

	// Function keys F1 through F24.
	if len(lower) >= 2 && lower[0] == 'f' {
		n := 0
		for _, r := range lower[1:] {
			if r < '0' || r > '9' {
				n = 0
				break
			}
			n = n*10 + int(r-'0')
		}
		if n >= 1 && n <= 24 {
			return vkF1 + uint16(n-1), nil
		}
	}

	// Single letters and digits map onto their uppercase codepoint.
	if len(tok) == 1 {
		c := strings.ToUpper(tok)[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return uint16(c), nil
		}
	}

	return 0, fmt.Errorf("%w: unknown key %q", ErrInvalidChord, tok)
}
