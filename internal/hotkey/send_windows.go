//go:build windows

package hotkey

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	moduser32     = windows.NewLazySystemDLL("user32.dll")
	procSendInput = moduser32.NewProc("SendInput")
)

const (
	inputKeyboard  = 1
	keyEventFKeyUp = 0x0002
)

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type input struct {
	Type uint32
	_    uint32
	Ki   keybdInput
	_    [8]byte
}

// Send presses the keys in order and releases them in reverse, submitted
// as one SendInput batch so the chord lands atomically.
func Send(keys []uint16) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: no keys to send", ErrInvalidChord)
	}

	inputs := make([]input, 0, len(keys)*2)
	for _, vk := range keys {
		inputs = append(inputs, input{
			Type: inputKeyboard,
			Ki:   keybdInput{Vk: vk},
		})
	}
	for i := len(keys) - 1; i >= 0; i-- {
		inputs = append(inputs, input{
			Type: inputKeyboard,
			Ki:   keybdInput{Vk: keys[i], Flags: keyEventFKeyUp},
		})
	}

	sent, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if int(sent) != len(inputs) {
		return fmt.Errorf("sendinput submitted %d of %d events: %v", sent, len(inputs), err)
	}
	return nil
}
