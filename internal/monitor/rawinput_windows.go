//go:build windows

package monitor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"usbtrigger/internal/device"
	"usbtrigger/internal/logging"
)

// Windows implementation of keyboard capture using the Raw Input API.
// A dedicated OS thread owns a message-only window registered for raw
// keyboard input with RIDEV_INPUTSINK, so key-down events arrive tagged
// with the originating device handle regardless of focus.

const (
	wmClose      = 0x0010
	wmDestroy    = 0x0002
	wmInput      = 0x00FF
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105

	ridInput       = 0x10000003
	ridiDeviceName = 0x20000007

	rimTypeKeyboard = 1
	ridevInputSink  = 0x00000100

	hidUsagePageGeneric     = 0x01
	hidUsageGenericKeyboard = 0x06

	gwlpUserData = ^uintptr(20) // -21
	hwndMessage  = ^uintptr(2)  // -3, message-only window parent
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procRegisterClassExW        = user32.NewProc("RegisterClassExW")
	procUnregisterClassW        = user32.NewProc("UnregisterClassW")
	procCreateWindowExW         = user32.NewProc("CreateWindowExW")
	procDefWindowProcW          = user32.NewProc("DefWindowProcW")
	procGetMessageW             = user32.NewProc("GetMessageW")
	procTranslateMessage        = user32.NewProc("TranslateMessage")
	procDispatchMessageW        = user32.NewProc("DispatchMessageW")
	procPostMessageW            = user32.NewProc("PostMessageW")
	procPostQuitMessage         = user32.NewProc("PostQuitMessage")
	procSetWindowLongPtrW       = user32.NewProc("SetWindowLongPtrW")
	procGetWindowLongPtrW       = user32.NewProc("GetWindowLongPtrW")
	procRegisterRawInputDevices = user32.NewProc("RegisterRawInputDevices")
	procGetRawInputData         = user32.NewProc("GetRawInputData")
	procGetRawInputDeviceInfoW  = user32.NewProc("GetRawInputDeviceInfoW")
	procGetModuleHandleW        = kernel32.NewProc("GetModuleHandleW")
)

type wndClassEx struct {
	CbSize        uint32
	Style         uint32
	LpfnWndProc   uintptr
	CbClsExtra    int32
	CbWndExtra    int32
	HInstance     windows.Handle
	HIcon         windows.Handle
	HCursor       windows.Handle
	HbrBackground windows.Handle
	LpszMenuName  *uint16
	LpszClassName *uint16
	HIconSm       windows.Handle
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

type rawInputDevice struct {
	UsagePage uint16
	Usage     uint16
	Flags     uint32
	Target    windows.Handle
}

type rawInputHeader struct {
	Type    uint32
	Size    uint32
	Device  windows.Handle
	WParam  uintptr
}

type rawKeyboard struct {
	MakeCode         uint16
	Flags            uint16
	Reserved         uint16
	VKey             uint16
	Message          uint32
	ExtraInformation uint32
}

type rawInputKeyboard struct {
	Header   rawInputHeader
	Keyboard rawKeyboard
}

// classCounter suffixes window class names so several monitors can
// coexist in one process without registration conflicts.
var classCounter uint32

// Window user data only carries a machine-word token; the source itself
// lives in this table so the window callback never holds a Go pointer.
var (
	sourcesMu sync.Mutex
	sources   = make(map[uintptr]*RawInput)
	nextToken uintptr
)

var wndProcPtr = syscall.NewCallback(wndProc)

func registerSource(s *RawInput) uintptr {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	nextToken++
	sources[nextToken] = s
	return nextToken
}

func lookupSource(token uintptr) *RawInput {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	return sources[token]
}

func unregisterSource(token uintptr) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()
	delete(sources, token)
}

// RawInput is the raw-input capture source.
type RawInput struct {
	events chan DeviceEvent

	mu   sync.Mutex
	hwnd uintptr

	// per-device pressed keys, for auto-repeat suppression
	down map[string]map[uint16]bool
}

// NewRawInput creates a stopped raw-input source.
func NewRawInput() *RawInput {
	return &RawInput{
		events: make(chan DeviceEvent, 32),
		down:   make(map[string]map[uint16]bool),
	}
}

func (s *RawInput) Name() string { return "RawInput" }

// Start spins up the message-loop thread. It returns once the window is
// created and the raw-input subscription is registered; any failure in
// that sequence is fatal to the source.
func (s *RawInput) Start() (<-chan DeviceEvent, error) {
	ready := make(chan error, 1)
	go s.run(ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return s.events, nil
}

// Stop posts a close to the window thread; the message loop drains and
// exits, closing the event channel.
func (s *RawInput) Stop() {
	s.mu.Lock()
	hwnd := s.hwnd
	s.mu.Unlock()
	if hwnd != 0 {
		procPostMessageW.Call(hwnd, wmClose, 0, 0)
	}
}

func (s *RawInput) run(ready chan<- error) {
	// The window, its class and the message loop are all bound to this
	// thread for their whole lifetime.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.events)

	hInstance, _, _ := procGetModuleHandleW.Call(0)

	className, err := windows.UTF16PtrFromString(
		fmt.Sprintf("UsbTriggerRawInput_%d", atomic.AddUint32(&classCounter, 1)))
	if err != nil {
		ready <- err
		return
	}

	wc := wndClassEx{
		CbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
		LpfnWndProc:   wndProcPtr,
		HInstance:     windows.Handle(hInstance),
		LpszClassName: className,
	}

	atom, _, callErr := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc)))
	if atom == 0 {
		ready <- fmt.Errorf("RegisterClassEx failed: %v", callErr)
		return
	}
	defer procUnregisterClassW.Call(uintptr(unsafe.Pointer(className)), hInstance)

	hwnd, _, callErr := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		0,
		0,
		0, 0, 0, 0,
		hwndMessage,
		0,
		hInstance,
		0,
	)
	if hwnd == 0 {
		ready <- fmt.Errorf("CreateWindowEx failed: %v", callErr)
		return
	}

	s.mu.Lock()
	s.hwnd = hwnd
	s.mu.Unlock()

	// The token is freed exactly once, in WM_DESTROY.
	token := registerSource(s)
	procSetWindowLongPtrW.Call(hwnd, gwlpUserData, token)

	rid := rawInputDevice{
		UsagePage: hidUsagePageGeneric,
		Usage:     hidUsageGenericKeyboard,
		Flags:     ridevInputSink,
		Target:    windows.Handle(hwnd),
	}
	ok, _, callErr := procRegisterRawInputDevices.Call(
		uintptr(unsafe.Pointer(&rid)),
		1,
		unsafe.Sizeof(rid),
	)
	if ok == 0 {
		unregisterSource(token)
		procPostMessageW.Call(hwnd, wmClose, 0, 0)
		s.drainMessageLoop()
		ready <- fmt.Errorf("RegisterRawInputDevices failed: %v", callErr)
		return
	}

	logging.Log.Info("Raw input monitor registered", zap.Uintptr("hwnd", hwnd))
	ready <- nil

	s.drainMessageLoop()
	logging.Log.Debug("Raw input message loop ended")
}

func (s *RawInput) drainMessageLoop() {
	var m msg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			// 0 is WM_QUIT, -1 is an error; either way the loop is done.
			return
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func wndProc(hwnd uintptr, message uint32, wparam, lparam uintptr) uintptr {
	switch message {
	case wmInput:
		token, _, _ := procGetWindowLongPtrW.Call(hwnd, gwlpUserData)
		if src := lookupSource(token); src != nil {
			src.handleInput(lparam)
		}

	case wmDestroy:
		token, _, _ := procGetWindowLongPtrW.Call(hwnd, gwlpUserData)
		unregisterSource(token)
		procPostQuitMessage.Call(0)
		return 0
	}

	ret, _, _ := procDefWindowProcW.Call(hwnd, uintptr(message), wparam, lparam)
	return ret
}

func (s *RawInput) handleInput(lparam uintptr) {
	var size uint32
	headerSize := unsafe.Sizeof(rawInputHeader{})

	ret, _, _ := procGetRawInputData.Call(
		lparam,
		ridInput,
		0,
		uintptr(unsafe.Pointer(&size)),
		headerSize,
	)
	if ret != 0 || size == 0 {
		return
	}

	buf := make([]byte, size)
	ret, _, _ = procGetRawInputData.Call(
		lparam,
		ridInput,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&size)),
		headerSize,
	)
	if int32(ret) <= 0 {
		return
	}

	ri := (*rawInputKeyboard)(unsafe.Pointer(&buf[0]))
	if ri.Header.Type != rimTypeKeyboard {
		return
	}

	keyDown := ri.Keyboard.Message == wmKeyDown || ri.Keyboard.Message == wmSysKeyDown
	keyUp := ri.Keyboard.Message == wmKeyUp || ri.Keyboard.Message == wmSysKeyUp
	if !keyDown && !keyUp {
		return
	}

	name, ok := deviceName(ri.Header.Device)
	if !ok {
		return
	}
	id, ok := device.ParseDeviceName(name)
	if !ok {
		// Synthetic input and some vendor collections have no VID/PID.
		logging.Log.Debug("Dropping event from unidentifiable device", zap.String("path", name))
		return
	}
	id.Product = name

	key := id.String()
	vk := ri.Keyboard.VKey
	if keyUp {
		if held := s.down[key]; held != nil {
			delete(held, vk)
		}
		return
	}

	// Auto-repeat arrives as repeated key-down messages; only the first
	// transition counts as a press.
	held := s.down[key]
	if held == nil {
		held = make(map[uint16]bool)
		s.down[key] = held
	}
	if held[vk] {
		return
	}
	held[vk] = true

	ev := DeviceEvent{Identity: id, Origin: OriginRawInput, At: time.Now()}
	select {
	case s.events <- ev:
	default:
		logging.Log.Warn("Event channel full, dropping raw input event",
			zap.String("device", key))
	}
}

// deviceName resolves a raw-input device handle to its OS device path.
func deviceName(h windows.Handle) (string, bool) {
	var size uint32
	ret, _, _ := procGetRawInputDeviceInfoW.Call(
		uintptr(h),
		ridiDeviceName,
		0,
		uintptr(unsafe.Pointer(&size)),
	)
	if ret != 0 || size == 0 {
		return "", false
	}

	buf := make([]uint16, size)
	ret, _, _ = procGetRawInputDeviceInfoW.Call(
		uintptr(h),
		ridiDeviceName,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&size)),
	)
	if int32(ret) <= 0 {
		return "", false
	}
	return windows.UTF16ToString(buf[:ret]), true
}
