package listener

import (
	"strings"
	"sync"
	"testing"
	"time"

	hidapi "github.com/sstallion/go-hid"

	"usbtrigger/internal/action"
	"usbtrigger/internal/classifier"
	"usbtrigger/internal/config"
	"usbtrigger/internal/device"
	"usbtrigger/internal/hid"
	"usbtrigger/internal/monitor"
)

type scriptedSource struct {
	ch   chan monitor.DeviceEvent
	once sync.Once
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{ch: make(chan monitor.DeviceEvent, 16)}
}

func (s *scriptedSource) Start() (<-chan monitor.DeviceEvent, error) { return s.ch, nil }

func (s *scriptedSource) Stop() { s.once.Do(func() { close(s.ch) }) }

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) emit(id device.Identity, at time.Time) {
	s.ch <- monitor.DeviceEvent{Identity: id, Origin: monitor.OriginRawInput, At: at}
}

type broadcastRecord struct {
	event   string
	payload interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (r *recordingBroadcaster) Broadcast(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, broadcastRecord{event, payload})
}

func (r *recordingBroadcaster) has(event string) bool {
	_, ok := r.payload(event)
	return ok
}

func (r *recordingBroadcaster) payload(event string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.event == event {
			return e.payload, true
		}
	}
	return nil, false
}

var pedal = device.Identity{VendorID: 0xAF88, ProductID: 0x6688}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func logCount(store *config.Store, substr string) int {
	n := 0
	for _, e := range store.Logs(0) {
		if strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

func newTestListener(t *testing.T, src monitor.Source) (*Listener, *config.Store, *recordingBroadcaster) {
	t.Helper()

	store := config.NewStoreAt(t.TempDir())
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}

	devices := hid.NewManagerWith(func() ([]*hidapi.DeviceInfo, error) { return nil, nil })
	dispatcher := action.NewDispatcher(store, store)

	l := NewWithSources(store, devices, dispatcher, src)
	b := &recordingBroadcaster{}
	l.SetNotifier(b)
	return l, store, b
}

// TestPipelineDispatch tests that a press flows end to end into an execution
func TestPipelineDispatch(t *testing.T) {
	src := newScriptedSource()
	l, store, _ := newTestListener(t, src)

	store.SaveBinding(action.Binding{
		DeviceID:    pedal.String(),
		VendorID:    pedal.VendorID,
		ProductID:   pedal.ProductID,
		TriggerType: classifier.SinglePress,
		Action:      action.Config{Type: action.TypeSystemCommand, ExecutablePath: "exit", Arguments: "0"},
		Enabled:     true,
	})

	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	defer src.Stop()

	src.emit(pedal, time.Now())

	waitFor(t, "action execution", func() bool {
		return logCount(store, "Action executed") == 1
	})
}

// TestPipelineDoublePressReset tests that a triple burst fires a
// double-press binding exactly once
func TestPipelineDoublePressReset(t *testing.T) {
	src := newScriptedSource()
	l, store, _ := newTestListener(t, src)

	store.SaveBinding(action.Binding{
		DeviceID:    pedal.String(),
		VendorID:    pedal.VendorID,
		ProductID:   pedal.ProductID,
		TriggerType: classifier.DoublePress,
		Action:      action.Config{Type: action.TypeSystemCommand, ExecutablePath: "exit", Arguments: "0"},
		Enabled:     true,
	})

	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	defer src.Stop()

	base := time.Now()
	src.emit(pedal, base)
	src.emit(pedal, base.Add(100*time.Millisecond))
	src.emit(pedal, base.Add(200*time.Millisecond))

	waitFor(t, "double-press execution", func() bool {
		return logCount(store, "Action executed") >= 1
	})

	// Give the third press time to land, then confirm it did not fire.
	time.Sleep(200 * time.Millisecond)
	if n := logCount(store, "Action executed"); n != 1 {
		t.Errorf("Expected exactly 1 execution, got %d", n)
	}
}

// TestUnboundDeviceLogged tests that unbound input still shows in the log
func TestUnboundDeviceLogged(t *testing.T) {
	src := newScriptedSource()
	l, store, _ := newTestListener(t, src)

	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	defer src.Stop()

	src.emit(pedal, time.Now())

	waitFor(t, "missing binding warning", func() bool {
		return logCount(store, "No binding configured") == 1
	})
}

// TestIdentifyOneShot tests the identification handshake
func TestIdentifyOneShot(t *testing.T) {
	src := newScriptedSource()
	l, store, b := newTestListener(t, src)

	if err := l.StartIdentify(); err == nil {
		t.Error("Expected identify to fail before Start")
	}

	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	defer src.Stop()

	if err := l.StartIdentify(); err != nil {
		t.Fatal(err)
	}

	src.emit(pedal, time.Now())
	waitFor(t, "identification broadcast", func() bool {
		return b.has("monitoring-detected")
	})

	// The payload carries the full device descriptor under "device".
	payload, _ := b.payload("monitoring-detected")
	wrapped, ok := payload.(map[string]hid.Device)
	if !ok {
		t.Fatalf("Unexpected payload type %T", payload)
	}
	d := wrapped["device"]
	if d.ID != pedal.String() || d.VendorID != pedal.VendorID || d.ProductID != pedal.ProductID {
		t.Errorf("Unexpected descriptor %+v", d)
	}
	if d.Name == "" || d.Status != hid.StatusConnected {
		t.Errorf("Expected a named connected descriptor, got %+v", d)
	}

	// One-shot: the next press goes through normal dispatch.
	src.emit(pedal, time.Now().Add(time.Second))
	waitFor(t, "normal dispatch after identify", func() bool {
		return logCount(store, "No binding configured") == 1
	})
}

// TestRefreshReportsDisconnection tests the periodic disconnect sweep
func TestRefreshReportsDisconnection(t *testing.T) {
	src := newScriptedSource()

	store := config.NewStoreAt(t.TempDir())
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}

	infos := []*hidapi.DeviceInfo{
		{Path: "p0", VendorID: 0xAF88, ProductID: 0x6688, ProductStr: "Foot Pedal"},
	}
	var mu sync.Mutex
	devices := hid.NewManagerWith(func() ([]*hidapi.DeviceInfo, error) {
		mu.Lock()
		defer mu.Unlock()
		return infos, nil
	})

	l := NewWithSources(store, devices, action.NewDispatcher(store, store), src)
	b := &recordingBroadcaster{}
	l.SetNotifier(b)

	l.refreshDevices()

	mu.Lock()
	infos = nil
	mu.Unlock()

	l.refreshDevices()
	payload, ok := b.payload("device-disconnected")
	if !ok {
		t.Fatal("Expected device-disconnected broadcast")
	}
	m, isMap := payload.(map[string]string)
	if !isMap || m["deviceId"] != "AF88:6688" {
		t.Errorf("Expected payload {deviceId: AF88:6688}, got %v", payload)
	}
	if logCount(store, "Device disconnected: Foot Pedal") != 1 {
		t.Error("Expected disconnect warning in activity log")
	}
}
