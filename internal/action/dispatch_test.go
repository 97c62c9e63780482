package action

import (
	"strings"
	"testing"
	"time"

	"usbtrigger/internal/classifier"
	"usbtrigger/internal/device"
	"usbtrigger/internal/logging"
)

type fakeStore struct {
	bindings map[string]Binding
}

func (f *fakeStore) GetBinding(deviceID string) (Binding, bool) {
	b, ok := f.bindings[deviceID]
	return b, ok
}

type recordedEntry struct {
	level   logging.Level
	message string
	source  string
}

type fakeSink struct {
	entries []recordedEntry
}

func (f *fakeSink) Emit(level logging.Level, message, source string) {
	f.entries = append(f.entries, recordedEntry{level, message, source})
}

func (f *fakeSink) hasEntry(level logging.Level, substr string) bool {
	for _, e := range f.entries {
		if e.level == level && strings.Contains(e.message, substr) {
			return true
		}
	}
	return false
}

var dispatchID = device.Identity{VendorID: 0xAF88, ProductID: 0x6688}

func triggered(kind classifier.TriggerKind) classifier.TriggeredEvent {
	return classifier.TriggeredEvent{Identity: dispatchID, Trigger: kind, At: time.Now()}
}

func storeWith(b Binding) *fakeStore {
	return &fakeStore{bindings: map[string]Binding{b.DeviceID: b}}
}

func testBinding(trigger classifier.TriggerKind, cfg Config) Binding {
	return Binding{
		ID:          "b-1",
		DeviceID:    dispatchID.String(),
		VendorID:    dispatchID.VendorID,
		ProductID:   dispatchID.ProductID,
		TriggerType: trigger,
		Action:      cfg,
		Enabled:     true,
	}
}

// TestDispatchNoBinding tests that unbound devices are logged and skipped
func TestDispatchNoBinding(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(&fakeStore{bindings: map[string]Binding{}}, sink)

	out := d.Dispatch(triggered(classifier.SinglePress))
	if out != OutcomeNoBinding {
		t.Errorf("Expected no-binding outcome, got %s", out)
	}
	if !sink.hasEntry(logging.LevelWarn, "No binding configured") {
		t.Error("Expected warn entry about missing binding")
	}
	if !sink.hasEntry(logging.LevelInfo, "single-press on device AF88:6688") {
		t.Error("Expected info entry for the press itself")
	}
}

// TestDispatchDisabled tests that disabled bindings do not execute
func TestDispatchDisabled(t *testing.T) {
	b := testBinding(classifier.SinglePress, Config{Type: TypeLaunchApp, ExecutablePath: "whatever"})
	b.Enabled = false

	sink := &fakeSink{}
	d := NewDispatcher(storeWith(b), sink)

	out := d.Dispatch(triggered(classifier.SinglePress))
	if out != OutcomeDisabled {
		t.Errorf("Expected disabled outcome, got %s", out)
	}
	if !sink.hasEntry(logging.LevelWarn, "Binding disabled") {
		t.Error("Expected warn entry about disabled binding")
	}
}

// TestDispatchTriggerMismatch tests that a single press does not fire a
// double-press binding and vice versa
func TestDispatchTriggerMismatch(t *testing.T) {
	b := testBinding(classifier.DoublePress, Config{Type: TypeLaunchApp, ExecutablePath: "whatever"})
	sink := &fakeSink{}
	d := NewDispatcher(storeWith(b), sink)

	if out := d.Dispatch(triggered(classifier.SinglePress)); out != OutcomeTriggerMismatch {
		t.Errorf("Expected trigger-mismatch outcome, got %s", out)
	}
	if sink.hasEntry(logging.LevelError, "") || sink.hasEntry(logging.LevelSuccess, "") {
		t.Error("Expected no execution entries on mismatch")
	}
}

// TestDispatchLongPressNeverFires tests that long-press bindings stay dormant
func TestDispatchLongPressNeverFires(t *testing.T) {
	b := testBinding(classifier.LongPress, Config{Type: TypeLaunchApp, ExecutablePath: "whatever"})
	d := NewDispatcher(storeWith(b), &fakeSink{})

	for _, kind := range []classifier.TriggerKind{classifier.SinglePress, classifier.DoublePress} {
		if out := d.Dispatch(triggered(kind)); out != OutcomeTriggerMismatch {
			t.Errorf("Expected trigger-mismatch for %s, got %s", kind, out)
		}
	}
}

// TestDispatchInvalidHotkey tests that a bad chord surfaces as a failure
func TestDispatchInvalidHotkey(t *testing.T) {
	b := testBinding(classifier.SinglePress, Config{Type: TypeHotkey, ExecutablePath: "Ctrl+Banana"})
	sink := &fakeSink{}
	d := NewDispatcher(storeWith(b), sink)

	if out := d.Dispatch(triggered(classifier.SinglePress)); out != OutcomeFailed {
		t.Errorf("Expected failed outcome, got %s", out)
	}
	if !sink.hasEntry(logging.LevelError, "Hotkey failed") {
		t.Error("Expected error entry for failed hotkey")
	}
}

// TestDispatchLaunchFailure tests that an unlaunchable path surfaces as a failure
func TestDispatchLaunchFailure(t *testing.T) {
	b := testBinding(classifier.SinglePress, Config{
		Type:           TypeLaunchApp,
		ExecutablePath: "/nonexistent/definitely-not-here",
	})
	sink := &fakeSink{}
	d := NewDispatcher(storeWith(b), sink)

	if out := d.Dispatch(triggered(classifier.SinglePress)); out != OutcomeFailed {
		t.Errorf("Expected failed outcome, got %s", out)
	}
	if !sink.hasEntry(logging.LevelError, "Action failed") {
		t.Error("Expected error entry for failed action")
	}
}

// TestDispatchSystemCommand tests a successful execution end to end
func TestDispatchSystemCommand(t *testing.T) {
	b := testBinding(classifier.DoublePress, Config{
		Type:           TypeSystemCommand,
		ExecutablePath: "exit",
		Arguments:      "0",
	})
	sink := &fakeSink{}
	d := NewDispatcher(storeWith(b), sink)

	if out := d.Dispatch(triggered(classifier.DoublePress)); out != OutcomeExecuted {
		t.Errorf("Expected executed outcome, got %s", out)
	}
	if !sink.hasEntry(logging.LevelSuccess, "Action executed") {
		t.Error("Expected success entry")
	}
	if !sink.hasEntry(logging.LevelInfo, "Executing (double-press): System Command") {
		t.Error("Expected info entry describing the execution")
	}
}
