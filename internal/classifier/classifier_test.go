package classifier

import (
	"testing"
	"time"

	"usbtrigger/internal/device"
	"usbtrigger/internal/monitor"
)

var testID = device.Identity{VendorID: 0xAF88, ProductID: 0x6688}

func press(id device.Identity, at time.Time, origin monitor.Origin) monitor.DeviceEvent {
	return monitor.DeviceEvent{Identity: id, Origin: origin, At: at}
}

// TestSinglePress tests that an isolated press classifies as single
func TestSinglePress(t *testing.T) {
	c := New()
	ev, ok := c.Classify(press(testID, time.Now(), monitor.OriginRawInput))
	if !ok {
		t.Fatal("Expected first press to classify")
	}
	if ev.Trigger != SinglePress {
		t.Errorf("Expected single-press, got %s", ev.Trigger)
	}
}

// TestDoublePress tests two presses inside the window
func TestDoublePress(t *testing.T) {
	c := New()
	base := time.Now()

	first, ok := c.Classify(press(testID, base, monitor.OriginRawInput))
	if !ok || first.Trigger != SinglePress {
		t.Fatalf("Expected single-press first, got %v %v", first.Trigger, ok)
	}

	second, ok := c.Classify(press(testID, base.Add(120*time.Millisecond), monitor.OriginRawInput))
	if !ok {
		t.Fatal("Expected second press to classify")
	}
	if second.Trigger != DoublePress {
		t.Errorf("Expected double-press, got %s", second.Trigger)
	}
}

// TestWindowExpiry tests that presses outside the window reset the count
func TestWindowExpiry(t *testing.T) {
	c := New()
	base := time.Now()

	c.Classify(press(testID, base, monitor.OriginRawInput))
	ev, ok := c.Classify(press(testID, base.Add(800*time.Millisecond), monitor.OriginRawInput))
	if !ok {
		t.Fatal("Expected press to classify")
	}
	if ev.Trigger != SinglePress {
		t.Errorf("Expected single-press after window expiry, got %s", ev.Trigger)
	}
}

// TestDebounceDropsDuplicate tests that two sources observing one press
// yield exactly one classification
func TestDebounceDropsDuplicate(t *testing.T) {
	c := New()
	base := time.Now()

	_, ok := c.Classify(press(testID, base, monitor.OriginRawInput))
	if !ok {
		t.Fatal("Expected first observation to classify")
	}

	_, ok = c.Classify(press(testID, base.Add(10*time.Millisecond), monitor.OriginHidPoll))
	if ok {
		t.Error("Expected duplicate observation within debounce floor to be dropped")
	}

	// Debounced events must not disturb the press window either.
	ev, ok := c.Classify(press(testID, base.Add(120*time.Millisecond), monitor.OriginRawInput))
	if !ok || ev.Trigger != DoublePress {
		t.Errorf("Expected real second press to classify as double-press, got %v %v", ev.Trigger, ok)
	}
}

// TestResetAfterDoubleDispatch tests that a press following a dispatched
// double-press starts over as a single
func TestResetAfterDoubleDispatch(t *testing.T) {
	c := New()
	base := time.Now()

	c.Classify(press(testID, base, monitor.OriginRawInput))
	second, _ := c.Classify(press(testID, base.Add(120*time.Millisecond), monitor.OriginRawInput))
	if second.Trigger != DoublePress {
		t.Fatalf("Expected double-press, got %s", second.Trigger)
	}

	c.Reset(testID)

	third, ok := c.Classify(press(testID, base.Add(240*time.Millisecond), monitor.OriginRawInput))
	if !ok {
		t.Fatal("Expected third press to classify")
	}
	if third.Trigger != SinglePress {
		t.Errorf("Expected single-press after reset, got %s", third.Trigger)
	}
}

// TestTriplePressWithoutReset tests that the count keeps growing inside
// the window when no reset happens
func TestTriplePressWithoutReset(t *testing.T) {
	c := New()
	base := time.Now()

	c.Classify(press(testID, base, monitor.OriginRawInput))
	c.Classify(press(testID, base.Add(100*time.Millisecond), monitor.OriginRawInput))
	ev, _ := c.Classify(press(testID, base.Add(200*time.Millisecond), monitor.OriginRawInput))
	if ev.Trigger != DoublePress {
		t.Errorf("Expected third rapid press to still classify as double-press, got %s", ev.Trigger)
	}
}

// TestDevicesClassifyIndependently tests per-device state isolation
func TestDevicesClassifyIndependently(t *testing.T) {
	c := New()
	base := time.Now()
	other := device.Identity{VendorID: 0x046D, ProductID: 0xC534}

	c.Classify(press(testID, base, monitor.OriginRawInput))
	ev, ok := c.Classify(press(other, base.Add(100*time.Millisecond), monitor.OriginRawInput))
	if !ok {
		t.Fatal("Expected press from second device to classify")
	}
	if ev.Trigger != SinglePress {
		t.Errorf("Expected independent device to classify single-press, got %s", ev.Trigger)
	}
}
