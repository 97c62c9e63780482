package monitor

import (
	"errors"
	"testing"
	"time"

	"usbtrigger/internal/device"
)

// fakeSource is a scripted source for fan-in tests
type fakeSource struct {
	name    string
	ch      chan DeviceEvent
	err     error
	stopped bool
}

func (f *fakeSource) Start() (<-chan DeviceEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func (f *fakeSource) Stop() { f.stopped = true }

func (f *fakeSource) Name() string { return f.name }

func event(vid, pid uint16, origin Origin) DeviceEvent {
	return DeviceEvent{
		Identity: device.Identity{VendorID: vid, ProductID: pid},
		Origin:   origin,
		At:       time.Now(),
	}
}

// TestParallelFanIn tests that events from every source reach the aggregate
func TestParallelFanIn(t *testing.T) {
	a := &fakeSource{name: "a", ch: make(chan DeviceEvent, 4)}
	b := &fakeSource{name: "b", ch: make(chan DeviceEvent, 4)}

	p := NewParallel()
	p.Attach(a)
	p.Attach(b)
	agg := p.StartAll()

	a.ch <- event(0xAF88, 0x6688, OriginRawInput)
	b.ch <- event(0x046D, 0xC534, OriginHidPoll)
	close(a.ch)
	close(b.ch)

	seen := make(map[string]bool)
	for ev := range agg {
		seen[ev.Identity.String()] = true
	}
	if !seen["AF88:6688"] || !seen["046D:C534"] {
		t.Errorf("Expected events from both sources, got %v", seen)
	}
}

// TestParallelClosesWhenSourcesClose tests aggregate closure
func TestParallelClosesWhenSourcesClose(t *testing.T) {
	a := &fakeSource{name: "a", ch: make(chan DeviceEvent)}
	p := NewParallel()
	p.Attach(a)
	agg := p.StartAll()

	close(a.ch)

	select {
	case _, ok := <-agg:
		if ok {
			t.Error("Expected aggregate channel to close without events")
		}
	case <-time.After(2 * time.Second):
		t.Error("Aggregate channel did not close")
	}
}

// TestParallelSourceDropout tests that a failing source does not take down the rest
func TestParallelSourceDropout(t *testing.T) {
	bad := &fakeSource{name: "bad", err: errors.New("init failure")}
	good := &fakeSource{name: "good", ch: make(chan DeviceEvent, 1)}

	p := NewParallel()
	p.Attach(bad)
	p.Attach(good)
	agg := p.StartAll()

	good.ch <- event(0xAF88, 0x6688, OriginHidPoll)
	close(good.ch)

	var got []DeviceEvent
	for ev := range agg {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 event from the surviving source, got %d", len(got))
	}
	if got[0].Origin != OriginHidPoll {
		t.Errorf("Expected hid-poll origin, got %s", got[0].Origin)
	}
}

// TestParallelStopAll tests that cancellation reaches started sources only
func TestParallelStopAll(t *testing.T) {
	bad := &fakeSource{name: "bad", err: errors.New("init failure")}
	good := &fakeSource{name: "good", ch: make(chan DeviceEvent)}

	p := NewParallel()
	p.Attach(bad)
	p.Attach(good)
	_ = p.StartAll()

	p.StopAll()
	if !good.stopped {
		t.Error("Expected started source to be stopped")
	}
	if bad.stopped {
		t.Error("Expected failed source not to be stopped")
	}
	close(good.ch)
}
