// Package listener runs the background capture pipeline: raw device
// events in, classified presses out, matched actions executed.
package listener

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"usbtrigger/internal/action"
	"usbtrigger/internal/classifier"
	"usbtrigger/internal/config"
	"usbtrigger/internal/hid"
	"usbtrigger/internal/logging"
	"usbtrigger/internal/monitor"
)

// Broadcaster pushes events to connected frontends.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// Listener owns the monitoring sources and the dispatch loop.
type Listener struct {
	store      *config.Store
	devices    *hid.Manager
	dispatcher *action.Dispatcher

	mu       sync.Mutex
	notifier Broadcaster
	parallel *monitor.Parallel
	stop     chan struct{}
	done     sync.WaitGroup

	running     atomic.Bool
	identifying atomic.Bool

	refreshInterval time.Duration
}

// New creates a listener over the default sources: the raw input trap
// plus the HID polling fallback.
func New(store *config.Store, devices *hid.Manager, dispatcher *action.Dispatcher) *Listener {
	return NewWithSources(store, devices, dispatcher,
		monitor.NewRawInput(),
		monitor.NewHidPoll(),
	)
}

// NewWithSources creates a listener over explicit sources.
func NewWithSources(store *config.Store, devices *hid.Manager, dispatcher *action.Dispatcher, sources ...monitor.Source) *Listener {
	p := monitor.NewParallel()
	for _, src := range sources {
		p.Attach(src)
	}
	return &Listener{
		store:           store,
		devices:         devices,
		dispatcher:      dispatcher,
		parallel:        p,
		refreshInterval: 5 * time.Second,
	}
}

// SetNotifier wires the push channel. Safe to call before Start.
func (l *Listener) SetNotifier(n Broadcaster) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifier = n
}

func (l *Listener) broadcast(event string, payload interface{}) {
	l.mu.Lock()
	n := l.notifier
	l.mu.Unlock()
	if n != nil {
		n.Broadcast(event, payload)
	}
}

// Start launches the capture pipeline and the periodic device refresh.
func (l *Listener) Start() error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("listener already running")
	}

	events := l.parallel.StartAll()
	l.stop = make(chan struct{})

	l.done.Add(2)
	go l.run(events)
	go l.refreshLoop()

	logging.Log.Info("Background listener started")
	return nil
}

// Stop shuts the pipeline down and waits for the loops to exit.
func (l *Listener) Stop() {
	if !l.running.CompareAndSwap(true, false) {
		return
	}
	close(l.stop)
	l.parallel.StopAll()
	l.done.Wait()
	logging.Log.Warn("Background listener stopped")
}

// Running reports whether the pipeline is active.
func (l *Listener) Running() bool {
	return l.running.Load()
}

func (l *Listener) run(events <-chan monitor.DeviceEvent) {
	defer l.done.Done()

	cls := classifier.New()
	for ev := range events {
		id := ev.Identity.String()
		logging.Log.Info("Device input detected",
			zap.String("device", id),
			zap.String("origin", string(ev.Origin)),
		)

		if l.identifying.CompareAndSwap(true, false) {
			l.broadcast("monitoring-detected", map[string]hid.Device{"device": describe(ev)})
			l.store.Emit(logging.LevelInfo, fmt.Sprintf("Identified device %s", id), id)
			continue
		}

		triggered, ok := cls.Classify(ev)
		if !ok {
			continue
		}

		outcome := l.dispatcher.Dispatch(triggered)
		if outcome == action.OutcomeExecuted && triggered.Trigger == classifier.DoublePress {
			cls.Reset(triggered.Identity)
		}
	}
}

// describe builds the device descriptor broadcast during
// identification, from the single endpoint that produced the event.
func describe(ev monitor.DeviceEvent) hid.Device {
	id := ev.Identity.String()
	name := ev.Identity.Product
	if name == "" {
		name = fmt.Sprintf("Unknown Device (%s)", id)
	}
	return hid.Device{
		ID:              id,
		Name:            name,
		VendorID:        ev.Identity.VendorID,
		ProductID:       ev.Identity.ProductID,
		InterfaceNumber: ev.Identity.Interface,
		TotalInterfaces: 1,
		Status:          hid.StatusConnected,
		SerialNumber:    ev.Identity.Serial,
	}
}

func (l *Listener) refreshLoop() {
	defer l.done.Done()

	ticker := time.NewTicker(l.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.refreshDevices()
		case <-l.stop:
			return
		}
	}
}

// refreshDevices re-enumerates attached hardware and reports devices
// that disappeared since the previous pass.
func (l *Listener) refreshDevices() {
	_, gone, err := l.devices.RefreshWithDisconnections()
	if err != nil {
		logging.Log.Debug("Device refresh failed", zap.Error(err))
		return
	}
	for _, d := range gone {
		l.store.Emit(logging.LevelWarn, fmt.Sprintf("Device disconnected: %s", d.Name), d.ID)
		l.broadcast("device-disconnected", map[string]string{"deviceId": d.ID})
	}
}

// StartIdentify arms one-shot identification: the next observed input
// is broadcast instead of dispatched.
func (l *Listener) StartIdentify() error {
	if !l.running.Load() {
		return fmt.Errorf("monitoring is not running")
	}
	l.identifying.Store(true)
	logging.Log.Info("Identification armed, waiting for input")
	return nil
}

// StopIdentify disarms identification without waiting for input.
func (l *Listener) StopIdentify() {
	l.identifying.Store(false)
}
