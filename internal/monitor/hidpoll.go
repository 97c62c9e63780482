package monitor

import (
	"fmt"
	"sync/atomic"
	"time"

	hid "github.com/sstallion/go-hid"
	"go.uber.org/zap"

	"usbtrigger/internal/device"
	"usbtrigger/internal/logging"
)

// HidPoll detects input from devices that never surface as keyboards
// (raw HID gadgets) by attempting short timeout-bounded reads against
// every endpoint it can open. Endpoints are re-enumerated on each pass
// because hot-plug is not observed directly.
type HidPoll struct {
	events      chan DeviceEvent
	active      atomic.Bool
	readTimeout time.Duration
	passDelay   time.Duration
}

// NewHidPoll creates a stopped polling source.
func NewHidPoll() *HidPoll {
	return &HidPoll{
		events:      make(chan DeviceEvent, 32),
		readTimeout: 100 * time.Millisecond,
		passDelay:   50 * time.Millisecond,
	}
}

func (s *HidPoll) Name() string { return "HidPoll" }

// Start initializes the HID subsystem and launches the polling loop.
// Subsystem initialization failure is fatal to the source.
func (s *HidPoll) Start() (<-chan DeviceEvent, error) {
	if err := hid.Init(); err != nil {
		return nil, fmt.Errorf("hid api init: %w", err)
	}
	s.active.Store(true)
	go s.poll()
	return s.events, nil
}

// Stop halts polling cooperatively. A read in flight may delay the
// actual exit by up to one read timeout.
func (s *HidPoll) Stop() {
	s.active.Store(false)
}

func (s *HidPoll) poll() {
	defer close(s.events)
	defer hid.Exit()

	for s.active.Load() {
		var infos []*hid.DeviceInfo
		err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
			infos = append(infos, info)
			return nil
		})
		if err != nil {
			logging.Log.Debug("HID enumeration failed", zap.Error(err))
		}

		for _, info := range infos {
			if !s.active.Load() {
				return
			}
			s.pollEndpoint(info)
		}

		time.Sleep(s.passDelay)
	}
}

func (s *HidPoll) pollEndpoint(info *hid.DeviceInfo) {
	d, err := hid.OpenPath(info.Path)
	if err != nil {
		// Exclusively claimed endpoints (most keyboards, mice) land here.
		return
	}
	defer d.Close()

	buf := make([]byte, 256)
	n, err := d.ReadWithTimeout(buf, s.readTimeout)
	if err != nil {
		logging.Log.Debug("HID read failed",
			zap.String("path", info.Path),
			zap.Error(err),
		)
		return
	}
	if n == 0 {
		// Timeout, no activity.
		return
	}

	ev := DeviceEvent{
		Identity: device.Identity{
			VendorID:  info.VendorID,
			ProductID: info.ProductID,
			Serial:    info.SerialNbr,
			Product:   info.ProductStr,
			Interface: info.InterfaceNbr,
		},
		Origin: OriginHidPoll,
		At:     time.Now(),
	}
	select {
	case s.events <- ev:
	default:
		logging.Log.Warn("Event channel full, dropping HID poll event",
			zap.String("device", ev.Identity.String()))
	}
}
