// Package hid enumerates attached HID hardware and tracks which devices
// carry a binding.
package hid

import (
	"fmt"
	"sort"
	"sync"

	hidapi "github.com/sstallion/go-hid"

	"usbtrigger/internal/device"
)

// Status describes a device's relation to the daemon.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConfigured   Status = "configured"
	StatusDisconnected Status = "disconnected"
)

// Device is the descriptor surfaced to clients. One entry per VID:PID
// pair; a composite device's interfaces are folded together.
type Device struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	VendorID        uint16 `json:"vendorId"`
	ProductID       uint16 `json:"productId"`
	InterfaceNumber int    `json:"interfaceNumber"`
	TotalInterfaces int    `json:"totalInterfaces"`
	Status          Status `json:"status"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	SerialNumber    string `json:"serialNumber,omitempty"`
}

// EnumerateFunc lists raw HID endpoints. Injectable for tests.
type EnumerateFunc func() ([]*hidapi.DeviceInfo, error)

func defaultEnumerate() ([]*hidapi.DeviceInfo, error) {
	if err := hidapi.Init(); err != nil {
		return nil, fmt.Errorf("hid api init: %w", err)
	}
	var infos []*hidapi.DeviceInfo
	err := hidapi.Enumerate(hidapi.VendorIDAny, hidapi.ProductIDAny, func(info *hidapi.DeviceInfo) error {
		infos = append(infos, info)
		return nil
	})
	return infos, err
}

// Manager folds raw endpoint enumeration into per-device descriptors and
// remembers which devices are configured and which were seen last pass.
type Manager struct {
	mu         sync.Mutex
	enumerate  EnumerateFunc
	configured map[string]bool
	previous   map[string]Device
}

// NewManager creates a manager backed by the real HID subsystem.
func NewManager() *Manager {
	return NewManagerWith(defaultEnumerate)
}

// NewManagerWith creates a manager with a custom enumeration source.
func NewManagerWith(enumerate EnumerateFunc) *Manager {
	return &Manager{
		enumerate:  enumerate,
		configured: make(map[string]bool),
		previous:   make(map[string]Device),
	}
}

// SetConfigured marks a device id as bound. Idempotent.
func (m *Manager) SetConfigured(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured[id] = true
}

// SetUnconfigured clears the bound mark. Idempotent.
func (m *Manager) SetUnconfigured(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.configured, id)
}

// List enumerates attached devices, one descriptor per VID:PID pair,
// sorted by id for stable output.
func (m *Manager) List() ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

func (m *Manager) listLocked() ([]Device, error) {
	infos, err := m.enumerate()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Device)
	for _, info := range infos {
		ident := device.Identity{VendorID: info.VendorID, ProductID: info.ProductID}
		id := ident.String()

		d, ok := byID[id]
		if !ok {
			d = &Device{
				ID:              id,
				VendorID:        info.VendorID,
				ProductID:       info.ProductID,
				InterfaceNumber: info.InterfaceNbr,
				Status:          StatusConnected,
			}
			byID[id] = d
		}
		d.TotalInterfaces++
		if d.Name == "" && info.ProductStr != "" {
			d.Name = info.ProductStr
		}
		if d.Manufacturer == "" && info.MfrStr != "" {
			d.Manufacturer = info.MfrStr
		}
		if d.SerialNumber == "" && info.SerialNbr != "" {
			d.SerialNumber = info.SerialNbr
		}
	}

	out := make([]Device, 0, len(byID))
	for id, d := range byID {
		if d.Name == "" {
			d.Name = fmt.Sprintf("Unknown Device (%s)", id)
		}
		if m.configured[id] {
			d.Status = StatusConfigured
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RefreshWithDisconnections enumerates and additionally reports devices
// that were present on the previous pass but are gone now, marked
// disconnected.
func (m *Manager) RefreshWithDisconnections() (current, disconnected []Device, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err = m.listLocked()
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]Device, len(current))
	for _, d := range current {
		seen[d.ID] = d
	}
	for id, prev := range m.previous {
		if _, ok := seen[id]; !ok {
			prev.Status = StatusDisconnected
			disconnected = append(disconnected, prev)
		}
	}
	m.previous = seen
	return current, disconnected, nil
}
