// Package device provides canonical identification of HID devices by
// their USB vendor/product IDs.
package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity identifies a physical HID device. Two identities refer to the
// same device when their vendor and product IDs match; the interface
// number and strings are diagnostic only, because one physical device may
// expose several interfaces.
type Identity struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
	Product   string
	Interface int
}

// String returns the canonical "VVVV:PPPP" form (uppercase hex).
func (id Identity) String() string {
	return fmt.Sprintf("%04X:%04X", id.VendorID, id.ProductID)
}

// Same reports whether two identities refer to the same physical device.
func (id Identity) Same(other Identity) bool {
	return id.VendorID == other.VendorID && id.ProductID == other.ProductID
}

// ParseDeviceName extracts an Identity from an OS device path such as
// `\\?\HID#VID_046D&PID_C534&MI_01#...`. Paths that do not carry both a
// VID_ and a PID_ marker are not identifying and yield false. Hex digits
// are accepted in either case.
func ParseDeviceName(name string) (Identity, bool) {
	vid, ok := parseHexMarker(name, "VID_")
	if !ok {
		return Identity{}, false
	}
	pid, ok := parseHexMarker(name, "PID_")
	if !ok {
		return Identity{}, false
	}
	return Identity{VendorID: vid, ProductID: pid}, true
}

// ParseID parses a canonical "VVVV:PPPP" string back into an Identity.
func ParseID(s string) (Identity, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Identity{}, false
	}
	vid, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return Identity{}, false
	}
	pid, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return Identity{}, false
	}
	return Identity{VendorID: uint16(vid), ProductID: uint16(pid)}, true
}

func parseHexMarker(name, marker string) (uint16, bool) {
	upper := strings.ToUpper(name)
	idx := strings.Index(upper, marker)
	if idx < 0 || idx+len(marker)+4 > len(upper) {
		return 0, false
	}
	v, err := strconv.ParseUint(upper[idx+len(marker):idx+len(marker)+4], 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}
