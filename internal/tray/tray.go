// Package tray puts the daemon in the system tray using
// getlantern/systray.
package tray

import (
	"github.com/getlantern/systray"
)

// Item is one clickable menu entry.
type Item struct {
	title   string
	onClick func()
	item    *systray.MenuItem
	checked bool
}

// SetChecked toggles the checkmark next to the entry.
func (i *Item) SetChecked(checked bool) {
	i.checked = checked
	if i.item == nil {
		return
	}
	if checked {
		i.item.Check()
	} else {
		i.item.Uncheck()
	}
}

// Tray manages the tray icon and its menu. Build the menu before
// calling Run; systray does not take entries afterwards.
type Tray struct {
	tooltip string
	entries []*Item
	quitCh  chan struct{}
}

// New creates a tray with the given hover tooltip.
func New(tooltip string) *Tray {
	return &Tray{
		tooltip: tooltip,
		quitCh:  make(chan struct{}),
	}
}

// AddItem appends a menu entry. A nil callback makes it informational.
func (t *Tray) AddItem(title string, onClick func()) *Item {
	entry := &Item{title: title, onClick: onClick}
	t.entries = append(t.entries, entry)
	return entry
}

// AddSeparator appends a separator line.
func (t *Tray) AddSeparator() {
	t.entries = append(t.entries, nil)
}

// Run enters the tray event loop. Blocks until Stop is called or the
// desktop session ends.
func (t *Tray) Run() {
	systray.Run(t.setup, func() { close(t.quitCh) })
}

// Stop leaves the tray event loop.
func (t *Tray) Stop() {
	systray.Quit()
}

func (t *Tray) setup() {
	systray.SetTitle("USB Trigger")
	systray.SetTooltip(t.tooltip)
	systray.SetIcon(placeholderIcon())

	for _, entry := range t.entries {
		if entry == nil {
			systray.AddSeparator()
			continue
		}
		entry.item = systray.AddMenuItem(entry.title, "")
		if entry.checked {
			entry.item.Check()
		}
		if entry.onClick == nil {
			entry.item.Disable()
			continue
		}
		go func(e *Item) {
			for {
				select {
				case <-e.item.ClickedCh:
					e.onClick()
				case <-t.quitCh:
					return
				}
			}
		}(entry)
	}
}

// placeholderIcon returns a blank but structurally valid 16x16 32-bit
// ICO so systray has something to register before a real icon ships.
func placeholderIcon() []byte {
	icon := make([]byte, 1118)
	// ICONDIR
	copy(icon[0:6], []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00})
	// ICONDIRENTRY: 16x16, 32bpp, 1096 bytes of data at offset 22
	copy(icon[6:22], []byte{
		0x10, 0x10, 0x00, 0x00, 0x01, 0x00, 0x20, 0x00,
		0x48, 0x04, 0x00, 0x00,
		0x16, 0x00, 0x00, 0x00,
	})
	// BITMAPINFOHEADER; height is doubled to cover the AND mask
	copy(icon[22:62], []byte{
		0x28, 0x00, 0x00, 0x00,
		0x10, 0x00, 0x00, 0x00,
		0x20, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x20, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	})
	// Zero pixels and mask render fully transparent.
	return icon
}
