// Package tray provides system tray functionality using getlantern/systray.
package tray

import (
	"encoding/binary"
	"sync"

	"github.com/getlantern/systray"
)

// MenuItem represents a menu item
type MenuItem struct {
	ID        int
	Title     string
	Callback  func()
	checkable bool
	checked   bool
	disabled  bool
	item      *systray.MenuItem
}

// Tray manages the system tray icon and menu
type Tray struct {
	mu      sync.Mutex
	items   []*MenuItem
	onReady func()
	onExit  func()
	readyCh chan struct{}
	quitCh  chan struct{}
}

// New creates a new system tray
func New(title, tooltip string) *Tray {
	t := &Tray{
		items:   make([]*MenuItem, 0),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}

	t.onReady = func() {
		systray.SetTitle(title)
		systray.SetTooltip(tooltip)
		systray.SetIcon(getIcon())
		close(t.readyCh)
	}

	t.onExit = func() {
		close(t.quitCh)
	}

	return t
}

// AddMenuItem adds a menu item to the tray
func (t *Tray) AddMenuItem(title string, callback func()) int {
	return t.add(&MenuItem{Title: title, Callback: callback})
}

// AddCheckbox adds a checkable menu item. The callback is responsible
// for updating the check mark with SetItemChecked.
func (t *Tray) AddCheckbox(title string, checked bool, callback func()) int {
	return t.add(&MenuItem{Title: title, Callback: callback, checkable: true, checked: checked})
}

// AddLabel adds a disabled, informational menu item
func (t *Tray) AddLabel(title string) int {
	return t.add(&MenuItem{Title: title, disabled: true})
}

func (t *Tray) add(mi *MenuItem) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	mi.ID = len(t.items)
	t.items = append(t.items, mi)
	return mi.ID
}

// AddSeparator adds a separator to the menu
func (t *Tray) AddSeparator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, nil) // nil indicates separator
}

// SetItemChecked sets the checked state of a menu item
func (t *Tray) SetItemChecked(id int, checked bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return
	}
	mi := t.items[id]
	mi.checked = checked
	if mi.item != nil {
		if checked {
			mi.item.Check()
		} else {
			mi.item.Uncheck()
		}
	}
}

// SetItemTitle changes the title of a menu item
func (t *Tray) SetItemTitle(id int, title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 0 || id >= len(t.items) || t.items[id] == nil {
		return
	}
	mi := t.items[id]
	mi.Title = title
	if mi.item != nil {
		mi.item.SetTitle(title)
	}
}

// Run starts the tray event loop (blocks)
func (t *Tray) Run() {
	systray.Run(t.setupMenu, t.onExit)
}

// setupMenu is called when systray is ready
func (t *Tray) setupMenu() {
	t.onReady()

	// Wait for ready signal
	<-t.readyCh

	t.mu.Lock()
	defer t.mu.Unlock()

	// Create menu items
	for _, menuItem := range t.items {
		if menuItem == nil {
			// Separator
			systray.AddSeparator()
			continue
		}

		var item *systray.MenuItem
		if menuItem.checkable {
			item = systray.AddMenuItemCheckbox(menuItem.Title, "", menuItem.checked)
		} else {
			item = systray.AddMenuItem(menuItem.Title, "")
		}
		if menuItem.disabled {
			item.Disable()
		}
		menuItem.item = item

		// Handle clicks in goroutine
		if menuItem.Callback != nil {
			go func(mi *MenuItem) {
				for {
					select {
					case <-mi.item.ClickedCh:
						mi.Callback()
					case <-t.quitCh:
						return
					}
				}
			}(menuItem)
		}
	}
}

// Stop stops the tray
func (t *Tray) Stop() {
	systray.Quit()
}

// getIcon returns a 16x16 32-bit ICO showing a filled circle
func getIcon() []byte {
	const (
		size       = 16
		pixelBytes = size * size * 4
		maskBytes  = size * 4 // 1bpp rows padded to 32 bits
		dibHeader  = 40
		imageBytes = dibHeader + pixelBytes + maskBytes
		offset     = 6 + 16
	)

	icon := make([]byte, offset+imageBytes)
	le := binary.LittleEndian

	// ICO Header
	le.PutUint16(icon[2:], 1) // type: icon
	le.PutUint16(icon[4:], 1) // count

	// Icon Directory
	icon[6], icon[7] = size, size
	le.PutUint16(icon[10:], 1)  // planes
	le.PutUint16(icon[12:], 32) // bpp
	le.PutUint32(icon[14:], imageBytes)
	le.PutUint32(icon[18:], offset)

	// DIB Header
	dib := icon[offset:]
	le.PutUint32(dib[0:], dibHeader)
	le.PutUint32(dib[4:], size)
	le.PutUint32(dib[8:], size*2) // height counts the mask too
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], 32)
	le.PutUint32(dib[20:], pixelBytes)

	// Pixels are BGRA, bottom-up. The AND mask stays 0 (alpha decides).
	px := dib[dibHeader:]
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-7.5, float64(y)-7.5
			d := dx*dx + dy*dy
			i := (y*size + x) * 4
			switch {
			case d <= 2.5*2.5:
				// pupil
				px[i], px[i+1], px[i+2], px[i+3] = 0x20, 0x20, 0x20, 0xff
			case d <= 7*7:
				// iris
				px[i], px[i+1], px[i+2], px[i+3] = 0xd0, 0x90, 0x30, 0xff
			}
		}
	}
	return icon
}
