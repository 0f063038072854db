package gameboy

import (
	"fmt"

	"github.com/gbcore/gbcore/internal/cart"
)

// compatPaletteIDs lists every built-in CGB compatibility combination, in
// the same order CycleCompatPalette walks through. Index 0 in the public
// API is reserved for "Auto" (derive from the title checksum, as the CGB
// boot ROM itself would); indices 1..N map to compatPaletteIDs[0..N-1].
var compatPaletteIDs = cart.KnownPaletteIDs()

// WantCGBColors reports whether the user has asked for CGB colorization,
// independent of whether it's currently in effect (a freshly loaded
// DMG-only ROM resets to plain greyscale until re-applied).
func (m *Machine) WantCGBColors() bool { return m.wantCGBColors }

// UseCGBBG reports whether the PPU is presently compositing in CGB color
// mode (native CGB palette RAM, or a DMG compatibility palette).
func (m *Machine) UseCGBBG() bool {
	if m.bus == nil {
		return false
	}
	return m.bus.PPU().CGBMode()
}

// SetUseCGBBG toggles CGB color mode on the running PPU and records the
// preference for future ROM loads/resets. Turning it on for a DMG-only
// cartridge applies the current compatibility palette immediately; turning
// it off reverts to plain greyscale shading.
func (m *Machine) SetUseCGBBG(on bool) {
	m.wantCGBColors = on
	if m.bus == nil {
		return
	}
	m.bus.PPU().SetCGBMode(on)
	if on {
		m.applyCompatPalette()
	} else {
		m.bus.PPU().ClearCompatPalette()
	}
}

// IsCGBCompat reports whether the loaded cartridge is DMG-only and is
// currently being colorized via a compatibility palette rather than its
// own native CGB palette RAM.
func (m *Machine) IsCGBCompat() bool {
	if m.bus == nil || m.header == nil {
		return false
	}
	return m.header.Model() != cart.ModelCGB && m.bus.PPU().CGBMode()
}

// CurrentCompatPalette returns the selected compat palette index (0 = Auto).
func (m *Machine) CurrentCompatPalette() int { return m.compatPaletteIdx }

// SetCompatPalette selects a compat palette by index (0 = Auto, 1..N pick
// compatPaletteIDs[idx-1] directly) and re-applies it if compat mode is
// currently active.
func (m *Machine) SetCompatPalette(idx int) {
	n := len(compatPaletteIDs) + 1
	if n == 0 {
		return
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	m.compatPaletteIdx = idx
	m.applyCompatPalette()
}

// CycleCompatPalette moves the selection by delta (wrapping) and applies it.
func (m *Machine) CycleCompatPalette(delta int) {
	m.SetCompatPalette(m.compatPaletteIdx + delta)
}

// CompatPaletteName returns a human-readable label for a CurrentCompatPalette index.
func (m *Machine) CompatPaletteName(idx int) string {
	if idx <= 0 || idx > len(compatPaletteIDs) {
		return "Auto"
	}
	id := compatPaletteIDs[idx-1]
	return paletteName(id)
}

// knownPaletteNames labels the combination ids players are most likely to
// recognize by feel; anything else falls back to its hex id.
var knownPaletteNames = map[byte]string{
	0x00: "Grayscale",
	0x05: "Red",
	0x06: "Orange",
	0x07: "Blue",
	0x08: "Dark Green",
	0x0B: "Yellow",
	0x0D: "Blue/Red",
	0x10: "Gray/Red",
	0x12: "Pale Yellow",
	0x16: "Blue/Green",
	0x19: "Dark Brown",
}

func paletteName(id byte) string {
	if name, ok := knownPaletteNames[id]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", id)
}

func (m *Machine) applyCompatPalette() {
	if m.bus == nil || m.header == nil || !m.bus.PPU().CGBMode() {
		return
	}
	var p cart.CompatPalette
	var ok bool
	if m.compatPaletteIdx == 0 {
		p, ok = cart.AutoCompatPalette(m.header)
	} else if id := m.compatPaletteIdx - 1; id >= 0 && id < len(compatPaletteIDs) {
		p, ok = cart.PaletteByID(compatPaletteIDs[id])
	}
	if !ok {
		return
	}
	m.bus.PPU().SetCompatPalette(p.BG, p.OBJ0, p.OBJ1)
}
