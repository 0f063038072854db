package gameboy

import (
	"github.com/gbcore/gbcore/internal/cart"
	"github.com/gbcore/gbcore/internal/cpu"
)

// ResetPostBoot restarts the current cartridge directly in typical
// post-boot register state (no boot ROM animation), in plain DMG mode.
func (m *Machine) ResetPostBoot() {
	if m.cpu == nil {
		return
	}
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	m.bus.SetBootROM(nil)
	m.bus.PPU().SetCGBMode(false)
	m.bus.PPU().ClearCompatPalette()
}

// ResetCGBPostBoot restarts the current cartridge directly in post-boot
// state with the PPU forced into CGB color mode. When compat is true (the
// cartridge is DMG-only) the active compatibility palette is (re)applied;
// otherwise native CGB palette RAM is left to the game to initialize.
func (m *Machine) ResetCGBPostBoot(compat bool) {
	if m.cpu == nil {
		return
	}
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	m.bus.SetBootROM(nil)
	m.bus.PPU().SetCGBMode(true)
	m.wantCGBColors = true
	if compat {
		m.applyCompatPalette()
	} else {
		m.bus.PPU().ClearCompatPalette()
	}
}

// ResetWithBoot restarts the current cartridge from PC=0 so a previously
// supplied boot ROM runs its startup animation again. With no boot ROM set
// this falls back to ResetPostBoot.
func (m *Machine) ResetWithBoot() {
	if m.bus == nil {
		return
	}
	if len(m.bootROM) == 0 {
		m.ResetPostBoot()
		return
	}
	m.cpu = cpu.New(m.bus)
	m.bus.SetBootROM(m.bootROM)
	m.bus.PPU().SetCGBMode(m.header != nil && m.header.Model() == cart.ModelCGB && m.wantCGBColors)
}
