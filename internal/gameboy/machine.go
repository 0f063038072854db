// Package gameboy wires cartridge, bus, CPU, PPU and APU into a runnable
// Game Boy / Game Boy Color machine, and is the only package a frontend
// (cmd/gbemu, internal/ui) needs to import to load ROMs, step frames, read
// video/audio output, and manage save states.
package gameboy

import (
	"io"
	"os"

	"github.com/gbcore/gbcore/internal/bus"
	"github.com/gbcore/gbcore/internal/cart"
	"github.com/gbcore/gbcore/internal/cpu"
	"github.com/gbcore/gbcore/internal/input"
)

// Machine owns one emulated console: its cartridge, bus, CPU, and the
// derived PPU/APU reachable through the bus.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	header  *cart.Header
	romPath string
	bootROM []byte

	wantCGBColors    bool
	compatPaletteIdx int

	fb []byte // scratch RGBA8888 buffer, reused across Framebuffer calls

	commands *input.CommandReceiver
}

// New creates a Machine with no cartridge loaded.
func New(cfg Config) *Machine {
	return &Machine{
		cfg:      cfg,
		fb:       make([]byte, 160*144*4),
		commands: input.NewCommandReceiver(64),
	}
}

// SetBootROM remembers a DMG boot ROM image to run ahead of every
// subsequently loaded cartridge. Pass nil to go back to a direct post-boot
// reset.
func (m *Machine) SetBootROM(data []byte) {
	m.bootROM = append([]byte(nil), data...)
}

// SetUseFetcherBG is kept for frontend/config compatibility; see Config.UseFetcherBG.
func (m *Machine) SetUseFetcherBG(on bool) { m.cfg.UseFetcherBG = on }

// LoadCartridge replaces the running cartridge with one built from rom. If
// boot is non-empty it is mapped at 0x0000-0x00FF and the CPU starts
// executing it from PC=0; otherwise the machine starts in typical
// post-boot register state. Any header error from cart.ParseHeader (ROM too
// small, header checksum mismatch, declared size beyond the file, unmodeled
// cart type) is returned and the running cartridge is left in place.
func (m *Machine) LoadCartridge(rom, boot []byte) error {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return err
	}
	c := cart.NewCartridge(rom)
	m.bus = bus.NewWithCartridge(c)
	m.cpu = cpu.New(m.bus)
	m.header = h
	if len(boot) > 0 {
		m.bootROM = boot
	}
	if len(m.bootROM) > 0 {
		m.bus.SetBootROM(m.bootROM)
		m.cpu.SetPC(0x0000)
		m.bus.PPU().SetCGBMode(h.Model() == cart.ModelCGB && m.wantCGBColors)
	} else {
		m.ResetPostBoot()
	}
	return nil
}

// LoadROMFromFile reads a ROM image from disk and loads it, remembering the
// path for ROMPath/save-state/battery naming.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadROMFromFile last loaded, or "" if none.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header title, or "" if no ROM is loaded.
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// SetSerialWriter attaches a sink for bytes written to the serial port.
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.bus.SetSerialWriter(w)
}

// LoadBattery restores external cartridge RAM from a prior SaveBattery dump.
// It reports false if the cartridge has no battery-backed RAM.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns a copy of external cartridge RAM for persistence. ok
// is false if the cartridge has no battery-backed RAM.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// maxCyclesPerFrame bounds a single StepFrame call so a machine that never
// reaches VBlank (corrupt ROM, CPU stuck) can't hang the caller forever.
const maxCyclesPerFrame = 70224 * 4

// StepFrame runs the CPU until the PPU enters VBlank (one rendered frame).
func (m *Machine) StepFrame() { m.stepOneFrame() }

// StepFrameNoRender is identical to StepFrame: the PPU always renders every
// scanline as part of Bus.Tick, so there is no cheaper "no video" path to
// take. Kept as a distinct method for frontend/test compatibility (e.g.
// ROM test harnesses that only care about serial output).
func (m *Machine) StepFrameNoRender() { m.stepOneFrame() }

func (m *Machine) stepOneFrame() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	prevLY := m.bus.Read(0xFF44)
	cycles := 0
	for cycles < maxCyclesPerFrame {
		cycles += m.cpu.Step()
		ly := m.bus.Read(0xFF44)
		if ly == 144 && prevLY != 144 {
			return
		}
		prevLY = ly
	}
}

// Framebuffer returns the current frame as packed RGBA8888 (160*144*4
// bytes), converted from the PPU's internal RGB888 layout. The returned
// slice is reused across calls; copy it if you need to retain a frame.
func (m *Machine) Framebuffer() []byte {
	if m.bus == nil {
		return m.fb
	}
	src := m.bus.PPU().Framebuffer()
	n := len(src) / 3
	for i := 0; i < n; i++ {
		m.fb[i*4+0] = src[i*3+0]
		m.fb[i*4+1] = src[i*3+1]
		m.fb[i*4+2] = src[i*3+2]
		m.fb[i*4+3] = 0xFF
	}
	return m.fb
}
