package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/gbcore/gbcore/internal/apu"
	"github.com/gbcore/gbcore/internal/cart"
	"github.com/gbcore/gbcore/internal/ppu"
)

// Bus wires CPU-visible address space to cartridge, WRAM, HRAM, PPU, APU,
// and IO registers. Per-concern register/timing logic is split out into
// timer.go, joypad.go, serial.go, dma.go, and vdma.go; this file owns the
// Bus struct, the top-level Read/Write dispatch, and the per-cycle Tick
// loop that drives every peripheral in a fixed order.
type Bus struct {
	cart cart.Cartridge

	// Work RAM (WRAM) 8 KiB at 0xC000–0xDFFF; Echo 0xE000–0xFDFF mirrors C000–DDFF.
	wram [0x2000]byte

	// High RAM (HRAM) 0xFF80–0xFFFE (127 bytes)
	hram [0x7F]byte

	// PPU encapsulates VRAM/OAM and LCDC/STAT timing
	ppu *ppu.PPU

	// APU encapsulates CH1-CH4 and the NR5x mixer
	apu *apu.APU

	// Interrupt registers
	ie    byte // IE at 0xFFFF
	ifReg byte // IF at 0xFF0F (lower 5 bits used)

	// JOYP (see joypad.go)
	joypSelect byte
	joypad     byte
	joypLower4 byte

	// Timers (see timer.go)
	div  byte // FF04 (upper 8 bits of internal divider)
	tima byte // FF05
	tma  byte // FF06
	tac  byte // FF07 (lower 3 bits used)

	timaReloadDelay int

	// Serial (see serial.go)
	sb byte
	sc byte
	sw io.Writer

	// Internal 16-bit divider that increments every T-cycle; DIV reads upper 8 bits
	divInternal uint16

	// OAM DMA (see dma.go)
	dma       byte // FF46
	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int

	// CGB VRAM-DMA, FF51-FF55 (see vdma.go)
	hdmaSrcHi, hdmaSrcLo byte
	hdmaDstHi, hdmaDstLo byte
	hdmaActive           bool
	hdmaRemaining        byte

	// Boot ROM support
	bootROM     []byte
	bootEnabled bool

	// CGB double-speed mode (KEY1, FF4D). A speed switch only takes effect
	// on the STOP instruction that follows arming it.
	doubleSpeed      bool
	speedSwitchArmed bool
}

// New constructs a Bus with the cartridge implementation the ROM header
// selects (see cart.NewCartridge).
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	// hook PPU to request IF bits through bus
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << bit })
	b.apu = apu.New(48000)
	return b
}

// PPU returns the internal PPU for read-only rendering helpers. Avoids breaking encapsulation for CPU access.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU returns the internal APU, for pulling resampled stereo audio.
func (b *Bus) APU() *apu.APU { return b.apu }

// RequestSpeedSwitch is invoked by the CPU on executing STOP. If KEY1 bit 0
// was armed, it flips the current speed and disarms; otherwise STOP is a
// plain halt-until-joypad instruction with no speed change.
func (b *Bus) RequestSpeedSwitch() {
	if !b.speedSwitchArmed {
		return
	}
	b.doubleSpeed = !b.doubleSpeed
	b.speedSwitchArmed = false
}

// DoubleSpeed reports whether the CPU is currently running at double speed.
func (b *Bus) DoubleSpeed() bool { return b.doubleSpeed }

// Cart returns the underlying cartridge for optional battery operations (read-only interface exposure).
func (b *Bus) Cart() cart.Cartridge { return b.cart }

func (b *Bus) Read(addr uint16) byte {
	switch {
	// Cartridge ROM and External RAM (banked) are handled by the cartridge
	case addr < 0x8000:
		// When boot ROM is enabled, it overlays 0x0000-0x00FF
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	// VRAM (via PPU)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)

	// Work RAM 0xC000–0xDFFF (8 KiB); note upper bound is inclusive 0xDFFF
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]

	// Echo RAM 0xE000–0xFDFF mirrors 0xC000–0xDDFF
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		return b.wram[mirror-0xC000]

	// High RAM 0xFF80–0xFFFE (IE at 0xFFFF is handled below)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	// OAM via PPU (reads blocked during DMA)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	// IO: JOYP at 0xFF00
	case addr == 0xFF00:
		return b.readJOYP()
	// IO: Timers
	case addr == 0xFF04:
		return b.div
	case addr == 0xFF05:
		return b.tima
	case addr == 0xFF06:
		return b.tma
	case addr == 0xFF07:
		return 0xF8 | (b.tac & 0x07)
	// Serial
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return b.readSC()
	// APU: NR1x-NR5x and wave RAM
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	// LCDC/STAT/LY/LYC and scroll/window via PPU
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	// CGB palettes via PPU
	case addr == 0xFF4F, addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		return b.ppu.CPURead(addr)
	// CGB VRAM-DMA: HDMA1-4 are write-only; only HDMA5 is readable.
	case addr == 0xFF51, addr == 0xFF52, addr == 0xFF53, addr == 0xFF54:
		return 0xFF
	case addr == 0xFF55:
		return b.readHDMA5()
	// Boot ROM disable register (read returns 0xFF on DMG; keep simple)
	case addr == 0xFF50:
		return 0xFF
	// KEY1: CGB double-speed switch. Bit 7 reports the current speed,
	// bit 0 reports whether a switch is armed for the next STOP.
	case addr == 0xFF4D:
		v := byte(0x7E)
		if b.doubleSpeed {
			v |= 0x80
		}
		if b.speedSwitchArmed {
			v |= 0x01
		}
		return v
	// IO: IF at 0xFF0F, other IO not implemented (return 0xFF)
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	// IE at 0xFFFF
	case addr == 0xFFFF:
		return b.ie
	}
	return 0xFF
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	// Cartridge control and external RAM writes
	case addr < 0x8000:
		b.cart.Write(addr, value)
		return
	// VRAM via PPU
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
		return
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
		return

	// Work RAM
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
		return

	// Echo RAM mirrors C000–DDFF
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror >= 0xC000 && mirror <= 0xDDFF {
			b.wram[mirror-0xC000] = value
		}
		return

	// High RAM
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
		return
	// OAM via PPU (writes ignored during DMA)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
		return
	// IO: JOYP at 0xFF00
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
		return
	// IO: Timers
	case addr == 0xFF04:
		b.writeDIVRegister()
		return
	case addr == 0xFF05:
		b.writeTIMARegister(value)
		return
	case addr == 0xFF06:
		b.writeTMARegister(value)
		return
	case addr == 0xFF07:
		b.writeTACRegister(value)
		return
	// Serial
	case addr == 0xFF01:
		b.sb = value
		return
	case addr == 0xFF02:
		b.writeSC(value)
		return
	// APU: NR1x-NR5x and wave RAM
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
		return
	// LCDC/STAT/LY/LYC and scroll/window via PPU
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, value)
		return
	case addr == 0xFF46:
		// OAM DMA: initiate 160-byte transfer from value*0x100 to FE00, 1 byte per 4 cycles
		b.startOAMDMA(value)
		return
	// CGB palettes via PPU
	case addr == 0xFF4F, addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B:
		b.ppu.CPUWrite(addr, value)
		return
	// CGB VRAM-DMA
	case addr == 0xFF51:
		b.hdmaSrcHi = value
		return
	case addr == 0xFF52:
		b.hdmaSrcLo = value & 0xF0
		return
	case addr == 0xFF53:
		b.hdmaDstHi = value & 0x1F
		return
	case addr == 0xFF54:
		b.hdmaDstLo = value & 0xF0
		return
	case addr == 0xFF55:
		b.writeHDMA5(value)
		return
	case addr == 0xFF50:
		// Any non-zero write disables the boot ROM overlay
		if value != 0x00 {
			b.bootEnabled = false
		}
		return
	case addr == 0xFF4D:
		b.speedSwitchArmed = value&0x01 != 0
		return
	// IO: IF at 0xFF0F
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
		return
	// IE at 0xFFFF
	case addr == 0xFFFF:
		b.ie = value
		return
	}
	// Unhandled regions are ignored for now
}

// SetSerialWriter, SetBootROM, SetJoypadState, Joyp* constants are defined
// alongside the peripherals they belong to (serial.go, joypad.go); SetBootROM
// stays here since it's boot-sequence plumbing rather than a peripheral.

// SetBootROM loads a DMG boot ROM to be mapped at 0x0000-0x00FF until disabled via 0xFF50 write.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// Tick advances every peripheral by the given number of CPU cycles.
// Per cycle, peripherals observe the bus in a fixed order: PPU, then timer,
// then OAM-DMA byte stepping, with HBlank-paced VRAM-DMA stepped on PPU mode
// entry. The APU is ticked once for the whole batch since its own internal
// loop is already cycle-accurate and its output stage resamples per batch.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		var prevMode byte
		if b.ppu != nil {
			prevMode = b.ppu.Mode()
			b.ppu.Tick(1)
		}

		b.tickTimer()

		b.stepOAMDMA()

		if b.ppu != nil && b.ppu.CGBMode() {
			if newMode := b.ppu.Mode(); newMode != prevMode && newMode == 0 {
				b.vdmaStepHBlank()
			}
		}
	}
	if b.apu != nil {
		b.apu.Tick(cycles)
	}
}

// --- Save/Load state ---
type busState struct {
	WRAM      [0x2000]byte
	HRAM      [0x7F]byte
	IE, IF    byte
	JoypSel   byte
	Joypad    byte
	JoypL4    byte
	DIV       byte
	TIMA      byte
	TMA       byte
	TAC       byte
	TIMARelay int
	SB, SC    byte
	DivInt    uint16
	DMA       byte
	DMAActive bool
	DMASrc    uint16
	DMAIdx    int
	BootEn    bool

	HDMASrcHi, HDMASrcLo byte
	HDMADstHi, HDMADstLo byte
	HDMAActive           bool
	HDMARemaining        byte

	DoubleSpeed      bool
	SpeedSwitchArmed bool
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg,
		JoypSel: b.joypSelect, Joypad: b.joypad, JoypL4: b.joypLower4,
		DIV: b.div, TIMA: b.tima, TMA: b.tma, TAC: b.tac, TIMARelay: b.timaReloadDelay,
		SB: b.sb, SC: b.sc, DivInt: b.divInternal,
		DMA: b.dma, DMAActive: b.dmaActive, DMASrc: b.dmaSrc, DMAIdx: b.dmaIndex,
		BootEn: b.bootEnabled,
		HDMASrcHi: b.hdmaSrcHi, HDMASrcLo: b.hdmaSrcLo,
		HDMADstHi: b.hdmaDstHi, HDMADstLo: b.hdmaDstLo,
		HDMAActive: b.hdmaActive, HDMARemaining: b.hdmaRemaining,
		DoubleSpeed: b.doubleSpeed, SpeedSwitchArmed: b.speedSwitchArmed,
	}
	_ = enc.Encode(s)
	// Append PPU, APU, and Cart states after a simple header so we can restore later
	if b.ppu != nil {
		ps := b.ppu.SaveState()
		_ = enc.Encode(ps)
	} else {
		_ = enc.Encode([]byte(nil))
	}
	if b.apu != nil {
		as := b.apu.SaveState()
		_ = enc.Encode(as)
	} else {
		_ = enc.Encode([]byte(nil))
	}
	if bb, ok := b.cart.(interface{ SaveState() []byte }); ok {
		cs := bb.SaveState()
		_ = enc.Encode(cs)
	} else {
		_ = enc.Encode([]byte(nil))
	}
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram = s.WRAM
	b.hram = s.HRAM
	b.ie, b.ifReg = s.IE, s.IF
	b.joypSelect, b.joypad, b.joypLower4 = s.JoypSel, s.Joypad, s.JoypL4
	b.div, b.tima, b.tma, b.tac, b.timaReloadDelay = s.DIV, s.TIMA, s.TMA, s.TAC, s.TIMARelay
	b.sb, b.sc, b.divInternal = s.SB, s.SC, s.DivInt
	b.dma, b.dmaActive, b.dmaSrc, b.dmaIndex = s.DMA, s.DMAActive, s.DMASrc, s.DMAIdx
	b.bootEnabled = s.BootEn
	b.hdmaSrcHi, b.hdmaSrcLo = s.HDMASrcHi, s.HDMASrcLo
	b.hdmaDstHi, b.hdmaDstLo = s.HDMADstHi, s.HDMADstLo
	b.hdmaActive, b.hdmaRemaining = s.HDMAActive, s.HDMARemaining
	b.doubleSpeed, b.speedSwitchArmed = s.DoubleSpeed, s.SpeedSwitchArmed

	var ps []byte
	if err := dec.Decode(&ps); err == nil && b.ppu != nil {
		b.ppu.LoadState(ps)
	}
	var as []byte
	if err := dec.Decode(&as); err == nil && b.apu != nil {
		b.apu.LoadState(as)
	}
	var cs []byte
	if err := dec.Decode(&cs); err == nil {
		if bb, ok := b.cart.(interface{ LoadState([]byte) }); ok {
			bb.LoadState(cs)
		}
	}
}
