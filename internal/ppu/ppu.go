package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

// LineRegs captures per-scanline PPU state that a renderer needs but that
// changes over the course of a frame — currently just the window's own
// internal line counter, which only advances on lines where the window was
// actually drawn.
type LineRegs struct {
	WinLine byte
}

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, CGB palette RAM, and basic
// timing. It exposes CPU-facing Read/Write for VRAM/OAM and PPU IO regs, and
// produces a packed RGB888 framebuffer one scanline at a time.
type PPU struct {
	// memory: two 8 KiB VRAM banks (bank 1 unused/unreachable on DMG)
	vram [2][0x2000]byte
	vbk  byte // FF4F, bit0 selects active bank
	oam  [0xA0]byte

	// regs
	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	req InterruptRequester

	// CGB mode and palette RAM (FF68-FF6B)
	cgbMode   bool
	bgCRAM    [64]byte
	objCRAM   [64]byte
	bcpsIndex byte
	bcpsInc   bool
	ocpsIndex byte
	ocpsInc   bool

	// DMG-on-CGB compatibility coloring (cart.AutoCompatPalette result, or a
	// user-selected preset); used only when cgbMode is false but the front
	// end still wants colorized output instead of plain greyscale.
	useCompatColors bool
	compatBG        [4]uint16
	compatOBJ0      [4]uint16
	compatOBJ1      [4]uint16

	// window line tracking: -1 until the window has been drawn at least
	// once this frame.
	windowLine       int
	capturedLineRegs [144]LineRegs

	framebuf []byte // 160*144*3, RGB888, row-major
}

func New(req InterruptRequester) *PPU {
	p := &PPU{req: req, windowLine: -1}
	p.framebuf = make([]byte, 160*144*3)
	return p
}

// SetCGBMode switches between native CGB palette-RAM coloring and DMG-style
// 4-shade (or compatibility-ramp) coloring.
func (p *PPU) SetCGBMode(on bool) { p.cgbMode = on }

// CGBMode reports whether native CGB palette-RAM coloring is active.
func (p *PPU) CGBMode() bool { return p.cgbMode }

// SetCompatPalette installs a DMG-on-CGB compatibility color ramp (RGB555,
// color id 0..3) used in place of plain greyscale when not in CGB mode.
func (p *PPU) SetCompatPalette(bg, obj0, obj1 [4]uint16) {
	p.compatBG, p.compatOBJ0, p.compatOBJ1 = bg, obj0, obj1
	p.useCompatColors = true
}

// ClearCompatPalette reverts to plain BGP/OBP0/OBP1 greyscale shading.
func (p *PPU) ClearCompatPalette() { p.useCompatColors = false }

// Framebuffer returns the most recently rendered frame as packed RGB888,
//160x144, row-major, 3 bytes per pixel.
func (p *PPU) Framebuffer() []byte { return p.framebuf }

// Mode returns the current STAT mode (0 HBlank, 1 VBlank, 2 OAM, 3 Drawing).
func (p *PPU) Mode() byte { return p.stat & 0x03 }

// WriteVRAMDMA writes directly to the currently selected VRAM bank, bypassing
// the mode-3 CPU-visibility gate that CPUWrite enforces: VRAM-DMA (GDMA and
// HDMA) is driven by the PPU itself and is not subject to that restriction.
func (p *PPU) WriteVRAMDMA(addr uint16, value byte) {
	if addr < 0x8000 || addr > 0x9FFF {
		return
	}
	p.vram[p.vbk&1][addr-0x8000] = value
}

// Read implements VRAMReader by reading VRAM bank 0, the bank DMG-era
// scanline helpers always use.
func (p *PPU) Read(addr uint16) byte { return p.ReadBank(0, addr) }

// ReadBank implements CGBVRAMReader: a direct, ungated read of either VRAM
// bank, bypassing the CPU-visibility rules CPURead enforces.
func (p *PPU) ReadBank(bank int, addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[bank&1][addr-0x8000]
}

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		// VRAM is inaccessible to CPU during mode 3 (return 0xFF)
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.vram[p.vbk&1][addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		// OAM is inaccessible during modes 2 and 3
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		// On DMG, bit7 reads as 1; bit6..3 are enables; bit2 coincidence; bit1..0 mode
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	case addr == 0xFF4F:
		return 0xFE | (p.vbk & 0x01)
	case addr == 0xFF68:
		v := p.bcpsIndex & 0x3F
		if p.bcpsInc {
			v |= 0x80
		}
		return 0x40 | v
	case addr == 0xFF69:
		return p.bgCRAM[p.bcpsIndex&0x3F]
	case addr == 0xFF6A:
		v := p.ocpsIndex & 0x3F
		if p.ocpsInc {
			v |= 0x80
		}
		return 0x40 | v
	case addr == 0xFF6B:
		return p.objCRAM[p.ocpsIndex&0x3F]
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs. Others are ignored here.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.vram[p.vbk&1][addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			// Turning LCD off resets LY/mode and clears the framebuffer to white
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
			for i := range p.framebuf {
				p.framebuf[i] = 0xFF
			}
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			// Turning LCD on: start at LY=0, mode 2 (OAM)
			p.ly = 0
			p.dot = 0
			p.windowLine = -1
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	case addr == 0xFF4F:
		p.vbk = value & 0x01
	case addr == 0xFF68:
		p.bcpsIndex = value & 0x3F
		p.bcpsInc = value&0x80 != 0
	case addr == 0xFF69:
		p.bgCRAM[p.bcpsIndex&0x3F] = value
		if p.bcpsInc {
			p.bcpsIndex = (p.bcpsIndex + 1) & 0x3F
		}
	case addr == 0xFF6A:
		p.ocpsIndex = value & 0x3F
		p.ocpsInc = value&0x80 != 0
	case addr == 0xFF6B:
		p.objCRAM[p.ocpsIndex&0x3F] = value
		if p.ocpsInc {
			p.ocpsIndex = (p.ocpsIndex + 1) & 0x3F
		}
	}
}

// Tick advances PPU state by the given number of dots (CPU cycles).
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 { // LCD off
			continue
		}
		p.dot++
		// Mode scheduling
		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		p.setMode(mode)

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				// Enter VBlank
				p.windowLine = -1
				if p.req != nil {
					p.req(0)
				} // VBlank IF
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				} // STAT VBlank
			} else if p.ly > 153 {
				p.ly = 0
			}
			p.updateLYC()
			// Set mode for new line start (dot=0)
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0: // HBlank
		if p.ly < 144 {
			p.renderScanline(p.ly)
		}
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2: // OAM
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 3: // Drawing: the window's line counter advances here, once per
		// visible scanline where the window is actually active.
		if p.ly < 144 {
			if p.wx <= 166 && (p.lcdc&0x20) != 0 && p.ly >= p.wy {
				if p.windowLine < 0 {
					p.windowLine = 0
				} else {
					p.windowLine++
				}
			}
			wl := byte(0)
			if p.windowLine >= 0 {
				wl = byte(p.windowLine)
			}
			p.capturedLineRegs[p.ly] = LineRegs{WinLine: wl}
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// LineRegs returns the PPU state captured for scanline ly at the moment its
// rendering (mode 3) began.
func (p *PPU) LineRegs(ly int) LineRegs {
	if ly < 0 || ly >= 144 {
		return LineRegs{}
	}
	return p.capturedLineRegs[ly]
}

// Expose palettes and scroll for renderer convenience (optional helpers)
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

// --- Save/Load state ---

type ppuState struct {
	VRAM0, VRAM1                   [0x2000]byte
	VBK                             byte
	OAM                             [0xA0]byte
	LCDC, STAT, SCY, SCX, LY, LYC   byte
	BGP, OBP0, OBP1, WY, WX         byte
	Dot                             int
	CGBMode                         bool
	BGCRAM, OBJCRAM                 [64]byte
	BCPSIndex, OCPSIndex            byte
	BCPSInc, OCPSInc                bool
	UseCompatColors                 bool
	CompatBG, CompatOBJ0, CompatOBJ1 [4]uint16
	WindowLine                      int
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := ppuState{
		VRAM0: p.vram[0], VRAM1: p.vram[1], VBK: p.vbk, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		Dot: p.dot, CGBMode: p.cgbMode,
		BGCRAM: p.bgCRAM, OBJCRAM: p.objCRAM,
		BCPSIndex: p.bcpsIndex, OCPSIndex: p.ocpsIndex,
		BCPSInc: p.bcpsInc, OCPSInc: p.ocpsInc,
		UseCompatColors: p.useCompatColors,
		CompatBG:        p.compatBG, CompatOBJ0: p.compatOBJ0, CompatOBJ1: p.compatOBJ1,
		WindowLine: p.windowLine,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	p.vram[0], p.vram[1], p.vbk, p.oam = s.VRAM0, s.VRAM1, s.VBK, s.OAM
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot, p.cgbMode = s.Dot, s.CGBMode
	p.bgCRAM, p.objCRAM = s.BGCRAM, s.OBJCRAM
	p.bcpsIndex, p.ocpsIndex = s.BCPSIndex, s.OCPSIndex
	p.bcpsInc, p.ocpsInc = s.BCPSInc, s.OCPSInc
	p.useCompatColors = s.UseCompatColors
	p.compatBG, p.compatOBJ0, p.compatOBJ1 = s.CompatBG, s.CompatOBJ0, s.CompatOBJ1
	p.windowLine = s.WindowLine
}
