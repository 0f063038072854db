package ppu

// renderScanline composes the BG, window, and OBJ layers for scanline ly
// into the packed RGB888 framebuffer. Called once per line, at HBlank entry,
// so the window line counter captured for ly at mode-3 entry is already
// final.
func (p *PPU) renderScanline(ly byte) {
	var ci, pal [160]byte
	var pri [160]bool

	bgMapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		bgMapBase = 0x9C00
	}
	tileData8000 := p.lcdc&0x10 != 0

	bgWinEnabled := p.lcdc&0x01 != 0
	if bgWinEnabled || p.cgbMode {
		if p.cgbMode {
			ci, pal, pri = RenderBGScanlineCGB(p, bgMapBase, bgMapBase, tileData8000, p.scx, p.scy, ly)
		} else {
			ci = RenderBGScanlineUsingFetcher(p, bgMapBase, tileData8000, p.scx, p.scy, ly)
		}
	}
	if !bgWinEnabled && !p.cgbMode {
		ci, pal, pri = [160]byte{}, [160]byte{}, [160]bool{}
	}

	lr := p.LineRegs(int(ly))
	windowVisible := p.lcdc&0x20 != 0 && p.wx <= 166 && ly >= p.wy && (bgWinEnabled || p.cgbMode)
	if windowVisible {
		winMapBase := uint16(0x9800)
		if p.lcdc&0x40 != 0 {
			winMapBase = 0x9C00
		}
		wxStart := int(p.wx) - 7
		var wci, wpal [160]byte
		var wpri [160]bool
		if p.cgbMode {
			wci, wpal, wpri = RenderWindowScanlineCGB(p, winMapBase, winMapBase, tileData8000, wxStart, lr.WinLine)
		} else {
			wci = RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, wxStart, lr.WinLine)
		}
		start := wxStart
		if start < 0 {
			start = 0
		}
		for x := start; x < 160; x++ {
			ci[x] = wci[x]
			pal[x] = wpal[x]
			pri[x] = wpri[x]
		}
	}

	var spriteCI [160]byte
	var spriteAttr [160]byte
	var spriteHas [160]bool
	if p.lcdc&0x02 != 0 {
		tall := p.lcdc&0x04 != 0
		sprites := scanOAMForLine(&p.oam, int(ly), tall)
		spriteCI = ComposeSpriteLine(p, sprites, ly, ci, tall)
		_, spriteAttr, spriteHas = spriteLineDetail(p, sprites, ly, tall)
	}

	row := int(ly) * 160 * 3
	for x := 0; x < 160; x++ {
		var r, g, b byte
		useSprite := spriteCI[x] != 0
		if useSprite && p.cgbMode && p.lcdc&0x01 != 0 && pri[x] && ci[x] != 0 {
			// BG tile's own priority bit forces it above OBJ, independent of
			// the sprite's own priority bit.
			useSprite = false
		}
		if useSprite && spriteHas[x] {
			if p.cgbMode {
				r, g, b = p.cramColor(&p.objCRAM, spriteAttr[x]&objAttrCGBPal, spriteCI[x])
			} else if p.useCompatColors {
				ramp := p.compatOBJ0
				if spriteAttr[x]&objAttrDMGPal != 0 {
					ramp = p.compatOBJ1
				}
				r, g, b = compatColor(ramp, spriteCI[x])
			} else {
				reg := p.obp0
				if spriteAttr[x]&objAttrDMGPal != 0 {
					reg = p.obp1
				}
				r, g, b = greyscaleShade(shadeFromPalette(reg, spriteCI[x]))
			}
		} else if p.cgbMode {
			r, g, b = p.cramColor(&p.bgCRAM, pal[x], ci[x])
		} else if p.useCompatColors {
			r, g, b = compatColor(p.compatBG, ci[x])
		} else {
			r, g, b = greyscaleShade(shadeFromPalette(p.bgp, ci[x]))
		}
		off := row + x*3
		p.framebuf[off] = r
		p.framebuf[off+1] = g
		p.framebuf[off+2] = b
	}
}

func shadeFromPalette(reg, ci byte) byte { return (reg >> (ci * 2)) & 0x03 }

func greyscaleShade(shade byte) (byte, byte, byte) {
	switch shade {
	case 0:
		return 255, 255, 255
	case 1:
		return 170, 170, 170
	case 2:
		return 85, 85, 85
	default:
		return 0, 0, 0
	}
}

func compatColor(ramp [4]uint16, ci byte) (byte, byte, byte) {
	return rgb555ToRGB888(ramp[ci&3])
}

func (p *PPU) cramColor(cram *[64]byte, pal, ci byte) (byte, byte, byte) {
	idx := int(pal&0x07)*8 + int(ci&0x03)*2
	lo := cram[idx]
	hi := cram[idx+1]
	v := uint16(lo) | uint16(hi)<<8
	return rgb555ToRGB888(v)
}

func rgb555ToRGB888(c uint16) (byte, byte, byte) {
	r := c & 0x1F
	g := (c >> 5) & 0x1F
	b := (c >> 10) & 0x1F
	return byte(r * 255 / 31), byte(g * 255 / 31), byte(b * 255 / 31)
}
