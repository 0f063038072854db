package ppu

// Sprite is a decoded OAM entry, already adjusted to screen coordinates:
// X and Y are the sprite's top-left screen column/row (the raw OAM bytes,
// which are offset by 8 and 16 respectively, have already been corrected
// by the caller doing the OAM scan).
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// OBJ attribute byte (OAM byte 3) bit layout.
const (
	objAttrPriority = 1 << 7 // 1: sprite hidden behind BG/window colors 1-3
	objAttrYFlip    = 1 << 6
	objAttrXFlip    = 1 << 5
	objAttrDMGPal   = 1 << 4 // DMG: 0=OBP0, 1=OBP1
	objAttrBank     = 1 << 3 // CGB: VRAM bank for tile data
	objAttrCGBPal   = 0x07   // CGB: palette 0-7
)

// scanOAMForLine scans all 40 OAM entries and returns up to 10 sprites that
// intersect scanline ly, in OAM order (the order real hardware scans them).
func scanOAMForLine(oam *[0xA0]byte, ly int, tall bool) []Sprite {
	height := 8
	if tall {
		height = 16
	}
	var out []Sprite
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := i * 4
		y := int(oam[base]) - 16
		x := int(oam[base+1]) - 8
		tile := oam[base+2]
		attr := oam[base+3]
		if ly < y || ly >= y+height {
			continue
		}
		out = append(out, Sprite{X: x, Y: y, Tile: tile, Attr: attr, OAMIndex: i})
	}
	return out
}

// spriteLineDetail resolves, for each screen column, which sprite (if any)
// wins that pixel on scanline ly: the lowest-X sprite with an opaque pixel
// there, ties broken by the lowest OAM index. Transparent pixels never
// claim a column, letting a lower-priority sprite show through.
func spriteLineDetail(mem VRAMReader, sprites []Sprite, ly byte, tall bool) (ci [160]byte, attr [160]byte, has [160]bool) {
	height := 8
	if tall {
		height = 16
	}
	var winnerX [160]int
	var winnerIdx [160]int
	for i := range sprites {
		s := &sprites[i]
		row := int(ly) - s.Y
		if row < 0 || row >= height {
			continue
		}
		if s.Attr&objAttrYFlip != 0 {
			row = height - 1 - row
		}
		tile := s.Tile
		if tall {
			tile &^= 0x01
			if row >= 8 {
				tile |= 0x01
				row -= 8
			}
		}
		base := uint16(0x8000) + uint16(tile)*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)
		for px := 0; px < 8; px++ {
			x := s.X + px
			if x < 0 || x >= 160 {
				continue
			}
			bit := byte(7 - px)
			if s.Attr&objAttrXFlip != 0 {
				bit = byte(px)
			}
			c := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if c == 0 {
				continue
			}
			if has[x] {
				if s.X > winnerX[x] || (s.X == winnerX[x] && s.OAMIndex > winnerIdx[x]) {
					continue
				}
			}
			ci[x] = c
			attr[x] = s.Attr
			has[x] = true
			winnerX[x] = s.X
			winnerIdx[x] = s.OAMIndex
		}
	}
	return
}

// ComposeSpriteLine overlays the given sprites onto a scanline, returning the
// winning 2-bit color index per pixel (0 means no sprite pixel is visible
// there, whether because every covering sprite is transparent at that column
// or because an opaque, BG-priority sprite pixel is masked by a non-zero BG
// color).
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, tall bool) [160]byte {
	ci, attr, has := spriteLineDetail(mem, sprites, ly, tall)
	var out [160]byte
	for x := 0; x < 160; x++ {
		if !has[x] {
			continue
		}
		if attr[x]&objAttrPriority != 0 && bgci[x] != 0 {
			continue
		}
		out[x] = ci[x]
	}
	return out
}
