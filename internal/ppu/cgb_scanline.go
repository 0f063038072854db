package ppu

// CGBVRAMReader exposes per-bank VRAM reads, needed to resolve a CGB BG/
// window tile's pixel data (which may live in either VRAM bank) and its
// attribute byte (always stored in bank 1 at the tile map address).
type CGBVRAMReader interface {
	ReadBank(bank int, addr uint16) byte
}

// CGB BG/window tile-map attribute byte (VRAM bank 1, same address as the
// tile number in bank 0).
const (
	bgAttrPriority = 1 << 7
	bgAttrYFlip    = 1 << 6
	bgAttrXFlip    = 1 << 5
	bgAttrBank     = 1 << 4
	bgAttrPalMask  = 0x07
)

// RenderBGScanlineCGB renders one background scanline honoring CGB tile
// attributes: per-tile VRAM bank, X/Y flip, palette, and BG-to-OBJ priority.
// ci holds the raw 2-bit color index, pal the attribute's palette number
// (0-7), and pri whether the BG-to-OBJ priority bit was set.
func RenderBGScanlineCGB(mem CGBVRAMReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapRow := (bgY >> 3) & 31
	scxTileOffset := int(scx & 7)
	tileCol := (uint16(scx) >> 3) & 31

	x := 0
	firstTile := true
	for x < 160 {
		off := mapRow*32 + tileCol
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)

		bank := 0
		if attr&bgAttrBank != 0 {
			bank = 1
		}
		row := fineY
		if attr&bgAttrYFlip != 0 {
			row = 7 - fineY
		}
		var addr uint16
		if tileData8000 {
			addr = 0x8000 + uint16(tileNum)*16 + uint16(row)*2
		} else {
			addr = 0x9000 + uint16(int8(tileNum))*16 + uint16(row)*2
		}
		lo := mem.ReadBank(bank, addr)
		hi := mem.ReadBank(bank, addr+1)

		start := 0
		if firstTile {
			start = scxTileOffset
			firstTile = false
		}
		for px := start; px < 8 && x < 160; px++ {
			bit := byte(7 - px)
			if attr&bgAttrXFlip != 0 {
				bit = byte(px)
			}
			c := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			ci[x] = c
			pal[x] = attr & bgAttrPalMask
			pri[x] = attr&bgAttrPriority != 0
			x++
		}
		tileCol = (tileCol + 1) & 31
	}
	return
}

// RenderWindowScanlineCGB renders one window scanline starting at screen
// column wxStart, using winLine as the row within the window's own tile map
// (the window has its own independent line counter, separate from SCY/LY).
func RenderWindowScanlineCGB(mem CGBVRAMReader, mapBase, attrBase uint16, tileData8000 bool, wxStart int, winLine byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	fineY := winLine & 7
	mapRow := uint16(winLine>>3) & 31
	tileCol := uint16(0)

	x := wxStart
	if x < 0 {
		x = 0
	}
	for x < 160 {
		off := mapRow*32 + tileCol
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)

		bank := 0
		if attr&bgAttrBank != 0 {
			bank = 1
		}
		row := fineY
		if attr&bgAttrYFlip != 0 {
			row = 7 - fineY
		}
		var addr uint16
		if tileData8000 {
			addr = 0x8000 + uint16(tileNum)*16 + uint16(row)*2
		} else {
			addr = 0x9000 + uint16(int8(tileNum))*16 + uint16(row)*2
		}
		lo := mem.ReadBank(bank, addr)
		hi := mem.ReadBank(bank, addr+1)

		for px := 0; px < 8 && x < 160; px++ {
			bit := byte(7 - px)
			if attr&bgAttrXFlip != 0 {
				bit = byte(px)
			}
			c := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			ci[x] = c
			pal[x] = attr & bgAttrPalMask
			pri[x] = attr&bgAttrPriority != 0
			x++
		}
		tileCol = (tileCol + 1) & 31
	}
	return
}
