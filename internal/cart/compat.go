package cart

import "sort"

// CompatPalette identifies which built-in palette a CGB uses to colorize a
// monochrome (non-CGB-flagged) cartridge. It is derived purely from the ROM
// header, reproducing the lookup the CGB boot ROM performs: the 8-bit sum
// of the title bytes selects a row in checksumPaletteID; a handful of
// checksums are ambiguous and are disambiguated by the title's 4th
// character via disambiguationTable.
type CompatPalette struct {
	BG   [4]uint16 // RGB555, color id 0..3
	OBJ0 [4]uint16
	OBJ1 [4]uint16
}

// checksumPaletteID maps the 8-bit title checksum to an id in
// paletteCombinations.
// Values for checksums with no known mapping default to 0x00 (the
// greyscale/default combination also used for unlicensed titles).
var checksumPaletteID = map[byte]byte{
	0x01: 0x10, 0x0D: 0x10, 0x10: 0x10, 0x14: 0x10, 0x15: 0x10, 0x1F: 0x10,
	0x20: 0x10, 0x26: 0x10, 0x4B: 0x10, 0x59: 0x10, 0xB3: 0x10,
	0x04: 0x13, 0x0A: 0x13, 0x1D: 0x13, 0x27: 0x13, 0x61: 0x13, 0x66: 0x13,
	0x6F: 0x13, 0x93: 0x13, 0x9C: 0x13, 0x9D: 0x13, 0xA1: 0x13, 0xC6: 0x13,
	0x11: 0x18, 0x34: 0x18, 0x35: 0x18, 0x74: 0x18, 0x84: 0x18, 0x8C: 0x18,
	0xA8: 0x18, 0xBC: 0x18, 0xDE: 0x18, 0xEF: 0x18,
	0x39: 0x0C, 0xDB: 0x0C,
	0x58: 0x12, 0x69: 0x12, 0x6D: 0x12, 0xF2: 0x12, 0xF4: 0x12,
	0x46: 0x17, 0x6A: 0x17,
	0x70: 0x09, 0x99: 0x09,
	0x28: 0x14, 0xA5: 0x14,
	0x67: 0x05, 0xE8: 0x05,
	0x8B: 0x1A, 0xF6: 0x1A,
	0x71: 0x0E,
	0xFF: 0x16,
	0x36: 0x1E, 0x86: 0x1E, 0xDA: 0x1E,
	0x29: 0x0D, 0x3D: 0x0D, 0x3E: 0x0D, 0x97: 0x0D,
	0x5C: 0x1D, 0xB2: 0x1D,
	0x0F: 0x0A, 0x21: 0x0A, 0x30: 0x0A, 0x31: 0x0A, 0x32: 0x0A, 0x33: 0x0A,
	0x3C: 0x0A, 0x5F: 0x0A, 0x62: 0x0A, 0x64: 0x0A, 0x76: 0x0A, 0x8D: 0x0A,
	0xA2: 0x0A, 0xA4: 0x0A, 0xA6: 0x0A, 0xAC: 0x0A, 0xD3: 0x0A, 0xD5: 0x0A,
	0xD6: 0x0A, 0xD7: 0x0A,
	0x3F: 0x04, 0x6B: 0x04, 0xB6: 0x04,
	0x3A: 0x1B, 0x6E: 0x1B, 0x80: 0x1B, 0x91: 0x1B, 0xBF: 0x1B, 0xF5: 0x1B,
	0xA9: 0x15,
	0xAA: 0x1C,
	0x75: 0x08, 0xC1: 0x08,
	0x19: 0x01,
	0x0B: 0x19, 0x1B: 0x19, 0x98: 0x19,
	0x0C: 0x0B, 0x55: 0x0B, 0x63: 0x0B,
}

// disambiguationTable lists title checksums whose palette depends on
// the 4th title character rather than being unique on their own.
var disambiguationTable = map[byte]map[byte]byte{
	0x10: {'B': 0x00, 'E': 0x09, 'F': 0x16, 'A': 0x17},
	0x14: {'R': 0x1A},
	0x1D: {'E': 0x18},
	0x3D: {'R': 0x19},
}

// paletteCombinations maps a palette combination id to its BG/OBJ0/OBJ1
// RGB555 color ramps, per the CGB boot ROM's built-in table.
var paletteCombinations = map[byte]CompatPalette{
	0x00: {BG: greyscale(), OBJ0: greyscale(), OBJ1: greyscale()},
	0x01: {BG: rgb(0x7FFF, 0x01DF, 0x0000, 0x0000), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000)},
	0x04: {BG: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ0: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ1: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000)},
	0x05: {BG: rgb(0x7FFF, 0x7EAC, 0x4631, 0x0000), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x08: {BG: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ0: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ1: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000)},
	0x09: {BG: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ0: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ1: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000)},
	0x0A: {BG: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ0: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ1: rgb(0x7FFF, 0x329F, 0x001F, 0x001F)},
	0x0B: {BG: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x0C: {BG: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ0: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ1: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000)},
	0x0D: {BG: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ0: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ1: rgb(0x7FFF, 0x329F, 0x001F, 0x001F)},
	0x0E: {BG: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x329F, 0x001F, 0x001F)},
	0x10: {BG: greyscale(), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000)},
	0x12: {BG: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ0: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ1: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000)},
	0x13: {BG: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ0: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ1: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000)},
	0x14: {BG: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ0: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ1: rgb(0x7FFF, 0x0000, 0x0000, 0x0000)},
	0x15: {BG: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ0: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x16: {BG: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x17: {BG: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ0: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x18: {BG: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x0000, 0x0000, 0x0000)},
	0x19: {BG: rgb(0x3FE0, 0x3FE0, 0x7C00, 0x0000), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x1A: {BG: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ0: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000), OBJ1: rgb(0x7FFF, 0x329F, 0x001F, 0x001F)},
	0x1B: {BG: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ0: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x1C: {BG: rgb(0x7FFF, 0x7FE0, 0x7C00, 0x0000), OBJ0: rgb(0x7FFF, 0x0000, 0x0000, 0x0000), OBJ1: rgb(0x7FFF, 0x3FE0, 0x0140, 0x0000)},
	0x1D: {BG: rgb(0x7FFF, 0x03E0, 0x0120, 0x0000), OBJ0: rgb(0x7FFF, 0x329F, 0x001F, 0x001F), OBJ1: rgb(0x7FFF, 0x0000, 0x0000, 0x0000)},
	0x1E: {BG: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ0: rgb(0x7FFF, 0x7E10, 0x3165, 0x0000), OBJ1: rgb(0x7FFF, 0x329F, 0x001F, 0x001F)},
}

func rgb(c0, c1, c2, c3 uint16) [4]uint16 { return [4]uint16{c0, c1, c2, c3} }
func greyscale() [4]uint16               { return [4]uint16{0x7FFF, 0x56B5, 0x294A, 0x0000} }

// KnownPaletteIDs returns the ids of every built-in palette combination, in
// ascending order, for UIs that let a player step through them manually.
func KnownPaletteIDs() []byte {
	ids := make([]byte, 0, len(paletteCombinations))
	for id := range paletteCombinations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PaletteByID looks up a built-in combination directly, bypassing the
// title-checksum heuristic AutoCompatPalette uses.
func PaletteByID(id byte) (CompatPalette, bool) {
	p, ok := paletteCombinations[id]
	return p, ok
}

// AutoCompatPalette derives the CGB compatibility palette for a DMG-only
// cartridge from its header title, per the boot ROM's title-checksum
// algorithm. ok is false only when h is nil.
func AutoCompatPalette(h *Header) (CompatPalette, bool) {
	if h == nil {
		return CompatPalette{}, false
	}
	title := h.Title
	var sum byte
	for i := 0; i < len(title) && i < 16; i++ {
		sum += title[i]
	}

	id, known := checksumPaletteID[sum]
	if table, ambiguous := disambiguationTable[sum]; ambiguous {
		var fourth byte
		if len(title) > 3 {
			fourth = title[3]
		}
		if v, ok := table[fourth]; ok {
			id, known = v, true
		}
	}
	if !known {
		return paletteCombinations[0x00], true
	}
	p, ok := paletteCombinations[id]
	if !ok {
		return paletteCombinations[0x00], true
	}
	return p, true
}
