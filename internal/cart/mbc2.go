package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC2 supports up to 256KB ROM and has 512x4-bit built-in RAM (no external
// RAM chip). RAM enable and ROM bank select share the 0000-3FFF write
// window, distinguished by address bit 8: clear selects RAM enable, set
// selects the ROM bank number.
type MBC2 struct {
	rom []byte
	ram [512]byte // only the low nibble of each byte is meaningful

	romBank    byte // 4 bits (1..15)
	ramEnabled bool
}

func NewMBC2(rom []byte) *MBC2 {
	m := &MBC2{rom: rom}
	m.romBank = 1
	return m
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank)
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return 0xF0 | (m.ram[addr&0x1FF] & 0x0F)
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[addr&0x1FF] = value & 0x0F
	}
}

// SaveRAM returns the 512-nibble built-in RAM for battery persistence.
func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	n := len(data)
	if n > len(m.ram) {
		n = len(m.ram)
	}
	copy(m.ram[:], data[:n])
}

type mbc2State struct {
	RAM        [512]byte
	RomBank    byte
	RamEnabled bool
}

func (m *MBC2) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc2State{RAM: m.ram, RomBank: m.romBank, RamEnabled: m.ramEnabled}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.ram = s.RAM
	m.romBank, m.ramEnabled = s.RomBank, s.RamEnabled
}
