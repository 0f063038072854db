package cart

import (
	"encoding/binary"
	"time"
)

// MBC3 implements ROM/RAM banking plus the MBC3 real-time clock.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (0x08-0x0C)
// - 6000-7FFF: Latch clock (0x00 then 0x01 freezes live RTC into latched copies)
// - A000-BFFF: external RAM, or the latched RTC register currently selected
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)

// nowUnix is a swappable wall-clock hook so tests can drive RTC advancement
// deterministically without sleeping.
var nowUnix = func() int64 { return time.Now().Unix() }

const (
	rtcRegSec    = 0x08
	rtcRegMin    = 0x09
	rtcRegHour   = 0x0A
	rtcRegDayLow = 0x0B
	rtcRegDayHi  = 0x0C
)

type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3, meaningful only when rtcSelected is false

	rtcSelected bool
	rtcReg      byte // rtcRegSec..rtcRegDayHi

	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9 bits
	rtcHalt                 bool
	rtcCarry                bool
	lastRTCWallSec          int64

	latchPending bool // saw a 0x00 write to the latch register, waiting for 0x01

	latchedSec, latchedMin, latchedHour byte
	latchedDay                          uint16
	latchedHalt, latchedCarry           bool
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

// updateRTC folds elapsed wall-clock time since the last access into the
// live RTC registers. Called on every cart access so the registers are
// always current when read, latched, or persisted.
func (m *MBC3) updateRTC() {
	now := nowUnix()
	if m.rtcHalt {
		m.lastRTCWallSec = now
		return
	}
	elapsed := now - m.lastRTCWallSec
	if elapsed <= 0 {
		m.lastRTCWallSec = now
		return
	}
	m.lastRTCWallSec = now

	total := int64(m.rtcSec) + int64(m.rtcMin)*60 + int64(m.rtcHour)*3600 + int64(m.rtcDay)*86400 + elapsed
	sec := total % 60
	rem := total / 60
	min := rem % 60
	rem /= 60
	hour := rem % 24
	rem /= 24
	day := rem
	if day > 0x1FF {
		m.rtcCarry = true
		day %= 512
	}
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = byte(sec), byte(min), byte(hour), uint16(day)
}

func (m *MBC3) Read(addr uint16) byte {
	m.updateRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.rtcSelected {
			return m.readRTCRegister()
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) readRTCRegister() byte {
	switch m.rtcReg {
	case rtcRegSec:
		return m.latchedSec
	case rtcRegMin:
		return m.latchedMin
	case rtcRegHour:
		return m.latchedHour
	case rtcRegDayLow:
		return byte(m.latchedDay & 0xFF)
	case rtcRegDayHi:
		v := byte((m.latchedDay >> 8) & 0x01)
		if m.latchedHalt {
			v |= 0x40
		}
		if m.latchedCarry {
			v |= 0x80
		}
		return v
	}
	return 0xFF
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.updateRTC()
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 {
			m.ramBank = value & 0x03
			m.rtcSelected = false
		} else if value >= rtcRegSec && value <= rtcRegDayHi {
			m.rtcReg = value
			m.rtcSelected = true
		}
	case addr < 0x8000:
		// Latch sequence: 0x00 arms, 0x01 freezes live registers into the latch.
		if value == 0x00 {
			m.latchPending = true
		} else if value == 0x01 && m.latchPending {
			m.latchedSec, m.latchedMin, m.latchedHour = m.rtcSec, m.rtcMin, m.rtcHour
			m.latchedDay, m.latchedHalt, m.latchedCarry = m.rtcDay, m.rtcHalt, m.rtcCarry
			m.latchPending = false
		} else {
			m.latchPending = false
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.rtcSelected {
			m.writeRTCRegister(value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) writeRTCRegister(value byte) {
	switch m.rtcReg {
	case rtcRegSec:
		m.rtcSec = value
	case rtcRegMin:
		m.rtcMin = value
	case rtcRegHour:
		m.rtcHour = value
	case rtcRegDayLow:
		m.rtcDay = (m.rtcDay &^ 0xFF) | uint16(value)
	case rtcRegDayHi:
		m.rtcDay = (m.rtcDay & 0xFF) | uint16(value&0x01)<<8
		m.rtcHalt = value&0x40 != 0
		m.rtcCarry = value&0x80 != 0
	}
}

// SaveRAM returns battery-backed RAM prefixed by the RTC state, per the
// MBC3 battery persistence format: RTC fields + wall-clock epoch, then the
// external RAM banks.
func (m *MBC3) SaveRAM() []byte {
	m.updateRTC()
	out := make([]byte, 0, 13+len(m.ram))
	dh := byte((m.rtcDay >> 8) & 0x01)
	if m.rtcHalt {
		dh |= 0x40
	}
	if m.rtcCarry {
		dh |= 0x80
	}
	out = append(out, m.rtcSec, m.rtcMin, m.rtcHour, byte(m.rtcDay&0xFF), dh)
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], uint64(m.lastRTCWallSec))
	out = append(out, tb[:]...)
	out = append(out, m.ram...)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(data) < 13 {
		n := len(data)
		if n > len(m.ram) {
			n = len(m.ram)
		}
		copy(m.ram, data[:n])
		return
	}
	m.rtcSec, m.rtcMin, m.rtcHour = data[0], data[1], data[2]
	dh := data[4]
	m.rtcDay = uint16(data[3]) | uint16(dh&0x01)<<8
	m.rtcHalt = dh&0x40 != 0
	m.rtcCarry = dh&0x80 != 0
	m.lastRTCWallSec = int64(binary.BigEndian.Uint64(data[5:13]))
	rest := data[13:]
	n := len(rest)
	if n > len(m.ram) {
		n = len(m.ram)
	}
	copy(m.ram, rest[:n])
}

type mbc3State struct {
	RomBank, RamBank         byte
	RamEnabled               bool
	RTCSelected              bool
	RTCReg                   byte
	RtcSec, RtcMin, RtcHour  byte
	RtcDay                   uint16
	RtcHalt, RtcCarry        bool
	LastWallSec              int64
	LatchedSec, LatchedMin   byte
	LatchedHour              byte
	LatchedDay               uint16
	LatchedHalt, LatchedCarr bool
}

func (m *MBC3) SaveState() []byte {
	s := mbc3State{
		RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled,
		RTCSelected: m.rtcSelected, RTCReg: m.rtcReg,
		RtcSec: m.rtcSec, RtcMin: m.rtcMin, RtcHour: m.rtcHour, RtcDay: m.rtcDay,
		RtcHalt: m.rtcHalt, RtcCarry: m.rtcCarry, LastWallSec: m.lastRTCWallSec,
		LatchedSec: m.latchedSec, LatchedMin: m.latchedMin, LatchedHour: m.latchedHour,
		LatchedDay: m.latchedDay, LatchedHalt: m.latchedHalt, LatchedCarr: m.latchedCarry,
	}
	return gobEncode(s, m.ram)
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	ram, err := gobDecode(data, &s)
	if err != nil {
		return
	}
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
	m.rtcSelected, m.rtcReg = s.RTCSelected, s.RTCReg
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.RtcSec, s.RtcMin, s.RtcHour, s.RtcDay
	m.rtcHalt, m.rtcCarry, m.lastRTCWallSec = s.RtcHalt, s.RtcCarry, s.LastWallSec
	m.latchedSec, m.latchedMin, m.latchedHour = s.LatchedSec, s.LatchedMin, s.LatchedHour
	m.latchedDay, m.latchedHalt, m.latchedCarry = s.LatchedDay, s.LatchedHalt, s.LatchedCarr
	if len(ram) == len(m.ram) {
		copy(m.ram, ram)
	}
}
