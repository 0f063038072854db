package cpu

import (
	"bytes"
	"encoding/gob"
)

// cpuState captures everything needed to resume execution mid-instruction
// boundary: registers plus the HALT/IME/EI-delay bookkeeping that Step uses.
type cpuState struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME                    bool
	Halted                 bool
	EIPending              bool
}

// SaveState serializes the CPU's register file and interrupt bookkeeping.
func (c *CPU) SaveState() []byte {
	var buf bytes.Buffer
	s := cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted, EIPending: c.eiPending,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a register file previously produced by SaveState.
func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.halted, c.eiPending = s.IME, s.Halted, s.EIPending
}

// Halted reports whether the CPU is currently stopped in HALT awaiting an interrupt.
func (c *CPU) Halted() bool { return c.halted }
