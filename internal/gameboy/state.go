package gameboy

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
)

// machineState is the serialized form of everything a save state or
// snapshot needs beyond the bus's own SaveState blob: CPU registers and the
// small bits of Machine-level preference state that affect rendering.
type machineState struct {
	CPU              []byte
	Bus              []byte
	WantCGBColors    bool
	CompatPaletteIdx int
}

func (m *Machine) encodeState() ([]byte, error) {
	if m.cpu == nil || m.bus == nil {
		return nil, fmt.Errorf("gameboy: no cartridge loaded")
	}
	s := machineState{
		CPU:              m.cpu.SaveState(),
		Bus:              m.bus.SaveState(),
		WantCGBColors:    m.wantCGBColors,
		CompatPaletteIdx: m.compatPaletteIdx,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Machine) decodeState(data []byte) error {
	if m.cpu == nil || m.bus == nil {
		return fmt.Errorf("gameboy: no cartridge loaded")
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	m.cpu.LoadState(s.CPU)
	m.bus.LoadState(s.Bus)
	m.wantCGBColors = s.WantCGBColors
	m.compatPaletteIdx = s.CompatPaletteIdx
	return nil
}

// Snapshot is an opaque, in-memory capture of machine state, for fast
// save/restore points (e.g. rewind, or save-before-risky-input in a test
// harness) without touching disk.
type Snapshot struct {
	data []byte
}

// Snapshot captures the machine's full state.
func (m *Machine) Snapshot() (Snapshot, error) {
	data, err := m.encodeState()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{data: data}, nil
}

// RestoreSnapshot restores state previously captured by Snapshot.
func (m *Machine) RestoreSnapshot(s Snapshot) error {
	return m.decodeState(s.data)
}

// SaveStateToFile writes a save state to path.
func (m *Machine) SaveStateToFile(path string) error {
	data, err := m.encodeState()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadStateFromFile restores a save state previously written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.decodeState(data)
}
