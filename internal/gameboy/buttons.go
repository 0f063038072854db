package gameboy

import "github.com/gbcore/gbcore/internal/bus"

// Buttons is the instantaneous state of all eight Game Boy controls.
type Buttons struct {
	A, B          bool
	Start, Select bool
	Up, Down      bool
	Left, Right   bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= bus.JoypRight
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Start {
		m |= bus.JoypStart
	}
	return m
}

// SetButtons updates which buttons are currently pressed.
func (m *Machine) SetButtons(b Buttons) {
	m.bus.SetJoypadState(b.mask())
}
