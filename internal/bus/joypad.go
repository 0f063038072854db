package bus

// Joypad button bitmasks for SetJoypadState. Bits set mean "pressed".
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

// JOYP (FF00) state lives on Bus (see bus.go); this file holds the button
// matrix read and the active-low edge detection that drives the joypad
// interrupt.

func (b *Bus) readJOYP() byte {
	res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
	if (b.joypSelect & 0x10) == 0 { // P14 low selects D-Pad
		if b.joypad&JoypRight != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			res &^= 0x08
		}
	}
	if (b.joypSelect & 0x20) == 0 { // P15 low selects Buttons
		if b.joypad&JoypA != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			res &^= 0x08
		}
	}
	return res
}

// SetJoypadState sets which buttons are currently pressed.
// Pass a mask using the Joyp* constants above; set bits mean pressed.
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

// updateJoypadIRQ recomputes JOYP lower 4 bits (active-low) and raises IF
// bit 4 on any 1->0 transition.
func (b *Bus) updateJoypadIRQ() {
	newLower := byte(0x0F)
	if (b.joypSelect & 0x10) == 0 {
		if b.joypad&JoypRight != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			newLower &^= 0x08
		}
	}
	if (b.joypSelect & 0x20) == 0 {
		if b.joypad&JoypA != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			newLower &^= 0x08
		}
	}
	falling := b.joypLower4 &^ newLower
	if falling != 0 {
		b.ifReg |= 1 << 4
	}
	b.joypLower4 = newLower
}
