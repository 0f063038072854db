package bus

import "io"

// SB/SC (FF01/FF02) state lives on Bus (see bus.go). Real hardware clocks a
// transfer bit by bit over several thousand cycles; this model completes a
// transfer immediately on the triggering write, which is enough to satisfy
// link-cable test ROMs (e.g. Blargg's) that just want the byte and the
// completion interrupt.

func (b *Bus) readSC() byte { return 0x7E | (b.sc & 0x81) }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

func (b *Bus) writeSC(value byte) {
	b.sc = value & 0x81
	if (b.sc & 0x80) == 0 {
		return
	}
	if b.sw != nil {
		_, _ = b.sw.Write([]byte{b.sb})
	}
	b.ifReg |= 1 << 3 // serial transfer complete
	b.sc &^= 0x80
}
