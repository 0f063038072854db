package cart

import (
	"bytes"
	"encoding/gob"
)

// gobEncode serializes a state struct followed by a RAM snapshot into a
// single blob, used by mbc3's SaveState/LoadState (RTC state plus banked
// RAM cannot reuse the plain struct-with-RAM-field pattern since mbc3State
// intentionally excludes the RAM slice).
func gobEncode(state interface{}, ram []byte) []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(state)
	_ = enc.Encode(ram)
	return buf.Bytes()
}

func gobDecode(data []byte, state interface{}) ([]byte, error) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(state); err != nil {
		return nil, err
	}
	var ram []byte
	if err := dec.Decode(&ram); err != nil {
		return nil, err
	}
	return ram, nil
}
