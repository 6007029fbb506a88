package oap

// Bits is an addressable bitstream, one 0/1 value per element, most
// significant bit of each source byte first.
type Bits []byte

// ToBits expands payload into 8 bits per byte.
func ToBits(payload []byte) Bits {
	bits := make(Bits, 0, len(payload)*8)
	for _, b := range payload {
		for shift := 7; shift >= 0; shift-- {
			bits = append(bits, (b>>uint(shift))&1)
		}
	}
	return bits
}

// FromBits packs bits back into bytes. A trailing group of fewer than 8 bits
// is dropped, and the result is always exactly PayloadSize bytes:
// truncated when longer, zero-padded on the right when shorter.
func FromBits(bits Bits) []byte {
	out := make([]byte, PayloadSize)
	n := len(bits) / 8
	if n > PayloadSize {
		n = PayloadSize
	}
	for i := 0; i < n; i++ {
		var v byte
		for _, bit := range bits[i*8 : i*8+8] {
			v = v<<1 | bit&1
		}
		out[i] = v
	}
	return out
}

// Reconstruct round-trips payload through its bit representation.
func Reconstruct(payload []byte) []byte {
	return FromBits(ToBits(payload))
}
