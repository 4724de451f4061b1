package audio

// G.711 expansion tables, indexed by the encoded byte.
var (
	ulawTable = buildTable(ulawToLinear)
	alawTable = buildTable(alawToLinear)
)

func buildTable(f func(byte) int16) [256]int16 {
	var t [256]int16
	for i := range t {
		t[i] = f(byte(i))
	}
	return t
}

// ulawToLinear expands one G.711 µ-law byte.
func ulawToLinear(u byte) int16 {
	u = ^u
	exponent := (u >> 4) & 0x07
	mantissa := int32(u & 0x0F)
	sample := ((mantissa << 3) + 0x84) << exponent
	sample -= 0x84
	if u&0x80 != 0 {
		sample = -sample
	}
	return int16(sample)
}

// alawToLinear expands one G.711 A-law byte.
func alawToLinear(a byte) int16 {
	a ^= 0x55
	t := int32(a&0x0F) << 4
	switch seg := (a & 0x70) >> 4; seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&0x80 == 0 {
		t = -t
	}
	return int16(t)
}

// expand decodes G.711 bytes through table into little-endian PCM.
func expand(p []byte, table *[256]int16) []byte {
	out := make([]byte, len(p)*2)
	for i, b := range p {
		s := table[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
