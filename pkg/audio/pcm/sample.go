package pcm

import "encoding/binary"

// DecodeInt16 appends the little-endian samples in b to dst. A trailing odd
// byte is ignored.
func DecodeInt16(dst []int16, b []byte) []int16 {
	for i := 0; i+1 < len(b); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(b[i:])))
	}
	return dst
}

// EncodeInt16 appends samples to dst as little-endian bytes.
func EncodeInt16(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// Int16ToFloat maps a sample to [-1, 1).
func Int16ToFloat(s int16) float64 {
	return float64(s) / 32768
}

// FloatToInt16 maps v back to a sample, clipping outside [-1, 1].
// Positive values scale by 32767 and negative by 32768.
func FloatToInt16(v float64) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	case v >= 0:
		return int16(v * 32767)
	default:
		return int16(v * 32768)
	}
}
