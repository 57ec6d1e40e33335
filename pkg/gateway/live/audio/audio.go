// Package audio converts between the telephony codec (G.711 mu-law, 8 kHz
// mono) and the PCM16 representation the speech model consumes. All PCM
// buffers are little-endian signed 16-bit mono.
package audio

const (
	// TelephonyRate is the sample rate of carrier media streams.
	TelephonyRate = 8000
	// ModelRate is the PCM16 sample rate expected by the realtime model.
	ModelRate = 24000
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// DecodeMulaw expands mu-law bytes to PCM16.
func DecodeMulaw(in []byte) []byte {
	out := make([]byte, 0, len(in)*2)
	for _, u := range in {
		s := decodeMulawSample(u)
		out = append(out, byte(s), byte(s>>8))
	}
	return out
}

// EncodeMulaw compands PCM16 to mu-law. A trailing odd byte is ignored.
func EncodeMulaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out = append(out, encodeMulawSample(s))
	}
	return out
}

func decodeMulawSample(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	t := (int32(mant)<<3 + mulawBias) << exp
	t -= mulawBias
	if sign != 0 {
		return int16(-t)
	}
	return int16(t)
}

func encodeMulawSample(s int16) byte {
	v := int32(s)
	sign := byte(0)
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > mulawClip {
		v = mulawClip
	}
	v += mulawBias
	exp := byte(7)
	for mask := int32(0x4000); exp > 0 && v&mask == 0; mask >>= 1 {
		exp--
	}
	mant := byte((v >> (exp + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}

// Resample converts PCM16 between sample rates by linear interpolation.
// This is adequate for narrowband speech; anything fancier belongs to the
// model or the carrier.
func Resample(pcm []byte, fromHz, toHz int) []byte {
	if fromHz == toHz || fromHz <= 0 || toHz <= 0 {
		out := make([]byte, len(pcm)&^1)
		copy(out, pcm)
		return out
	}
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}

	outN := n * toHz / fromHz
	if outN == 0 {
		outN = 1
	}
	ratio := float64(fromHz) / float64(toHz)
	out := make([]byte, 0, outN*2)
	for i := 0; i < outN; i++ {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 >= n-1 {
			s := samples[n-1]
			out = append(out, byte(s), byte(s>>8))
			continue
		}
		frac := pos - float64(i0)
		s := float64(samples[i0])*(1-frac) + float64(samples[i0+1])*frac
		v := int16(s)
		out = append(out, byte(v), byte(v>>8))
	}
	return out
}
