package audio

import (
	"bytes"
	"testing"
)

func TestMulawRoundTripSilence(t *testing.T) {
	pcm := make([]byte, 320) // 160 samples of silence
	encoded := EncodeMulaw(pcm)
	if len(encoded) != 160 {
		t.Fatalf("encoded length = %d, want 160", len(encoded))
	}
	decoded := DecodeMulaw(encoded)
	if len(decoded) != 320 {
		t.Fatalf("decoded length = %d, want 320", len(decoded))
	}
	for i := 0; i < len(decoded); i += 2 {
		s := int16(uint16(decoded[i]) | uint16(decoded[i+1])<<8)
		if s < -8 || s > 8 {
			t.Fatalf("sample %d decoded to %d, want near zero", i/2, s)
		}
	}
}

func TestMulawRoundTripTone(t *testing.T) {
	// mu-law is lossy; round-tripped samples must stay within the quantizer
	// step for their magnitude (roughly 3% of full scale at the top end).
	values := []int16{-32000, -12345, -100, 0, 100, 512, 12345, 32000}
	for _, want := range values {
		u := encodeMulawSample(want)
		got := decodeMulawSample(u)
		diff := int32(got) - int32(want)
		if diff < 0 {
			diff = -diff
		}
		if diff > 1024 {
			t.Errorf("sample %d round-tripped to %d (diff %d)", want, got, diff)
		}
	}
}

func TestEncodeMulawSignPreserved(t *testing.T) {
	if got := decodeMulawSample(encodeMulawSample(-2000)); got >= 0 {
		t.Fatalf("negative sample decoded to %d", got)
	}
	if got := decodeMulawSample(encodeMulawSample(2000)); got <= 0 {
		t.Fatalf("positive sample decoded to %d", got)
	}
}

func TestResampleRatio(t *testing.T) {
	in := make([]byte, 160*2) // 160 samples @8k = 20ms
	out := Resample(in, TelephonyRate, ModelRate)
	if len(out) != 480*2 {
		t.Fatalf("upsampled length = %d, want %d", len(out), 480*2)
	}
	back := Resample(out, ModelRate, TelephonyRate)
	if len(back) != 160*2 {
		t.Fatalf("downsampled length = %d, want %d", len(back), 160*2)
	}
}

func TestResampleSameRateCopies(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	out := Resample(in, 8000, 8000)
	if !bytes.Equal(in, out) {
		t.Fatalf("same-rate resample mutated data: %v", out)
	}
	out[0] = 99
	if in[0] == 99 {
		t.Fatal("resample returned aliased buffer")
	}
}

func TestResampleConstantSignal(t *testing.T) {
	// A DC signal must stay DC through interpolation.
	in := make([]byte, 0, 100*2)
	for i := 0; i < 100; i++ {
		in = append(in, 0xE8, 0x03) // 1000
	}
	out := Resample(in, TelephonyRate, ModelRate)
	for i := 0; i+1 < len(out); i += 2 {
		s := int16(uint16(out[i]) | uint16(out[i+1])<<8)
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000", i/2, s)
		}
	}
}
