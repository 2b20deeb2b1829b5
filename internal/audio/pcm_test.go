package audio

import (
	"errors"
	"testing"
)

func TestBytesToSamples(t *testing.T) {
	samples, err := BytesToSamples([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []int16{1, -1, -32768}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, want[i], samples[i])
		}
	}

	if _, err := BytesToSamples([]byte{1, 2, 3}); !errors.Is(err, ErrOddLength) {
		t.Errorf("Expected ErrOddLength, got %v", err)
	}
}

func TestSamplesToBytes_RoundTrip(t *testing.T) {
	in := []int16{0, 1000, -1000, 32767, -32768}
	out, err := BytesToSamples(SamplesToBytes(in))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		inRate   int
		outRate  int
		inLen    int
		expected int
	}{
		{"24kHz to 16kHz", 24000, 16000, 2400, 1600},
		{"16kHz to 48kHz", 16000, 48000, 160, 480},
		{"same rate", 16000, 16000, 160, 160},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]int16, tt.inLen)
			for i := range samples {
				samples[i] = 1000
			}
			out := Resample(samples, tt.inRate, tt.outRate)
			if len(out) != tt.expected {
				t.Errorf("Expected %d samples, got %d", tt.expected, len(out))
			}
			for i, s := range out {
				if s != 1000 {
					t.Fatalf("Sample %d: expected constant 1000, got %d", i, s)
				}
			}
		})
	}
}

func TestResamplePCM(t *testing.T) {
	pcm := SamplesToBytes(make([]int16, 240))
	out, err := ResamplePCM(pcm, 24000, 16000)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 320 {
		t.Errorf("Expected 320 bytes, got %d", len(out))
	}
	if _, err := ResamplePCM([]byte{1}, 24000, 16000); err == nil {
		t.Error("Expected error for odd-length input")
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("Expected 0 for empty input, got %f", rms)
	}
	if rms := CalculateRMS([]int16{1000, -1000, 1000, -1000}); rms != 1000 {
		t.Errorf("Expected RMS 1000, got %f", rms)
	}
}
