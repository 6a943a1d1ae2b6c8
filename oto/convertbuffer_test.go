package oto

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestFloatsToBytes(t *testing.T) {
	src := []float32{0.5, -2, 3, float32(math.NaN()), float32(math.Inf(-1))}
	want := []float32{0.5, -1, 1, 0, 0}
	dst := make([]byte, len(src)*bytesPerSample)
	floatsToBytes(dst, src)
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(dst[i*bytesPerSample:]))
		if got != w {
			t.Errorf("sample %d = %v, want %v", i, got, w)
		}
	}
}

func TestStreamRendersWholeFrames(t *testing.T) {
	calls := 0
	s := &stream{
		render: func(in, out [][]float32) {
			calls++
			for c := range out {
				for i := range out[c] {
					out[c][i] = float32(c + 1) / 4
				}
			}
		},
	}
	s.out = make([][]float32, 2)
	for c := range s.out {
		s.out[c] = make([]float32, 8)
	}
	s.floats = make([]float32, 16)
	p := make([]byte, 10*2*bytesPerSample+3)
	n, err := s.Read(p)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8*2*bytesPerSample || calls != 1 {
		t.Fatalf("read %d bytes in %d calls, want one block of 8 frames", n, calls)
	}
	for i := range 16 {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*bytesPerSample:]))
		if want := float32(i%2+1) / 4; got != want {
			t.Fatalf("sample %d = %v, want %v", i, got, want)
		}
	}
}
