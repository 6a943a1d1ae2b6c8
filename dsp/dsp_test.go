package dsp_test

import (
	"math"
	"testing"

	"github.com/rsuite/rsuite/dsp"
)

func TestWaveRange(t *testing.T) {
	for w := dsp.Wave(0); w < dsp.NumWaves; w++ {
		for i := range 1000 {
			v := w.At(float64(i)/250 - 1)
			if v < -1 || v > 1 {
				t.Fatalf("%v at %v is %v, outside [-1, 1]", w, float64(i)/250-1, v)
			}
		}
	}
}

func TestWaveShapes(t *testing.T) {
	tests := []struct {
		wave  dsp.Wave
		phase float64
		want  float64
	}{
		{dsp.Sine, 0.25, 1},
		{dsp.Square, 0.1, 1},
		{dsp.Square, 0.6, -1},
		{dsp.Sawtooth, 0, 0},
		{dsp.Sawtooth, 0.25, 0.5},
		{dsp.Triangle, 0.25, 1},
		{dsp.Triangle, 0.75, -1},
		{dsp.Triangle, 1.5, 0},
	}
	for _, tt := range tests {
		if got := tt.wave.At(tt.phase); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%v.At(%v) = %v, want %v", tt.wave, tt.phase, got, tt.want)
		}
	}
	if dsp.Triangle.Next() != dsp.Sine {
		t.Error("waves do not cycle back to sine")
	}
}

func TestEnvelope(t *testing.T) {
	e := dsp.Envelope{FadeIn: 3, Hold: 2, FadeOut: 3}
	want := []float64{0.25, 0.5, 0.75, 1, 1, 0.75, 0.5, 0.25, 0}
	for i, w := range want {
		if got := e.At(i); math.Abs(got-w) > 1e-12 {
			t.Errorf("At(%d) = %v, want %v", i, got, w)
		}
	}
	flat := dsp.Envelope{Hold: 4410}
	if flat.At(0) != 1 || flat.At(4409) != 1 || flat.At(4410) != 0 {
		t.Error("envelope without fades is not a rectangle")
	}
}

func TestShapeExponent(t *testing.T) {
	if got := dsp.ShapeExponent(64); math.Abs(got-1) > 1e-12 {
		t.Errorf("ShapeExponent(64) = %v, want 1", got)
	}
	if got := dsp.ShapeExponent(0); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("ShapeExponent(0) = %v, want 0.1", got)
	}
	if got := dsp.ShapeExponent(127); got <= 1 {
		t.Errorf("ShapeExponent(127) = %v, want > 1", got)
	}
}

func TestNoteFrequency(t *testing.T) {
	if got := dsp.NoteFrequency(69); got != 440 {
		t.Errorf("A4 is %v Hz", got)
	}
	if got := dsp.NoteFrequency(81); math.Abs(got-880) > 1e-9 {
		t.Errorf("A5 is %v Hz", got)
	}
}
