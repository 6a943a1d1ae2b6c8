// Package dsp has the small signal processing building blocks shared by the
// programs: oscillator waveforms, envelope shapes and tuning.
package dsp

import "math"

type Wave int

const (
	Sine Wave = iota
	Square
	Sawtooth
	Triangle
	NumWaves
)

// WaveNames are the labels of the waves, usable as enum choices.
var WaveNames = []string{"sine", "square", "sawtooth", "triangle"}

// At returns the value of the wave at phase, given in cycles. The result is
// in [-1, 1].
func (w Wave) At(phase float64) float64 {
	phase -= math.Floor(phase)
	switch w {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		// rises from 0 at phase 0 like the sine, wrapping at phase 0.5
		return 2*math.Mod(phase+0.5, 1) - 1
	case Triangle:
		switch {
		case phase < 0.25:
			return 4 * phase
		case phase < 0.75:
			return 2 - 4*phase
		default:
			return 4*phase - 4
		}
	}
	return math.Sin(2 * math.Pi * phase)
}

// Next cycles through the waves.
func (w Wave) Next() Wave { return (w + 1) % NumWaves }

func (w Wave) String() string {
	if w < 0 || w >= NumWaves {
		return "unknown"
	}
	return WaveNames[w]
}

// NoteFrequency returns the frequency in Hz of a (possibly fractional) MIDI
// note number, A4 = 69 = 440 Hz.
func NoteFrequency(note float64) float64 {
	return 440 * math.Exp2((note-69)/12)
}
