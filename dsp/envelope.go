package dsp

import "math"

// Envelope is a linear attack-hold-release envelope measured in frames. A
// zero length fade is skipped entirely.
type Envelope struct {
	FadeIn, Hold, FadeOut int
}

// Length is the total number of frames during which the envelope is
// nonzero.
func (e Envelope) Length() int { return e.FadeIn + e.Hold + e.FadeOut }

// At returns the gain of the envelope t frames after it started; 0 outside
// [0, Length()).
func (e Envelope) At(t int) float64 {
	switch {
	case t < 0:
		return 0
	case t < e.FadeIn:
		return float64(t+1) / float64(e.FadeIn+1)
	case t < e.FadeIn+e.Hold:
		return 1
	case t < e.Length():
		return float64(e.Length()-t) / float64(e.FadeOut+1)
	}
	return 0
}

// ShapeExponent maps a 7-bit shape value onto the exponent applied to a
// linear fade: 64 is linear, smaller values bend the curve up (exponents 0.1
// to 1) and larger values bend it down (exponents up to 48.25).
func ShapeExponent(value float64) float64 {
	if value > 64 {
		return 1 + (value-64)*3/4
	}
	return 0.1 + value/64*0.9
}

// Shape applies a shape exponent to a linear fade level in [0, 1].
func Shape(level, exponent float64) float64 {
	if level <= 0 {
		return 0
	}
	if level >= 1 {
		return 1
	}
	return math.Pow(level, exponent)
}

// Decibel converts a gain in dB to an amplitude factor.
func Decibel(db float64) float64 { return math.Pow(10, db/20) }
