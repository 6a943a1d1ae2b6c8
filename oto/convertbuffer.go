package oto

import (
	"encoding/binary"
	"math"
)

// floatsToBytes encodes the samples as 32-bit little-endian floats into dst,
// which must have room for 4*len(src) bytes. Non-finite samples are written
// as silence and the rest are clipped to [-1, 1].
func floatsToBytes(dst []byte, src []float32) {
	for i, v := range src {
		switch {
		case math.IsNaN(float64(v)) || math.IsInf(float64(v), 0):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		binary.LittleEndian.PutUint32(dst[i*bytesPerSample:], math.Float32bits(v))
	}
}
