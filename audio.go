package rsuite

import "io"

type (
	// AudioBuffer is a planar buffer of audio: one slice per channel, all of
	// the same length.
	AudioBuffer [][]float32

	// RenderFunc renders one block of audio. in holds the captured input
	// channels (possibly none) and out the output channels to be filled. It
	// is called from the real-time thread of the audio server.
	RenderFunc func(in, out [][]float32)

	// AudioContext is an audio server connection that can drive a RenderFunc.
	AudioContext interface {
		Play(render RenderFunc) (io.Closer, error)
		Close() error
	}

	// AudioSink receives interleaved audio, e.g. a file being recorded.
	AudioSink interface {
		WriteAudio(buffer []float32) error
		Close() error
	}

	// SinkFactory opens a new AudioSink for the take'th recording of a
	// session.
	SinkFactory func(take int) (AudioSink, error)
)

// MakeAudioBuffer allocates a planar buffer of the given shape from one
// contiguous backing array.
func MakeAudioBuffer(channels, frames int) AudioBuffer {
	backing := make([]float32, channels*frames)
	ret := make(AudioBuffer, channels)
	for i := range ret {
		ret[i] = backing[i*frames : (i+1)*frames : (i+1)*frames]
	}
	return ret
}

// Frames returns the length of the channels of the buffer.
func (b AudioBuffer) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Slice returns a view of the first frames frames of every channel. dst is
// reused if it has enough capacity.
func (b AudioBuffer) Slice(dst AudioBuffer, frames int) AudioBuffer {
	dst = dst[:0]
	for _, c := range b {
		dst = append(dst, c[:frames])
	}
	return dst
}

// Clear zeroes all the channels of the buffer.
func (b AudioBuffer) Clear() {
	for _, c := range b {
		clear(c)
	}
}

// Interleave writes the channels of b into dst as interleaved frames. dst must
// have room for len(b)*frames samples.
func (b AudioBuffer) Interleave(dst []float32) {
	n := len(b)
	for c, ch := range b {
		for i, v := range ch {
			dst[i*n+c] = v
		}
	}
}
