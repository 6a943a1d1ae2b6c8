package host

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/rsuite/rsuite"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio file format")
	ErrSampleRate        = errors.New("sample rate mismatch")
)

// Clip is audio decoded into memory, used as the input of an offline render.
type Clip struct {
	SampleRate int
	Channels   rsuite.AudioBuffer
}

// ReadClip decodes a .wav, .mp3 or .ogg file. The sample rate of the file must
// match sampleRate: there is no resampling.
func ReadClip(path string, sampleRate int) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open audio file: %w", err)
	}
	defer f.Close()
	var clip *Clip
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		clip, err = decodeWAV(f)
	case ".mp3":
		clip, err = decodeMP3(f)
	case ".ogg":
		clip, err = decodeOgg(f)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode %v: %w", path, err)
	}
	if clip.SampleRate != sampleRate {
		return nil, fmt.Errorf("%w: %v is %d Hz, the session runs at %d Hz", ErrSampleRate, path, clip.SampleRate, sampleRate)
	}
	return clip, nil
}

// Frames returns the length of the clip.
func (c *Clip) Frames() int { return c.Channels.Frames() }

// deinterleave splits interleaved samples into a planar buffer.
func deinterleave(samples []float32, channels int) rsuite.AudioBuffer {
	channels = max(channels, 1)
	ret := rsuite.MakeAudioBuffer(channels, len(samples)/channels)
	for i, v := range samples[:len(ret[0])*channels] {
		ret[i%channels][i/channels] = v
	}
	return ret
}

func decodeWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	return intClip(buf, int(d.BitDepth)), nil
}

func intClip(buf *audio.IntBuffer, bitDepth int) *Clip {
	scale := float32(math.Exp2(float64(bitDepth - 1)))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return &Clip{SampleRate: buf.Format.SampleRate, Channels: deinterleave(samples, buf.Format.NumChannels)}
}

func decodeMP3(r io.Reader) (*Clip, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}
	// go-mp3 always decodes to 16-bit little endian stereo
	samples := make([]float32, len(data)/2)
	for i := range samples {
		samples[i] = float32(int16(uint16(data[2*i])|uint16(data[2*i+1])<<8)) / 32768
	}
	return &Clip{SampleRate: d.SampleRate(), Channels: deinterleave(samples, 2)}, nil
}

func decodeOgg(r io.Reader) (*Clip, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Clip{SampleRate: format.SampleRate, Channels: deinterleave(samples, format.Channels)}, nil
}
