package rsuite

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSink is an AudioSink encoding 16-bit PCM wave data.
type WAVSink struct {
	w       io.WriteSeeker
	closer  io.Closer
	encoder *wav.Encoder
	buf     audio.IntBuffer
}

// NewWAVSink starts a 16-bit PCM wave stream into w. If w is also an
// io.Closer, it is closed when the sink is closed.
func NewWAVSink(w io.WriteSeeker, sampleRate, channels int) *WAVSink {
	s := &WAVSink{
		w:       w,
		encoder: wav.NewEncoder(w, sampleRate, 16, channels, 1), // 1 = PCM
		buf: audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateWAV creates (truncating) the file at path and returns a WAVSink writing
// into it. The parent directories are created if needed.
func CreateWAV(path string, sampleRate, channels int) (*WAVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("could not create directory %v: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create wav file: %w", err)
	}
	return NewWAVSink(f, sampleRate, channels), nil
}

// WAVTakes returns a SinkFactory that writes every take into its own file
// dir/prefix-<timestamp>-<take>.wav.
func WAVTakes(dir, prefix string, sampleRate, channels int) SinkFactory {
	return func(take int) (AudioSink, error) {
		name := fmt.Sprintf("%s-%s-%03d.wav", prefix, time.Now().Format("20060102-150405"), take)
		return CreateWAV(filepath.Join(dir, name), sampleRate, channels)
	}
}

// WriteAudio converts the interleaved float samples to 16-bit integers and
// encodes them.
func (s *WAVSink) WriteAudio(buffer []float32) error {
	if cap(s.buf.Data) < len(buffer) {
		s.buf.Data = make([]int, len(buffer))
	}
	s.buf.Data = s.buf.Data[:len(buffer)]
	for i, v := range buffer {
		s.buf.Data[i] = clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16)
	}
	if err := s.encoder.Write(&s.buf); err != nil {
		return fmt.Errorf("could not encode wav data: %w", err)
	}
	return nil
}

// Close finalizes the wave header and closes the underlying writer.
func (s *WAVSink) Close() error {
	if err := s.encoder.Close(); err != nil {
		if s.closer != nil {
			s.closer.Close()
		}
		return fmt.Errorf("could not finalize wav file: %w", err)
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			return fmt.Errorf("could not close wav file: %w", err)
		}
	}
	return nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
