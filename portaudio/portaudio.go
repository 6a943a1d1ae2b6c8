// Package portaudio drives a render function from the default full duplex
// device of PortAudio, so that programs processing audio input (smooth,
// recorder) get captured audio.
package portaudio

import (
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rsuite/rsuite"
)

type (
	Context struct {
		sampleRate int
		blockSize  int
		inputs     int
		outputs    int
	}

	stream struct {
		s    *portaudio.Stream
		once sync.Once
	}
)

// NewContext initializes PortAudio. Close must be called to terminate it.
func NewContext(sampleRate, blockSize, inputs, outputs int) (*Context, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("cannot initialize portaudio: %w", err)
	}
	return &Context{sampleRate: sampleRate, blockSize: blockSize, inputs: inputs, outputs: outputs}, nil
}

// Play opens the default stream with non-interleaved buffers and starts
// calling render from the PortAudio callback.
func (c *Context) Play(render rsuite.RenderFunc) (io.Closer, error) {
	callback := func(in, out [][]float32) {
		for _, ch := range out {
			clear(ch)
		}
		render(in, out)
	}
	s, err := portaudio.OpenDefaultStream(c.inputs, c.outputs, float64(c.sampleRate), c.blockSize, callback)
	if err != nil {
		return nil, fmt.Errorf("cannot open portaudio stream: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("cannot start portaudio stream: %w", err)
	}
	return &stream{s: s}, nil
}

func (c *Context) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("cannot terminate portaudio: %w", err)
	}
	return nil
}

func (s *stream) Close() (err error) {
	s.once.Do(func() {
		if e := s.s.Stop(); e != nil {
			err = fmt.Errorf("cannot stop portaudio stream: %w", e)
		}
		if e := s.s.Close(); e != nil && err == nil {
			err = fmt.Errorf("cannot close portaudio stream: %w", e)
		}
	})
	return err
}
