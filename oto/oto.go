// Package oto drives a render function from the default audio output of the
// system using oto. There is no audio input.
package oto

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rsuite/rsuite"
)

type (
	Context struct {
		ctx        *oto.Context
		channels   int
		blockSize  int
		sampleRate int
	}

	// stream pulls audio from a render function whenever oto asks for more
	// bytes.
	stream struct {
		render rsuite.RenderFunc
		out    rsuite.AudioBuffer
		view   rsuite.AudioBuffer
		floats []float32
	}

	output struct {
		player *oto.Player
	}
)

const bytesPerSample = 4

// NewContext opens the audio output. oto allows only one context per
// process.
func NewContext(sampleRate, channels, blockSize int) (*Context, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(blockSize) * time.Second / time.Duration(sampleRate),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, channels: channels, blockSize: blockSize, sampleRate: sampleRate}, nil
}

// Play starts calling render from the audio thread of oto. The returned
// closer stops the playback.
func (c *Context) Play(render rsuite.RenderFunc) (io.Closer, error) {
	s := &stream{
		render: render,
		out:    rsuite.MakeAudioBuffer(c.channels, c.blockSize),
		floats: make([]float32, c.channels*c.blockSize),
	}
	p := c.ctx.NewPlayer(s)
	p.Play()
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("cannot start oto player: %w", err)
	}
	return &output{player: p}, nil
}

// Close suspends the output; an oto context cannot be released.
func (c *Context) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (s *stream) Read(p []byte) (int, error) {
	channels := len(s.out)
	frames := min(len(p)/(bytesPerSample*channels), s.out.Frames())
	if frames == 0 {
		return 0, nil
	}
	s.out.Clear()
	s.view = s.out.Slice(s.view, frames)
	s.render(nil, s.view)
	s.view.Interleave(s.floats)
	n := frames * channels
	floatsToBytes(p, s.floats[:n])
	return n * bytesPerSample, nil
}

func (o *output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
