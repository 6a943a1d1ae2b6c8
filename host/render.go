package host

import (
	"context"
	"fmt"

	"github.com/rsuite/rsuite"
)

// RenderConfig describes an offline render.
type RenderConfig struct {
	SampleRate int
	BlockSize  int
	Channels   int // output channels

	Input  *Clip // optional audio input
	Events []ScheduledEvent

	// Frames is the length of the render. If zero, the render lasts until
	// the input and the events have been played, plus Tail frames.
	Frames int64
	Tail   int64
}

// Render runs proc faster than real time, writing the interleaved output to
// sink. It returns the number of frames rendered.
func Render(ctx context.Context, proc Processor, cfg RenderConfig, sink rsuite.AudioSink) (int64, error) {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaultMaxFrames
	}
	schedule := NewSchedule(cfg.Events)
	total := cfg.Frames
	if total <= 0 {
		total = schedule.End()
		if cfg.Input != nil {
			total = max(total, int64(cfg.Input.Frames()))
		}
		total += cfg.Tail
	}
	d := NewDriver(proc, DriverConfig{SampleRate: cfg.SampleRate, MaxFrames: cfg.BlockSize, Source: schedule})
	defer d.Close()
	out := rsuite.MakeAudioBuffer(cfg.Channels, cfg.BlockSize)
	var in rsuite.AudioBuffer
	if cfg.Input != nil {
		in = rsuite.MakeAudioBuffer(len(cfg.Input.Channels), cfg.BlockSize)
	}
	interleaved := make([]float32, cfg.Channels*cfg.BlockSize)
	var inView, outView rsuite.AudioBuffer
	for d.Frame() < total {
		if err := ctx.Err(); err != nil {
			return d.Frame(), err
		}
		pos := d.Frame()
		n := int(min(int64(cfg.BlockSize), total-pos))
		inView = in.Slice(inView, n)
		for c, ch := range inView {
			src := cfg.Input.Channels[c]
			copied := 0
			if pos < int64(len(src)) {
				copied = copy(ch, src[pos:])
			}
			clear(ch[copied:])
		}
		outView = out.Slice(outView, n)
		d.Render(inView, outView)
		outView.Interleave(interleaved)
		if err := sink.WriteAudio(interleaved[:n*cfg.Channels]); err != nil {
			return d.Frame(), fmt.Errorf("could not write rendered audio: %w", err)
		}
	}
	return d.Frame(), nil
}
