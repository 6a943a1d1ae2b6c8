// Package host connects a session to the outside world: it turns the
// callbacks of an audio server into blocks for the player, feeds them with
// MIDI and passes the MIDI the units emit on to an output device. It can also
// render a session offline from files.
package host

import (
	"log/slog"
	"sync"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/session"
)

type (
	// Processor renders one block; session.Player is the Processor of a
	// session.
	Processor interface {
		Process(b *rsuite.Block)
	}

	// MIDISource supplies the incoming MIDI of each block. ReadEvents is
	// called from the audio thread: it appends the events of the next frames
	// frames to dst without growing it and must not block.
	MIDISource interface {
		ReadEvents(dst []rsuite.MIDIEvent, frames int) []rsuite.MIDIEvent
	}

	// MIDISink receives the outgoing MIDI of the units. It is called from a
	// goroutine of the driver, never from the audio thread.
	MIDISink interface {
		Send(e rsuite.MIDIEvent) error
	}

	DriverConfig struct {
		SampleRate int
		MaxFrames  int // longer callbacks are split into several blocks
		MaxEvents  int // incoming events per block; the rest are dropped
		Source     MIDISource
		Sink       MIDISink
		Logger     *slog.Logger
	}

	// Driver adapts a Processor into an rsuite.RenderFunc. All the memory a
	// block needs is allocated up front.
	Driver struct {
		proc       Processor
		source     MIDISource
		sampleRate int
		maxFrames  int

		block   rsuite.Block
		events  []rsuite.MIDIEvent
		midiOut *rsuite.MIDIBuffer
		inView  [][]float32
		outView [][]float32
		frame   int64

		forward chan rsuite.MIDIEvent
		done    chan struct{}
		closed  sync.Once
	}
)

const (
	defaultMaxEvents = 256
	defaultMaxFrames = 512
	forwardQueue     = 1024
)

func NewDriver(proc Processor, cfg DriverConfig) *Driver {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = defaultMaxFrames
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Driver{
		proc:       proc,
		source:     cfg.Source,
		sampleRate: cfg.SampleRate,
		maxFrames:  cfg.MaxFrames,
		events:     make([]rsuite.MIDIEvent, 0, cfg.MaxEvents),
		midiOut:    rsuite.NewMIDIBuffer(cfg.MaxEvents),
		inView:     make([][]float32, 0, 64),
		outView:    make([][]float32, 0, 64),
		done:       make(chan struct{}),
	}
	if cfg.Sink == nil {
		close(d.done)
		return d
	}
	d.forward = make(chan rsuite.MIDIEvent, forwardQueue)
	go func() {
		defer close(d.done)
		for e := range d.forward {
			if err := cfg.Sink.Send(e); err != nil {
				cfg.Logger.Warn("could not send MIDI", "event", e.String(), "error", err)
			}
		}
	}()
	return d
}

// Render is an rsuite.RenderFunc. The out buffers decide the length of the
// callback; in may have fewer frames, missing input is silence.
func (d *Driver) Render(in, out [][]float32) {
	frames := 0
	if len(out) > 0 {
		frames = len(out[0])
	} else if len(in) > 0 {
		frames = len(in[0])
	}
	for offset := 0; offset < frames; {
		n := min(frames-offset, d.maxFrames)
		d.inView = d.inView[:0]
		for _, c := range in {
			if len(c) < offset+n {
				break
			}
			d.inView = append(d.inView, c[offset:offset+n])
		}
		d.outView = d.outView[:0]
		for _, c := range out {
			d.outView = append(d.outView, c[offset:offset+n])
		}
		d.renderBlock(n)
		offset += n
	}
}

func (d *Driver) renderBlock(frames int) {
	events := d.events[:0]
	if d.source != nil {
		events = d.source.ReadEvents(events, frames)
	}
	d.block = rsuite.Block{
		Frames:     frames,
		SampleRate: d.sampleRate,
		Frame:      d.frame,
		In:         d.inView,
		Out:        d.outView,
		Events:     events,
		MIDIOut:    d.midiOut,
		Params:     d.block.Params,
	}
	d.midiOut.Reset()
	d.proc.Process(&d.block)
	if d.forward != nil {
		for _, e := range d.midiOut.Events() {
			e.Frame = 0
			session.TrySend(d.forward, e)
		}
	}
	d.frame += int64(frames)
}

// Frame returns the sample clock: the number of frames rendered so far.
func (d *Driver) Frame() int64 { return d.frame }

// Close stops forwarding MIDI. The driver must no longer be rendering.
func (d *Driver) Close() {
	d.closed.Do(func() {
		if d.forward != nil {
			close(d.forward)
		}
	})
	<-d.done
}
