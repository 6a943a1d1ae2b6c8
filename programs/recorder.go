package programs

import (
	"errors"
	"log/slog"
	"math/bits"
	"sync/atomic"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/session"
)

// ErrNoSink is returned when a recorder is started without anywhere to put
// the recordings.
var ErrNoSink = errors.New("no recording sink configured")

type (
	// recorder captures one input channel into takes. The real-time side only
	// copies samples into a single producer, single consumer ring; a drain
	// goroutine moves them from the ring into the sinks.
	recorder struct {
		params []rsuite.ParamSpec
		silent []float32

		ring    []float32
		mask    uint64
		written atomic.Uint64 // advanced by Process only
		read    atomic.Uint64 // advanced by the drain only
		failed  atomic.Bool

		takes chan takeEvent
		wake  chan struct{}
		quit  chan struct{}
		done  chan struct{}

		// real-time state
		recording bool
		reported  bool

		// drain state
		sinks  rsuite.SinkFactory
		sink   rsuite.AudioSink
		take   int
		logger *slog.Logger
	}

	// takeEvent starts or stops a take at a position of the sample stream.
	takeEvent struct {
		start bool
		pos   uint64
	}
)

const (
	recorderRecord = iota
	recorderChannel
)

var Recorder = rsuite.Program{
	Name:        "recorder",
	Description: "Records an input channel into a new take every time record is switched on",
	New:         newRecorder,
}

func newRecorder(cfg rsuite.UnitConfig) (rsuite.Unit, error) {
	size := uint64(1) << bits.Len64(uint64(max(2*cfg.SampleRate, 4096))-1)
	u := &recorder{
		params: []rsuite.ParamSpec{
			recorderRecord:  rsuite.BoolParam("record", false),
			recorderChannel: rsuite.IntParam("channel", 0, max(cfg.InputChannels-1, 0), 0, ""),
		},
		silent: make([]float32, cfg.MaxFrames),
		ring:   make([]float32, size),
		mask:   size - 1,
		takes:  make(chan takeEvent, 16),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		sinks:  cfg.Sinks,
		logger: cfg.Logger,
	}
	if u.sinks == nil {
		u.sinks = func(int) (rsuite.AudioSink, error) { return nil, ErrNoSink }
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	go u.drain()
	return u, nil
}

func (u *recorder) Parameters() []rsuite.ParamSpec { return u.params }

func (u *recorder) Process(b *rsuite.Block) {
	record := b.Params[recorderRecord] >= 0.5
	switch {
	case record && !u.recording:
		u.failed.Store(false)
		u.reported = false
		if !session.TrySend(u.takes, takeEvent{start: true, pos: u.written.Load()}) {
			b.Report(rsuite.SinkUnavailable, rsuite.Warning, "recorder busy, take not started")
			return
		}
		u.recording = true
	case !record && u.recording:
		if session.TrySend(u.takes, takeEvent{pos: u.written.Load()}) {
			u.recording = false
			session.TrySend(u.wake, struct{}{})
		}
		return
	case !u.recording:
		return
	}
	if u.failed.Load() {
		if !u.reported {
			b.Report(rsuite.SinkUnavailable, rsuite.Error, "recording sink unavailable, recording paused")
			u.reported = true
		}
		return
	}
	in := b.Input(int(b.Params[recorderChannel]))
	if in == nil {
		in = u.silent
	}
	if n := u.push(in[:b.Frames]); n < b.Frames {
		b.Report(rsuite.SinkUnavailable, rsuite.Warning, "recording buffer overrun, samples dropped")
	}
	session.TrySend(u.wake, struct{}{})
}

// push copies as many samples as fit into the ring and returns their number.
func (u *recorder) push(samples []float32) int {
	w := u.written.Load()
	free := uint64(len(u.ring)) - (w - u.read.Load())
	n := min(uint64(len(samples)), free)
	for i := range n {
		u.ring[(w+i)&u.mask] = samples[i]
	}
	u.written.Store(w + n)
	return int(n)
}

// Close stops the drain goroutine, flushing the ring into the current take.
func (u *recorder) Close() error {
	close(u.quit)
	<-u.done
	return u.closeSink()
}

func (u *recorder) drain() {
	defer close(u.done)
	for {
		select {
		case <-u.quit:
			u.flush()
			return
		case <-u.wake:
			u.flush()
		}
	}
}

// flush writes everything published so far, applying the take events at their
// positions in the stream.
func (u *recorder) flush() {
	end := u.written.Load()
	for {
		select {
		case e := <-u.takes:
			u.copyUntil(e.pos)
			if e.start {
				u.startTake()
			} else if err := u.closeSink(); err != nil {
				u.logger.Error("could not finish take", "take", u.take, "error", err)
			} else {
				u.logger.Info("take recorded", "take", u.take)
			}
		default:
			u.copyUntil(end)
			return
		}
	}
}

func (u *recorder) copyUntil(pos uint64) {
	r := u.read.Load()
	for r < pos {
		// the part of the ring up to pos or up to its end, whichever is first
		i := r & u.mask
		n := min(pos-r, uint64(len(u.ring))-i)
		if u.sink != nil {
			if err := u.sink.WriteAudio(u.ring[i : i+n]); err != nil {
				u.logger.Error("recording failed", "take", u.take, "error", err)
				u.failed.Store(true)
				u.closeSink()
			}
		}
		r += n
		u.read.Store(r)
	}
}

func (u *recorder) startTake() {
	if err := u.closeSink(); err != nil {
		u.logger.Error("could not finish take", "take", u.take, "error", err)
	}
	u.take++
	sink, err := u.sinks(u.take)
	if err != nil {
		u.logger.Error("could not start take", "take", u.take, "error", err)
		u.failed.Store(true)
		return
	}
	u.sink = sink
	u.logger.Info("take started", "take", u.take)
}

func (u *recorder) closeSink() error {
	if u.sink == nil {
		return nil
	}
	err := u.sink.Close()
	u.sink = nil
	return err
}
