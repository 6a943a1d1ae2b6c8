// Package gomidi is a MIDI context on top of gomidi and its rtmidi driver.
// Incoming messages are timestamped by the driver and placed at the right
// frame of the block being rendered.
package gomidi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rsuite/rsuite"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type (
	RTMIDIContext struct {
		driver     *rtmididrv.Driver
		sampleRate int

		mu        sync.Mutex
		in        drivers.In
		stop      func()
		out       drivers.Out
		outBuffer []byte

		events chan timestampedMsg

		// audio thread state
		pending       []timestampedMsg
		startFrame    int
		startFrameSet bool
	}

	timestampedMsg struct {
		frame int
		data  [3]byte
		size  uint8
	}
)

const (
	queueLength = 1024
	maxPending  = 1024
)

var ErrNoDevice = errors.New("no such MIDI device")

// NewContext opens the rtmidi driver. If that fails, the context has no
// devices but is otherwise usable.
func NewContext(sampleRate int) *RTMIDIContext {
	c := &RTMIDIContext{
		sampleRate: sampleRate,
		events:     make(chan timestampedMsg, queueLength),
		pending:    make([]timestampedMsg, 0, maxPending),
	}
	c.driver, _ = rtmididrv.New()
	return c
}

func (c *RTMIDIContext) Inputs() []string {
	if c.driver == nil {
		return nil
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return nil
	}
	ret := make([]string, len(ins))
	for i, in := range ins {
		ret[i] = in.String()
	}
	return ret
}

func (c *RTMIDIContext) Outputs() []string {
	if c.driver == nil {
		return nil
	}
	outs, err := c.driver.Outs()
	if err != nil {
		return nil
	}
	ret := make([]string, len(outs))
	for i, out := range outs {
		ret[i] = out.String()
	}
	return ret
}

// OpenInput opens the first input device whose name starts with prefix,
// closing the currently open input.
func (c *RTMIDIContext) OpenInput(prefix string) error {
	if c.driver == nil {
		return errors.New("no MIDI driver available")
	}
	ins, err := c.driver.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs failed: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closeInput()
		if err := in.Open(); err != nil {
			return fmt.Errorf("opening MIDI input failed: %w", err)
		}
		stop, err := midi.ListenTo(in, c.handleMessage)
		if err != nil {
			in.Close()
			return fmt.Errorf("listening to MIDI input failed: %w", err)
		}
		c.in, c.stop = in, stop
		return nil
	}
	return fmt.Errorf("%w: input %q", ErrNoDevice, prefix)
}

func (c *RTMIDIContext) OpenOutput(prefix string) error {
	if c.driver == nil {
		return errors.New("no MIDI driver available")
	}
	outs, err := c.driver.Outs()
	if err != nil {
		return fmt.Errorf("listing MIDI outputs failed: %w", err)
	}
	for _, out := range outs {
		if !strings.HasPrefix(out.String(), prefix) {
			continue
		}
		if err := out.Open(); err != nil {
			return fmt.Errorf("opening MIDI output failed: %w", err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.out != nil {
			c.out.Close()
		}
		c.out = out
		return nil
	}
	return fmt.Errorf("%w: output %q", ErrNoDevice, prefix)
}

// Send writes an event to the open output. Without an open output the event
// is discarded.
func (c *RTMIDIContext) Send(e rsuite.MIDIEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out == nil {
		return nil
	}
	c.outBuffer = append(c.outBuffer[:0], e.Data[:e.Size]...)
	if err := c.out.Send(c.outBuffer); err != nil {
		return fmt.Errorf("sending MIDI failed: %w", err)
	}
	return nil
}

func (c *RTMIDIContext) handleMessage(msg midi.Message, timestampms int32) {
	if len(msg) == 0 || len(msg) > 3 {
		return // sysex does not fit in an event
	}
	m := timestampedMsg{frame: int(int64(timestampms) * int64(c.sampleRate) / 1000), size: uint8(len(msg))}
	copy(m.data[:], msg)
	select {
	case c.events <- m: // if the channel is full, just drop the message
	default:
	}
}

// ReadEvents places the received messages into the next block. The clock of
// the driver and the sample clock drift apart, so the start frame is nudged
// towards the timestamps of the events as they are consumed.
func (c *RTMIDIContext) ReadEvents(dst []rsuite.MIDIEvent, frames int) []rsuite.MIDIEvent {
F:
	for len(c.pending) < cap(c.pending) {
		select {
		case m := <-c.events:
			c.pending = append(c.pending, m)
			if !c.startFrameSet {
				c.startFrame = m.frame
				c.startFrameSet = true
			}
		default:
			break F
		}
	}
	late := 0
	n := 0
	for _, m := range c.pending {
		f := m.frame - c.startFrame
		if f >= frames {
			// early; keep it for a later block
			c.pending[n] = m
			n++
			continue
		}
		if f < 0 {
			late = min(late, f)
			f = 0
		}
		if len(dst) < cap(dst) {
			dst = append(dst, rsuite.MIDIEvent{Frame: f, Data: m.data, Size: m.size})
		}
	}
	c.pending = c.pending[:n]
	// late is never positive: consuming an event too late means our clock is
	// ahead of the driver
	c.startFrame += frames + late/5
	if n > 0 {
		if ahead := c.pending[0].frame - c.startFrame - frames; ahead > 0 {
			c.startFrame += ahead / 5
		}
	}
	return dst
}

func (c *RTMIDIContext) closeInput() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	if c.in != nil && c.in.IsOpen() {
		c.in.Close()
	}
	c.in = nil
}

func (c *RTMIDIContext) Close() {
	if c.driver == nil {
		return
	}
	c.mu.Lock()
	c.closeInput()
	if c.out != nil {
		c.out.Close()
		c.out = nil
	}
	c.mu.Unlock()
	c.driver.Close()
}
