package session

import (
	"sync/atomic"
	"time"

	"github.com/rsuite/rsuite"
)

type (
	// Broker connects the player (audio thread), the model (control thread)
	// and the level detector. Everything the player touches is non-blocking:
	// the control thread publishes program swaps and binding tables through
	// atomic pointers (the table lives in the slot of its unit) that the
	// player reads at the start of each block, and
	// the player talks back through buffered channels using TrySend, dropping
	// messages if a channel is full.
	//
	// For closing the detector goroutine, the broker has CloseDetector, which
	// has a capacity of 1 so a close request never blocks, and
	// FinishedDetector, which is closed once the detector has quit:
	//    select {
	//      case <-FinishedDetector:
	//      case <-time.After(3 * time.Second):
	//    }
	Broker struct {
		ToModel    chan MsgToModel
		ToDetector chan MsgToDetector

		CloseDetector    chan struct{}
		FinishedDetector chan struct{}

		Errors *ErrorChannel

		pending  atomic.Pointer[slot]
		learning atomic.Bool // next control change is sent to the model
		monitor  atomic.Bool // all events are sent to the model

		buffers chan *[]float32 // free detector buffers
	}

	// MsgToModel is a message from the player or the detector to the model.
	// Frequent messages carry their data inline so sending them does not
	// allocate.
	MsgToModel struct {
		Retired *slot // swapped out, to be closed by the control thread

		HasLearned bool
		Learned    rsuite.Control

		HasEvent bool
		Event    rsuite.MIDIEvent

		HasLevels bool
		Levels    Levels
	}

	// MsgToDetector carries a mono buffer to analyze, owned by the detector
	// until it is returned with PutAudioBuffer.
	MsgToDetector struct {
		Reset bool
		Data  *[]float32
	}
)

const (
	detectorBuffers = 16
	queueLength     = 1024
)

// NewBroker creates a broker for blocks of at most maxFrames frames and an
// error channel of the given capacity.
func NewBroker(maxFrames, errorCapacity int) *Broker {
	b := &Broker{
		ToModel:          make(chan MsgToModel, queueLength),
		ToDetector:       make(chan MsgToDetector, detectorBuffers),
		CloseDetector:    make(chan struct{}, 1),
		FinishedDetector: make(chan struct{}),
		Errors:           NewErrorChannel(errorCapacity),
		buffers:          make(chan *[]float32, detectorBuffers),
	}
	for range detectorBuffers {
		buf := make([]float32, 0, maxFrames)
		b.buffers <- &buf
	}
	return b
}

// GetAudioBuffer returns an empty buffer from the free list, or nil if all of
// them are in use. It never allocates.
func (b *Broker) GetAudioBuffer() *[]float32 {
	select {
	case buf := <-b.buffers:
		*buf = (*buf)[:0]
		return buf
	default:
		return nil
	}
}

// PutAudioBuffer returns a buffer to the free list.
func (b *Broker) PutAudioBuffer(buf *[]float32) {
	TrySend(b.buffers, buf)
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
