package session

import (
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rsuite/rsuite"
)

// MaxMessageLength is the number of bytes of message an ErrorRecord can hold;
// longer messages are truncated.
const MaxMessageLength = 120

// ControlFrame is the Frame of records that did not originate from the audio
// thread.
const ControlFrame = -1

type (
	// ErrorRecord is a fault reported by the audio thread (or by the control
	// thread on its behalf). It is a fixed-size value: building and pushing
	// one does not allocate.
	ErrorRecord struct {
		Time     time.Time
		Frame    int64
		Kind     rsuite.ErrorKind
		Severity rsuite.Severity
		msg      [MaxMessageLength]byte
		msgLen   uint8
	}

	// ErrorChannel is a bounded queue of ErrorRecords from the audio thread to
	// the control thread. Pushing never blocks: when the queue is full, the
	// oldest record is dropped to make room for the new one.
	ErrorChannel struct {
		records chan ErrorRecord
		dropped atomic.Uint64
	}
)

func NewErrorRecord(frame int64, kind rsuite.ErrorKind, severity rsuite.Severity, msg string) ErrorRecord {
	r := ErrorRecord{Time: time.Now(), Frame: frame, Kind: kind, Severity: severity}
	n := copy(r.msg[:], msg)
	for n < len(msg) && n > 0 && !utf8.RuneStart(msg[n]) {
		n-- // cut at a rune boundary
	}
	r.msgLen = uint8(n)
	return r
}

func (r *ErrorRecord) Message() string { return string(r.msg[:r.msgLen]) }

func (r ErrorRecord) String() string {
	if r.Frame == ControlFrame {
		return fmt.Sprintf("%s %s: %s", r.Severity, r.Kind, r.Message())
	}
	return fmt.Sprintf("%s %s @%d: %s", r.Severity, r.Kind, r.Frame, r.Message())
}

func NewErrorChannel(capacity int) *ErrorChannel {
	if capacity < 1 {
		capacity = 1
	}
	return &ErrorChannel{records: make(chan ErrorRecord, capacity)}
}

// Push enqueues the record, evicting the oldest records if necessary. It is
// safe to call from several goroutines and never blocks.
func (c *ErrorChannel) Push(r ErrorRecord) {
	for {
		select {
		case c.records <- r:
			return
		default:
		}
		select {
		case <-c.records:
			c.dropped.Add(1)
		default:
		}
	}
}

// Report implements rsuite.Reporter.
func (c *ErrorChannel) Report(frame int64, kind rsuite.ErrorKind, severity rsuite.Severity, msg string) {
	c.Push(NewErrorRecord(frame, kind, severity, msg))
}

// Drain appends all the currently queued records to dst, oldest first.
func (c *ErrorChannel) Drain(dst []ErrorRecord) []ErrorRecord {
	for {
		select {
		case r := <-c.records:
			dst = append(dst, r)
		default:
			return dst
		}
	}
}

// Records can be used to wait for records in a select.
func (c *ErrorChannel) Records() <-chan ErrorRecord { return c.records }

// Dropped returns the number of records evicted so far.
func (c *ErrorChannel) Dropped() uint64 { return c.dropped.Load() }

func (c *ErrorChannel) Cap() int { return cap(c.records) }
