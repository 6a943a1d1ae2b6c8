package session

import (
	"math"
	"sync/atomic"

	"github.com/rsuite/rsuite"
)

type (
	// Player runs the active unit on the audio thread. It is driven by a host
	// driver calling Process once per block, and is controlled by the Model
	// only through the Broker. Process never allocates, locks or blocks.
	Player struct {
		broker   *Broker
		active   *slot
		retired  [maxRetired]*slot // swapped out, waiting to be handed back
		nretire  int
		deferred bool // a swap is waiting for room in retired
	}

	// slot is a fully constructed unit together with its parameter values,
	// ready to be activated at the start of a block. After it has been
	// published, it is only touched by the audio thread until it is retired.
	slot struct {
		id      uint64
		program string
		unit    rsuite.Unit
		params  *ParamSet
		table   atomic.Pointer[BindingTable] // replaced by the model on every rebind
		values  []float64                    // scratch for parameter snapshots
		failed  bool                         // the unit panicked and is muted
	}
)

const maxRetired = 8

// Process renders one block: it activates a pending program swap, validates
// and sorts the MIDI events, applies bound control changes to the
// parameters, runs the unit and sanitizes its output. The mono output of the
// unit is copied to all the output channels.
func (p *Player) Process(b *rsuite.Block) {
	b.Reporter = p.broker.Errors
	if b.MIDIOut != nil {
		b.MIDIOut.Reset()
	}
	p.flushRetired()
	p.activatePending(b)
	p.flushRetired()
	p.processEvents(b)
	for _, c := range b.Out {
		clear(c[:b.Frames])
	}
	if p.active == nil || p.active.failed {
		b.Params = nil
		p.sendToDetector(b)
		return
	}
	b.Params = p.active.params.Snapshot(p.active.values)
	p.runUnit(b)
	p.sanitize(b)
	p.sendToDetector(b)
}

func (p *Player) processEvents(b *rsuite.Block) {
	n := 0
	for _, e := range b.Events {
		if !e.Valid(b.Frames) {
			b.Report(rsuite.MalformedMIDIEvent, rsuite.Warning, "malformed MIDI event dropped")
			continue
		}
		b.Events[n] = e
		n++
	}
	b.Events = b.Events[:n]
	rsuite.SortEvents(b.Events)
	var table *BindingTable
	if p.active != nil {
		table = p.active.table.Load()
	}
	monitor := p.broker.monitor.Load()
	for _, e := range b.Events {
		if monitor {
			TrySend(p.broker.ToModel, MsgToModel{HasEvent: true, Event: e})
		}
		if e.Kind() != rsuite.ControlChangeEvent {
			continue
		}
		c := rsuite.Control{Channel: e.Channel(), Controller: e.Key()}
		if p.broker.learning.CompareAndSwap(true, false) {
			TrySend(p.broker.ToModel, MsgToModel{HasLearned: true, Learned: c})
		}
		if id, ok := table.Lookup(c); ok && p.active.params.Valid(id) {
			p.active.params.SetFromController(id, e.Value())
		}
	}
}

func (p *Player) runUnit(b *rsuite.Block) {
	defer func() {
		if r := recover(); r != nil {
			p.active.failed = true
			for _, c := range b.Out {
				clear(c[:b.Frames])
			}
			b.Report(rsuite.UnitPanicked, rsuite.Error, "unit panicked and was muted")
		}
	}()
	p.active.unit.Process(b)
}

// sanitize replaces non-finite samples with silence and fans the first
// output channel out to the rest.
func (p *Player) sanitize(b *rsuite.Block) {
	if len(b.Out) == 0 {
		return
	}
	out := b.Out[0][:b.Frames]
	faulty := false
	for i, v := range out {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			out[i] = 0
			faulty = true
		}
	}
	if faulty {
		b.Report(rsuite.NumericFault, rsuite.Warning, "non-finite output replaced with silence")
	}
	for _, c := range b.Out[1:] {
		copy(c[:b.Frames], out)
	}
}

func (p *Player) sendToDetector(b *rsuite.Block) {
	if len(b.Out) == 0 {
		return
	}
	buf := p.broker.GetAudioBuffer()
	if buf == nil {
		return
	}
	out := b.Out[0][:b.Frames]
	if cap(*buf) < len(out) {
		p.broker.PutAudioBuffer(buf)
		return
	}
	*buf = append(*buf, out...)
	if !TrySend(p.broker.ToDetector, MsgToDetector{Data: buf}) {
		p.broker.PutAudioBuffer(buf)
	}
}

// activatePending swaps in the pending slot. The swap waits while the retired
// queue is full, so a swapped out unit is always handed back to be closed.
func (p *Player) activatePending(b *rsuite.Block) {
	if p.broker.pending.Load() == nil {
		return
	}
	if p.active != nil && p.nretire == len(p.retired) {
		if !p.deferred {
			p.deferred = true
			b.Report(rsuite.Overflow, rsuite.Warning, "program swap deferred until retired units are handed back")
		}
		return
	}
	p.deferred = false
	if s := p.broker.pending.Swap(nil); s != nil {
		if p.active != nil {
			p.retired[p.nretire] = p.active
			p.nretire++
		}
		p.active = s
	}
}

func (p *Player) flushRetired() {
	for p.nretire > 0 {
		if !TrySend(p.broker.ToModel, MsgToModel{Retired: p.retired[p.nretire-1]}) {
			return
		}
		p.nretire--
		p.retired[p.nretire] = nil
	}
}
