package rsuite

import "log/slog"

type (
	// Unit is one running instance of a program: a synth, an effect or a MIDI
	// utility. Process is called from the real-time thread, so it must run in
	// bounded time, must not allocate, lock or block, and must not panic. A
	// unit never fails: it reports faults with Block.Report and degrades
	// gracefully (outputs silence, drops an event etc.).
	//
	// A unit that holds resources can also implement io.Closer; Close is
	// called from the control thread once the unit has been swapped out.
	Unit interface {
		// Parameters returns the fixed list of parameters of the unit. It is
		// called once, before the unit is activated.
		Parameters() []ParamSpec
		Process(b *Block)
	}

	// Program describes a kind of Unit that can be instantiated by name.
	Program struct {
		Name        string
		Description string
		New         func(cfg UnitConfig) (Unit, error)
	}

	// UnitConfig is everything a program needs to know about the host when
	// constructing a unit. Constructors run on the control thread, so they can
	// allocate all the memory the unit is ever going to need.
	UnitConfig struct {
		SampleRate     int
		MaxFrames      int // upper bound of Block.Frames
		InputChannels  int
		OutputChannels int
		Sinks          SinkFactory // where recordings go; nil disables them
		Logger         *slog.Logger
	}

	// Block is the unit of work of the real-time thread. All the slices are
	// owned by the host and are only valid during the Process call.
	Block struct {
		Frames     int
		SampleRate int
		Frame      int64 // sample clock at the start of the block

		In  [][]float32 // captured input, may have no channels
		Out [][]float32 // zeroed before Process

		// Events are the incoming MIDI events of the block, validated and
		// sorted by Frame. Units may rewrite them in place.
		Events  []MIDIEvent
		MIDIOut *MIDIBuffer

		// Params holds the current value of every parameter, indexed like
		// Unit.Parameters.
		Params []float64

		Reporter Reporter
	}
)

// Report forwards a fault to the error channel of the session. msg should be
// a constant string: formatting one would allocate on the real-time thread.
func (b *Block) Report(kind ErrorKind, severity Severity, msg string) {
	if b.Reporter != nil {
		b.Reporter.Report(b.Frame, kind, severity, msg)
	}
}

// Forward appends e to the outgoing MIDI of the block, reporting an overflow
// if there is no room.
func (b *Block) Forward(e MIDIEvent) bool {
	if b.MIDIOut == nil {
		return false
	}
	if !b.MIDIOut.Append(e) {
		b.Report(Overflow, Warning, "outgoing MIDI buffer full, event dropped")
		return false
	}
	return true
}

// Param returns the current value of the i'th parameter.
func (b *Block) Param(i int) float64 { return b.Params[i] }

// Input returns the i'th input channel, or nil if there is no such channel.
func (b *Block) Input(i int) []float32 {
	if i < 0 || i >= len(b.In) {
		return nil
	}
	return b.In[i]
}

// Output returns the first output channel; units are mono and the host copies
// it to the remaining channels.
func (b *Block) Output() []float32 {
	if len(b.Out) == 0 {
		return nil
	}
	return b.Out[0]
}
