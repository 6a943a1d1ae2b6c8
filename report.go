package rsuite

type (
	// Reporter receives faults from the real-time thread. Implementations must
	// not allocate, lock or block.
	Reporter interface {
		Report(frame int64, kind ErrorKind, severity Severity, msg string)
	}

	ErrorKind int
	Severity  int
)

const (
	ParameterOutOfRange ErrorKind = iota // values are clamped, so never reported
	MalformedMIDIEvent
	SwapConstructionFailed
	SinkUnavailable
	NumericFault // non-finite samples in the output
	Overflow     // a bounded buffer or queue was full
	UnitPanicked
	InputUnavailable // the unit needs an audio input the host does not provide
)

const (
	Info Severity = iota
	Warning
	Error
)

func (k ErrorKind) String() string {
	switch k {
	case ParameterOutOfRange:
		return "parameter out of range"
	case MalformedMIDIEvent:
		return "malformed MIDI event"
	case SwapConstructionFailed:
		return "swap construction failed"
	case SinkUnavailable:
		return "sink unavailable"
	case NumericFault:
		return "numeric fault"
	case Overflow:
		return "overflow"
	case UnitPanicked:
		return "unit panicked"
	case InputUnavailable:
		return "input unavailable"
	}
	return "unknown"
}

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}
