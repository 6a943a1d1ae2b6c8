package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rsuite/rsuite"
)

type (
	// Model is the control side of a session. It constructs units, edits and
	// binds parameters and swaps programs. All its methods are safe to call
	// from several goroutines, but none of them may be called from the audio
	// thread.
	Model struct {
		mu       sync.Mutex
		broker   *Broker
		player   *Player
		catalog  Catalog
		cfg      Config
		logger   *slog.Logger
		nextID   uint64
		current  *slot // latest published slot: active or pending
		bindings Bindings
		learning int // parameter waiting for MIDI learn, -1 if none
		levels   Levels
		history  []ErrorRecord
		events   []rsuite.MIDIEvent
	}

	// Catalog lists the programs that can be instantiated by name.
	Catalog interface {
		Lookup(name string) (rsuite.Program, bool)
		Programs() []rsuite.Program
	}

	Config struct {
		Unit          rsuite.UnitConfig
		ErrorCapacity int
		// Presets are the initial parameter values and bindings of programs,
		// keyed by program name.
		Presets map[string]Preset
	}

	// Preset is the initial state of a freshly constructed unit. Parameters
	// are referred to by name.
	Preset struct {
		Params   map[string]float64        `yaml:"params,omitempty"`
		Bindings map[string]rsuite.Control `yaml:"bindings,omitempty"`
	}

	// ParamInfo is the state of one parameter as seen by a control surface.
	ParamInfo struct {
		ID      int
		Spec    rsuite.ParamSpec
		Value   float64
		Binding rsuite.Binding
	}
)

const maxHistory = 256

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrUnknownProgram   = errors.New("unknown program")
	ErrInvalidControl   = errors.New("invalid MIDI control")
	ErrNoProgram        = errors.New("no program loaded")
)

// NewModelPlayer creates the two halves of a session connected by a new
// broker, and starts the level detector goroutine.
func NewModelPlayer(catalog Catalog, cfg Config) (*Model, *Player) {
	if cfg.ErrorCapacity <= 0 {
		cfg.ErrorCapacity = 64
	}
	logger := cfg.Unit.Logger
	if logger == nil {
		logger = slog.Default()
	}
	broker := NewBroker(cfg.Unit.MaxFrames, cfg.ErrorCapacity)
	m := &Model{
		broker:   broker,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
		learning: -1,
	}
	m.player = &Player{broker: broker}
	go NewDetector(broker, cfg.Unit.SampleRate).Run()
	return m, m.player
}

func (m *Model) Broker() *Broker { return m.broker }

func (m *Model) Programs() []rsuite.Program { return m.catalog.Programs() }

// Program returns the name of the current program, i.e. the last one
// successfully requested.
func (m *Model) Program() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.program
}

// SwitchProgram constructs a new unit of the named program and hands it to
// the player, which activates it at the start of its next block. A swap that
// has not been activated yet is superseded. If the construction fails, the
// current unit keeps running, the failure is reported to the error channel
// and returned.
func (m *Model) SwitchProgram(name string) error {
	prog, ok := m.catalog.Lookup(name)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownProgram, name)
		m.report(rsuite.SwapConstructionFailed, rsuite.Error, err.Error())
		return err
	}
	unit, err := construct(prog, m.cfg.Unit)
	if err != nil {
		err = fmt.Errorf("could not construct %s: %w", prog.Name, err)
		m.report(rsuite.SwapConstructionFailed, rsuite.Error, err.Error())
		return err
	}
	params := NewParamSet(unit.Parameters())
	var bindings Bindings
	m.mu.Lock()
	preset, ok := m.cfg.Presets[prog.Name]
	m.mu.Unlock()
	if ok {
		m.applyPreset(prog.Name, preset, params, &bindings)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := &slot{
		id:      m.nextID,
		program: prog.Name,
		unit:    unit,
		params:  params,
		values:  make([]float64, params.Len()),
	}
	s.table.Store(bindings.Table(s.id))
	m.current = s
	m.bindings = bindings
	m.learning = -1
	m.broker.learning.Store(false)
	if old := m.broker.pending.Swap(s); old != nil {
		m.closeSlot(old)
	}
	m.logger.Info("program requested", "program", prog.Name, "parameters", params.Len())
	return nil
}

func construct(prog rsuite.Program, cfg rsuite.UnitConfig) (unit rsuite.Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panicked: %v", r)
		}
	}()
	if prog.New == nil {
		return nil, errors.New("program has no constructor")
	}
	unit, err = prog.New(cfg)
	if err == nil && unit == nil {
		err = errors.New("constructor returned no unit")
	}
	return unit, err
}

func (m *Model) applyPreset(program string, preset Preset, params *ParamSet, bindings *Bindings) {
	for name, v := range preset.Params {
		id, ok := params.Index(name)
		if !ok {
			m.logger.Warn("preset refers to unknown parameter", "program", program, "parameter", name)
			continue
		}
		params.Set(id, v)
	}
	for name, c := range preset.Bindings {
		id, ok := params.Index(name)
		if !ok || !c.Valid() {
			m.logger.Warn("ignoring preset binding", "program", program, "parameter", name, "control", c)
			continue
		}
		bindings.Link(c, id)
	}
}

// Parameters lists the parameters of the current program.
func (m *Model) Parameters() []ParamInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	ret := make([]ParamInfo, m.current.params.Len())
	for i := range ret {
		ret[i] = m.paramInfo(i)
	}
	return ret
}

// Parameter looks up a parameter of the current program by name.
func (m *Model) Parameter(name string) (ParamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ParamInfo{}, ErrNoProgram
	}
	id, ok := m.current.params.Index(name)
	if !ok {
		return ParamInfo{}, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
	}
	return m.paramInfo(id), nil
}

func (m *Model) paramInfo(id int) ParamInfo {
	info := ParamInfo{ID: id, Spec: m.current.params.Spec(id), Value: m.current.params.Get(id)}
	if c, ok := m.bindings.GetControl(id); ok {
		info.Binding = rsuite.Binding{MIDI: true, Control: c}
	}
	return info
}

// SetManual sets a parameter of the current program, clamping the value into
// the range of the parameter. The stored value is returned; an out of range
// value is not an error.
func (m *Model) SetManual(id int, value float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkParam(id); err != nil {
		return 0, err
	}
	return m.current.params.Set(id, value), nil
}

// Bind makes the MIDI control c drive parameter id. A parameter previously
// bound to c becomes manual, and a previous control of id is released.
func (m *Model) Bind(id int, c rsuite.Control) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bind(id, c)
}

func (m *Model) bind(id int, c rsuite.Control) error {
	if err := m.checkParam(id); err != nil {
		return err
	}
	if !c.Valid() {
		return fmt.Errorf("%w: channel %d, controller %d", ErrInvalidControl, c.Channel, c.Controller)
	}
	m.bindings.Link(c, id)
	m.publishTable()
	return nil
}

// Unbind returns parameter id to manual control.
func (m *Model) Unbind(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkParam(id); err != nil {
		return err
	}
	m.bindings.UnlinkParam(id)
	m.publishTable()
	return nil
}

func (m *Model) UnbindAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = Bindings{}
	if m.current != nil {
		m.publishTable()
	}
}

// Learn binds parameter id to the next MIDI control change the player
// receives. The binding is completed by Poll.
func (m *Model) Learn(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkParam(id); err != nil {
		return err
	}
	m.learning = id
	m.broker.learning.Store(true)
	return nil
}

func (m *Model) CancelLearn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning = -1
	m.broker.learning.Store(false)
}

// Learning returns the parameter waiting for MIDI learn.
func (m *Model) Learning() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.learning, m.learning >= 0
}

// SetMonitor enables sending all MIDI events seen by the player to the
// model, to be read with MonitoredEvents.
func (m *Model) SetMonitor(enabled bool) { m.broker.monitor.Store(enabled) }

func (m *Model) checkParam(id int) error {
	if m.current == nil {
		return ErrNoProgram
	}
	if !m.current.params.Valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownParameter, id)
	}
	return nil
}

// publishTable hands the bindings to the current slot. The table travels with
// its unit, so the player never routes with the table of another unit.
func (m *Model) publishTable() {
	m.current.table.Store(m.bindings.Table(m.current.id))
}

func (m *Model) report(kind rsuite.ErrorKind, severity rsuite.Severity, msg string) {
	m.broker.Errors.Push(NewErrorRecord(ControlFrame, kind, severity, msg))
}

// Poll handles all the messages the player and the detector have sent so
// far without blocking: retired units are closed, MIDI learn bindings are
// completed, levels and monitored events are stored.
func (m *Model) Poll() {
	for {
		select {
		case msg := <-m.broker.ToModel:
			m.handle(msg)
		default:
			return
		}
	}
}

// PollTimeout waits at most d for a message, then handles it and all the
// other queued messages. It returns false if nothing arrived.
func (m *Model) PollTimeout(d time.Duration) bool {
	msg, ok := TimeoutReceive(m.broker.ToModel, d)
	if !ok {
		return false
	}
	m.handle(msg)
	m.Poll()
	return true
}

// Run handles messages and logs error records until ctx is done.
func (m *Model) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.broker.ToModel:
			m.handle(msg)
		case r := <-m.broker.Errors.Records():
			m.log(r)
			m.mu.Lock()
			m.keep(r)
			m.mu.Unlock()
		}
	}
}

func (m *Model) handle(msg MsgToModel) {
	if msg.Retired != nil {
		m.closeSlot(msg.Retired)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.HasLearned && m.learning >= 0 {
		id := m.learning
		m.learning = -1
		if err := m.bind(id, msg.Learned); err != nil {
			m.logger.Warn("MIDI learn failed", "error", err)
		} else {
			m.logger.Info("MIDI learn", "parameter", m.current.params.Spec(id).Name, "control", msg.Learned.String())
		}
	}
	if msg.HasLevels {
		m.levels = msg.Levels
	}
	if msg.HasEvent && len(m.events) < queueLength {
		m.events = append(m.events, msg.Event)
	}
}

func (m *Model) closeSlot(s *slot) {
	if c, ok := s.unit.(io.Closer); ok {
		if err := c.Close(); err != nil {
			m.logger.Error("closing unit failed", "program", s.program, "error", err)
			return
		}
	}
	m.logger.Debug("unit closed", "program", s.program)
}

func (m *Model) log(r ErrorRecord) {
	level := slog.LevelInfo
	switch r.Severity {
	case rsuite.Warning:
		level = slog.LevelWarn
	case rsuite.Error:
		level = slog.LevelError
	}
	m.logger.Log(context.Background(), level, r.Message(), "kind", r.Kind.String(), "frame", r.Frame)
}

func (m *Model) keep(r ErrorRecord) {
	if len(m.history) == maxHistory {
		copy(m.history, m.history[1:])
		m.history = m.history[:maxHistory-1]
	}
	m.history = append(m.history, r)
}

// DrainErrors returns and forgets the error records received so far, oldest
// first.
func (m *Model) DrainErrors() []ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.broker.Errors.Drain(nil) {
		m.keep(r)
	}
	ret := m.history
	m.history = nil
	return ret
}

// Levels returns the latest output levels measured by the detector.
func (m *Model) Levels() Levels {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels
}

// MonitoredEvents returns and forgets the MIDI events seen since the last
// call, if monitoring is enabled.
func (m *Model) MonitoredEvents() []rsuite.MIDIEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := m.events
	m.events = nil
	return ret
}

// Close stops the detector and closes the units owned by the model. The
// player must not be running anymore.
func (m *Model) Close() {
	TrySend(m.broker.CloseDetector, struct{}{})
	select {
	case <-m.broker.FinishedDetector:
	case <-time.After(3 * time.Second):
		m.logger.Warn("level detector did not quit in time")
	}
	m.Poll()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broker.pending.Store(nil) // if set, it is m.current
	p := m.player
	for _, s := range p.retired[:p.nretire] {
		m.closeSlot(s)
	}
	p.nretire = 0
	if p.active != nil && p.active != m.current {
		m.closeSlot(p.active)
	}
	p.active = nil
	if m.current != nil {
		m.closeSlot(m.current)
		m.current = nil
	}
}
