// Package control is the text control surface of a session: a small command
// language used by the interactive prompt of rsuite-host and by its MCP
// server.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/rsuite/rsuite"
	"github.com/rsuite/rsuite/session"
)

type (
	// Commander executes commands against a session model.
	Commander struct {
		model  *session.Model
		status *template.Template
	}

	// StatusData is what the status template is executed with.
	StatusData struct {
		Program  string
		Params   []session.ParamInfo
		Levels   session.Levels
		Learning string
	}

	command struct {
		usage string
		help  string
		args  int // minimum number of arguments
		run   func(c *Commander, w io.Writer, args []string) error
	}
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	// ErrQuit is returned by the quit command.
	ErrQuit = errors.New("quit")
)

var commands map[string]command

func init() {
	commands = map[string]command{
		"list":     {"list", "show the program, levels and parameters", 0, (*Commander).list},
		"programs": {"programs", "list the available programs", 0, (*Commander).programs},
		"switch":   {"switch <program>", "construct a program and swap it in", 1, (*Commander).switchProgram},
		"set":      {"set <param> <value>", "set a parameter, clamped to its range", 2, (*Commander).set},
		"bind":     {"bind <param> <channel 1-16> <cc 0-127>", "drive a parameter from a MIDI controller", 3, (*Commander).bind},
		"unbind":   {"unbind <param>|all", "return parameters to manual control", 1, (*Commander).unbind},
		"learn":    {"learn <param>|cancel", "bind a parameter to the next controller moved", 1, (*Commander).learn},
		"errors":   {"errors", "show the errors reported since the last call", 0, (*Commander).showErrors},
		"levels":   {"levels", "show the output levels", 0, (*Commander).levels},
		"monitor":  {"monitor on|off", "print the incoming MIDI", 1, (*Commander).monitor},
		"save":     {"save <file>", "save the session state", 1, (*Commander).save},
		"load":     {"load <file>", "restore a saved session state", 1, (*Commander).load},
		"help":     {"help", "list the commands", 0, (*Commander).help},
		"quit":     {"quit", "exit", 0, func(*Commander, io.Writer, []string) error { return ErrQuit }},
	}
}

// NewCommander returns a Commander printing the status with the given
// template; see config.Config.Template.
func NewCommander(model *session.Model, status *template.Template) *Commander {
	return &Commander{model: model, status: status}
}

// Exec runs one command line, writing its output to w. Empty lines and lines
// starting with # do nothing.
func (c *Commander) Exec(w io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("%w %q, try help", ErrUnknownCommand, fields[0])
	}
	if len(fields)-1 < cmd.args {
		return fmt.Errorf("%w: %v", ErrUsage, cmd.usage)
	}
	return cmd.run(c, w, fields[1:])
}

// Run reads commands from r until it is exhausted, the quit command is given
// or ctx is done. Errors of single commands are printed to w.
func (c *Commander) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()
	fmt.Fprint(w, "> ")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.Exec(w, line); errors.Is(err, ErrQuit) {
				return nil
			} else if err != nil {
				fmt.Fprintln(w, "error:", err)
			}
			fmt.Fprint(w, "> ")
		}
	}
}

// Status executes the status template.
func (c *Commander) Status(w io.Writer) error {
	data := StatusData{
		Program: c.model.Program(),
		Params:  c.model.Parameters(),
		Levels:  c.model.Levels(),
	}
	if id, ok := c.model.Learning(); ok && id < len(data.Params) {
		data.Learning = data.Params[id].Spec.Name
	}
	if err := c.status.Execute(w, data); err != nil {
		return fmt.Errorf("could not execute status template: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// param finds a parameter by name or by index.
func (c *Commander) param(name string) (session.ParamInfo, error) {
	if id, err := strconv.Atoi(name); err == nil {
		params := c.model.Parameters()
		if id < 0 || id >= len(params) {
			return session.ParamInfo{}, fmt.Errorf("%w: %d", session.ErrUnknownParameter, id)
		}
		return params[id], nil
	}
	return c.model.Parameter(name)
}

func (c *Commander) list(w io.Writer, _ []string) error { return c.Status(w) }

func (c *Commander) programs(w io.Writer, _ []string) error {
	progs := c.model.Programs()
	sort.Slice(progs, func(i, j int) bool { return progs[i].Name < progs[j].Name })
	current := c.model.Program()
	for _, p := range progs {
		mark := " "
		if p.Name == current {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %-12s %s\n", mark, p.Name, p.Description)
	}
	return nil
}

func (c *Commander) switchProgram(w io.Writer, args []string) error {
	if err := c.model.SwitchProgram(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(w, "switched to %v\n", args[0])
	return nil
}

func (c *Commander) set(w io.Writer, args []string) error {
	p, err := c.param(args[0])
	if err != nil {
		return err
	}
	v, err := p.Spec.Parse(args[1])
	if err != nil {
		return err
	}
	got, err := c.model.SetManual(p.ID, v)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v = %v\n", p.Spec.Name, p.Spec.Format(got))
	return nil
}

func (c *Commander) bind(w io.Writer, args []string) error {
	p, err := c.param(args[0])
	if err != nil {
		return err
	}
	channel, err1 := strconv.Atoi(args[1])
	cc, err2 := strconv.Atoi(args[2])
	if err := errors.Join(err1, err2); err != nil || channel < 1 || channel > 16 || cc < 0 || cc > 127 {
		return fmt.Errorf("%w: channel 1-16 and controller 0-127", session.ErrInvalidControl)
	}
	ctrl := rsuite.Control{Channel: uint8(channel - 1), Controller: uint8(cc)}
	if err := c.model.Bind(p.ID, ctrl); err != nil {
		return err
	}
	fmt.Fprintf(w, "%v bound to %v\n", p.Spec.Name, ctrl)
	return nil
}

func (c *Commander) unbind(w io.Writer, args []string) error {
	if args[0] == "all" {
		c.model.UnbindAll()
		fmt.Fprintln(w, "all parameters are manual")
		return nil
	}
	p, err := c.param(args[0])
	if err != nil {
		return err
	}
	if err := c.model.Unbind(p.ID); err != nil {
		return err
	}
	fmt.Fprintf(w, "%v is manual\n", p.Spec.Name)
	return nil
}

func (c *Commander) learn(w io.Writer, args []string) error {
	if args[0] == "cancel" {
		c.model.CancelLearn()
		fmt.Fprintln(w, "learn cancelled")
		return nil
	}
	p, err := c.param(args[0])
	if err != nil {
		return err
	}
	if err := c.model.Learn(p.ID); err != nil {
		return err
	}
	fmt.Fprintf(w, "move a controller to bind %v\n", p.Spec.Name)
	return nil
}

func (c *Commander) showErrors(w io.Writer, _ []string) error {
	records := c.model.DrainErrors()
	if len(records) == 0 {
		fmt.Fprintln(w, "no errors")
	}
	for _, r := range records {
		fmt.Fprintln(w, r)
	}
	if n := c.model.Broker().Errors.Dropped(); n > 0 {
		fmt.Fprintf(w, "%d records dropped in total\n", n)
	}
	return nil
}

func (c *Commander) levels(w io.Writer, _ []string) error {
	l := c.model.Levels()
	fmt.Fprintf(w, "peak %.1f dB, rms %.1f dB, max peak %.1f dB", l.Peak, l.RMS, l.MaxPeak)
	if l.Clipping {
		fmt.Fprint(w, ", clipping")
	}
	fmt.Fprintln(w)
	return nil
}

func (c *Commander) monitor(w io.Writer, args []string) error {
	switch args[0] {
	case "on":
		c.model.SetMonitor(true)
	case "off":
		c.model.SetMonitor(false)
	default:
		return fmt.Errorf("%w: monitor on|off", ErrUsage)
	}
	fmt.Fprintf(w, "monitor %v\n", args[0])
	return nil
}

func (c *Commander) save(w io.Writer, args []string) error {
	data, err := c.model.MarshalState()
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return fmt.Errorf("could not save state: %w", err)
	}
	fmt.Fprintf(w, "saved %v\n", args[0])
	return nil
}

func (c *Commander) load(w io.Writer, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("could not load state: %w", err)
	}
	if err := c.model.UnmarshalState(data); err != nil {
		return err
	}
	fmt.Fprintf(w, "loaded %v\n", args[0])
	return nil
}

func (c *Commander) help(w io.Writer, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-42s %s\n", commands[name].usage, commands[name].help)
	}
	return nil
}
