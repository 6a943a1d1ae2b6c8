package control

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rsuite/rsuite/version"
)

// NewMCPServer exposes the commands of c as MCP tools.
func NewMCPServer(c *Commander) *server.MCPServer {
	s := server.NewMCPServer(
		"rsuite",
		version.VersionOrHash,
		server.WithToolCapabilities(false),
	)
	s.AddTool(mcp.NewTool("rsuite_status",
		mcp.WithDescription("Shows the current program, the output levels and all parameters with their values and MIDI bindings."),
	), c.tool(func(*mcp.CallToolRequest) (string, error) { return "list", nil }))

	s.AddTool(mcp.NewTool("rsuite_list-programs",
		mcp.WithDescription("Lists the programs that can be loaded; the current one is marked with *."),
	), c.tool(func(*mcp.CallToolRequest) (string, error) { return "programs", nil }))

	s.AddTool(mcp.NewTool("rsuite_switch-program",
		mcp.WithDescription("Constructs a program and swaps it in at the next audio block. On failure the current program keeps running."),
		mcp.WithString("program", mcp.Required(), mcp.Description("Name of the program, e.g. rsynth.")),
	), c.tool(func(r *mcp.CallToolRequest) (string, error) {
		name, err := r.RequireString("program")
		return "switch " + name, err
	}))

	s.AddTool(mcp.NewTool("rsuite_set-parameter",
		mcp.WithDescription("Sets a parameter of the current program. Values are clamped to the range of the parameter; enums and booleans accept their labels."),
		mcp.WithString("parameter", mcp.Required(), mcp.Description("Parameter name or index.")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value.")),
	), c.tool(func(r *mcp.CallToolRequest) (string, error) {
		param, err := r.RequireString("parameter")
		if err != nil {
			return "", err
		}
		value, err := r.RequireString("value")
		return "set " + param + " " + value, err
	}))

	s.AddTool(mcp.NewTool("rsuite_bind-parameter",
		mcp.WithDescription("Binds a MIDI continuous controller to a parameter. A parameter previously bound to the same controller becomes manual."),
		mcp.WithString("parameter", mcp.Required(), mcp.Description("Parameter name or index.")),
		mcp.WithNumber("channel", mcp.Required(), mcp.Description("MIDI channel (1-16).")),
		mcp.WithNumber("controller", mcp.Required(), mcp.Description("Controller number (0-127).")),
	), c.tool(func(r *mcp.CallToolRequest) (string, error) {
		param, err := r.RequireString("parameter")
		if err != nil {
			return "", err
		}
		channel, err := r.RequireInt("channel")
		if err != nil {
			return "", err
		}
		cc, err := r.RequireInt("controller")
		return fmt.Sprintf("bind %s %d %d", param, channel, cc), err
	}))

	s.AddTool(mcp.NewTool("rsuite_unbind-parameter",
		mcp.WithDescription("Returns a parameter, or all of them, to manual control."),
		mcp.WithString("parameter", mcp.Required(), mcp.Description("Parameter name or index, or all.")),
	), c.tool(func(r *mcp.CallToolRequest) (string, error) {
		param, err := r.RequireString("parameter")
		return "unbind " + param, err
	}))

	s.AddTool(mcp.NewTool("rsuite_learn-parameter",
		mcp.WithDescription("Binds a parameter to the next MIDI controller that is moved."),
		mcp.WithString("parameter", mcp.Required(), mcp.Description("Parameter name or index, or cancel.")),
	), c.tool(func(r *mcp.CallToolRequest) (string, error) {
		param, err := r.RequireString("parameter")
		return "learn " + param, err
	}))

	s.AddTool(mcp.NewTool("rsuite_errors",
		mcp.WithDescription("Returns the errors reported by the audio thread and the session since the last call."),
	), c.tool(func(*mcp.CallToolRequest) (string, error) { return "errors", nil }))

	return s
}

// tool turns a function building a command line from the request into a
// tool handler.
func (c *Commander) tool(line func(r *mcp.CallToolRequest) (string, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cmd, err := line(&request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var out strings.Builder
		if err := c.Exec(&out, cmd); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out.String()), nil
	}
}

// ServeMCP serves the tools over stdin and stdout until stdin is closed.
func ServeMCP(c *Commander) error {
	return server.ServeStdio(NewMCPServer(c))
}
