package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marcelocantos/myshell/internal/pipeline"
)

// ToolServer exposes the shell as an MCP tool. Lines run one at a time;
// each call gets /dev/null as stdin and has its output captured.
type ToolServer struct {
	mu    sync.Mutex
	shell *Shell
}

// NewToolServer wraps sh. The shell's streams are replaced per call.
func NewToolServer(sh *Shell) *ToolServer {
	return &ToolServer{shell: sh}
}

// MCPServer builds the MCP server carrying the run_line tool.
func (t *ToolServer) MCPServer(version string) *server.MCPServer {
	s := server.NewMCPServer("myshell", version, server.WithToolCapabilities(false))
	tool := mcp.NewTool("run_line",
		mcp.WithDescription("Run one shell command line (pipes and <, >, >>, 2> redirections) and return its exit status and output."),
		mcp.WithString("line",
			mcp.Required(),
			mcp.Description("The command line to run."),
		),
	)
	s.AddTool(tool, t.handleRunLine)
	return s
}

// Serve runs the MCP server over stdio until the client disconnects.
func (t *ToolServer) Serve(version string) error {
	return server.ServeStdio(t.MCPServer(version))
}

func (t *ToolServer) handleRunLine(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line, err := req.RequireString("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if tokens := pipeline.Tokenize(line); len(tokens) > 0 && tokens[0] == "exit" {
		return mcp.NewToolResultError("exit is not available over MCP"), nil
	}

	res, err := t.RunCaptured(line)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(res.String()), nil
}

// Captured is the result of a line run with its output collected.
type Captured struct {
	Status int
	Stdout string
	Stderr string
}

func (c Captured) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit status: %d\n", c.Status)
	if c.Stdout != "" {
		fmt.Fprintf(&b, "stdout:\n%s", c.Stdout)
		if !strings.HasSuffix(c.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if c.Stderr != "" {
		fmt.Fprintf(&b, "stderr:\n%s", c.Stderr)
	}
	return b.String()
}

// RunCaptured runs line with stdout and stderr collected in temporary
// files. Children write to the files directly, so redirection and pipe
// semantics are unchanged.
func (t *ToolServer) RunCaptured(line string) (Captured, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return Captured{}, err
	}
	defer stdin.Close()

	stdout, err := os.CreateTemp("", "myshell-stdout-*")
	if err != nil {
		return Captured{}, err
	}
	defer os.Remove(stdout.Name())
	defer stdout.Close()

	stderr, err := os.CreateTemp("", "myshell-stderr-*")
	if err != nil {
		return Captured{}, err
	}
	defer os.Remove(stderr.Name())
	defer stderr.Close()

	runner := *t.shell.runner()
	runner.Stdin, runner.Stdout, runner.Stderr = stdin, stdout, stderr
	sh := *t.shell
	sh.Runner = &runner
	sh.Stderr = stderr

	res := sh.RunLine(line)

	outData, err := os.ReadFile(stdout.Name())
	if err != nil {
		return Captured{}, err
	}
	errData, err := os.ReadFile(stderr.Name())
	if err != nil {
		return Captured{}, err
	}
	return Captured{Status: res.Status, Stdout: string(outData), Stderr: string(errData)}, nil
}
