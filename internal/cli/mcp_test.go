package cli

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callRunLine(t *testing.T, ts *ToolServer, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = "run_line"
	req.Params.Arguments = args
	res, err := ts.handleRunLine(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestRunCaptured(t *testing.T) {
	sh, _, _ := newTestShell(t)
	ts := NewToolServer(sh)

	got, err := ts.RunCaptured(`printf 'b\na\n' | sort`)
	require.NoError(t, err)
	assert.Equal(t, Captured{Stdout: "a\nb\n"}, got)

	got, err = ts.RunCaptured("no-such-command-xyz")
	require.NoError(t, err)
	assert.Equal(t, Captured{
		Status: 127,
		Stderr: "myshell: command not found: no-such-command-xyz\n",
	}, got)

	// stdin is /dev/null, so cat sees EOF at once.
	got, err = ts.RunCaptured("cat")
	require.NoError(t, err)
	assert.Equal(t, Captured{}, got)
}

func TestRunLineTool(t *testing.T) {
	sh, _, _ := newTestShell(t)
	ts := NewToolServer(sh)

	res := callRunLine(t, ts, map[string]any{"line": "echo hi"})
	assert.False(t, res.IsError)
	assert.Equal(t, "exit status: 0\nstdout:\nhi\n", resultText(t, res))

	res = callRunLine(t, ts, map[string]any{"line": "ls |"})
	assert.False(t, res.IsError)
	assert.Equal(t, "exit status: 2\nstderr:\nmyshell: syntax error: missing command after pipe\n", resultText(t, res))

	res = callRunLine(t, ts, map[string]any{"line": "exit 1"})
	assert.True(t, res.IsError)

	res = callRunLine(t, ts, map[string]any{})
	assert.True(t, res.IsError)
}
