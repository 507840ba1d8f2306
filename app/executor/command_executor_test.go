package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteShell(t *testing.T) {
	e := NewExecutor(5 * time.Second)

	res, err := e.ExecuteShell(context.Background(), "echo out; echo err >&2; exit 2", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExitCode)
	assert.Contains(t, res.Output, "out")
	assert.Contains(t, res.Output, "err")
	assert.NoError(t, res.Error)
}

func TestExecuteShellTimeout(t *testing.T) {
	e := NewExecutor(5 * time.Second)

	res, err := e.ExecuteShell(context.Background(), "sleep 5", 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.Error(t, res.Error)
}

func TestExpandPlaceholders(t *testing.T) {
	got := ExpandPlaceholders("dump --pid {pid} -o {file} {other}", map[string]string{"pid": "12", "file": "/tmp/x"})
	assert.Equal(t, "dump --pid 12 -o /tmp/x {other}", got)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/tmp/dumps/a.dump", want: `'/tmp/dumps/a.dump'`},
		{in: "/tmp/my dumps/a.dump", want: `'/tmp/my dumps/a.dump'`},
		{in: "it's", want: `'it'\''s'`},
		{in: "", want: `''`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ShellQuote(tt.in))
		})
	}

	e := NewExecutor(5 * time.Second)
	hostile := "a b'; echo injected; '$(id)"
	res, err := e.ExecuteShell(context.Background(), "printf %s "+ShellQuote(hostile), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, hostile, res.Output)
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defgh"))
	assert.Equal(t, "abcdefgh", b.String())

	_, _ = b.Write([]byte("ij"))
	assert.Equal(t, "cdefghij", b.String())

	_, _ = b.Write([]byte(strings.Repeat("z", 20) + "END"))
	assert.Equal(t, "zzzzzEND", b.String())
}
