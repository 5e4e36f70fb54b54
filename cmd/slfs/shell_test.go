package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valbaum/slfs"
)

// run executes a command and fails the test if it errors.
func run(shell *Shell, line string, t *testing.T) string {
	t.Helper()

	output, err := shell.Execute(line)
	require.NoErrorf(t, err, "command %q failed", line)
	return output
}

func TestShellEndToEnd(t *testing.T) {
	shell := NewShell(io.Discard)

	assert.Equal(t, "disk initialized", run(shell, "in input 64 64 24 5", t))
	assert.Equal(t, `file "f" created`, run(shell, "cr f", t))
	assert.Equal(t, `file "f" opened, index=1`, run(shell, "op f", t))
	assert.Equal(t, "4 bytes written", run(shell, "wr 1 x 4", t))
	assert.Equal(t, "current position is 0", run(shell, "sk 1 0", t))
	assert.Equal(t, "xxxx", run(shell, "rd 1 4", t))
	assert.Equal(t, "file at index 1 closed", run(shell, "cl 1", t))
	assert.Equal(t, `file "f" destroyed`, run(shell, "de f", t))
}

func TestShellDirectoryListing(t *testing.T) {
	shell := NewShell(io.Discard)

	run(shell, "in input 64 64 24 5", t)
	run(shell, "cr a", t)
	run(shell, "cr bb", t)
	run(shell, "op bb", t)
	run(shell, "wr 1 q 7", t)

	assert.Equal(t, "a\t0B\nbb\t7B", run(shell, "dr", t))
}

func TestShellSaveAndRestore(t *testing.T) {
	shell := NewShell(io.Discard)
	path := filepath.Join(t.TempDir(), "disk.slfs")

	run(shell, "in input 64 64 24 5", t)
	run(shell, "cr f", t)
	run(shell, "op f", t)
	run(shell, "wr 1 z 10", t)
	assert.Equal(t, "disk saved", run(shell, "sv "+path, t))

	// Restore into a fresh shell and read the data back.
	restoredShell := NewShell(io.Discard)
	assert.Equal(t, "disk restored", run(restoredShell, "in backup "+path+" 5", t))
	run(restoredShell, "op f", t)
	assert.Equal(t, "zzzzzzzzzz", run(restoredShell, "rd 1 10", t))
}

func TestShellPropertiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.csv")
	content := "slug,block_size,total_blocks,inodes,max_open_files\n" +
		"custom,64,64,24,5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	shell := NewShell(io.Discard)
	assert.Equal(t, "disk initialized", run(shell, "in properties "+path, t))
	run(shell, "cr f", t)
}

func TestShellErrors(t *testing.T) {
	shell := NewShell(io.Discard)

	_, err := shell.Execute("dr")
	assert.ErrorIs(t, err, slfs.ErrInvalidArgument, "commands before `in` must fail")

	run(shell, "in input 64 64 24 5", t)

	_, err = shell.Execute("bogus")
	assert.ErrorIs(t, err, slfs.ErrInvalidArgument)

	_, err = shell.Execute("op nope")
	assert.ErrorIs(t, err, slfs.ErrNotFound)

	_, err = shell.Execute("rd 1")
	assert.ErrorIs(t, err, slfs.ErrInvalidArgument, "wrong arity")

	_, err = shell.Execute("wr 1 xx 4")
	assert.ErrorIs(t, err, slfs.ErrInvalidArgument, "wr takes a single character")

	_, err = shell.Execute("sk one 0")
	assert.ErrorIs(t, err, slfs.ErrInvalidArgument, "slot must be numeric")
}

func TestShellRunLoop(t *testing.T) {
	var out bytes.Buffer
	shell := NewShell(&out)

	script := strings.Join([]string{
		"in input 64 64 24 5",
		"cr f",
		"", // blank lines are skipped
		"op missing",
		"dr",
		"exit",
		"cr never-reached",
	}, "\n")

	require.NoError(t, shell.Run(strings.NewReader(script)))

	text := out.String()
	assert.Contains(t, text, "disk initialized")
	assert.Contains(t, text, `file "f" created`)
	assert.Contains(t, text, "error: No such file or directory")
	assert.Contains(t, text, "f\t0B")
	assert.NotContains(t, text, "never-reached", "exit must stop the loop")
}
