package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/backup"
	"github.com/valbaum/slfs/blockdev"
	"github.com/valbaum/slfs/fs"
	"github.com/valbaum/slfs/profiles"
)

// errExit is the sentinel the `exit` command reports to stop the loop.
var errExit = errors.New("exit requested")

// Shell is the interactive dispatcher over the file system façade. It holds
// at most one mounted file system at a time; `in` replaces it.
type Shell struct {
	fsys *fs.FileSystem
	out  io.Writer
}

func NewShell(out io.Writer) *Shell {
	return &Shell{out: out}
}

// Run reads commands line by line until EOF or `exit`. Command failures are
// printed and the loop continues.
func (shell *Shell) Run(input io.Reader) error {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		output, err := shell.Execute(line)
		if err == errExit {
			return nil
		}
		if err != nil {
			fmt.Fprintf(shell.out, "error: %s\n", err.Error())
			continue
		}
		if output != "" {
			fmt.Fprintln(shell.out, output)
		}
	}
	return scanner.Err()
}

// Execute dispatches a single command line and returns its output.
func (shell *Shell) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case "in":
		return shell.initialize(args)
	case "sv":
		return shell.save(args)
	case "cr":
		return shell.create(args)
	case "de":
		return shell.destroy(args)
	case "op":
		return shell.open(args)
	case "cl":
		return shell.close(args)
	case "rd":
		return shell.read(args)
	case "wr":
		return shell.write(args)
	case "sk":
		return shell.seek(args)
	case "dr":
		return shell.listDirectory(args)
	case "exit":
		return "", errExit
	default:
		return "", slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown command %q", command),
		)
	}
}

// mounted guards the commands that need a file system.
func (shell *Shell) mounted() (*fs.FileSystem, error) {
	if shell.fsys == nil {
		return nil, slfs.ErrInvalidArgument.WithMessage(
			"no disk is initialized; use `in` first",
		)
	}
	return shell.fsys, nil
}

func wrongArity(usage string) error {
	return slfs.ErrInvalidArgument.WithMessage("usage: " + usage)
}

func parseInt(field, value string) (int, error) {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%s must be an integer, got %q", field, value),
		)
	}
	return parsed, nil
}

func (shell *Shell) initialize(args []string) (string, error) {
	if len(args) == 0 {
		return "", wrongArity("in backup <file> <M> | in input <B> <N> <I> <M> | in properties <file>")
	}

	switch args[0] {
	case "backup":
		if len(args) != 3 {
			return "", wrongArity("in backup <file> <M>")
		}
		maxOpen, err := parseInt("M", args[2])
		if err != nil {
			return "", err
		}
		fsys, err := backup.Restore(args[1], maxOpen)
		if err != nil {
			return "", err
		}
		shell.fsys = fsys
		return "disk restored", nil

	case "input":
		if len(args) != 5 {
			return "", wrongArity("in input <B> <N> <I> <M>")
		}
		values := make([]int, 4)
		for i, field := range []string{"B", "N", "I", "M"} {
			parsed, err := parseInt(field, args[i+1])
			if err != nil {
				return "", err
			}
			values[i] = parsed
		}
		geo := slfs.Geometry{
			BlockSize:    values[0],
			TotalBlocks:  values[1],
			InodeCount:   values[2],
			MaxOpenFiles: values[3],
		}
		return shell.format(geo)

	case "properties":
		if len(args) != 2 {
			return "", wrongArity("in properties <file>")
		}
		profile, err := profiles.LoadFile(args[1])
		if err != nil {
			return "", err
		}
		return shell.format(profile.Geometry())

	default:
		return "", slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unknown initialization mode %q", args[0]),
		)
	}
}

func (shell *Shell) format(geo slfs.Geometry) (string, error) {
	dev, err := blockdev.NewMemory(geo.BlockSize, geo.TotalBlocks)
	if err != nil {
		return "", err
	}
	fsys, err := fs.Format(dev, geo)
	if err != nil {
		return "", err
	}

	shell.fsys = fsys
	log.WithFields(log.Fields{
		"block_size":   geo.BlockSize,
		"total_blocks": geo.TotalBlocks,
		"inodes":       geo.InodeCount,
	}).Debug("disk initialized")
	return "disk initialized", nil
}

func (shell *Shell) save(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", wrongArity("sv <file>")
	}

	if _, err := backup.Save(fsys, args[0]); err != nil {
		return "", err
	}
	return "disk saved", nil
}

func (shell *Shell) create(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", wrongArity("cr <name>")
	}

	if err := fsys.Create(args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("file %q created", args[0]), nil
}

func (shell *Shell) destroy(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", wrongArity("de <name>")
	}

	if err := fsys.Destroy(args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("file %q destroyed", args[0]), nil
}

func (shell *Shell) open(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", wrongArity("op <name>")
	}

	slot, err := fsys.Open(args[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("file %q opened, index=%d", args[0], slot), nil
}

func (shell *Shell) close(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 1 {
		return "", wrongArity("cl <slot>")
	}

	slot, err := parseInt("slot", args[0])
	if err != nil {
		return "", err
	}
	if err := fsys.Close(slot); err != nil {
		return "", err
	}
	return fmt.Sprintf("file at index %d closed", slot), nil
}

func (shell *Shell) read(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", wrongArity("rd <slot> <count>")
	}

	slot, err := parseInt("slot", args[0])
	if err != nil {
		return "", err
	}
	count, err := parseInt("count", args[1])
	if err != nil {
		return "", err
	}

	data, err := fsys.Read(slot, count)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (shell *Shell) write(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 3 {
		return "", wrongArity("wr <slot> <ch> <count>")
	}

	slot, err := parseInt("slot", args[0])
	if err != nil {
		return "", err
	}
	if len(args[1]) != 1 {
		return "", slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("expected a single character to write, got %q", args[1]),
		)
	}
	count, err := parseInt("count", args[2])
	if err != nil {
		return "", err
	}
	if count < 0 {
		return "", slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("cannot write %d bytes", count),
		)
	}

	if err := fsys.Write(slot, bytes.Repeat([]byte{args[1][0]}, count)); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d bytes written", count), nil
}

func (shell *Shell) seek(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 2 {
		return "", wrongArity("sk <slot> <pos>")
	}

	slot, err := parseInt("slot", args[0])
	if err != nil {
		return "", err
	}
	position, err := parseInt("pos", args[1])
	if err != nil {
		return "", err
	}

	if err := fsys.Seek(slot, position); err != nil {
		return "", err
	}
	return fmt.Sprintf("current position is %d", position), nil
}

func (shell *Shell) listDirectory(args []string) (string, error) {
	fsys, err := shell.mounted()
	if err != nil {
		return "", err
	}
	if len(args) != 0 {
		return "", wrongArity("dr")
	}

	listing, err := fsys.Directory()
	if err != nil {
		return "", err
	}

	lines := make([]string, len(listing))
	for i, entry := range listing {
		lines[i] = fmt.Sprintf("%s\t%dB", entry.Name, entry.Length)
	}
	return strings.Join(lines, "\n"), nil
}
