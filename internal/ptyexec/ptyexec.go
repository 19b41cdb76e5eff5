// Package ptyexec runs a command under a pseudo terminal so its output can be read line by
// line like the process's own standard input.
package ptyexec

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
)

// Command is a running command attached to a pty.
type Command struct {
	cmd  *exec.Cmd
	ptmx *os.File

	waitOnce sync.Once
	exited   atomic.Bool
	exitCode int
	waitErr  error
}

// Start starts argv[0] with the remaining arguments under a new pty. The command inherits
// the environment and working directory.
func Start(argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, errors.New("no command given")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start command with pty: %w", err)
	}
	// wide enough that tools do not wrap their lines
	_ = pty.Setsize(ptmx, &pty.Winsize{Rows: 24, Cols: 200})

	slog.Debug("Started command", "command", cmd.String(), "pid", cmd.Process.Pid)
	return &Command{cmd: cmd, ptmx: ptmx}, nil
}

// Output returns the combined stdout and stderr of the command. Reads return io.EOF once
// the command exited and its output was consumed.
func (c *Command) Output() io.Reader {
	return &eofReader{r: c.ptmx}
}

// Wait waits for the command to exit and returns its exit code. A command terminated by a
// signal reports 128 plus the signal number.
func (c *Command) Wait() (int, error) {
	c.waitOnce.Do(func() {
		err := c.cmd.Wait()
		c.exited.Store(true)
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			c.exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				c.exitCode = 128 + int(status.Signal())
			}
		default:
			c.exitCode = 1
			c.waitErr = err
		}
	})
	return c.exitCode, c.waitErr
}

// Close kills the command if it is still running and releases the pty.
func (c *Command) Close() error {
	if !c.exited.Load() {
		_ = c.cmd.Process.Kill()
	}
	return c.ptmx.Close()
}

// eofReader maps the EIO a pty master returns after the slave side closed to io.EOF.
type eofReader struct {
	r io.Reader
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}
