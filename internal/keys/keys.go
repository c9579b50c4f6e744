// Package keys handles the single key commands typed on the console while
// trace output is running.
package keys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"swotrace/internal/config"

	"golang.org/x/term"
)

// Control characters as delivered by a raw terminal.
const (
	CtrlC = 0x03
	CtrlD = 0x04
	CtrlF = 0x06
	CtrlL = 0x0c
	CtrlR = 0x12
	CtrlU = 0x15
)

// Commander sends a command to the debugger.
type Commander interface {
	Send(cmd string) error
}

// Dispatcher maps keys to debugger command sequences.
type Dispatcher struct {
	cmd    Commander
	flash  config.Flash
	status func(msg string)
}

// NewDispatcher creates a dispatcher. status receives the progress messages
// printed for the user and may be nil.
func NewDispatcher(cmd Commander, flash config.Flash, status func(msg string)) *Dispatcher {
	if status == nil {
		status = func(string) {}
	}
	return &Dispatcher{cmd: cmd, flash: flash, status: status}
}

// Help describes the available keys.
func Help() []string {
	return []string{
		"Ctrl-F: (re-)program the flash",
		"Ctrl-R: reset the chip",
		"Ctrl-L: lock the flash",
		"Ctrl-U: unlock the flash",
		"Ctrl-C: quit",
	}
}

// Commands returns the command sequence for key, or nil for keys without
// a command.
func (d *Dispatcher) Commands(key byte) []string {
	switch key {
	case CtrlF:
		return []string{
			"reset halt",
			fmt.Sprintf("flash write_image erase %s %s", d.flash.Image, d.flash.Address),
			"reset",
		}
	case CtrlR:
		return []string{"reset"}
	case CtrlL:
		return []string{"reset halt", d.flash.Driver + " lock 0", "reset"}
	case CtrlU:
		return []string{"reset halt", d.flash.Driver + " unlock 0", "reset"}
	}
	return nil
}

var statusMessages = map[byte]string{
	CtrlF: "Programming...",
	CtrlR: "Resetting...",
	CtrlL: "Locking...",
	CtrlU: "Unlocking...",
}

// ErrQuit is returned by Handle for the quit keys.
var ErrQuit = errors.New("keys: quit requested")

// Handle runs the command sequence bound to key.
func (d *Dispatcher) Handle(key byte) error {
	if key == CtrlC || key == CtrlD {
		return ErrQuit
	}
	cmds := d.Commands(key)
	if cmds == nil {
		return nil
	}
	d.status(statusMessages[key])
	for _, c := range cmds {
		if err := d.cmd.Send(c); err != nil {
			return fmt.Errorf("send %q: %w", c, err)
		}
	}
	return nil
}

// Run reads keys from r until a quit key, end of input or ctx is done.
// A quit key returns ErrQuit. Reads are not interruptible, so Run may
// outlive ctx until the next key arrives.
func Run(ctx context.Context, r io.Reader, d *Dispatcher) error {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, key := range buf[:n] {
			if herr := d.Handle(key); herr != nil {
				if errors.Is(herr, ErrQuit) {
					return herr
				}
				slog.Error("Failed to run key command", "key", key, "error", herr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// MakeRaw puts the terminal fd into raw mode. The returned function
// restores the previous state. For non terminals it does nothing and raw is
// false.
func MakeRaw(fd int) (restore func(), raw bool, err error) {
	if !term.IsTerminal(fd) {
		return func() {}, false, nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, false, fmt.Errorf("failed to set raw mode: %w", err)
	}
	return func() {
		if err := term.Restore(fd, old); err != nil {
			slog.Error("Failed to restore terminal", "error", err)
		}
	}, true, nil
}

// ConsoleWriters returns the writers for channel output and logs. In raw
// mode both translate \n to \r\n.
func ConsoleWriters(raw bool, stdout, stderr io.Writer) (out, errOut io.Writer) {
	if !raw {
		return stdout, stderr
	}
	return CRLFWriter{W: stdout}, CRLFWriter{W: stderr}
}

// CRLFWriter translates \n to \r\n. Raw mode disables the terminal's own
// output processing.
type CRLFWriter struct {
	W io.Writer
}

func (c CRLFWriter) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, '\n') < 0 {
		return c.W.Write(p)
	}
	out := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	if _, err := c.W.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
