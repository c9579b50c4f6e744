package keys

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"swotrace/internal/config"

	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	sent []string
	err  error
}

func (f *fakeCommander) Send(cmd string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func newDispatcher(cmd Commander, status *[]string) *Dispatcher {
	return NewDispatcher(cmd, config.Default().Flash, func(msg string) {
		*status = append(*status, msg)
	})
}

func TestDispatcher_Flash(t *testing.T) {
	cmd := &fakeCommander{}
	var status []string
	d := newDispatcher(cmd, &status)

	require.NoError(t, d.Handle(CtrlF))

	require.Equal(t, []string{
		"reset halt",
		"flash write_image erase main.bin 0x08000000",
		"reset",
	}, cmd.sent)
	require.Equal(t, []string{"Programming..."}, status)
}

func TestDispatcher_ResetLockUnlock(t *testing.T) {
	cmd := &fakeCommander{}
	var status []string
	d := newDispatcher(cmd, &status)

	require.NoError(t, d.Handle(CtrlR))
	require.NoError(t, d.Handle(CtrlL))
	require.NoError(t, d.Handle(CtrlU))

	require.Equal(t, []string{
		"reset",
		"reset halt", "stm32l4x lock 0", "reset",
		"reset halt", "stm32l4x unlock 0", "reset",
	}, cmd.sent)
	require.Equal(t, []string{"Resetting...", "Locking...", "Unlocking..."}, status)
}

func TestDispatcher_IgnoresOtherKeys(t *testing.T) {
	cmd := &fakeCommander{}
	d := NewDispatcher(cmd, config.Default().Flash, nil)

	require.NoError(t, d.Handle('a'))
	require.NoError(t, d.Handle('\r'))
	require.Empty(t, cmd.sent)
}

func TestDispatcher_Quit(t *testing.T) {
	d := NewDispatcher(&fakeCommander{}, config.Default().Flash, nil)

	require.ErrorIs(t, d.Handle(CtrlC), ErrQuit)
	require.ErrorIs(t, d.Handle(CtrlD), ErrQuit)
}

func TestDispatcher_SendError(t *testing.T) {
	d := NewDispatcher(&fakeCommander{err: errors.New("broken pipe")}, config.Default().Flash, nil)

	err := d.Handle(CtrlR)
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken pipe")
}

func TestRun_StopsOnQuitKey(t *testing.T) {
	cmd := &fakeCommander{}
	d := NewDispatcher(cmd, config.Default().Flash, nil)

	err := Run(context.Background(), strings.NewReader("x\x12\x03\x12"), d)

	require.ErrorIs(t, err, ErrQuit)
	require.Equal(t, []string{"reset"}, cmd.sent)
}

func TestRun_EndOfInput(t *testing.T) {
	cmd := &fakeCommander{}
	d := NewDispatcher(cmd, config.Default().Flash, nil)

	require.NoError(t, Run(context.Background(), strings.NewReader("\x12"), d))
	require.Equal(t, []string{"reset"}, cmd.sent)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd := &fakeCommander{}

	err := Run(ctx, strings.NewReader("\x12"), NewDispatcher(cmd, config.Default().Flash, nil))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, cmd.sent)
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	w := CRLFWriter{W: &buf}

	n, err := w.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	_, err = w.Write([]byte("c"))
	require.NoError(t, err)
	require.Equal(t, "a\r\nb\r\nc", buf.String())
}

func TestMakeRaw_NonTerminal(t *testing.T) {
	restore, raw, err := MakeRaw(-1)
	require.NoError(t, err)
	require.False(t, raw)
	restore()
}

func TestConsoleWriters(t *testing.T) {
	var stdout, stderr bytes.Buffer

	out, errOut := ConsoleWriters(false, &stdout, &stderr)
	_, err := out.Write([]byte("line\n"))
	require.NoError(t, err)
	_, err = errOut.Write([]byte("log\n"))
	require.NoError(t, err)
	require.Equal(t, "line\n", stdout.String())
	require.Equal(t, "log\n", stderr.String())

	stdout.Reset()
	stderr.Reset()
	out, errOut = ConsoleWriters(true, &stdout, &stderr)
	_, err = out.Write([]byte("line\n"))
	require.NoError(t, err)
	_, err = errOut.Write([]byte("log\n"))
	require.NoError(t, err)
	require.Equal(t, "line\r\n", stdout.String())
	require.Equal(t, "log\r\n", stderr.String())
}
