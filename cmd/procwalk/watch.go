package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// watch redraws frame on every tick until ctx is cancelled.
func watch(ctx context.Context, out io.Writer, interval time.Duration, frame func(*bytes.Buffer) error) error {
	cleanupTerminal := enableSingleView(out)
	defer cleanupTerminal()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var buf bytes.Buffer
		if err := frame(&buf); err != nil {
			logrus.WithError(err).Warn("snapshot failed")
		}
		clearScreen(out)
		if _, err := out.Write(buf.Bytes()); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func clearScreen(out io.Writer) {
	fmt.Fprint(out, "\033[H\033[2J")
}

// enableSingleView switches a terminal to the alternate buffer and returns
// the function that restores it. Other writers are left alone.
func enableSingleView(out io.Writer) func() {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	stdinFD := int(os.Stdin.Fd())

	fmt.Fprint(out, "\033[?1049h") // switch to alternate buffer
	fmt.Fprint(out, "\033[?25l")   // hide cursor

	var restore []func()
	if term.IsTerminal(stdinFD) {
		if undoEcho, err := disableInputEcho(stdinFD); err != nil {
			logrus.WithError(err).Warn("unable to suppress stdin echo")
		} else if undoEcho != nil {
			restore = append(restore, undoEcho)
		}
	}

	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Fprint(out, "\033[?25h")   // show cursor
		fmt.Fprint(out, "\033[?1049l") // restore main buffer
	}
}
