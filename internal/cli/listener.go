package cli

import (
	"fmt"
	"io"

	"github.com/dmitrijs2005/storagecrypt/internal/process"
)

// consoleListener prints item messages as they are processed.
type consoleListener struct {
	w       io.Writer
	max     int64
	current int64
}

func newConsoleListener(w io.Writer) *consoleListener {
	return &consoleListener{w: w}
}

func (l *consoleListener) OnMessage(channel int, msg string) {
	if channel != process.ChannelItems {
		return
	}
	l.current++
	if l.max > 0 {
		fmt.Fprintf(l.w, "[%d/%d] %s\n", l.current, l.max, msg)
		return
	}
	fmt.Fprintln(l.w, msg)
}

func (l *consoleListener) OnMax(channel int, max int64) {
	if channel == process.ChannelItems {
		l.max, l.current = max, 0
	}
}

func (l *consoleListener) OnProgress(int, int64) {}
