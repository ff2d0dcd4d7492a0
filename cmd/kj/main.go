// Command kj is a command line assistant backed by a local language model.
//
// Pipe a command into kj, or run it alone and type a request:
//
//	make 2>&1 | kj
//	kj --listen < notes.txt
//
// Each invocation appends one turn to the current session, streams the
// model's reply to stdout and saves the session under ~/kj-assistant/.sessions.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// streams are the process's standard files.
type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// stdinIsTerminal reports whether in is an interactive terminal.
func (s streams) stdinIsTerminal() bool {
	f, ok := s.in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	os.Exit(code)
}
