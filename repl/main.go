// Command kj-repl is an interactive chat loop over kj sessions.
// Each line typed becomes one turn of the bound session, and the reply is
// streamed back. When stdout is redirected, every exchange is also written
// to it as TOML.
//
// Usage:
//
//	./kj-repl                  # chat in the most recent session
//	./kj-repl -n > chat.toml   # new session, transcript to file
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model/inference"
	"github.com/kj-assistant/kj/session"
)

const prompt = "> "

func main() {
	path := pflag.StringP("path", "p", "", "path to store session data")
	newSession := pflag.BoolP("new-session", "n", false, "start a new session")
	verbose := pflag.BoolP("verbose", "v", false, "print the prompt sent to the model and debug logs")
	pflag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*path, *newSession, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, newSession, verbose bool) error {
	cfg, err := kj.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, w := range kj.ValidateConfig(cfg) {
		slog.Warn(w)
	}
	if path == "" {
		path = kj.ResolveStoragePath(cfg)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: %v", kj.ErrStorage, err)
	}

	// The conversation goes to the terminal. A redirected stdout receives
	// the transcript instead.
	ui := io.Writer(os.Stdout)
	var transcript io.Writer
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		ui = os.Stderr
		transcript = os.Stdout
	}

	r := &repl{
		store:      session.NewStore(path),
		provider:   inference.New(cfg),
		verbose:    verbose,
		ui:         ui,
		transcript: transcript,
	}
	if err := r.bind(newSession); err != nil {
		return err
	}

	historyPath := filepath.Join(kj.ConfigDir(), "repl_history")
	if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
		slog.Debug("no repl history", "error", err)
		historyPath = ""
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyPath,
		HistorySearchFold: true,
		Stdout:            ui,
	})
	if err != nil {
		return fmt.Errorf("start line editor: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(ui, "%s repl, session %d in %s\n", kj.Name, r.assistant.Session().ID, path)
	fmt.Fprintln(ui, "commands:")
	fmt.Fprintln(ui, "  :new   start a new session")
	fmt.Fprintln(ui, "  :quit  exit")
	fmt.Fprintln(ui)

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("read input: %w", err)
		}

		// Ctrl+C while a reply streams cancels only that reply.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		quit, err := r.handle(ctx, line)
		stop()
		if err != nil {
			fmt.Fprintf(ui, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}
