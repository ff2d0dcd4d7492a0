package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/assistant"
	"github.com/kj-assistant/kj/model/inference"
	"github.com/kj-assistant/kj/prompt"
	"github.com/kj-assistant/kj/session"
	"github.com/kj-assistant/kj/shell"
)

// Exit statuses.
const (
	exitOK          = 0
	exitError       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

// pickSession is the --switch-session value when no id was given.
const pickSession = "pick"

// usageError is an invalid command line, reported before any I/O.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

type options struct {
	listen     bool
	path       string
	newSession bool
	switchTo   string
	verbose    bool
	list       bool
	show       int
	search     string
	searchTop  int

	sessionID *int // resolved from switchTo
}

// run executes one kj invocation and returns the process exit status.
func run(ctx context.Context, args []string, std streams) int {
	cmd := newRootCommand(std)
	cmd.SetArgs(attachSessionID(args))

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(std.err, "error: %v\n", err)

	var uerr *usageError
	switch {
	case errors.As(err, &uerr):
		fmt.Fprintf(std.err, "Run '%s --help' for usage.\n", kj.Name)
		return exitUsage
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return exitInterrupted
	default:
		return exitError
	}
}

func newRootCommand(std streams) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   kj.Name + " [flags]",
		Short: "Command line assistant backed by a local language model",
		Long: `kj records the command it was invoked with and everything piped into it,
sends the conversation so far to a language model, and streams the reply.

Install the shell alias so kj can see its own command line:

  alias kj='HISTORY="$(history 1)" kj'

Then pipe output into it, or run it alone and type a request:

  make 2>&1 | kj
  kj -l < notes.txt`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			return opts.validate(cmd.Flags(), args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), opts, cmd.Flags(), std)
		},
	}
	cmd.SetIn(std.in)
	cmd.SetOut(std.out)
	cmd.SetErr(std.err)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&opts.listen, "listen", "l", false, "only take in the information, don't answer yet")
	flags.StringVarP(&opts.path, "path", "p", "", fmt.Sprintf("path to store session data (default %s)", kj.DefaultStoragePath()))
	flags.BoolVarP(&opts.newSession, "new-session", "n", false, "start a new session")
	flags.StringVarP(&opts.switchTo, "switch-session", "s", "", "switch to the session with the given id; without an id, choose one interactively")
	flags.Lookup("switch-session").NoOptDefVal = pickSession
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "print the prompt sent to the model and debug logs")
	flags.BoolVar(&opts.list, "list", false, "list stored sessions and exit")
	flags.IntVar(&opts.show, "show", -1, "print the session with the given id as YAML and exit")
	flags.StringVar(&opts.search, "search", "", "print the past turns most similar to the query and exit")
	flags.IntVar(&opts.searchTop, "top", 3, "number of turns printed by --search")

	return cmd
}

// validate checks the flag combination and resolves the session id. An id
// given as a separate argument ("-s 3") arrives as a positional argument,
// because the flag's value is optional.
func (o *options) validate(flags *pflag.FlagSet, args []string) error {
	if flags.Changed("switch-session") && o.switchTo == pickSession && len(args) == 1 {
		o.switchTo = args[0]
		args = args[1:]
	}
	if len(args) > 0 {
		return usageErrorf("unexpected argument %q", args[0])
	}

	if flags.Changed("switch-session") && o.switchTo != pickSession {
		id, err := parseSessionID(o.switchTo)
		if err != nil {
			return err
		}
		o.sessionID = &id
	}
	if o.newSession && flags.Changed("switch-session") {
		return usageErrorf("--new-session and --switch-session cannot be used together")
	}
	if flags.Changed("show") && o.show < 0 {
		return usageErrorf("invalid session id %d for --show", o.show)
	}
	if o.searchTop <= 0 {
		return usageErrorf("--top must be positive")
	}
	return nil
}

var attachedSessionID = regexp.MustCompile(`^-s(\d+)$`)

// attachSessionID rewrites "-s3" to "-s=3". pflag would otherwise read the
// digits as more shorthand flags, since the flag's value is optional.
func attachSessionID(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if arg == "--" {
			copy(out[i:], args[i:])
			break
		}
		out[i] = attachedSessionID.ReplaceAllString(arg, "-s=$1")
	}
	return out
}

func parseSessionID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, usageErrorf("invalid session id %q: want a non-negative integer", s)
	}
	return id, nil
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func execute(ctx context.Context, opts *options, flags *pflag.FlagSet, std streams) error {
	setupLogging(std.err, opts.verbose)

	cfg, err := kj.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, w := range kj.ValidateConfig(cfg) {
		slog.Warn(w)
	}

	dir := kj.ResolveStoragePath(cfg)
	if flags.Changed("path") {
		dir = opts.path
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", kj.ErrStorage, err)
	}
	store := session.NewStore(dir)

	switch {
	case opts.list:
		return printList(std.out, store)
	case flags.Changed("show"):
		return printSession(std.out, store, opts.show)
	case flags.Changed("search"):
		return printSearch(ctx, std.out, cfg, store, opts.search, opts.searchTop)
	}

	command, err := shell.LastCommand()
	if err != nil {
		return err
	}

	if opts.switchTo == pickSession && flags.Changed("switch-session") {
		id, err := pickFromTerminal(store)
		if err != nil {
			return err
		}
		opts.sessionID = &id
	}

	a, err := assistant.New(store, inference.New(cfg), assistant.Options{
		SessionID:    opts.sessionID,
		NewSession:   opts.newSession,
		SystemPrompt: customSystemPrompt(),
		Verbose:      opts.verbose,
	})
	if err != nil {
		return err
	}

	if a.Created() {
		fmt.Fprintln(std.out, assistant.WelcomeMessage(a.Session().ID))
	}
	if opts.sessionID != nil {
		if last := a.LastResponse(); last != "" {
			fmt.Fprintln(std.out, last)
		}
	}

	if std.stdinIsTerminal() {
		fmt.Fprintln(std.err, "Type your request, then press Ctrl+D on a new line.")
	}
	var echo io.Writer
	if !shell.IsSelfInvocation(command) {
		echo = std.out
	}
	input, err := shell.ReadInput(ctx, std.in, echo)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	if kj.RedactCommands(cfg) {
		command = shell.Redact(command)
	}
	reply, err := a.Submit(ctx, kj.Turn{Command: command, Stdin: input}, !opts.listen)
	if err != nil {
		return err
	}
	defer reply.Close()

	printed := false
	for {
		fragment, err := reply.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if printed {
				fmt.Fprintln(std.out)
			}
			return err
		}
		if fragment != "" {
			printed = true
			fmt.Fprint(std.out, fragment)
		}
	}
	if printed {
		fmt.Fprintln(std.out)
	}
	return nil
}

// customSystemPrompt returns the rendered prompt.md from the config
// directory, or nil when there is none.
func customSystemPrompt() *string {
	data, err := os.ReadFile(kj.PromptPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("cannot read custom prompt", "path", kj.PromptPath(), "error", err)
		}
		return nil
	}
	p := prompt.Custom(string(data))
	return &p
}
