package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/assistant"
	"github.com/kj-assistant/kj/model"
)

// commandName is recorded as the command of every repl turn.
const commandName = kj.Name + "-repl"

// repl holds the bound assistant and where output goes.
type repl struct {
	store      assistant.Store
	provider   model.Provider
	verbose    bool
	ui         io.Writer
	transcript io.Writer // nil disables the TOML transcript

	assistant *assistant.Assistant
	now       func() time.Time
}

// bind attaches the repl to the most recent session, or a new one.
func (r *repl) bind(newSession bool) error {
	a, err := assistant.New(r.store, r.provider, assistant.Options{
		NewSession: newSession,
		Verbose:    r.verbose,
	})
	if err != nil {
		return err
	}
	r.assistant = a
	if a.Created() {
		fmt.Fprintln(r.ui, assistant.WelcomeMessage(a.Session().ID))
	}
	return nil
}

// handle runs one input line and reports whether the loop should end.
func (r *repl) handle(ctx context.Context, line string) (quit bool, err error) {
	input := strings.TrimSpace(line)
	switch input {
	case "":
		return false, nil
	case ":quit", ":q":
		return true, nil
	case ":new":
		return false, r.bind(true)
	}

	reply, err := r.assistant.Submit(ctx, kj.Turn{Command: commandName, Stdin: input}, true)
	if err != nil {
		r.record(input, "", err)
		return false, err
	}
	defer reply.Close()

	var response strings.Builder
	for {
		fragment, err := reply.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(r.ui)
			r.record(input, response.String(), err)
			return false, err
		}
		fmt.Fprint(r.ui, fragment)
		response.WriteString(fragment)
	}
	fmt.Fprint(r.ui, "\n\n")
	r.record(input, r.assistant.LastResponse(), nil)
	return false, nil
}

func (r *repl) record(input, response string, err error) {
	if r.transcript == nil {
		return
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	entry := transcriptEntry{
		Session:  r.assistant.Session().ID,
		Time:     now(),
		Input:    input,
		Response: response,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	writeEntry(r.transcript, entry)
}
