// Package assistant binds a session to a completion provider and records
// each submitted turn together with the streamed reply.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model"
	"github.com/kj-assistant/kj/prompt"
)

// Store is the part of session.Store the assistant uses.
type Store interface {
	Create(systemPrompt *string) (*kj.Session, error)
	Load(id int) (*kj.Session, error)
	LoadMostRecent(systemPrompt *string) (*kj.Session, bool, error)
	Save(sess *kj.Session) error
}

// Options select the session to bind and how replies are produced.
type Options struct {
	// SessionID binds an existing session. It takes precedence over NewSession.
	SessionID *int
	// NewSession binds a freshly created session.
	NewSession bool
	// SystemPrompt is stored in sessions created while binding. nil keeps the
	// default prompt, generated at render time.
	SystemPrompt *string
	// Verbose emits the rendered prompt as the first fragment of each reply.
	Verbose bool
}

// Assistant holds one bound session for the life of the process.
type Assistant struct {
	store    Store
	provider model.Provider
	verbose  bool

	session *kj.Session
	created bool
}

// New binds a session: the one named by opts.SessionID, a new one if
// opts.NewSession is set, otherwise the most recent one.
func New(store Store, provider model.Provider, opts Options) (*Assistant, error) {
	a := &Assistant{store: store, provider: provider, verbose: opts.Verbose}

	var err error
	switch {
	case opts.SessionID != nil:
		a.session, err = store.Load(*opts.SessionID)
	case opts.NewSession:
		a.session, err = store.Create(opts.SystemPrompt)
		a.created = err == nil
	default:
		a.session, a.created, err = store.LoadMostRecent(opts.SystemPrompt)
	}
	if err != nil {
		return nil, err
	}
	slog.Debug("bound session", "id", a.session.ID, "created", a.created, "turns", len(a.session.Turns))
	return a, nil
}

// Session returns the bound session.
func (a *Assistant) Session() *kj.Session { return a.session }

// Created reports whether binding created a new session.
func (a *Assistant) Created() bool { return a.created }

// LastResponse returns the response of the last turn, or "" if there is none.
func (a *Assistant) LastResponse() string {
	if t := a.session.LastTurn(); t != nil {
		return t.Response
	}
	return ""
}

// Submit appends turn to the session and returns its reply.
//
// When wantReply is false the session is saved at once and the reply holds
// at most the verbose prompt. Otherwise the model is queried and the session
// is saved when the reply has been read to the end. If the query cannot be
// started the turn is saved with an empty response and the error returned,
// unless ctx was cancelled, in which case nothing is saved. In verbose mode
// the query starts after the prompt has been received, so a failed query is
// reported by Recv instead of Submit.
func (a *Assistant) Submit(ctx context.Context, turn kj.Turn, wantReply bool) (*Reply, error) {
	turn.Response = ""
	a.session.Turns = append(a.session.Turns, turn)
	index := len(a.session.Turns) - 1

	r := &Reply{a: a, ctx: ctx, index: index}

	var rendered string
	if a.verbose || wantReply {
		rendered = prompt.Render(a.session)
	}
	if a.verbose {
		r.pending = rendered
		r.hasPending = true
	}

	if !wantReply {
		if err := a.store.Save(a.session); err != nil {
			return nil, err
		}
		r.done = true
		return r, nil
	}

	if a.verbose {
		r.query = rendered
		r.hasQuery = true
		return r, nil
	}
	if err := r.open(rendered); err != nil {
		return nil, err
	}
	return r, nil
}

// open queries the model with the rendered prompt.
func (r *Reply) open(rendered string) error {
	a := r.a
	stream, err := a.provider.Complete(r.ctx, rendered)
	if err != nil {
		if r.ctx.Err() != nil {
			return err
		}
		if saveErr := a.store.Save(a.session); saveErr != nil {
			slog.Warn("could not save session after failed query", "id", a.session.ID, "error", saveErr)
		}
		return fmt.Errorf("query model: %w", err)
	}
	r.stream = stream
	return nil
}

// Reply is the streamed answer to one submitted turn.
type Reply struct {
	a     *Assistant
	ctx   context.Context
	index int

	pending    string
	hasPending bool

	query    string
	hasQuery bool

	stream model.Stream
	done   bool
	err    error
}

// Recv returns the next fragment, or io.EOF once the reply is complete and
// the session has been saved. Each fragment from the model is appended to the
// turn's response before it is returned.
func (r *Reply) Recv() (string, error) {
	if r.hasPending {
		r.hasPending = false
		return r.pending, nil
	}
	if r.err != nil {
		return "", r.err
	}
	if r.done {
		r.err = io.EOF
		return "", r.err
	}
	if r.hasQuery {
		r.hasQuery = false
		if err := r.open(r.query); err != nil {
			r.done = true
			r.err = err
			return "", r.err
		}
	}

	fragment, err := r.stream.Recv()
	switch {
	case err == nil:
		r.turn().Response += fragment
		return fragment, nil
	case errors.Is(err, io.EOF):
		r.finish()
		if saveErr := r.a.store.Save(r.a.session); saveErr != nil {
			r.err = saveErr
		} else {
			r.err = io.EOF
		}
	case r.ctx.Err() != nil:
		// Interrupted: leave the file as it was last saved.
		r.finish()
		r.err = err
	default:
		r.finish()
		r.turn().Response = ""
		if saveErr := r.a.store.Save(r.a.session); saveErr != nil {
			slog.Warn("could not save session after failed reply", "id", r.a.session.ID, "error", saveErr)
		}
		r.err = fmt.Errorf("read reply: %w", err)
	}
	return "", r.err
}

// Close releases the model stream. A reply closed before io.EOF is not saved.
func (r *Reply) Close() error {
	r.hasPending = false
	r.hasQuery = false
	if r.err == nil {
		r.err = io.EOF
	}
	return r.finish()
}

func (r *Reply) finish() error {
	r.done = true
	if r.stream == nil {
		return nil
	}
	s := r.stream
	r.stream = nil
	return s.Close()
}

func (r *Reply) turn() *kj.Turn {
	return &r.a.session.Turns[r.index]
}

// WelcomeMessage is printed when a new session is started.
func WelcomeMessage(id int) string {
	return fmt.Sprintf("Started new %s session %d. Pipe a command into %s, or type a request and press Ctrl+D.", kj.Name, id, kj.Name)
}
