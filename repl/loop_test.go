package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model"
	"github.com/kj-assistant/kj/session"
)

func newTestRepl(t *testing.T, provider model.Provider) (*repl, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var ui, transcript bytes.Buffer
	r := &repl{
		store:      session.NewStore(t.TempDir()),
		provider:   provider,
		ui:         &ui,
		transcript: &transcript,
		now:        func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) },
	}
	if err := r.bind(false); err != nil {
		t.Fatalf("bind: %v", err)
	}
	return r, &ui, &transcript
}

func fixedReply(fragments ...string) model.Provider {
	return model.ProviderFunc(func(context.Context, string) (model.Stream, error) {
		return model.Fragments(fragments...), nil
	})
}

func TestHandleChatTurn(t *testing.T) {
	r, ui, transcript := newTestRepl(t, fixedReply("Try ", "du -sh *"))

	quit, err := r.handle(context.Background(), "  which folder is biggest?  ")
	if err != nil || quit {
		t.Fatalf("handle = %v, %v", quit, err)
	}
	if !strings.Contains(ui.String(), "Try du -sh *\n") {
		t.Errorf("ui output = %q", ui.String())
	}

	sess, err := r.store.Load(0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := kj.Turn{Command: "kj-repl", Stdin: "which folder is biggest?", Response: "Try du -sh *"}
	if len(sess.Turns) != 1 || sess.Turns[0] != want {
		t.Errorf("turns = %+v, want [%+v]", sess.Turns, want)
	}

	var doc struct {
		Turn []transcriptEntry `toml:"turn"`
	}
	if _, err := toml.Decode(transcript.String(), &doc); err != nil {
		t.Fatalf("transcript is not valid TOML: %v\n%s", err, transcript.String())
	}
	if len(doc.Turn) != 1 {
		t.Fatalf("transcript turns = %d, want 1", len(doc.Turn))
	}
	got := doc.Turn[0]
	if got.Session != 0 || got.Input != "which folder is biggest?" || got.Response != "Try du -sh *" || got.Error != "" {
		t.Errorf("transcript entry = %+v", got)
	}
	if !got.Time.Equal(r.now()) {
		t.Errorf("transcript time = %v", got.Time)
	}
}

func TestHandleCommands(t *testing.T) {
	r, ui, _ := newTestRepl(t, fixedReply("ok"))

	if quit, err := r.handle(context.Background(), ""); quit || err != nil {
		t.Errorf("empty line = %v, %v", quit, err)
	}
	if quit, err := r.handle(context.Background(), ":new"); quit || err != nil {
		t.Fatalf(":new = %v, %v", quit, err)
	}
	if r.assistant.Session().ID != 1 {
		t.Errorf("session after :new = %d, want 1", r.assistant.Session().ID)
	}
	if !strings.Contains(ui.String(), "session 1") {
		t.Errorf("no welcome for new session: %q", ui.String())
	}
	for _, cmd := range []string{":quit", ":q"} {
		if quit, err := r.handle(context.Background(), cmd); !quit || err != nil {
			t.Errorf("%s = %v, %v", cmd, quit, err)
		}
	}
}

func TestHandleQueryError(t *testing.T) {
	provider := model.ProviderFunc(func(context.Context, string) (model.Stream, error) {
		return nil, &kj.NetworkError{StatusCode: 500, Body: "boom"}
	})
	r, _, transcript := newTestRepl(t, provider)

	quit, err := r.handle(context.Background(), "hello")
	var netErr *kj.NetworkError
	if quit || !errors.As(err, &netErr) {
		t.Fatalf("handle = %v, %v", quit, err)
	}

	var doc struct {
		Turn []transcriptEntry `toml:"turn"`
	}
	if _, err := toml.Decode(transcript.String(), &doc); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(doc.Turn) != 1 || !strings.Contains(doc.Turn[0].Error, "500") {
		t.Errorf("transcript = %+v", doc.Turn)
	}
}

func TestHandleWithoutTranscript(t *testing.T) {
	r, _, transcript := newTestRepl(t, fixedReply("ok"))
	r.transcript = nil
	if _, err := r.handle(context.Background(), "hi"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if transcript.Len() != 0 {
		t.Errorf("transcript written while disabled: %q", transcript.String())
	}
}
