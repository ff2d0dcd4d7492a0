package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/session"
)

// pickFromTerminal asks for a session id on the controlling terminal, since
// stdin carries the request.
func pickFromTerminal(store *session.Store) (int, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: no terminal for choosing a session, pass an id to --switch-session", kj.ErrEnvironment)
	}
	defer tty.Close()
	return pick(store, tty, tty)
}

// pick lists the sessions on out and reads the chosen id from in. An empty
// answer selects the most recent session.
func pick(store *session.Store, in io.Reader, out io.Writer) (int, error) {
	if err := printList(out, store); err != nil {
		return 0, err
	}
	recent, ok, err := store.FindMostRecent()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no sessions in %s", kj.ErrNotFound, store.Dir())
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Session id [%d]: ", recent)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("no session chosen")
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			return recent, nil
		}
		id, err := parseSessionID(answer)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if _, err := os.Stat(store.Path(id)); err != nil {
			fmt.Fprintf(out, "session %d does not exist\n", id)
			continue
		}
		return id, nil
	}
}
