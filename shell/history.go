// Package shell recovers the invoking command and its input from the user's shell.
package shell

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kj-assistant/kj"
)

// HistoryVar is the environment variable holding the output of `history 1`,
// set by the shell alias that invokes kj.
const HistoryVar = "HISTORY"

// HistoryEntry is one parsed line of shell history.
type HistoryEntry struct {
	Index   int
	Command string
}

// ParseHistory parses lines of the form "<index>  <command>". The index and
// the command are separated by two spaces; further double spaces belong to
// the command. Any line that does not match fails with kj.ErrEnvironment.
func ParseHistory(history string) ([]HistoryEntry, error) {
	history = strings.TrimRight(history, "\r\n")

	var entries []HistoryEntry
	for _, line := range strings.Split(history, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "  ")
		if len(fields) < 2 || !isDigits(fields[0]) {
			return nil, fmt.Errorf("%w: could not parse command history line %q", kj.ErrEnvironment, line)
		}
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%w: history index %q: %v", kj.ErrEnvironment, fields[0], err)
		}
		entries = append(entries, HistoryEntry{
			Index:   index,
			Command: strings.Join(fields[1:], "  "),
		})
	}
	return entries, nil
}

// LastCommand returns the most recent command recorded in $HISTORY.
func LastCommand() (string, error) {
	history, ok := os.LookupEnv(HistoryVar)
	if !ok {
		return "", fmt.Errorf("%w: $%s is not set; check that the kj shell alias is installed", kj.ErrEnvironment, HistoryVar)
	}
	entries, err := ParseHistory(history)
	if err != nil {
		return "", err
	}
	return entries[len(entries)-1].Command, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
