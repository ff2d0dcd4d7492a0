package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// transcriptEntry is one exchange written as a [[turn]] table.
type transcriptEntry struct {
	Session  int       `toml:"session"`
	Time     time.Time `toml:"time"`
	Input    string    `toml:"input"`
	Response string    `toml:"response"`
	Error    string    `toml:"error,omitempty"`
}

// writeEntry appends a single TOML-formatted entry to w.
func writeEntry(w io.Writer, e transcriptEntry) {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))

	doc := struct {
		Turn []transcriptEntry `toml:"turn"`
	}{Turn: []transcriptEntry{e}}
	if err := toml.NewEncoder(w).Encode(doc); err != nil {
		slog.Warn("failed to write transcript entry", "error", err)
	}
	fmt.Fprintln(w)
}
