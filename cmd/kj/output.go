package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model/embedding"
	"github.com/kj-assistant/kj/recall"
	"github.com/kj-assistant/kj/session"
)

const commandColumnWidth = 60

// printList writes one row per stored session.
func printList(w io.Writer, store *session.Store) error {
	summaries, err := store.List()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintf(w, "No sessions in %s\n", store.Dir())
		return nil
	}

	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true)
	idCol := r.NewStyle().Width(5).Align(lipgloss.Right).PaddingRight(2)
	turnsCol := r.NewStyle().Width(7).Align(lipgloss.Right).PaddingRight(2)
	timeCol := r.NewStyle().Width(18)
	dim := r.NewStyle().Faint(true)

	fmt.Fprintln(w, header.Render(
		idCol.Render("ID")+turnsCol.Render("TURNS")+timeCol.Render("MODIFIED")+"LAST COMMAND"))
	for _, s := range summaries {
		fmt.Fprintln(w, idCol.Render(fmt.Sprint(s.ID))+
			turnsCol.Render(fmt.Sprint(s.Turns))+
			timeCol.Render(s.ModTime.Local().Format("2006-01-02 15:04"))+
			dim.Render(truncate(firstLine(s.LastCommand), commandColumnWidth)))
	}
	return nil
}

// printSession writes a session as YAML.
func printSession(w io.Writer, store *session.Store, id int) error {
	sess, err := store.Load(id)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sess); err != nil {
		return fmt.Errorf("encode session %d: %w", id, err)
	}
	return enc.Close()
}

// printSearch indexes the stored turns and prints those nearest to query.
// Vectors are cached next to the sessions between runs.
func printSearch(ctx context.Context, w io.Writer, cfg *kj.Config, store *session.Store, query string, k int) error {
	emb := embedding.NewEmbedder(kj.ResolveEmbeddingURL(cfg), kj.ResolveEmbeddingModel(cfg), kj.ResolveEmbeddingTTL(cfg))
	defer emb.Close()

	idx := recall.NewIndex(emb)
	cachePath := recall.CachePath(store.Dir())
	if err := idx.LoadCache(cachePath, emb.Model()); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("ignoring recall cache", "path", cachePath, "error", err)
	}
	if err := idx.Add(ctx, store); err != nil {
		return err
	}
	if err := idx.SaveCache(cachePath, emb.Model()); err != nil {
		slog.Warn("could not save recall cache", "path", cachePath, "error", err)
	}

	hits, err := idx.Search(ctx, query, k)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintln(w, "No matching turns.")
		return nil
	}

	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true)
	body := r.NewStyle().PaddingLeft(2)
	for i, h := range hits {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, title.Render(fmt.Sprintf("session %d, turn %d: %s", h.SessionID, h.Index, firstLine(h.Turn.Command))))
		if h.Turn.Response != "" {
			fmt.Fprintln(w, body.Render(truncate(h.Turn.Response, 400)))
		}
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
