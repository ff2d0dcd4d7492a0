// Package recall finds past turns similar to a query using embeddings and an
// in-memory HNSW graph.
package recall

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/coder/hnsw"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/session"
	"github.com/kj-assistant/kj/shell"
)

// maxEmbedBytes bounds the text embedded for one turn.
const maxEmbedBytes = 4096

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Source lists and loads sessions.
type Source interface {
	List() ([]session.Summary, error)
	Load(id int) (*kj.Session, error)
}

// Hit is one turn returned by Search.
type Hit struct {
	SessionID int
	Index     int
	Turn      kj.Turn
}

// Index holds one vector per indexed turn, keyed "<session>:<turn>".
type Index struct {
	embedder Embedder

	mu     sync.RWMutex
	graph  *hnsw.Graph[string]
	hits   map[string]Hit
	hashes map[string]string // key -> hash of the embedded text
}

// NewIndex creates an empty index.
func NewIndex(embedder Embedder) *Index {
	return &Index{
		embedder: embedder,
		graph:    hnsw.NewGraph[string](),
		hits:     make(map[string]Hit),
		hashes:   make(map[string]string),
	}
}

// Len returns the number of indexed turns.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph.Len()
}

// Add indexes every turn of every session in src. Turns whose text is
// unchanged since they were last embedded are not embedded again. A failed
// embedding request stops indexing and is returned.
func (idx *Index) Add(ctx context.Context, src Source) error {
	summaries, err := src.List()
	if err != nil {
		return err
	}

	for _, sum := range summaries {
		sess, err := src.Load(sum.ID)
		if err != nil {
			slog.Warn("recall: skipping session", "id", sum.ID, "error", err)
			continue
		}
		for i, turn := range sess.Turns {
			if err := idx.addTurn(ctx, sess.ID, i, turn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (idx *Index) addTurn(ctx context.Context, sessionID, index int, turn kj.Turn) error {
	key := turnKey(sessionID, index)
	text := embedText(turn)
	hash := hashText(text)

	idx.mu.RLock()
	_, indexed := idx.graph.Lookup(key)
	fresh := indexed && idx.hashes[key] == hash
	idx.mu.RUnlock()

	hit := Hit{SessionID: sessionID, Index: index, Turn: turn}
	if fresh {
		idx.mu.Lock()
		idx.hits[key] = hit
		idx.mu.Unlock()
		return nil
	}

	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed turn %s: %w", key, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if indexed {
		idx.graph.Delete(key)
	}
	idx.graph.Add(hnsw.MakeNode(key, vec))
	idx.hits[key] = hit
	idx.hashes[key] = hash
	return nil
}

// Search embeds query and returns up to k turns nearest to it, nearest first.
func (idx *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := idx.embedder.Embed(ctx, shell.Redact(query))
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph.Len() == 0 {
		return nil, nil
	}

	neighbors := idx.graph.Search(vec, k)
	hits := make([]Hit, 0, len(neighbors))
	for _, n := range neighbors {
		// Vectors restored from the cache have no hit until Add sees their turn.
		if hit, ok := idx.hits[n.Key]; ok {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func turnKey(sessionID, index int) string {
	return strconv.Itoa(sessionID) + ":" + strconv.Itoa(index)
}

// embedText is the redacted command followed by the turn's input.
func embedText(turn kj.Turn) string {
	text := shell.Redact(turn.Command)
	if turn.Stdin != "" {
		text += "\n" + turn.Stdin
	}
	if len(text) > maxEmbedBytes {
		cut := maxEmbedBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
