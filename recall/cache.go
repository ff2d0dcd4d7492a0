package recall

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/coder/hnsw"
	"github.com/google/renameio"
)

// CacheFileName is the cache file kept in the session storage directory.
const CacheFileName = "recall.json"

// CachePath returns the cache location for a storage directory.
func CachePath(dir string) string {
	return filepath.Join(dir, CacheFileName)
}

type cacheFile struct {
	Model   string       `json:"model"`
	Entries []cacheEntry `json:"entries"`
}

type cacheEntry struct {
	Key       string    `json:"key"`
	Hash      string    `json:"hash"`
	Embedding []float32 `json:"embedding"`
}

// SaveCache writes the indexed vectors to path.
func (idx *Index) SaveCache(path string, model string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entries := make([]cacheEntry, 0, len(idx.hashes))
	for key, hash := range idx.hashes {
		vec, ok := idx.graph.Lookup(key)
		if !ok {
			continue
		}
		entries = append(entries, cacheEntry{Key: key, Hash: hash, Embedding: vec})
	}

	data, err := json.Marshal(cacheFile{Model: model, Entries: entries})
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, data, 0o644)
}

// LoadCache restores vectors saved by SaveCache. A cache written for a
// different model is skipped. Turns are attached to the vectors by the next Add.
func (idx *Index) LoadCache(path string, model string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return err
	}
	if cf.Model != model {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	nodes := make([]hnsw.Node[string], 0, len(cf.Entries))
	for _, e := range cf.Entries {
		if _, exists := idx.graph.Lookup(e.Key); exists || len(e.Embedding) == 0 {
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(e.Key, e.Embedding))
		idx.hashes[e.Key] = e.Hash
	}
	if len(nodes) > 0 {
		idx.graph.Add(nodes...)
	}
	return nil
}
