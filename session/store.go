// Package session persists kj sessions as one JSON document per conversation.
//
// Files are named session.<id>.json inside a single storage directory. New ids
// are one more than the largest id found on disk, and the most recent session
// is whichever file was modified last.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/google/renameio"

	"github.com/kj-assistant/kj"
)

var reSessionFile = regexp.MustCompile(`^session\.(0|[1-9][0-9]*)\.json$`)

// Store reads and writes session files in one directory.
// It holds no state besides the directory, so every query reflects the disk.
type Store struct {
	dir string
}

// Summary describes a session file without its full history.
type Summary struct {
	ID          int
	Turns       int
	ModTime     time.Time
	LastCommand string
}

type fileEntry struct {
	id      int
	modTime time.Time
}

// NewStore creates a store rooted at dir. The directory is not touched until
// the first operation.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for the session with the given id.
func (s *Store) Path(id int) string {
	return filepath.Join(s.dir, kj.FileName(id))
}

// Create writes a new, empty session with the next free id and returns it.
func (s *Store) Create(systemPrompt *string) (*kj.Session, error) {
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}

	next := 0
	for _, e := range entries {
		if e.id >= next {
			next = e.id + 1
		}
	}

	sess := &kj.Session{
		ID:               next,
		SystemPrompt:     systemPrompt,
		StorageDirectory: s.dir,
		Turns:            []kj.Turn{},
		Context:          []int{},
	}
	if err := s.Save(sess); err != nil {
		return nil, err
	}
	slog.Debug("created session", "id", sess.ID, "dir", s.dir)
	return sess, nil
}

// Load reads the session with the given id.
func (s *Store) Load(id int) (*kj.Session, error) {
	path := s.Path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d (%s)", kj.ErrNotFound, id, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", kj.ErrStorage, path, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", kj.ErrFormat, path, err)
	}
	if sess.ID != id {
		slog.Warn("session id does not match file name, using file name", "path", path, "id", sess.ID)
		sess.ID = id
	}
	return sess, nil
}

// FindMostRecent returns the id of the most recently modified session file.
// ok is false when the directory holds no session files. Equal modification
// times are broken in favour of the larger id.
func (s *Store) FindMostRecent() (id int, ok bool, err error) {
	entries, err := s.scan()
	if err != nil {
		return 0, false, err
	}
	if len(entries) == 0 {
		return 0, false, nil
	}

	best := entries[0]
	for _, e := range entries[1:] {
		if e.modTime.After(best.modTime) || (e.modTime.Equal(best.modTime) && e.id > best.id) {
			best = e
		}
	}
	return best.id, true, nil
}

// LoadMostRecent loads the most recently modified session, or creates a new
// one with the given system prompt when none exists. created reports which
// of the two happened.
func (s *Store) LoadMostRecent(systemPrompt *string) (sess *kj.Session, created bool, err error) {
	id, ok, err := s.FindMostRecent()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		sess, err := s.Create(systemPrompt)
		return sess, err == nil, err
	}
	sess, err = s.Load(id)
	return sess, false, err
}

// Save writes the full session to its file. The document is written to a
// temporary file and renamed into place, so readers never see a partial write.
func (s *Store) Save(sess *kj.Session) error {
	data, err := encodeSession(sess)
	if err != nil {
		return fmt.Errorf("%w: encode session %d: %v", kj.ErrStorage, sess.ID, err)
	}
	path := s.Path(sess.ID)
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", kj.ErrStorage, path, err)
	}
	return nil
}

// List returns a summary of every session file, ordered by id.
// Files that cannot be parsed are skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := s.scan()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		sess, err := s.Load(e.id)
		if err != nil {
			slog.Warn("skipping unreadable session", "id", e.id, "error", err)
			continue
		}
		sum := Summary{ID: e.id, Turns: len(sess.Turns), ModTime: e.modTime}
		if last := sess.LastTurn(); last != nil {
			sum.LastCommand = last.Command
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// scan lists the session files in the directory.
func (s *Store) scan() ([]fileEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kj.ErrStorage, err)
	}

	var entries []fileEntry
	for _, de := range dirEntries {
		m := reSessionFile.FindStringSubmatch(de.Name())
		if m == nil || !de.Type().IsRegular() {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue // out of range
		}
		info, err := de.Info()
		if err != nil {
			continue // removed while scanning
		}
		entries = append(entries, fileEntry{id: id, modTime: info.ModTime()})
	}
	return entries, nil
}

// document is the on-disk shape of a session. turns is kept raw so that its
// structure can be checked before it is trusted.
type document struct {
	ID               int             `json:"id"`
	SystemPrompt     *string         `json:"system_prompt"`
	StorageDirectory string          `json:"storage_directory"`
	Turns            json.RawMessage `json:"turns"`
	Context          []int           `json:"context"`
}

var turnFields = []string{"command", "stdin", "response"}

func encodeSession(sess *kj.Session) ([]byte, error) {
	out := *sess
	if out.Turns == nil {
		out.Turns = []kj.Turn{}
	}
	if out.Context == nil {
		out.Context = []int{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeSession(data []byte) (*kj.Session, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	turns, err := decodeTurns(doc.Turns)
	if err != nil {
		return nil, err
	}
	if doc.Context == nil {
		doc.Context = []int{}
	}
	return &kj.Session{
		ID:               doc.ID,
		SystemPrompt:     doc.SystemPrompt,
		StorageDirectory: doc.StorageDirectory,
		Turns:            turns,
		Context:          doc.Context,
	}, nil
}

// decodeTurns accepts an absent or null turns field, or an array whose
// elements are objects with exactly the string fields command, stdin and response.
func decodeTurns(raw json.RawMessage) ([]kj.Turn, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []kj.Turn{}, nil
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("turns is not an array")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("turns: %v", err)
	}

	turns := make([]kj.Turn, 0, len(elems))
	for i, elem := range elems {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(elem, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("turn %d is not an object", i)
		}
		if len(fields) != len(turnFields) {
			return nil, fmt.Errorf("turn %d has %d fields, want %v", i, len(fields), turnFields)
		}
		values := make(map[string]string, len(turnFields))
		for _, name := range turnFields {
			v, ok := fields[name]
			if !ok {
				return nil, fmt.Errorf("turn %d is missing %q", i, name)
			}
			var text string
			if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
				return nil, fmt.Errorf("turn %d field %q is null", i, name)
			}
			if err := json.Unmarshal(v, &text); err != nil {
				return nil, fmt.Errorf("turn %d field %q is not a string", i, name)
			}
			values[name] = text
		}
		turns = append(turns, kj.Turn{
			Command:  values["command"],
			Stdin:    values["stdin"],
			Response: values["response"],
		})
	}
	return turns, nil
}
