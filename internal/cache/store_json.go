package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	ioutils "github.com/handiism/deck-media/internal/io"
)

const jsonIndexVersion = 1

type jsonIndex struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// jsonStore keeps the whole index in one file and rewrites it atomically on
// every change.
type jsonStore struct {
	path string
}

func newJSONStore(path string) *jsonStore {
	return &jsonStore{path: path}
}

func (s *jsonStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]Entry), nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx jsonIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	for k, e := range idx.Entries {
		e.Key = k
		idx.Entries[k] = e
	}
	return idx.Entries, nil
}

func (s *jsonStore) Put(_ Entry, all map[string]Entry) error {
	return s.write(all)
}

func (s *jsonStore) Delete(_ string, all map[string]Entry) error {
	return s.write(all)
}

func (s *jsonStore) Clear() error {
	return s.write(map[string]Entry{})
}

func (s *jsonStore) Close() error { return nil }

func (s *jsonStore) write(all map[string]Entry) error {
	data, err := json.MarshalIndent(jsonIndex{Version: jsonIndexVersion, Entries: all}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return ioutils.WriteFileAtomic(s.path, data)
}

func dirOf(path string) string {
	return filepath.Dir(path)
}
