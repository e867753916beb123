package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/ledger"
)

var _ interfaces.CycleStore = (*FileStore)(nil)

// FileStore keeps the cycle collection in a JSON array on disk
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store for path; the file is created on the first Save
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document location
func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing or empty file yields an empty collection;
// an undecodable one yields an error wrapping ErrCorrupt.
func (s *FileStore) Load(ctx context.Context) ([]ledger.Cycle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []ledger.Cycle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decodeCycles(data)
}

// Save replaces the document with cycles
func (s *FileStore) Save(ctx context.Context, cycles []ledger.Cycle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeCycles(cycles, true)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op; files are not held open between calls
func (s *FileStore) Close() error { return nil }

func encodeCycles(cycles []ledger.Cycle, indent bool) ([]byte, error) {
	if cycles == nil {
		cycles = []ledger.Cycle{}
	}
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(cycles, "", "  ")
	} else {
		data, err = json.Marshal(cycles)
	}
	if err != nil {
		return nil, fmt.Errorf("encode cycles: %w", err)
	}
	return data, nil
}

func decodeCycles(data []byte) ([]ledger.Cycle, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []ledger.Cycle{}, nil
	}

	var cycles []ledger.Cycle
	if err := json.Unmarshal(data, &cycles); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cycles == nil {
		cycles = []ledger.Cycle{}
	}
	for i := range cycles {
		if cycles[i].Administrations == nil {
			cycles[i].Administrations = ledger.Ledger{}
		}
		cycles[i].Administrations.Sort()
	}
	return cycles, nil
}
