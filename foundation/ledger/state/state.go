// Package state implements the durable-state layer for the ledger: atomic
// save and load of the chain document, background autosave, checkpoint
// snapshots, and read-only exports.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/medledger/ledger/foundation/ledger/chain"
)

// DefaultFilename is the name of the primary chain document inside the
// data directory.
const DefaultFilename = "blockchain.json"

// DefaultSaveInterval is the autosave cadence when the configuration
// leaves it unset.
const DefaultSaveInterval = time.Minute

// =============================================================================

// Config represents the configuration for the durable-state layer.
type Config struct {
	Chain        *chain.Chain
	DataDir      string
	SaveInterval time.Duration
	EvHandler    chain.EventHandler
}

// State manages the chain's presence on disk. All writers funnel through
// one mutex so an autosave cycle and an explicit save can never interleave
// on the same destination file.
type State struct {
	chain        *chain.Chain
	dataDir      string
	saveInterval time.Duration
	evHandler    chain.EventHandler

	saveMu sync.Mutex

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
	shut    chan struct{}
}

// New constructs the durable-state layer, creating the data directory if
// it does not exist.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	saveInterval := cfg.SaveInterval
	if saveInterval <= 0 {
		saveInterval = DefaultSaveInterval
	}

	return &State{
		chain:        cfg.Chain,
		dataDir:      cfg.DataDir,
		saveInterval: saveInterval,
		evHandler:    ev,
	}, nil
}

// Save writes the chain document to the primary file.
func (s *State) Save() error {
	return s.SaveAs(DefaultFilename)
}

// SaveAs serializes the entire chain document to a temporary file in the
// data directory and atomically renames it over the named file, so a
// reader never observes a partial write.
func (s *State) SaveAs(filename string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	data, err := json.MarshalIndent(s.chain.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain document: %w", err)
	}

	tmp, err := os.CreateTemp(s.dataDir, filename+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}

	// CreateTemp opens the file 0600; the document should carry the same
	// permissions as every other file in the data directory.
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod temp file: %w", err)
	}

	target := filepath.Join(s.dataDir, filename)
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", target, err)
	}

	s.evHandler("state: save: %s: bytes[%d]", target, len(data))
	return nil
}

// Load reads the primary file back into the chain.
func (s *State) Load() (bool, error) {
	return s.LoadFrom(DefaultFilename)
}

// LoadFrom deserializes the named file and replaces the in-memory chain's
// blocks, pending pool, difficulty, and peer set in place. A missing file
// is a clean not-found outcome, not an error, so callers can fall back to
// a fresh genesis chain.
func (s *State) LoadFrom(filename string) (bool, error) {
	path := filepath.Join(s.dataDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.evHandler("state: load: %s: not found", path)
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	var doc chain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", path, err)
	}

	s.chain.Restore(doc)

	s.evHandler("state: load: %s: blocks[%d]", path, len(doc.Chain))
	return true, nil
}

// =============================================================================

// StartAutoSave launches the background autosave goroutine, reporting
// whether it was started. A failed save cycle is logged and followed by a
// backoff pause; the loop itself keeps running.
func (s *State) StartAutoSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.evHandler("state: autosave: already running")
		return false
	}

	s.running = true
	s.shut = make(chan struct{})
	s.wg.Add(1)

	go s.autoSave(s.shut)

	s.evHandler("state: autosave: started: interval[%v]", s.saveInterval)
	return true
}

// StopAutoSave signals the autosave goroutine to stop and waits for it,
// reporting whether a running loop was stopped. Stop requests interrupt
// the interval sleep immediately.
func (s *State) StopAutoSave() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.evHandler("state: autosave: not running")
		return false
	}
	s.running = false
	close(s.shut)
	s.mu.Unlock()

	s.wg.Wait()

	s.evHandler("state: autosave: stopped")
	return true
}

func (s *State) autoSave(shut chan struct{}) {
	defer s.wg.Done()

	s.evHandler("state: autosave: G started")
	defer s.evHandler("state: autosave: G completed")

	bo := backoff.NewExponentialBackOff()

	for {
		select {
		case <-shut:
			return
		case <-time.After(s.saveInterval):
		}

		if err := s.Save(); err != nil {
			s.evHandler("state: autosave: ERROR: %s", err)

			select {
			case <-shut:
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}
		bo.Reset()
	}
}
