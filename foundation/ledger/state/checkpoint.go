package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Checkpoint filename convention: checkpoint_<unix-seconds>.json. The
// embedded timestamp orders snapshots for retention cleanup.
const (
	checkpointPrefix = "checkpoint_"
	checkpointSuffix = ".json"
)

// CreateCheckpoint saves the current chain under a distinctly named
// snapshot file and returns the snapshot's name. An empty name derives one
// from the current time.
func (s *State) CreateCheckpoint(name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("%s%d%s", checkpointPrefix, time.Now().Unix(), checkpointSuffix)
	}

	if err := s.SaveAs(name); err != nil {
		return "", err
	}

	s.evHandler("state: checkpoint created: %s", name)
	return name, nil
}

// RestoreCheckpoint loads the named snapshot as the active chain. A
// missing snapshot is a clean not-found outcome.
func (s *State) RestoreCheckpoint(name string) (bool, error) {
	return s.LoadFrom(name)
}

// ListCheckpoints enumerates the snapshot files in the data directory by
// naming convention, oldest first.
func (s *State) ListCheckpoints() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}

	var checkpoints []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && strings.HasPrefix(name, checkpointPrefix) && strings.HasSuffix(name, checkpointSuffix) {
			checkpoints = append(checkpoints, name)
		}
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpointStamp(checkpoints[i]) < checkpointStamp(checkpoints[j])
	})

	return checkpoints, nil
}

// CleanupOldCheckpoints deletes the oldest snapshots beyond the retention
// count and returns how many were removed.
func (s *State) CleanupOldCheckpoints(maxKeep int) (int, error) {
	checkpoints, err := s.ListCheckpoints()
	if err != nil {
		return 0, err
	}

	if len(checkpoints) <= maxKeep {
		return 0, nil
	}

	var removed int
	for _, name := range checkpoints[:len(checkpoints)-maxKeep] {
		if err := os.Remove(filepath.Join(s.dataDir, name)); err != nil {
			return removed, fmt.Errorf("remove checkpoint %s: %w", name, err)
		}
		removed++
		s.evHandler("state: checkpoint removed: %s", name)
	}

	return removed, nil
}

// checkpointStamp extracts the numeric timestamp embedded in a checkpoint
// filename. Malformed names sort first.
func checkpointStamp(name string) int64 {
	core := strings.TrimSuffix(strings.TrimPrefix(name, checkpointPrefix), checkpointSuffix)

	stamp, err := strconv.ParseInt(core, 10, 64)
	if err != nil {
		return 0
	}
	return stamp
}
