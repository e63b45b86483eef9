package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// State is the resumable sync record for one environment pairing. It is read
// at the start of a catch-up run and rewritten atomically after any run that
// mutated a replica.
type State struct {
	LastSync        time.Time  `json:"last_sync"`
	LocalLastChange *time.Time `json:"local_last_change"`
	CloudLastChange *time.Time `json:"cloud_last_change"`
}

// LoadState reads the state file at path. A missing file is a zero state,
// not an error: the first run of a pairing has nothing to resume from.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("sync: read state %s: %w", path, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("sync: decode state %s: %w", path, err)
	}
	return &state, nil
}

// SaveState rewrites the state file atomically via a temp file and rename,
// so a crash mid-write never leaves a truncated record.
func SaveState(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("sync: encode state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sync: write state %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("sync: replace state %s: %w", path, err)
	}
	return nil
}
