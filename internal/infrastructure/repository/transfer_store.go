package repository

import (
	"devctl/internal/domain"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
)

const TransferStateFile = "transfer_status.json"

// TransferStore persists the progress of at most one upload. Saving the state of
// a different file replaces the previous record; only one resumable transfer is
// tracked at a time.
type TransferStore struct {
	path string
}

func NewTransferStore(stateDir string) *TransferStore {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		log.Warn("Failed to create state directory", "dir", stateDir, "err", err)
	}
	return &TransferStore{path: filepath.Join(stateDir, TransferStateFile)}
}

func (ts *TransferStore) Get() (*domain.TransferState, bool) {
	var state domain.TransferState
	if err := readJSON(ts.path, &state); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Transfer state unreadable", "err", err)
		}
		return nil, false
	}
	if state.Filename == "" || state.Position < 0 || state.Position > state.TotalSize {
		log.Warn("Ignoring invalid transfer state", "file", state.Filename,
			"position", state.Position, "total", state.TotalSize)
		return nil, false
	}
	log.Debug("Found transfer state", "file", state.Filename, "position", state.Position, "total", state.TotalSize)
	return &state, true
}

func (ts *TransferStore) Save(state domain.TransferState) error {
	if err := writeJSON(ts.path, state); err != nil {
		return fmt.Errorf("failed to save transfer state: %w", err)
	}
	log.Trace("Saved transfer state", "file", state.Filename, "position", state.Position, "total", state.TotalSize)
	return nil
}

func (ts *TransferStore) Delete() error {
	if err := os.Remove(ts.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete transfer state: %w", err)
	}
	log.Debug("Deleted transfer state")
	return nil
}
