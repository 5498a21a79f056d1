// Package sessionstate persists browser cookies between runs so a solved
// verification challenge carries over.
package sessionstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/prodrefs/internal/browser"
)

// DefaultFile is the state file name used when none is configured.
const DefaultFile = "tokopedia_storage_state.json"

// Store reads and writes one state file.
type Store struct {
	path   string
	logger *zap.Logger
}

// New returns a Store for path.
func New(path string, logger *zap.Logger) *Store {
	if path == "" {
		path = DefaultFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Load reads the state file. A missing file yields an empty state.
func (s *Store) Load() (browser.StorageState, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return browser.StorageState{}, nil
	}
	if err != nil {
		return browser.StorageState{}, fmt.Errorf("read session state: %w", err)
	}
	var state browser.StorageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return browser.StorageState{}, fmt.Errorf("decode session state %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes state atomically.
func (s *Store) Save(state browser.StorageState) error {
	if state.Cookies == nil {
		state.Cookies = []browser.Cookie{}
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session state: %w", err)
	}
	return nil
}

// Restore loads the file into session. A corrupt file is logged and ignored.
func (s *Store) Restore(ctx context.Context, session browser.Session) error {
	state, err := s.Load()
	if err != nil {
		s.logger.Warn("ignoring unreadable session state", zap.String("path", s.path), zap.Error(err))
		return nil
	}
	if len(state.Cookies) == 0 {
		return nil
	}
	if err := session.Restore(ctx, state); err != nil {
		return fmt.Errorf("restore session state: %w", err)
	}
	s.logger.Info("session state restored", zap.String("path", s.path), zap.Int("cookies", len(state.Cookies)))
	return nil
}

// Capture saves the session's current cookies.
func (s *Store) Capture(ctx context.Context, session browser.Session) error {
	state, err := session.State(ctx)
	if err != nil {
		return fmt.Errorf("read browser state: %w", err)
	}
	if err := s.Save(state); err != nil {
		return err
	}
	s.logger.Info("session state saved", zap.String("path", s.path), zap.Int("cookies", len(state.Cookies)))
	return nil
}
