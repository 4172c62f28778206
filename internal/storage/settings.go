package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
)

// SettingsStore persists the user's API key, model, and prompt as a single
// JSON record. Reads never fail: a missing or unreadable file is treated as
// an empty configuration.
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

func NewSettingsStore(baseDir string) (*SettingsStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, &domain.StorageError{Op: "init", Err: err}
	}
	return &SettingsStore{path: filepath.Join(baseDir, "settings.json")}, nil
}

func (s *SettingsStore) Get() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Save merges the patch into the current record and persists the whole
// merged record. Nil fields are preserved, not cleared.
func (s *SettingsStore) Save(patch domain.SettingsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.readLocked()
	if patch.APIKey != nil {
		settings.APIKey = *patch.APIKey
	}
	if patch.Model != nil {
		settings.Model = *patch.Model
	}
	if patch.Prompt != nil {
		settings.Prompt = *patch.Prompt
	}

	return s.writeLocked(settings)
}

// ClearAPIKey removes only the credential, leaving model and prompt intact.
func (s *SettingsStore) ClearAPIKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.readLocked()
	settings.APIKey = ""
	return s.writeLocked(settings)
}

func (s *SettingsStore) readLocked() domain.Settings {
	var settings domain.Settings
	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.Settings{}
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return domain.Settings{}
	}
	return settings
}

func (s *SettingsStore) writeLocked(settings domain.Settings) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "settings-*.json")
	if err != nil {
		return &domain.StorageError{Op: "create temp", Err: err}
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(settings); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &domain.StorageError{Op: "encode", Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &domain.StorageError{Op: "close temp", Err: err}
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return &domain.StorageError{Op: "replace", Err: err}
	}

	return nil
}
