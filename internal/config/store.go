package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Settings holds user-configurable defaults for button-triggered scans.
type Settings struct {
	ColorMode  string `json:"colorMode"`  // "color", "grayscale", "bw"; empty keeps the device mode
	Resolution int    `json:"resolution"` // dpi, 0 keeps the device resolution
	Source     string `json:"source"`     // "flatbed", "adf", "duplex"; empty keeps the device source
	Format     string `json:"format"`     // MIME type of the saved files
	SaveType   string `json:"saveType"`   // "none", "local"
	SavePath   string `json:"savePath"`   // directory path when SaveType="local"
}

// DefaultSettings returns the default scan settings.
func DefaultSettings() Settings {
	return Settings{
		ColorMode: "color",
		Format:    "application/pdf",
		SaveType:  "none",
	}
}

var (
	validColorModes = []string{"", "color", "grayscale", "bw"}
	validSources    = []string{"", "flatbed", "adf", "duplex"}
	validFormats    = []string{"application/pdf", "image/jpeg", "image/png", "image/tiff"}
	validSaveTypes  = []string{"none", "local"}
)

// Validate checks the settings for unknown values.
func (s Settings) Validate() error {
	switch {
	case !slices.Contains(validColorModes, s.ColorMode):
		return fmt.Errorf("invalid color mode %q", s.ColorMode)
	case !slices.Contains(validSources, s.Source):
		return fmt.Errorf("invalid source %q", s.Source)
	case !slices.Contains(validFormats, s.Format):
		return fmt.Errorf("invalid format %q", s.Format)
	case !slices.Contains(validSaveTypes, s.SaveType):
		return fmt.Errorf("invalid save type %q", s.SaveType)
	case s.Resolution < 0:
		return fmt.Errorf("invalid resolution %d", s.Resolution)
	case s.SaveType == "local" && s.SavePath == "":
		return fmt.Errorf("save path is required for local saving")
	}
	return nil
}

// Store provides thread-safe settings persistence backed by a JSON file.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	path     string
}

// NewStore creates a Store that persists settings to dataDir/settings.json.
// If the file does not exist or is invalid, default settings are used.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		path:     filepath.Join(dataDir, "settings.json"),
		settings: DefaultSettings(),
	}
	s.load()
	return s, nil
}

// NewMemoryStore creates a Store that keeps settings in memory only (no file persistence).
func NewMemoryStore() *Store {
	return &Store{settings: DefaultSettings()}
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update validates and replaces the settings and persists them to disk.
func (s *Store) Update(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.save()
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return // file missing is OK, use defaults
	}
	settings := DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		slog.Warn("invalid settings file, using defaults", "path", s.path, "err", err)
		return
	}
	if err := settings.Validate(); err != nil {
		slog.Warn("invalid settings, using defaults", "path", s.path, "err", err)
		return
	}
	s.settings = settings
}

func (s *Store) save() error {
	if s.path == "" {
		return nil // memory-only mode
	}
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
