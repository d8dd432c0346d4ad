// Package configstore persists the identity of the last successfully paired
// scanner so reconnection does not require re-discovery. It is a dumb
// persistence adapter: the connection manager decides when to call it.
package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// SavedScannerConfig is the durable record of a paired scanner. Every field
// except DeviceID and DeviceName may be absent.
type SavedScannerConfig struct {
	DeviceID           string `yaml:"device_id"`
	DeviceName         string `yaml:"device_name"`
	Manufacturer       string `yaml:"manufacturer,omitempty"`
	ServiceUUID        string `yaml:"service_uuid,omitempty"`
	CharacteristicUUID string `yaml:"characteristic_uuid,omitempty"`
}

// Store abstracts saved-scanner persistence. Load returns (nil, nil) when no
// usable config exists; a config with a missing device id or name is treated
// as "no saved scanner".
type Store interface {
	Load() (*SavedScannerConfig, error)
	Save(cfg *SavedScannerConfig) error
	Clear() error
}

// FileStore persists the config as a YAML file.
type FileStore struct {
	path   string
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string, logger *logrus.Logger) *FileStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &FileStore{path: path, logger: logger}
}

// DefaultPath returns the per-user location of the saved scanner config.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "scanlink", "scanner.yaml"), nil
}

func (s *FileStore) Load() (*SavedScannerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scanner config: %w", err)
	}

	var cfg SavedScannerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// Unparsable config degrades to "no saved scanner" rather than
		// wedging startup.
		s.logger.WithError(err).Warn("Ignoring unparsable scanner config")
		return nil, nil
	}

	if cfg.DeviceID == "" || cfg.DeviceName == "" {
		return nil, nil
	}
	return &cfg, nil
}

func (s *FileStore) Save(cfg *SavedScannerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode scanner config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write scanner config: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"device_id": cfg.DeviceID,
		"name":      cfg.DeviceName,
	}).Debug("Saved scanner config")
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove scanner config: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu  sync.Mutex
	cfg *SavedScannerConfig
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (*SavedScannerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg == nil || s.cfg.DeviceID == "" || s.cfg.DeviceName == "" {
		return nil, nil
	}
	copied := *s.cfg
	return &copied, nil
}

func (s *MemStore) Save(cfg *SavedScannerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cfg
	s.cfg = &copied
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = nil
	return nil
}
