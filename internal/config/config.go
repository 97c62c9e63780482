// Package config persists bindings, settings and the activity log as
// JSON under the per-user configuration directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"usbtrigger/internal/action"
	"usbtrigger/internal/logging"
)

// Settings are the user-tunable daemon options.
type Settings struct {
	StartMinimized  bool   `json:"startMinimized"`
	StartWithSystem bool   `json:"startWithWindows"`
	ShowInTray      bool   `json:"showInTray"`
	Theme           string `json:"theme"`
	LogLevel        string `json:"logLevel"`
	MaxLogEntries   int    `json:"maxLogEntries"`
	NotifyAddr      string `json:"notifyAddr,omitempty"`
}

// DefaultSettings returns the settings used when no config file exists.
func DefaultSettings() Settings {
	return Settings{
		StartMinimized:  false,
		StartWithSystem: false,
		ShowInTray:      true,
		Theme:           "system",
		LogLevel:        "info",
		MaxLogEntries:   100,
		NotifyAddr:      "127.0.0.1:18793",
	}
}

// Data is the on-disk shape of config.json.
type Data struct {
	Bindings []action.Binding `json:"bindings"`
	Settings Settings         `json:"settings"`
}

// LogEntry is one activity log record, persisted newest first.
type LogEntry struct {
	ID        string        `json:"id"`
	Timestamp string        `json:"timestamp"`
	Level     logging.Level `json:"level"`
	Message   string        `json:"message"`
	Source    string        `json:"source,omitempty"`
}

// Store owns the config and log files. All methods are safe for
// concurrent use.
type Store struct {
	mu         sync.Mutex
	configPath string
	logsPath   string
	data       Data
	logs       []LogEntry
	onLog      func(LogEntry)
}

// NewStore creates a store rooted in the per-user config directory,
// creating the directory if needed.
func NewStore() (*Store, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return NewStoreAt(dir), nil
}

// NewStoreAt creates a store rooted in an explicit directory.
func NewStoreAt(dir string) *Store {
	return &Store{
		configPath: filepath.Join(dir, "config.json"),
		logsPath:   filepath.Join(dir, "logs.json"),
		data:       Data{Settings: DefaultSettings()},
	}
}

func configDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "usbtrigger"), nil
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "usbtrigger"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "usbtrigger"), nil
}

// Load reads config.json and logs.json. Missing files leave defaults in
// place; malformed files are logged and replaced on the next save.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, err := os.ReadFile(s.configPath); err == nil {
		var data Data
		if err := json.Unmarshal(raw, &data); err != nil {
			logging.Log.Warn("Config file malformed, using defaults",
				zap.String("path", s.configPath),
				zap.Error(err),
			)
		} else {
			if data.Settings.MaxLogEntries <= 0 {
				data.Settings.MaxLogEntries = DefaultSettings().MaxLogEntries
			}
			s.data = data
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read config: %w", err)
	}

	if raw, err := os.ReadFile(s.logsPath); err == nil {
		var logs []LogEntry
		if err := json.Unmarshal(raw, &logs); err != nil {
			logging.Log.Warn("Log file malformed, starting fresh",
				zap.String("path", s.logsPath),
				zap.Error(err),
			)
		} else {
			s.logs = logs
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read logs: %w", err)
	}

	return nil
}

func (s *Store) saveConfigLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configPath, raw, 0644)
}

func (s *Store) saveLogsLocked() error {
	raw, err := json.MarshalIndent(s.logs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.logsPath, raw, 0644)
}

// GetBinding returns the binding for a canonical device id.
func (s *Store) GetBinding(deviceID string) (action.Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.data.Bindings {
		if b.DeviceID == deviceID {
			return b, true
		}
	}
	return action.Binding{}, false
}

// GetAllBindings returns a copy of every binding.
func (s *Store) GetAllBindings() []action.Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]action.Binding, len(s.data.Bindings))
	copy(out, s.data.Bindings)
	return out
}

// SaveBinding inserts or replaces the binding for its device and
// persists. New bindings get an id and creation timestamp.
func (s *Store) SaveBinding(b action.Binding) (action.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	if b.ID == "" {
		b.ID = uuid.NewString()
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	replaced := false
	for i := range s.data.Bindings {
		if s.data.Bindings[i].DeviceID == b.DeviceID {
			if b.CreatedAt == "" {
				b.CreatedAt = s.data.Bindings[i].CreatedAt
			}
			s.data.Bindings[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		s.data.Bindings = append(s.data.Bindings, b)
	}

	if err := s.saveConfigLocked(); err != nil {
		return action.Binding{}, err
	}
	return b, nil
}

// DeleteBinding removes a binding by its id and persists. It reports
// whether anything was removed.
func (s *Store) DeleteBinding(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, b := range s.data.Bindings {
		if b.ID == id {
			s.data.Bindings = append(s.data.Bindings[:i], s.data.Bindings[i+1:]...)
			return true, s.saveConfigLocked()
		}
	}
	return false, nil
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Settings
}

// SaveSettings replaces the settings and persists.
func (s *Store) SaveSettings(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.MaxLogEntries <= 0 {
		settings.MaxLogEntries = DefaultSettings().MaxLogEntries
	}
	s.data.Settings = settings
	return s.saveConfigLocked()
}

// Emit records an activity log entry, trims the log to the configured
// cap, persists best effort and mirrors the entry to the console.
func (s *Store) Emit(level logging.Level, message, source string) {
	entry := LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
		Source:    source,
	}

	s.mu.Lock()
	s.logs = append([]LogEntry{entry}, s.logs...)
	if max := s.data.Settings.MaxLogEntries; len(s.logs) > max {
		s.logs = s.logs[:max]
	}
	if err := s.saveLogsLocked(); err != nil {
		logging.Log.Warn("Failed to persist activity log", zap.Error(err))
	}
	onLog := s.onLog
	s.mu.Unlock()

	mirrorToConsole(entry)
	if onLog != nil {
		onLog(entry)
	}
}

func mirrorToConsole(entry LogEntry) {
	fields := []zap.Field{zap.String("source", entry.Source)}
	switch entry.Level {
	case logging.LevelDebug:
		logging.Log.Debug(entry.Message, fields...)
	case logging.LevelWarn:
		logging.Log.Warn(entry.Message, fields...)
	case logging.LevelError:
		logging.Log.Error(entry.Message, fields...)
	default:
		// Success rides on info; zap has no such level.
		logging.Log.Info(entry.Message, fields...)
	}
}

// OnLog registers a callback fired for every new entry. Used by the
// notification server to push log updates.
func (s *Store) OnLog(fn func(LogEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLog = fn
}

// Logs returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) Logs(limit int) []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.logs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]LogEntry, n)
	copy(out, s.logs[:n])
	return out
}

// ClearLogs drops every activity entry and persists the empty log.
func (s *Store) ClearLogs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
	return s.saveLogsLocked()
}

// ConfiguredDeviceIDs returns the device ids that have a binding.
func (s *Store) ConfiguredDeviceIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data.Bindings))
	for _, b := range s.data.Bindings {
		ids = append(ids, b.DeviceID)
	}
	return ids
}
