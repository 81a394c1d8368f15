// Package config provides configuration management for eyescroll.
package config

import (
	"encoding/json"
	"log"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"eyescroll/internal/gaze"
)

// Frame source names
const (
	SourceRecognizer = "recognizer"
	SourceGoCV       = "gocv"
)

// Config represents the application configuration
type Config struct {
	// General contains general application settings
	General GeneralConfig `json:"general"`

	// Gaze configures gaze control and its frame source
	Gaze GazeConfig `json:"gaze"`

	// Remote configures the TCP command server
	Remote RemoteConfig `json:"remote"`

	// API configures the HTTP/WebSocket API
	API APIConfig `json:"api"`

	// Screen optionally overrides the detected screen size
	Screen ScreenConfig `json:"screen"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// StartOnBoot determines if app starts on login
	StartOnBoot bool `json:"start_on_boot"`

	// GazeEnabled starts gaze control on launch
	GazeEnabled bool `json:"gaze_enabled"`

	// RemoteEnabled starts the TCP command server on launch
	RemoteEnabled bool `json:"remote_enabled"`
}

// GazeConfig contains gaze control settings
type GazeConfig struct {
	// Sensitivity is 0 (least sensitive) to 100 (most sensitive)
	Sensitivity int `json:"sensitivity"`

	// CooldownMs suppresses gaze scrolls closer than this to the previous one (0 disables)
	CooldownMs int `json:"cooldown_ms"`

	// Source is "recognizer" (external landmark process) or "gocv" (in-process webcam)
	Source string `json:"source"`

	// RecognizerCmd is the landmark helper executable, printing JSON lines on stdout
	RecognizerCmd string `json:"recognizer_cmd,omitempty"`

	// RecognizerArgs are passed to RecognizerCmd
	RecognizerArgs []string `json:"recognizer_args,omitempty"`

	// RecognizerDir is the helper's working directory (default: ours)
	RecognizerDir string `json:"recognizer_dir,omitempty"`

	// CameraDevice is the webcam index for the gocv source
	CameraDevice int `json:"camera_device"`

	// FaceCascade and EyeCascade are Haar cascade files for the gocv source
	FaceCascade string `json:"face_cascade,omitempty"`
	EyeCascade  string `json:"eye_cascade,omitempty"`
}

// Cooldown returns CooldownMs as a duration
func (g GazeConfig) Cooldown() time.Duration {
	return time.Duration(g.CooldownMs) * time.Millisecond
}

// RemoteConfig contains TCP command server settings
type RemoteConfig struct {
	// Addr is the listen address (default ":8080")
	Addr string `json:"addr"`

	// ReadTimeoutMs bounds how long a connection may stay silent (0 waits forever)
	ReadTimeoutMs int `json:"read_timeout_ms"`

	// MaxLineBytes is the longest accepted command line
	MaxLineBytes int `json:"max_line_bytes"`
}

// ReadTimeout returns ReadTimeoutMs as a duration
func (r RemoteConfig) ReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeoutMs) * time.Millisecond
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	// Enabled enables the HTTP API server
	Enabled bool `json:"enabled"`

	// Bind is the interface the API listens on (default: 127.0.0.1)
	Bind string `json:"bind"`

	// Port is the port for the API server (default: 18080)
	Port int `json:"port"`

	// Token is an optional authentication token for API requests
	Token string `json:"token,omitempty"`
}

// Addr returns the API listen address
func (a APIConfig) Addr() string {
	return net.JoinHostPort(a.Bind, strconv.Itoa(a.Port))
}

// ScreenConfig overrides the screen size used to place swipes
type ScreenConfig struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			StartOnBoot:   false,
			GazeEnabled:   true,
			RemoteEnabled: true,
		},
		Gaze: GazeConfig{
			Sensitivity: gaze.DefaultSensitivity,
			Source:      SourceRecognizer,
		},
		Remote: RemoteConfig{
			Addr:         ":8080",
			MaxLineBytes: 4096,
		},
		API: APIConfig{
			Enabled: true,
			Bind:    "127.0.0.1",
			Port:    18080,
		},
	}
}

// normalize clamps out of range values and fills in missing ones
func (c *Config) normalize() {
	c.Gaze.Sensitivity = gaze.Clamp(c.Gaze.Sensitivity)
	if c.Gaze.CooldownMs < 0 {
		c.Gaze.CooldownMs = 0
	}
	if c.Gaze.Source == "" {
		c.Gaze.Source = SourceRecognizer
	}
	if c.Remote.Addr == "" {
		c.Remote.Addr = ":8080"
	}
	if c.Remote.ReadTimeoutMs < 0 {
		c.Remote.ReadTimeoutMs = 0
	}
	if c.Remote.MaxLineBytes <= 0 {
		c.Remote.MaxLineBytes = 4096
	}
	if c.API.Bind == "" {
		c.API.Bind = "127.0.0.1"
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		c.API.Port = 18080
	}
}

// clone returns a deep copy
func (c *Config) clone() *Config {
	cp := *c
	cp.Gaze.RecognizerArgs = append([]string(nil), c.Gaze.RecognizerArgs...)
	return &cp
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()

	// sensitivityOverride is a session value that Save never writes
	sensitivityOverride *int
}

// NewManager creates a new configuration manager using the per-user
// config directory
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a configuration manager backed by path
func NewManagerAt(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "eyescroll")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "eyescroll")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "eyescroll")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.mu.Lock()
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		// No config file, use defaults
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		m.mu.Unlock()
		return err
	}
	cfg.normalize()
	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	if onChanged != nil {
		onChanged()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.clone()
}

// Set updates the configuration
func (m *Manager) Set(config *Config) {
	cfg := config.clone()
	cfg.normalize()

	m.mu.Lock()
	if cfg.Gaze.Sensitivity != m.config.Gaze.Sensitivity {
		m.sensitivityOverride = nil
	}
	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	if onChanged != nil {
		onChanged()
	}
}

// Sensitivity returns the current gaze sensitivity, always in range
func (m *Manager) Sensitivity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sensitivityOverride != nil {
		return *m.sensitivityOverride
	}
	return m.config.Gaze.Sensitivity
}

// SetSensitivity clamps s to the valid range, stores it and returns the
// stored value. It replaces any session override.
func (m *Manager) SetSensitivity(s int) int {
	s = gaze.Clamp(s)

	m.mu.Lock()
	m.config.Gaze.Sensitivity = s
	m.sensitivityOverride = nil
	onChanged := m.onChanged
	m.mu.Unlock()

	if onChanged != nil {
		onChanged()
	}
	return s
}

// OverrideSensitivity makes Sensitivity report s for this session without
// touching the stored value, so Save keeps writing what the file had.
// The override lasts until SetSensitivity or a Set that changes the
// sensitivity.
func (m *Manager) OverrideSensitivity(s int) int {
	s = gaze.Clamp(s)

	m.mu.Lock()
	m.sensitivityOverride = &s
	onChanged := m.onChanged
	m.mu.Unlock()

	if onChanged != nil {
		onChanged()
	}
	return s
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
