package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/igc2kml/internal/kmlgen"
	"github.com/shaunagostinho/igc2kml/internal/logger"
	"github.com/shaunagostinho/igc2kml/internal/recorder"
)

// Config holds all converter configuration.
type Config struct {
	mu   sync.RWMutex
	path string

	Convert  ConvertConfig   `yaml:"convert" json:"convert"`
	Server   ServerConfig    `yaml:"server" json:"server"`
	Recorder recorder.Config `yaml:"recorder" json:"recorder"`
	Logging  logger.Config   `yaml:"logging" json:"logging"`
}

type ConvertConfig struct {
	kmlgen.Options `yaml:",inline"`
	KMZ            bool   `yaml:"kmz" json:"kmz"`
	Destination    string `yaml:"destination" json:"destination"` // empty: next to the source file
	Workers        int    `yaml:"workers" json:"workers"`
}

type ServerConfig struct {
	ListenAddr       string `yaml:"listen_addr" json:"listenAddr"`
	CacheTTLSec      int    `yaml:"cache_ttl_s" json:"cacheTtlS"`
	ReplayIntervalMs int    `yaml:"replay_interval_ms" json:"replayIntervalMs"`
	MaxUploadBytes   int64  `yaml:"max_upload_bytes" json:"maxUploadBytes"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		Convert: ConvertConfig{
			Workers: 4,
		},
		Server: ServerConfig{
			ListenAddr:       ":8080",
			CacheTTLSec:      600,
			ReplayIntervalMs: 100,
			MaxUploadBytes:   16 << 20,
		},
		Recorder: recorder.Config{
			PortPath:      "/dev/ttyUSB0",
			BaudRate:      57600,
			IdleTimeoutMs: 3000,
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if the YAML is not found.
func Load(path string) *Config {
	cfg := Default()
	cfg.path = path

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.WithField("component", "config").Debugf("no config at %s, using defaults", path)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			log.WithField("component", "config").Warnf("error parsing %s: %v, using defaults", path, err)
			cfg = Default()
			cfg.path = path
		} else {
			log.WithField("component", "config").Debugf("loaded from %s", path)
		}
	}

	// .env next to the config, then in the working directory. Variables
	// already set in the environment win.
	envPaths := []string{".env"}
	if path != "" {
		envPaths = append([]string{filepath.Join(filepath.Dir(path), ".env")}, envPaths...)
	}
	for _, ep := range envPaths {
		if _, err := os.Stat(ep); err != nil {
			continue
		}
		if err := godotenv.Load(ep); err != nil {
			log.WithField("component", "config").Warnf("loading %s: %v", ep, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: IGC2KML_CLAMP, IGC2KML_EXTRUDE, IGC2KML_KMZ, IGC2KML_DEST,
// IGC2KML_WORKERS, LISTEN_ADDR, RECORDER_PORT, RECORDER_BAUD, LOG_LEVEL,
// LOG_PATH
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("IGC2KML_CLAMP"); v != "" {
		c.Convert.ClampToGround = isTrue(v)
	}
	if v := os.Getenv("IGC2KML_EXTRUDE"); v != "" {
		c.Convert.Extrude = isTrue(v)
	}
	if v := os.Getenv("IGC2KML_KMZ"); v != "" {
		c.Convert.KMZ = isTrue(v)
	}
	if v := os.Getenv("IGC2KML_DEST"); v != "" {
		c.Convert.Destination = v
	}
	if v := os.Getenv("IGC2KML_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Convert.Workers = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("RECORDER_PORT"); v != "" {
		c.Recorder.PortPath = v
	}
	if v := os.Getenv("RECORDER_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Recorder.BaudRate = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
}

func isTrue(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		c.path = "igc2kml.yaml"
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// ConvertSettings returns a copy of the convert section.
func (c *Config) ConvertSettings() ConvertConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Convert
}

// ServerSettings returns a copy of the server section.
func (c *Config) ServerSettings() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// UpdateFromJSON merges a partial JSON config into c. Sections and fields
// missing from data keep their values. Nothing is applied if data is
// invalid.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := struct {
		Convert  ConvertConfig   `json:"convert"`
		Server   ServerConfig    `json:"server"`
		Recorder recorder.Config `json:"recorder"`
		Logging  logger.Config   `json:"logging"`
	}{c.Convert, c.Server, c.Recorder, c.Logging}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if next.Convert.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative")
	}
	if next.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: max_upload_bytes must be positive")
	}

	c.Convert = next.Convert
	c.Server = next.Server
	c.Recorder = next.Recorder
	c.Logging = next.Logging
	return nil
}
