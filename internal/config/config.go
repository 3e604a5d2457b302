package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/merlian/merlian/pkg/backend"
	"github.com/merlian/merlian/pkg/dedup"
	"github.com/merlian/merlian/pkg/merlian"
	"github.com/merlian/merlian/pkg/rank"
)

// IndexConfig holds default options for index runs
type IndexConfig struct {
	MaxItems    int  `json:"max_items"`
	RecentFirst bool `json:"recent_first"`
	OCR         bool `json:"ocr"`
}

// SearchConfig holds default options for queries
type SearchConfig struct {
	K          int     `json:"k"`
	Mode       string  `json:"mode"`
	TextWeight float64 `json:"text_weight"`
	TextyBoost float64 `json:"texty_boost"`
}

// Config represents the application configuration
type Config struct {
	DataDir          string               `json:"data_dir"`
	DBPath           string               `json:"db_path"`
	Device           string               `json:"device"` // "auto", "cpu", "gpu"
	Workers          int                  `json:"workers"`
	ThumbMaxPx       int                  `json:"thumb_max_px"`
	Exclude          []string             `json:"exclude,omitempty"`
	HammingThreshold int                  `json:"hamming_threshold"`
	Quality          dedup.QualityWeights `json:"quality"`
	Index            IndexConfig          `json:"index"`
	Search           SearchConfig         `json:"search"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:          "~/.merlian",
		DBPath:           "~/.merlian/index.db",
		Device:           "auto",
		ThumbMaxPx:       640,
		HammingThreshold: dedup.DefaultHammingThreshold,
		Quality:          dedup.DefaultQualityWeights(),
		Index: IndexConfig{
			OCR: true,
		},
		Search: SearchConfig{
			K:          12,
			Mode:       string(rank.ModeHybrid),
			TextWeight: 0.55,
			TextyBoost: 0.80,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".merlian"), nil
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the configuration file, falling back to defaults
// when the file does not exist
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration file
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Resolve expands paths and converts to the engine configuration
func (c *Config) Resolve() (merlian.Config, error) {
	dataDir, err := ExpandPath(c.DataDir)
	if err != nil {
		return merlian.Config{}, err
	}
	dbPath, err := ExpandPath(c.DBPath)
	if err != nil {
		return merlian.Config{}, err
	}

	out := merlian.DefaultConfig()
	out.DataDir = dataDir
	out.DBPath = dbPath
	out.ThumbDir = filepath.Join(dataDir, "thumbs")
	out.Device = backend.Device(c.Device)
	out.Workers = c.Workers
	out.ThumbMaxPx = c.ThumbMaxPx
	out.Exclude = c.Exclude
	out.HammingThreshold = c.HammingThreshold
	out.Quality = c.Quality
	out.SearchK = c.Search.K
	if c.Search.TextWeight > 0 {
		out.Rank = rank.Weights{Text: c.Search.TextWeight, TextyBoost: c.Search.TextyBoost}
	}
	return out, nil
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) (string, error) {
	if len(path) == 0 {
		return path, nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
