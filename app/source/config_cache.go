package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/match-watch/app/database"
)

// ConfigCache holds the provider files found in the providers directory.
// They seed the store on startup; providers added over the API live only in
// the store.
type ConfigCache struct {
	providersDir string
	cache        map[string]*Config
	mu           sync.RWMutex
}

func NewConfigCache(providersDir string) *ConfigCache {
	return &ConfigCache{
		providersDir: providersDir,
		cache:        make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if cc.providersDir == "" {
		return nil
	}
	if _, err := os.Stat(cc.providersDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.providersDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		config, err := cc.LoadConfig(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Provider configuration loaded", "file", config.File, "url", config.URL, "enabled", config.Enabled)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(file string) (*Config, error) {
	config, err := cc.parseConfig(file)
	if err != nil {
		return nil, err
	}

	config.File = strings.TrimSuffix(filepath.Base(file), ".yml")
	if config.Name == "" {
		config.Name = config.File
	}

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", file, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.File] = config

	return config, nil
}

func (cc *ConfigCache) GetEnabledConfigs() []*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabled := make([]*Config, 0, len(cc.cache))
	for _, v := range cc.cache {
		if v.Enabled {
			enabled = append(enabled, v)
		}
	}
	return enabled
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	config := Config{Enabled: true}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Kind == "" {
		config.Kind = database.ProviderKindHTML
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config.URL == "" {
		return fmt.Errorf("provider URL is required")
	}

	switch config.Kind {
	case database.ProviderKindHTML, database.ProviderKindFeed:
	default:
		return fmt.Errorf("unsupported provider kind %q", config.Kind)
	}

	return nil
}
