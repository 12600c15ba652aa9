package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Provider identifies the active AI backend family.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		return true
	}
	return false
}

// Config is the runtime configuration consumed by the capture pipeline.
type Config struct {
	APIProvider          Provider `mapstructure:"api_provider"`
	APIKey               string   `mapstructure:"api_key"`
	ExtractionModel      string   `mapstructure:"extraction_model"`
	SolutionModel        string   `mapstructure:"solution_model"`
	DebuggingModel       string   `mapstructure:"debugging_model"`
	Language             string   `mapstructure:"language"`
	GoogleCloudProjectID string   `mapstructure:"google_cloud_project_id"`
	GoogleCloudKeyFile   string   `mapstructure:"google_cloud_key_file"`
	AudioFormat          string   `mapstructure:"audio_format"`
}

func Default() Config {
	return Config{
		APIProvider: ProviderOpenAI,
		Language:    "python",
		AudioFormat: "wav",
	}
}

var defaultModels = map[Provider]string{
	ProviderOpenAI:    "gpt-4o",
	ProviderGemini:    "gemini-2.0-flash",
	ProviderAnthropic: "claude-3-7-sonnet-20250219",
}

// ModelFor returns the configured model for a processing stage, falling back
// to the provider family default when unset.
func (c Config) ModelFor(stage string) string {
	var m string
	switch stage {
	case "extraction":
		m = c.ExtractionModel
	case "solution":
		m = c.SolutionModel
	case "debugging":
		m = c.DebuggingModel
	}
	if m != "" {
		return m
	}
	return defaultModels[c.APIProvider]
}

// Store loads configuration from disk and pushes change notifications to
// subscribers when the file is edited or Update is called.
type Store struct {
	v *viper.Viper

	mu   sync.RWMutex
	cfg  Config
	subs []func(Config)
}

func NewStore(cfgFile string) (*Store, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		cfgFile = filepath.Join(dir, "config.json")
		v.SetConfigFile(cfgFile)
	}

	v.SetEnvPrefix("LEXA")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("api_provider", string(def.APIProvider))
	v.SetDefault("language", def.Language)
	v.SetDefault("audio_format", def.AudioFormat)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine (defaults apply); a corrupt one is not.
		if _, statErr := os.Stat(cfgFile); statErr == nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	s := &Store{v: v}
	cfg, err := s.unmarshal()
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	return s, nil
}

func (s *Store) unmarshal() (Config, error) {
	cfg := Default()
	if err := s.v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if !cfg.APIProvider.Valid() {
		cfg.APIProvider = ProviderOpenAI
	}
	if cfg.Language == "" {
		cfg.Language = "python"
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "wav"
	}
	return cfg, nil
}

// Current returns a snapshot of the active configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// OnChange registers a callback invoked with the new configuration after
// every change. Callbacks run on the notifying goroutine and must not block.
func (s *Store) OnChange(fn func(Config)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Watch begins watching the config file for external edits.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := s.unmarshal()
		if err != nil {
			return
		}
		s.apply(cfg)
	})
	s.v.WatchConfig()
}

// Update mutates the configuration, persists it, and notifies subscribers.
func (s *Store) Update(mutate func(*Config)) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	mutate(&cfg)
	if !cfg.APIProvider.Valid() {
		return fmt.Errorf("invalid provider %q", cfg.APIProvider)
	}

	s.v.Set("api_provider", string(cfg.APIProvider))
	s.v.Set("api_key", cfg.APIKey)
	s.v.Set("extraction_model", cfg.ExtractionModel)
	s.v.Set("solution_model", cfg.SolutionModel)
	s.v.Set("debugging_model", cfg.DebuggingModel)
	s.v.Set("language", cfg.Language)
	s.v.Set("google_cloud_project_id", cfg.GoogleCloudProjectID)
	s.v.Set("google_cloud_key_file", cfg.GoogleCloudKeyFile)
	s.v.Set("audio_format", cfg.AudioFormat)

	if err := s.v.WriteConfig(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Key file is next to the API key in sensitivity terms.
	os.Chmod(s.v.ConfigFileUsed(), 0600)

	s.apply(cfg)
	return nil
}

func (s *Store) apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	subs := make([]func(Config), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
}

func defaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "lexa"), nil
}
