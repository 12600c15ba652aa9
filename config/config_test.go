package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfgFile := filepath.Join(t.TempDir(), "config.json")
	s, err := NewStore(cfgFile)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDefaults(t *testing.T) {
	s := newTestStore(t)
	cfg := s.Current()
	if cfg.APIProvider != ProviderOpenAI {
		t.Errorf("Provider = %q, want openai", cfg.APIProvider)
	}
	if cfg.Language != "python" {
		t.Errorf("Language = %q, want python", cfg.Language)
	}
}

func TestModelFor(t *testing.T) {
	for _, tt := range []struct {
		provider Provider
		stage    string
		override string
		want     string
	}{
		{ProviderOpenAI, "extraction", "", "gpt-4o"},
		{ProviderGemini, "solution", "", "gemini-2.0-flash"},
		{ProviderAnthropic, "debugging", "", "claude-3-7-sonnet-20250219"},
		{ProviderOpenAI, "solution", "gpt-4o-mini", "gpt-4o-mini"},
	} {
		t.Run(string(tt.provider)+"/"+tt.stage, func(t *testing.T) {
			cfg := Config{APIProvider: tt.provider}
			switch tt.stage {
			case "extraction":
				cfg.ExtractionModel = tt.override
			case "solution":
				cfg.SolutionModel = tt.override
			case "debugging":
				cfg.DebuggingModel = tt.override
			}
			if got := cfg.ModelFor(tt.stage); got != tt.want {
				t.Errorf("ModelFor(%q) = %q, want %q", tt.stage, got, tt.want)
			}
		})
	}
}

func TestUpdateNotifiesSubscribers(t *testing.T) {
	s := newTestStore(t)

	var got []Config
	s.OnChange(func(c Config) { got = append(got, c) })

	err := s.Update(func(c *Config) {
		c.APIProvider = ProviderGemini
		c.APIKey = "key-123"
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].APIProvider != ProviderGemini || got[0].APIKey != "key-123" {
		t.Errorf("notification carried %+v", got[0])
	}
	if s.Current().APIProvider != ProviderGemini {
		t.Errorf("Current() not updated: %+v", s.Current())
	}
}

func TestUpdateRejectsInvalidProvider(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(func(c *Config) { c.APIProvider = "plan9" })
	if err == nil {
		t.Fatal("expected error for invalid provider")
	}
}

func TestUpdatePersists(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "config.json")
	s, err := NewStore(cfgFile)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(func(c *Config) { c.APIKey = "persist-me" }); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfgFile); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	reloaded, err := NewStore(cfgFile)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Current().APIKey != "persist-me" {
		t.Errorf("reloaded APIKey = %q", reloaded.Current().APIKey)
	}
}

func TestProviderValid(t *testing.T) {
	for _, tt := range []struct {
		p    Provider
		want bool
	}{
		{ProviderOpenAI, true},
		{ProviderGemini, true},
		{ProviderAnthropic, true},
		{"", false},
		{"groq", false},
	} {
		if got := tt.p.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
