package transcriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lexa/config"
	"lexa/provider"
)

func gatewayFor(p config.Provider, mutate func(*config.Config)) *Gateway {
	cfg := config.Default()
	cfg.APIProvider = p
	cfg.APIKey = "test-key"
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestAvailability(t *testing.T) {
	t.Run("openai with key", func(t *testing.T) {
		ok, reason := gatewayFor(config.ProviderOpenAI, nil).Available()
		if !ok || reason != "" {
			t.Fatalf("ok=%v reason=%q", ok, reason)
		}
	})

	t.Run("openai without key", func(t *testing.T) {
		g := gatewayFor(config.ProviderOpenAI, func(c *config.Config) { c.APIKey = "" })
		ok, reason := g.Available()
		if ok || reason == "" {
			t.Fatalf("ok=%v reason=%q", ok, reason)
		}
		_, err := g.Transcribe(context.Background(), []byte("audio"), "wav")
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("got %v, want not configured", err)
		}
	})

	t.Run("gemini without project", func(t *testing.T) {
		g := gatewayFor(config.ProviderGemini, nil)
		if ok, _ := g.Available(); ok {
			t.Fatal("should be unavailable without project id")
		}
		_, err := g.Transcribe(context.Background(), []byte("audio"), "wav")
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("got %v", err)
		}
	})

	t.Run("gemini with project", func(t *testing.T) {
		g := gatewayFor(config.ProviderGemini, func(c *config.Config) { c.GoogleCloudProjectID = "proj" })
		if ok, _ := g.Available(); !ok {
			t.Fatal("should be available with project id")
		}
	})

	t.Run("anthropic never supported", func(t *testing.T) {
		g := gatewayFor(config.ProviderAnthropic, nil)
		if ok, _ := g.Available(); ok {
			t.Fatal("anthropic must be unavailable")
		}
		_, err := g.Transcribe(context.Background(), []byte("audio"), "wav")
		if !errors.Is(err, ErrNotSupported) {
			t.Fatalf("got %v, want not supported", err)
		}
	})
}

func TestReinitialize(t *testing.T) {
	g := gatewayFor(config.ProviderAnthropic, nil)
	if ok, _ := g.Available(); ok {
		t.Fatal("anthropic should start unavailable")
	}

	cfg := config.Default()
	cfg.APIKey = "new-key"
	g.Reinitialize(cfg)
	if ok, _ := g.Available(); !ok {
		t.Fatal("switch to openai should enable transcription")
	}
}

func TestWhisperTranscribe(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		r.ParseMultipartForm(1 << 20)
		gotModel = r.FormValue("model")
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	w := newWhisper("test-key")
	w.apiURL = srv.URL

	text, err := w.Transcribe(context.Background(), []byte("RIFFdata"), "wav")
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Bearer test-key" || gotModel != "whisper-1" {
		t.Fatalf("auth=%q model=%q", gotAuth, gotModel)
	}
}

func TestWhisperStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   provider.Kind
	}{
		{http.StatusUnauthorized, provider.KindAuth},
		{http.StatusTooManyRequests, provider.KindRateLimited},
		{http.StatusRequestEntityTooLarge, provider.KindPayloadTooLarge},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		w := newWhisper("test-key")
		w.apiURL = srv.URL
		_, err := w.Transcribe(context.Background(), []byte("audio"), "wav")
		srv.Close()
		if !provider.IsKind(err, tc.kind) {
			t.Fatalf("status %d: got %v, want %s", tc.status, err, tc.kind)
		}
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	g := gatewayFor(config.ProviderOpenAI, nil)
	if _, err := g.Transcribe(context.Background(), nil, "wav"); err == nil {
		t.Fatal("expected error for empty audio")
	}
}
