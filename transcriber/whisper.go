package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"lexa/config"
	"lexa/provider"
	"lexa/traced"
)

const whisperURL = "https://api.openai.com/v1/audio/transcriptions"

type whisper struct {
	apiKey string
	apiURL string
	client *traced.Client
}

func newWhisper(apiKey string) *whisper {
	return &whisper{
		apiKey: apiKey,
		apiURL: whisperURL,
		client: traced.NewClient(60 * time.Second),
	}
}

func (w *whisper) Name() string { return "whisper" }

type whisperResponse struct {
	Text string `json:"text"`
}

func (w *whisper) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}

	writer.WriteField("model", "whisper-1")
	writer.WriteField("response_format", "json")
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", w.apiURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", provider.TransportError(config.ProviderOpenAI, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", provider.StatusError(config.ProviderOpenAI, resp.StatusCode, resp.Body)
	}

	var parsed whisperResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("whisper response parse error: %w", err)
	}
	return parsed.Text, nil
}
