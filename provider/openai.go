package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"lexa/config"
	"lexa/log"
	"lexa/traced"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

type openAI struct {
	cfg    config.Config
	client *traced.Client
	apiURL string
}

func newOpenAI(cfg config.Config) *openAI {
	return &openAI{
		cfg:    cfg,
		client: traced.NewClient(requestTimeout),
		apiURL: openAIChatURL,
	}
}

func (o *openAI) Name() config.Provider { return config.ProviderOpenAI }

type chatImageURL struct {
	URL string `json:"url"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *openAI) call(ctx context.Context, model string, messages []chatMessage, maxTokens int, temperature float64) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", wrapError(KindTransport, o.Name(), "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", wrapError(KindTransport, o.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fromTransport(o.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fromStatus(o.Name(), resp.StatusCode, resp.Body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", wrapError(KindParse, o.Name(), "decode response", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", newError(KindEmptyResponse, o.Name(), "no content in response")
	}

	log.Infof("openai: %s done total=%s ttfb=%s reused=%v",
		model, resp.Metrics.Total, resp.Metrics.TTFB, resp.Metrics.ConnReused)
	return parsed.Choices[0].Message.Content, nil
}

func imageParts(text string, images [][]byte) []chatPart {
	parts := []chatPart{{Type: "text", Text: text}}
	for _, img := range images {
		parts = append(parts, chatPart{
			Type:     "image_url",
			ImageURL: &chatImageURL{URL: "data:image/png;base64," + encodePNG(img)},
		})
	}
	return parts
}

func (o *openAI) ExtractProblem(ctx context.Context, images [][]byte, language, transcript string) (*ProblemInfo, error) {
	messages := []chatMessage{
		{Role: "system", Content: extractionSystem(transcript)},
		{Role: "user", Content: imageParts(extractionPrompt(language, transcript), images)},
	}
	text, err := o.call(ctx, o.cfg.ModelFor("extraction"), messages, 4000, 0.2)
	if err != nil {
		return nil, err
	}

	var info ProblemInfo
	if err := json.Unmarshal([]byte(stripFences(text)), &info); err != nil {
		return nil, wrapError(KindParse, o.Name(), "problem info is not valid JSON", err)
	}
	if info.AudioContext == "" {
		info.AudioContext = transcript
	}
	return &info, nil
}

func (o *openAI) GenerateSolution(ctx context.Context, info *ProblemInfo, language string) (string, error) {
	ctx, cancel := solutionContext(ctx)
	defer cancel()

	messages := []chatMessage{
		{Role: "system", Content: "You are an expert coding interview assistant. Provide clear, optimal solutions with detailed explanations."},
		{Role: "user", Content: solutionPrompt(info, language)},
	}
	return o.call(ctx, o.cfg.ModelFor("solution"), messages, 4000, 0.2)
}

func (o *openAI) AnalyzeDebug(ctx context.Context, images [][]byte, info *ProblemInfo, language string) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: debugSystemPrompt},
		{Role: "user", Content: imageParts(debugPrompt(info, language), images)},
	}
	return o.call(ctx, o.cfg.ModelFor("debugging"), messages, 4000, 0.2)
}
