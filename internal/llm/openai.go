package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultChatModel     = "gpt-4o-mini"
	defaultVisionModel   = "gpt-4o"
)

// OpenAIOptions configures the OpenAI provider.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

// OpenAI talks to the OpenAI chat completions API.
type OpenAI struct {
	apiKey      string
	baseURL     string
	chatModel   string
	visionModel string
	http        *http.Client
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	chatModel := opts.Model
	if chatModel == "" {
		chatModel = defaultChatModel
	}
	visionModel := opts.VisionModel
	if visionModel == "" {
		visionModel = defaultVisionModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenAI{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		chatModel:   chatModel,
		visionModel: visionModel,
		http:        &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

type chatRequest struct {
	Model       string   `json:"model"`
	Messages    []any    `json:"messages"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatCompletion implements Provider.
func (o *OpenAI) ChatCompletion(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = o.chatModel
	}

	msgs := make([]any, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}

	temp := opts.Temperature
	return o.complete(ctx, chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   opts.MaxTokens,
	})
}

// VisionAnalysis implements Provider.
func (o *OpenAI) VisionAnalysis(ctx context.Context, imageBase64, prompt string) (string, error) {
	content := []any{
		map[string]any{
			"type": "image_url",
			"image_url": map[string]string{
				"url": "data:image/png;base64," + imageBase64,
			},
		},
		map[string]any{"type": "text", "text": prompt},
	}

	return o.complete(ctx, chatRequest{
		Model:    o.visionModel,
		Messages: []any{map[string]any{"role": "user", "content": content}},
	})
}

func (o *OpenAI) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response (status %d): %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("openai error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return parsed.Choices[0].Message.Content, nil
}
