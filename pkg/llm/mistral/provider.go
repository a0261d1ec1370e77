package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"cv-search-be/pkg/llm"
)

const defaultBaseURL = "https://api.mistral.ai/v1"

type MistralProvider struct {
	BaseURL   string
	ApiKey    string
	ModelName string
	Client    *http.Client

	// Concurrency cap for GenerateBatch fan-out
	BatchWorkers int
}

var _ llm.Provider = &MistralProvider{}
var _ llm.BatchProvider = &MistralProvider{}

func NewMistralProvider(apiKey, modelName string) *MistralProvider {
	return &MistralProvider{
		BaseURL:   defaultBaseURL,
		ApiKey:    apiKey,
		ModelName: modelName,
		Client: &http.Client{
			Timeout: 120 * time.Second,
		},
		BatchWorkers: 4,
	}
}

// --- Request/Response structs (OpenAI-compatible chat completions) ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (m *MistralProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := &llm.Options{
		Temperature: 0.7,
	}
	for _, opt := range opts {
		opt(options)
	}

	messages := make([]chatMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		messages[i] = chatMessage{Role: role, Content: msg.Content}
	}

	model := m.ModelName
	if options.Model != "" {
		model = options.Model
	}

	reqPayload := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := m.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.ApiKey)

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mistral request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mistral error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("mistral returned no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

func (m *MistralProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return m.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// GenerateBatch fans the prompts out over a bounded set of workers and
// returns responses in prompt order. The first error aborts the batch.
func (m *MistralProvider) GenerateBatch(ctx context.Context, prompts []string, opts ...llm.Option) ([]string, error) {
	if len(prompts) == 0 {
		return nil, nil
	}

	workers := m.BatchWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(prompts) {
		workers = len(prompts)
	}

	results := make([]string, len(prompts))
	errs := make([]error, len(prompts))
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func(idx int, p string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx], errs[idx] = m.Generate(ctx, p, opts...)
		}(i, prompt)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
