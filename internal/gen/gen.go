// Package gen produces candidate post text through an external
// completion API and post-processes it for publishing. Generation
// semantics live on the far side of the HTTP call; this package only
// transports and cleans.
package gen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"petrel/internal/config"
)

// Generator returns candidate text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Noop returns a fixed string; used when no provider is configured and in
// dry runs.
type Noop struct{ Text string }

func (n Noop) Generate(ctx context.Context, prompt string) (string, error) {
	if n.Text == "" {
		return "", errors.New("no generation provider configured")
	}
	return n.Text, nil
}

// OpenAI is a chat-completions style HTTP client.
type OpenAI struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

func NewOpenAI(cfg config.GenerationConfig) *OpenAI {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAI{
		baseURL:    base,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("generation api status %d", resp.StatusCode)
	}
	return parseCompletion(resp)
}

// parseCompletion extracts text from a chat-completions response,
// tolerating the responses-API shape as a fallback.
func parseCompletion(resp *http.Response) (string, error) {
	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if out, ok := raw["output_text"].(string); ok {
		return out, nil
	}
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if ch, ok := choices[0].(map[string]any); ok {
			if msg, ok := ch["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok {
					return s, nil
				}
				if content, ok := msg["content"].([]any); ok && len(content) > 0 {
					if blk, ok := content[0].(map[string]any); ok {
						if t, ok := blk["text"].(string); ok {
							return t, nil
						}
					}
				}
			}
		}
	}
	return "", errors.New("no text in generation response")
}
