package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient — локальный inference-сервер (текст и LLaVA-подобные vision-модели).
type OllamaClient struct {
	baseURL     string
	model       string
	numPredict  int
	temperature float64
	httpClient  *http.Client
}

func NewOllamaClient(baseURL, model string, numPredict int, temperature float64, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		numPredict:  numPredict,
		temperature: temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// --- DTO ---

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
}

func (c *OllamaClient) Complete(ctx context.Context, history []Message, opts Options) (string, error) {
	msgs := make([]ollamaMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Text})
	}

	format := ""
	if opts.JSONMode {
		format = "json"
	}
	return c.chat(ctx, msgs, format, opts)
}

func (c *OllamaClient) Describe(ctx context.Context, image []byte, _ string, prompt string, opts Options) (string, error) {
	msgs := []ollamaMessage{{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	}}
	return c.chat(ctx, msgs, "", opts)
}

func (c *OllamaClient) chat(ctx context.Context, msgs []ollamaMessage, format string, opts Options) (string, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}
	temp := c.temperature
	if opts.Temperature > 0 {
		temp = float64(opts.Temperature)
	}
	numPredict := c.numPredict
	if opts.MaxTokens > 0 {
		numPredict = opts.MaxTokens
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Format:   format,
		Options:  ollamaOptions{Temperature: temp, NumPredict: numPredict},
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Kind: ErrMalformed, Provider: KindLLM, Op: "decode", Err: err}
	}
	return out.Message.Content, nil
}

func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
