package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperAPIClient — whisper-api.com: multipart POST /transcribe, ключ в X-API-Key.
type WhisperAPIClient struct {
	baseURL    string
	apiKey     string
	modelSize  string
	httpClient *http.Client
}

func NewWhisperAPIClient(baseURL, apiKey, modelSize string, timeout time.Duration) *WhisperAPIClient {
	return &WhisperAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		modelSize:  modelSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *WhisperAPIClient) Transcribe(ctx context.Context, audio []byte, fileName string, opts Options) (string, error) {
	lang := opts.Language
	if lang == "" {
		lang = "ru"
	}
	model := c.modelSize
	if opts.Model != "" {
		model = opts.Model
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	_ = mw.WriteField("language", lang)
	_ = mw.WriteField("format", "text")
	_ = mw.WriteField("model_size", model)
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisperapi post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	// сервис отвечает то JSON, то plain text
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var out struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return "", &ProviderError{Kind: ErrMalformed, Provider: KindSpeech, Op: "decode", Err: err}
		}
		return out.Text, nil
	}
	return string(body), nil
}

func (c *WhisperAPIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", c.apiKey)

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
