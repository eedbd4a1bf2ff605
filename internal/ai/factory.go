package ai

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Vovarama1992/otk-assistant/internal/config"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

// New собирает Gateway по конфигу. Провайдер выбирается один раз на старте.
func New(cfg *config.Config, log logger.Logger) (*Gateway, error) {
	llm, llmName, err := newCompleter(cfg)
	if err != nil {
		return nil, err
	}
	vision, visionName, err := newDescriber(cfg)
	if err != nil {
		return nil, err
	}
	speech, speechName, err := newTranscriber(cfg)
	if err != nil {
		return nil, err
	}

	backends := map[Kind]Backend{
		KindLLM:    {Name: llmName, Timeout: timeoutFor(cfg, KindLLM, llmName)},
		KindVision: {Name: visionName, Timeout: timeoutFor(cfg, KindVision, visionName)},
		KindSpeech: {Name: speechName, Timeout: timeoutFor(cfg, KindSpeech, speechName)},
	}

	log.Info(module, "providers selected", map[string]any{
		"llm":    llmName + "/" + cfg.Providers.TextModel,
		"vision": visionName + "/" + cfg.Providers.VisionModel,
		"speech": speechName + "/" + cfg.Providers.SpeechModel,
	})

	return NewGateway(llm, vision, speech, backends, log), nil
}

// canonical сводит псевдонимы к именам бэкендов.
func canonical(name string) string {
	switch strings.ToLower(name) {
	case "aggregator":
		return "openrouter"
	case "direct-vendor", "gpt4_vision":
		return "openai"
	case "local-inference", "local":
		return "ollama"
	}
	return strings.ToLower(name)
}

func timeoutFor(cfg *config.Config, kind Kind, backend string) time.Duration {
	switch {
	case kind == KindSpeech:
		return cfg.HTTP.SpeechTimeout
	case backend == "ollama":
		return cfg.Ollama.Timeout
	}
	return cfg.HTTP.Timeout
}

func newCompleter(cfg *config.Config) (Completer, string, error) {
	name := canonical(cfg.Providers.LLM)
	model := cfg.Providers.TextModel
	switch name {
	case "openrouter":
		return NewOpenAIClient(cfg.Keys.OpenRouter, cfg.HTTP.OpenRouterBaseURL, model, httpClient()), name, nil
	case "openai":
		return NewOpenAIClient(cfg.Keys.OpenAI, cfg.HTTP.OpenAIBaseURL, model, httpClient()), name, nil
	case "lmstudio":
		return NewOpenAIClient("lm-studio", v1(cfg.HTTP.LMStudioBaseURL), model, httpClient()), name, nil
	case "ollama":
		return NewOllamaClient(cfg.Ollama.BaseURL, model, cfg.Ollama.NumPredict, cfg.Ollama.Temperature, cfg.Ollama.Timeout), name, nil
	}
	return nil, "", fmt.Errorf("unknown llm provider %q", cfg.Providers.LLM)
}

func newDescriber(cfg *config.Config) (Describer, string, error) {
	name := canonical(cfg.Providers.Vision)
	model := cfg.Providers.VisionModel
	switch name {
	case "openrouter":
		return NewOpenAIClient(cfg.Keys.OpenRouter, cfg.HTTP.OpenRouterBaseURL, model, httpClient()), name, nil
	case "openai":
		return NewOpenAIClient(cfg.Keys.OpenAI, cfg.HTTP.OpenAIBaseURL, model, httpClient()), name, nil
	case "lmstudio":
		return NewOpenAIClient("lm-studio", v1(cfg.HTTP.LMStudioBaseURL), model, httpClient()), name, nil
	case "ollama":
		return NewOllamaClient(cfg.Ollama.BaseURL, model, cfg.Ollama.NumPredict, cfg.Ollama.Temperature, cfg.Ollama.Timeout), name, nil
	}
	return nil, "", fmt.Errorf("unknown vision provider %q", cfg.Providers.Vision)
}

func newTranscriber(cfg *config.Config) (Transcriber, string, error) {
	name := strings.ToLower(cfg.Providers.Speech)
	model := cfg.Providers.SpeechModel
	switch name {
	case "whisper":
		return NewOpenAIClient(cfg.Keys.OpenAI, cfg.HTTP.OpenAIBaseURL, model, httpClient()), name, nil
	case "whisper_local":
		return NewOpenAIClient("local", v1(cfg.HTTP.LocalWhisperURL), model, httpClient()), name, nil
	case "whisperapi":
		return NewWhisperAPIClient(cfg.HTTP.WhisperAPIBaseURL, cfg.Keys.WhisperAPI, model, 0), name, nil
	}
	return nil, "", fmt.Errorf("unknown speech provider %q", cfg.Providers.Speech)
}

// Таймаут на вызов задаёт Gateway через context, у http.Client его нет.
func httpClient() *http.Client {
	return &http.Client{}
}

func v1(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
