package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Media     MediaConfig
	Providers ProvidersConfig
	Keys      APIKeys
	HTTP      HTTPConfig
	Ollama    OllamaConfig
	Callback  CallbackConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogLevel           string
	LogFilePath        string
	CorsAllowedOrigins []string
	NatsURL            string
	PromptsFile        string
}

type DatabaseConfig struct {
	URL string
}

type SessionConfig struct {
	Timeout       time.Duration
	SweepInterval time.Duration
}

type MediaConfig struct {
	MaxAudioBytes   int64
	MaxAudioSeconds int
	MaxImageBytes   int64
	MaxImageWidth   int
	MaxImageHeight  int
}

// ProvidersConfig — выбор бэкенда для каждой из трёх возможностей.
type ProvidersConfig struct {
	LLM            string
	TextModel      string
	Vision         string
	VisionModel    string
	Speech         string
	SpeechModel    string
	SpeechLanguage string
}

type APIKeys struct {
	OpenRouter string
	OpenAI     string
	WhisperAPI string
}

type HTTPConfig struct {
	Timeout       time.Duration
	SpeechTimeout time.Duration
	RetryBackoff  time.Duration

	OpenRouterBaseURL string
	OpenAIBaseURL     string
	LMStudioBaseURL   string
	WhisperAPIBaseURL string
	LocalWhisperURL   string
}

type OllamaConfig struct {
	BaseURL     string
	Timeout     time.Duration
	NumPredict  int
	Temperature float64
}

type CallbackConfig struct {
	URL   string
	Token string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	w, h, err := parseResolution(getEnv("MAX_IMAGE_RES", "2048x2048"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("PORT", "8080"),
			Environment:        getEnv("GO_ENV", "development"),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			NatsURL:            getEnv("NATS_URL", ""),
			PromptsFile:        getEnv("PROMPTS_FILE", ""),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "sqlite:///data/otk_assistant.db"),
		},
		Session: SessionConfig{
			Timeout:       time.Duration(getEnvAsInt("SESSION_TIMEOUT_MIN", 15)) * time.Minute,
			SweepInterval: time.Duration(getEnvAsInt("SESSION_SWEEP_SEC", 60)) * time.Second,
		},
		Media: MediaConfig{
			MaxAudioBytes:   int64(getEnvAsInt("MAX_AUDIO_MB", 25)) << 20,
			MaxAudioSeconds: getEnvAsInt("MAX_AUDIO_MIN", 25) * 60,
			MaxImageBytes:   int64(getEnvAsInt("MAX_IMAGE_MB", 20)) << 20,
			MaxImageWidth:   w,
			MaxImageHeight:  h,
		},
		Providers: ProvidersConfig{
			LLM:            strings.ToLower(getEnv("LLM_PROVIDER", "openrouter")),
			TextModel:      getEnv("TEXT_MODEL", "gpt-4"),
			Vision:         strings.ToLower(getEnv("VISION_PROVIDER", "openrouter")),
			VisionModel:    getEnv("VISION_MODEL", "gpt-4-vision"),
			Speech:         strings.ToLower(getEnv("SPEECH_PROVIDER", "whisper")),
			SpeechModel:    getEnv("SPEECH_MODEL", "whisper-1"),
			SpeechLanguage: getEnv("SPEECH_LANGUAGE", "ru"),
		},
		Keys: APIKeys{
			OpenRouter: getEnv("OPENROUTER_API_KEY", ""),
			OpenAI:     getEnv("OPENAI_API_KEY", ""),
			WhisperAPI: getEnv("WHISPERAPI_API_KEY", ""),
		},
		HTTP: HTTPConfig{
			Timeout:           time.Duration(getEnvAsInt("HTTP_TIMEOUT_SEC", 30)) * time.Second,
			SpeechTimeout:     time.Duration(getEnvAsInt("SPEECH_TIMEOUT_SEC", 300)) * time.Second,
			RetryBackoff:      time.Duration(getEnvAsInt("HTTP_RETRY_BACKOFF_SEC", 2)) * time.Second,
			OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			LMStudioBaseURL:   getEnv("LMSTUDIO_BASE_URL", "http://localhost:1234"),
			WhisperAPIBaseURL: getEnv("WHISPERAPI_BASE_URL", "https://api.whisper-api.com"),
			LocalWhisperURL:   getEnv("LOCAL_WHISPER_URL", "http://localhost:8000"),
		},
		Ollama: OllamaConfig{
			BaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			Timeout:     time.Duration(getEnvAsInt("OLLAMA_TIMEOUT_SEC", 120)) * time.Second,
			NumPredict:  getEnvAsInt("OLLAMA_NUM_PREDICT", 2000),
			Temperature: getEnvAsFloat("OLLAMA_TEMPERATURE", 0.1),
		},
		Callback: CallbackConfig{
			URL:   getEnv("CHAT_CALLBACK_URL", ""),
			Token: getEnv("CHAT_CALLBACK_TOKEN", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет, что для выбранных облачных провайдеров есть ключи.
func (c *Config) Validate() error {
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("config: SESSION_TIMEOUT_MIN must be positive")
	}

	need := map[string]string{}
	for _, p := range []string{c.Providers.LLM, c.Providers.Vision} {
		switch p {
		case "openrouter", "aggregator":
			need["OPENROUTER_API_KEY"] = c.Keys.OpenRouter
		case "openai", "gpt4_vision", "direct-vendor":
			need["OPENAI_API_KEY"] = c.Keys.OpenAI
		case "lmstudio", "ollama", "local", "local-inference":
		default:
			return fmt.Errorf("config: unknown provider %q", p)
		}
	}
	switch c.Providers.Speech {
	case "whisper":
		need["OPENAI_API_KEY"] = c.Keys.OpenAI
	case "whisperapi":
		need["WHISPERAPI_API_KEY"] = c.Keys.WhisperAPI
	case "whisper_local":
	default:
		return fmt.Errorf("config: unknown speech provider %q", c.Providers.Speech)
	}

	for key, val := range need {
		if val == "" {
			return fmt.Errorf("config: %s is not set", key)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func parseResolution(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: MAX_IMAGE_RES must look like 2048x2048, got %q", s)
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("config: MAX_IMAGE_RES must look like 2048x2048, got %q", s)
	}
	return w, h, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}
