package ai

import (
	"context"
	"time"
)

// Kind — категория внешнего провайдера.
type Kind string

const (
	KindLLM    Kind = "LLM"
	KindVision Kind = "VISION"
	KindSpeech Kind = "SPEECH"
)

// Message — универсальный формат диалога для LLM
type Message struct {
	Role string // "user" | "assistant" | "system"
	Text string
}

type Options struct {
	Model       string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
	JSONMode    bool
	Language    string
}

// Payload — то, что уходит провайдеру. Для LLM заполняется Messages,
// для VISION — Prompt + Data + MIME, для SPEECH — Data + FileName.
type Payload struct {
	Messages []Message
	Prompt   string
	Data     []byte
	MIME     string
	FileName string
}

type Request struct {
	Kind      Kind
	Operation string
	Payload   Payload
	Options   Options
}

// Caller — всё, что умеет выполнить Request: сам Gateway или обёртка над ним.
type Caller interface {
	Call(ctx context.Context, req Request) (string, error)
}

// Completer — LLM.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, opts Options) (string, error)
}

// Describer — Vision: изображение в текст.
type Describer interface {
	Describe(ctx context.Context, image []byte, mime, prompt string, opts Options) (string, error)
}

// Transcriber — Speech-to-text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName string, opts Options) (string, error)
}

// Pinger реализуют бэкенды, умеющие проверять доступность.
type Pinger interface {
	Ping(ctx context.Context) error
}
