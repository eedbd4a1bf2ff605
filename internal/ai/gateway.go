package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

const module = "ai"

// Gateway — единая точка вызова LLM / Vision / Speech.
// Не ретраит, не кэширует, состояния между вызовами не держит.
type Gateway struct {
	llm    Completer
	vision Describer
	speech Transcriber

	names    map[Kind]string
	timeouts map[Kind]time.Duration
	log      logger.Logger
}

type Backend struct {
	Name    string
	Timeout time.Duration
}

func NewGateway(
	llm Completer,
	vision Describer,
	speech Transcriber,
	backends map[Kind]Backend,
	log logger.Logger,
) *Gateway {
	g := &Gateway{
		llm:      llm,
		vision:   vision,
		speech:   speech,
		names:    map[Kind]string{},
		timeouts: map[Kind]time.Duration{},
		log:      log,
	}
	for k, b := range backends {
		g.names[k] = b.Name
		g.timeouts[k] = b.Timeout
	}
	return g
}

// Call выполняет запрос с таймаутом. Любая ошибка возвращается как *ProviderError.
func (g *Gateway) Call(ctx context.Context, req Request) (out string, err error) {
	timeout := req.Options.Timeout
	if timeout <= 0 {
		timeout = g.timeouts[req.Kind]
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = &ProviderError{Kind: ErrUnavailable, Provider: req.Kind, Op: req.Operation, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			g.log.Warn(module, "provider call failed", map[string]any{
				"kind":      string(req.Kind),
				"backend":   g.names[req.Kind],
				"operation": req.Operation,
				"elapsed":   time.Since(start).String(),
				"error":     err,
			})
			return
		}
		g.log.Debug(module, "provider call ok", map[string]any{
			"kind":      string(req.Kind),
			"backend":   g.names[req.Kind],
			"operation": req.Operation,
			"elapsed":   time.Since(start).String(),
			"result":    short(out),
		})
	}()

	out, err = g.dispatch(ctx, req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &ProviderError{Kind: ErrTimeout, Provider: req.Kind, Op: req.Operation, Err: err}
		}
		return "", &ProviderError{Kind: classify(err), Provider: req.Kind, Op: req.Operation, Err: err}
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", &ProviderError{Kind: ErrMalformed, Provider: req.Kind, Op: req.Operation, Err: errEmptyResponse}
	}
	return out, nil
}

func (g *Gateway) dispatch(ctx context.Context, req Request) (string, error) {
	p := req.Payload
	switch req.Kind {
	case KindLLM:
		if g.llm == nil {
			return "", errors.New("llm backend is not configured")
		}
		return g.llm.Complete(ctx, p.Messages, req.Options)
	case KindVision:
		if g.vision == nil {
			return "", errors.New("vision backend is not configured")
		}
		return g.vision.Describe(ctx, p.Data, p.MIME, p.Prompt, req.Options)
	case KindSpeech:
		if g.speech == nil {
			return "", errors.New("speech backend is not configured")
		}
		return g.speech.Transcribe(ctx, p.Data, p.FileName, req.Options)
	default:
		return "", fmt.Errorf("unknown provider kind %q", req.Kind)
	}
}

// Check пингует все бэкенды, которые это умеют.
func (g *Gateway) Check(ctx context.Context) map[Kind]error {
	res := map[Kind]error{}
	for kind, backend := range map[Kind]any{KindLLM: g.llm, KindVision: g.vision, KindSpeech: g.speech} {
		p, ok := backend.(Pinger)
		if !ok {
			if backend == nil {
				res[kind] = errors.New("not configured")
			} else {
				res[kind] = nil
			}
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			err = &ProviderError{Kind: classify(err), Provider: kind, Op: "ping", Err: err}
		}
		res[kind] = err
	}
	return res
}

func (g *Gateway) Backend(kind Kind) string {
	return g.names[kind]
}

func short(s string) string {
	if len(s) > 180 {
		return s[:180] + "..."
	}
	return s
}
