package extraction

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Vovarama1992/otk-assistant/internal/ai"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

const module = "extraction"

type Input struct {
	UserID string
	Text   string
	Source inspection.SourceKind
}

type Engine struct {
	gw     ai.Caller
	prompt string
	log    logger.Logger
	now    func() time.Time
}

func NewEngine(gw ai.Caller, prompt string, log logger.Logger) *Engine {
	if strings.TrimSpace(prompt) == "" {
		prompt = SystemPrompt
	}
	return &Engine{gw: gw, prompt: prompt, log: log, now: time.Now}
}

// Extract отправляет нормализованный текст в LLM и собирает кандидата.
// Ошибки: EXTRACTION_FAILED или PROVIDER_*.
func (e *Engine) Extract(ctx context.Context, in Input) (*inspection.Candidate, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, inspection.NewError(inspection.ErrExtractionFailed, "empty report text")
	}

	raw, err := e.gw.Call(ctx, ai.Request{
		Kind:      ai.KindLLM,
		Operation: "extract",
		Payload: ai.Payload{Messages: []ai.Message{
			{Role: "system", Text: e.prompt},
			{Role: "user", Text: text},
			{Role: "system", Text: jsonGuard},
		}},
		Options: ai.Options{JSONMode: true, MaxTokens: 2000},
	})
	if err != nil {
		return nil, inspection.FromProvider(err)
	}

	res, err := Parse(raw)
	if err != nil {
		e.log.Warn(module, "model output rejected", map[string]any{
			"user_id": in.UserID,
			"raw":     short(raw),
			"error":   err,
		})
		return nil, inspection.Wrap(inspection.ErrExtractionFailed, err, "could not understand the report")
	}

	if len(res.OrderIDs) == 0 && res.Status == inspection.StatusUnknown {
		e.log.Info(module, "nothing extracted", map[string]any{
			"user_id": in.UserID,
			"raw":     short(raw),
		})
		return nil, inspection.NewError(inspection.ErrExtractionFailed, "no order ids and no status")
	}

	c := &inspection.Candidate{
		ID:            uuid.NewString(),
		Token:         uuid.NewString(),
		OrderIDs:      res.OrderIDs,
		Status:        res.Status,
		SourceKind:    in.Source,
		RawText:       text,
		Notes:         res.Notes,
		Clarification: res.Clarification,
		Confidence:    res.Confidence,
		ExtractedAt:   e.now().UTC(),
	}

	e.log.Info(module, "candidate extracted", map[string]any{
		"user_id":      in.UserID,
		"candidate_id": c.ID,
		"order_ids":    c.OrderIDs,
		"status":       string(c.Status),
		"confidence":   c.Confidence,
		"partial":      res.Partial(),
	})

	return c, nil
}

func short(s string) string {
	if len(s) > 180 {
		return s[:180] + "..."
	}
	return s
}
