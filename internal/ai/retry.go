package ai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

// Retrying повторяет вызов один раз, если ошибка провайдера временная.
// Сам Gateway не ретраит — повтор живёт на стороне вызывающего.
type Retrying struct {
	next    Caller
	backoff time.Duration
	log     logger.Logger
}

func NewRetrying(next Caller, wait time.Duration, log logger.Logger) *Retrying {
	return &Retrying{next: next, backoff: wait, log: log}
}

func (r *Retrying) Call(ctx context.Context, req Request) (string, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (string, error) {
		attempt++
		out, err := r.next.Call(ctx, req)
		if err == nil {
			return out, nil
		}

		var pe *ProviderError
		if errors.As(err, &pe) && pe.Transient() {
			if attempt == 1 {
				r.log.Warn(module, "transient provider error, retrying once", map[string]any{
					"kind":      string(req.Kind),
					"operation": req.Operation,
					"error":     err,
				})
			}
			return "", err
		}
		return "", backoff.Permanent(err)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.backoff)),
		backoff.WithMaxTries(2),
	)
}
