package confirm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"

	"github.com/Vovarama1992/otk-assistant/internal/extraction"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

const module = "confirm"

// Publisher получает подтверждённые записи (шина событий).
type Publisher interface {
	PublishConfirmed(ctx context.Context, rec *inspection.ConfirmedInspection) error
}

// ledger value: nil-указатель значит «запись в процессе».
type ledgerEntry struct {
	rec *inspection.ConfirmedInspection
}

// Coordinator применяет accept/edit/reject/cancel к ожидающему кандидату.
type Coordinator struct {
	store    inspection.Store
	ledger   *cache.Cache
	validate *validator.Validate
	events   Publisher
	log      logger.Logger
	now      func() time.Time
}

func NewCoordinator(store inspection.Store, events Publisher, ledgerTTL time.Duration, log logger.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		ledger:   cache.New(ledgerTTL, ledgerTTL/2),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		events:   events,
		log:      log,
		now:      time.Now,
	}
}

func (c *Coordinator) Lookup(token string) (*inspection.ConfirmedInspection, bool) {
	v, ok := c.ledger.Get(token)
	if !ok {
		return nil, false
	}
	le := v.(ledgerEntry)
	if le.rec == nil {
		return nil, false
	}
	return le.rec, true
}

func (c *Coordinator) Resolve(ctx context.Context, s session.Session, d session.Decision) (session.Resolution, error) {
	if s.State != session.StateAwaiting || s.Pending == nil {
		return session.Resolution{}, inspection.NewError(inspection.ErrSessionExpired, "no pending candidate")
	}

	switch d.Action {
	case session.ActionAccept:
		return c.accept(ctx, s)
	case session.ActionEdit:
		return c.edit(s, d.Patch)
	case session.ActionReject:
		c.log.Info(module, "candidate rejected", map[string]any{"user_id": s.UserID, "candidate_id": s.Pending.ID})
		return session.Resolution{Outcome: session.StateRejected}, nil
	case session.ActionCancel:
		c.log.Info(module, "candidate cancelled", map[string]any{"user_id": s.UserID, "candidate_id": s.Pending.ID})
		return session.Resolution{Outcome: session.StateCancelled}, nil
	}
	return session.Resolution{}, inspection.NewError(inspection.ErrInternal, "unknown action %q", d.Action)
}

func (c *Coordinator) accept(ctx context.Context, s session.Session) (session.Resolution, error) {
	cand := s.Pending

	if err := c.validate.Struct(cand); err != nil {
		return session.Resolution{}, inspection.Wrap(inspection.ErrIncompleteCandidate, err, describeInvalid(err))
	}

	if rec, ok := c.Lookup(cand.Token); ok {
		return session.Resolution{Outcome: session.StateConfirmed, Record: rec, Replayed: true}, nil
	}

	// Add атомарен: второй accept с тем же токеном сюда не пройдёт,
	// пока первый не закончил запись.
	if err := c.ledger.Add(cand.Token, ledgerEntry{}, cache.DefaultExpiration); err != nil {
		return session.Resolution{}, inspection.NewError(inspection.ErrSessionExpired, "candidate %s is already being confirmed", cand.ID)
	}

	rec := inspection.FromCandidate(s.UserID, cand, c.now().UTC())
	id, err := c.store.Save(ctx, rec)
	if err != nil {
		c.ledger.Delete(cand.Token)
		c.log.Error(module, "save failed", map[string]any{
			"user_id":      s.UserID,
			"candidate_id": cand.ID,
			"error":        err,
		})
		return session.Resolution{}, inspection.Wrap(inspection.ErrInternal, err, "save inspection")
	}
	rec.ID = id
	c.ledger.Set(cand.Token, ledgerEntry{rec: rec}, cache.DefaultExpiration)

	c.log.Info(module, "inspection confirmed", map[string]any{
		"user_id":       s.UserID,
		"candidate_id":  cand.ID,
		"inspection_id": id,
		"order_ids":     rec.OrderIDs,
		"status":        string(rec.Status),
	})

	if c.events != nil {
		if err := c.events.PublishConfirmed(ctx, rec); err != nil {
			c.log.Warn(module, "publish confirmed event failed", map[string]any{"inspection_id": id, "error": err})
		}
	}

	return session.Resolution{Outcome: session.StateConfirmed, Record: rec}, nil
}

func (c *Coordinator) edit(s session.Session, p session.Patch) (session.Resolution, error) {
	if p.Empty() {
		return session.Resolution{}, inspection.NewError(inspection.ErrIncompleteCandidate, "empty edit")
	}

	next := s.Pending.Clone()
	if p.OrderIDs != nil {
		next.OrderIDs = normalizeIDs(*p.OrderIDs)
	}
	if p.Status != nil {
		next.Status = extraction.ParseStatus(string(*p.Status))
	}
	if p.Notes != nil {
		next.Notes = strings.TrimSpace(*p.Notes)
	}
	next.Clarification = ""
	// правка пришла от человека
	next.Confidence = 1.0

	c.log.Info(module, "candidate edited", map[string]any{
		"user_id":      s.UserID,
		"candidate_id": next.ID,
		"order_ids":    next.OrderIDs,
		"status":       string(next.Status),
	})
	return session.Resolution{Outcome: session.StateAwaiting, Candidate: next}, nil
}

func normalizeIDs(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n := extraction.OrderDigits(id)
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func describeInvalid(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+":"+fe.Tag())
	}
	return "candidate is incomplete: " + strings.Join(fields, ", ")
}
