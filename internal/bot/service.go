package bot

import (
	"context"
	"strings"
	"time"

	"github.com/Vovarama1992/otk-assistant/internal/extraction"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

const (
	module = "bot"

	defaultRecent = 10
	maxRecent     = 100
)

type service struct {
	normalizer Normalizer
	extractor  Extractor
	sessions   *session.Manager
	resolver   session.Resolver
	store      inspection.Store
	notifier   Notifier
	lanes      *Dispatcher
	log        logger.Logger
	now        func() time.Time
}

func NewService(
	normalizer Normalizer,
	extractor Extractor,
	sessions *session.Manager,
	resolver session.Resolver,
	store inspection.Store,
	notifier Notifier,
	lanes *Dispatcher,
	log logger.Logger,
) Service {
	return &service{
		normalizer: normalizer,
		extractor:  extractor,
		sessions:   sessions,
		resolver:   resolver,
		store:      store,
		notifier:   notifier,
		lanes:      lanes,
		log:        log,
		now:        time.Now,
	}
}

func (s *service) HandleMessage(ctx context.Context, in Inbound) []Outbound {
	var out []Outbound
	err := s.lanes.Do(ctx, in.UserID, func(ctx context.Context) {
		out = s.handleMessage(ctx, in)
	})
	if err != nil {
		return []Outbound{s.fail(in.UserID, "", "message", err)}
	}
	return out
}

func (s *service) handleMessage(ctx context.Context, in Inbound) []Outbound {
	s.log.Info(module, "inbound message", map[string]any{
		"user_id": in.UserID,
		"kind":    string(in.Attachment.Kind),
		"bytes":   len(in.Attachment.Data),
	})

	if in.Attachment.Kind == inspection.SourceText {
		if out, ok := s.command(ctx, in.UserID, in.Attachment.Text); ok {
			return out
		}
	}

	var out []Outbound

	// побеждает самый свежий отчёт
	old, exp := s.sessions.Discard(in.UserID)
	switch {
	case exp != nil:
		out = append(out, notice(msgExpired))
	case old != nil:
		out = append(out, notice(msgReplaced))
	}

	norm, err := s.normalizer.Normalize(ctx, in.Attachment)
	if err != nil {
		return append(out, s.fail(in.UserID, "", "normalize", err))
	}

	cand, err := s.extractor.Extract(ctx, extraction.Input{UserID: in.UserID, Text: norm.Text, Source: norm.Source})
	if err != nil {
		return append(out, s.fail(in.UserID, "", "extract", err))
	}

	sess := s.sessions.Begin(in.UserID, cand)
	return append(out, prompt(sess.Pending))
}

// command — служебные команды чата; ok=false значит «это не команда».
func (s *service) command(ctx context.Context, userID, text string) ([]Outbound, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}
	name := strings.ToLower(strings.Fields(text)[0])
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}

	switch name {
	case "/start":
		return []Outbound{notice(msgWelcome)}, true
	case "/help":
		return []Outbound{notice(msgHelp)}, true
	case "/status":
		sess, exp := s.sessions.Snapshot(userID)
		if exp != nil {
			return []Outbound{notice(msgExpired)}, true
		}
		return []Outbound{notice(statusText(sess, s.now(), s.sessions.Timeout()))}, true
	case "/cancel":
		return s.decide(ctx, userID, session.Decision{Action: session.ActionCancel}), true
	}
	return nil, false
}

func (s *service) HandleDecision(ctx context.Context, userID string, d session.Decision) []Outbound {
	var out []Outbound
	err := s.lanes.Do(ctx, userID, func(ctx context.Context) {
		out = s.decide(ctx, userID, d)
	})
	if err != nil {
		return []Outbound{s.fail(userID, "", string(d.Action), err)}
	}
	return out
}

func (s *service) decide(ctx context.Context, userID string, d session.Decision) []Outbound {
	res, sess, err := s.sessions.Decide(ctx, userID, d, s.resolver)
	if err != nil {
		candID := ""
		if sess.Pending != nil {
			candID = sess.Pending.ID
		}
		out := []Outbound{s.fail(userID, candID, string(d.Action), err)}
		if inspection.KindOf(err) == inspection.ErrIncompleteCandidate && sess.Pending != nil {
			out = append(out, prompt(sess.Pending))
		}
		return out
	}

	switch res.Outcome {
	case session.StateConfirmed:
		return []Outbound{{
			Type:   OutboundNotification,
			Text:   confirmedText(res.Record, res.Replayed),
			Record: res.Record,
		}}
	case session.StateAwaiting:
		return []Outbound{prompt(sess.Pending)}
	case session.StateRejected:
		return []Outbound{notice(msgRejected)}
	case session.StateCancelled:
		return []Outbound{notice(msgCancelled)}
	case session.StateExpired:
		return []Outbound{notice(msgExpired)}
	}
	return []Outbound{notice(msgIdle)}
}

// Expired — уведомление от фонового свипа.
func (s *service) Expired(ctx context.Context, e session.Expiry) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, e.UserID, notice(msgExpired)); err != nil {
		details := map[string]any{"user_id": e.UserID, "error": err}
		if e.Candidate != nil {
			details["candidate_id"] = e.Candidate.ID
		}
		s.log.Warn(module, "expiry notice not delivered", details)
	}
}

func (s *service) Session(userID string) session.Session {
	sess, _ := s.sessions.Snapshot(userID)
	return sess
}

func (s *service) Recent(ctx context.Context, userID string, limit int) ([]inspection.ConfirmedInspection, error) {
	switch {
	case limit <= 0:
		limit = defaultRecent
	case limit > maxRecent:
		limit = maxRecent
	}
	return s.store.Recent(ctx, userID, limit)
}

func (s *service) fail(userID, candidateID, stage string, err error) Outbound {
	kind := inspection.KindOf(err)
	details := map[string]any{
		"user_id": userID,
		"stage":   stage,
		"kind":    string(kind),
		"error":   err,
	}
	if candidateID != "" {
		details["candidate_id"] = candidateID
	}

	if kind == inspection.ErrInternal {
		s.log.Error(module, "request failed", details)
	} else {
		s.log.Info(module, "request rejected", details)
	}
	return failure(kind)
}
