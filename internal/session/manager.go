package session

import (
	"context"
	"sync"
	"time"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
)

const module = "session"

type entry struct {
	mu   sync.Mutex
	s    Session
	dead bool
}

// Manager — единственный, кто меняет Session. Таблица живёт в памяти процесса.
type Manager struct {
	mu      sync.Mutex
	table   map[string]*entry
	timeout time.Duration
	now     func() time.Time
	log     logger.Logger
}

func NewManager(timeout time.Duration, log logger.Logger) *Manager {
	return &Manager{
		table:   map[string]*entry{},
		timeout: timeout,
		now:     time.Now,
		log:     log,
	}
}

// WithClock подменяет часы (для тестов и CLI).
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Timeout() time.Duration { return m.timeout }

// acquire возвращает запись пользователя под её мьютексом.
func (m *Manager) acquire(userID string) *entry {
	for {
		m.mu.Lock()
		e, ok := m.table[userID]
		if !ok {
			now := m.now()
			e = &entry{s: Session{UserID: userID, State: StateIdle, CreatedAt: now, LastActivityAt: now}}
			m.table[userID] = e
		}
		m.mu.Unlock()

		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// expireLocked снимает просроченного кандидата. Вызывать под e.mu.
func (m *Manager) expireLocked(e *entry, now time.Time, via string) *Expiry {
	if e.s.State != StateAwaiting || now.Before(e.s.ExpiresAt) {
		return nil
	}

	exp := &Expiry{UserID: e.s.UserID, Candidate: e.s.Pending, At: now}
	m.log.Info(module, "pending candidate expired", map[string]any{
		"user_id":      e.s.UserID,
		"candidate_id": e.s.Pending.ID,
		"deadline":     e.s.ExpiresAt,
		"via":          via,
	})
	m.resetLocked(e, StateExpired)
	return exp
}

func (m *Manager) resetLocked(e *entry, outcome State) {
	e.s.State = StateIdle
	e.s.Pending = nil
	e.s.ExpiresAt = time.Time{}
	e.s.LastOutcome = outcome
}

func (m *Manager) touchLocked(e *entry, now time.Time) {
	e.s.LastActivityAt = now
	if e.s.State == StateAwaiting {
		e.s.ExpiresAt = now.Add(m.timeout)
	}
}

// Snapshot — текущее состояние с ленивой проверкой дедлайна.
func (m *Manager) Snapshot(userID string) (Session, *Expiry) {
	e := m.acquire(userID)
	defer e.mu.Unlock()

	exp := m.expireLocked(e, m.now(), "lazy")
	return e.s.clone(), exp
}

// Discard снимает ожидающего кандидата перед новым отчётом
// (побеждает самый свежий отчёт). Возвращает снятого кандидата, если он был.
func (m *Manager) Discard(userID string) (*inspection.Candidate, *Expiry) {
	e := m.acquire(userID)
	defer e.mu.Unlock()

	now := m.now()
	exp := m.expireLocked(e, now, "lazy")
	e.s.LastActivityAt = now

	if e.s.State != StateAwaiting {
		return nil, exp
	}

	old := e.s.Pending
	m.log.Warn(module, "pending candidate overwritten by a new report", map[string]any{
		"user_id":      userID,
		"candidate_id": old.ID,
		"order_ids":    old.OrderIDs,
	})
	m.resetLocked(e, StateCancelled)
	return old, exp
}

// Begin переводит пользователя в AWAITING_CONFIRMATION с новым кандидатом.
func (m *Manager) Begin(userID string, c *inspection.Candidate) Session {
	e := m.acquire(userID)
	defer e.mu.Unlock()

	now := m.now()
	m.expireLocked(e, now, "lazy")

	if e.s.State == StateAwaiting {
		m.log.Warn(module, "pending candidate overwritten by a new report", map[string]any{
			"user_id":      userID,
			"candidate_id": e.s.Pending.ID,
		})
	}

	e.s.State = StateAwaiting
	e.s.Pending = c.Clone()
	e.s.LastOutcome = ""
	m.touchLocked(e, now)

	m.log.Info(module, "awaiting confirmation", map[string]any{
		"user_id":      userID,
		"candidate_id": c.ID,
		"expires_at":   e.s.ExpiresAt,
	})
	return e.s.clone()
}

// Decide применяет решение пользователя через Resolver под замком пользователя.
func (m *Manager) Decide(ctx context.Context, userID string, d Decision, r Resolver) (Resolution, Session, error) {
	e := m.acquire(userID)
	defer e.mu.Unlock()

	now := m.now()
	if exp := m.expireLocked(e, now, "lazy"); exp != nil {
		if d.Action == ActionCancel {
			return Resolution{Outcome: StateExpired}, e.s.clone(), nil
		}
		return Resolution{}, e.s.clone(), inspection.NewError(inspection.ErrSessionExpired, "candidate %s expired", exp.Candidate.ID)
	}

	if e.s.State != StateAwaiting {
		switch {
		case d.Action == ActionCancel:
			return Resolution{Outcome: StateIdle}, e.s.clone(), nil
		case d.Action == ActionAccept && d.Token != "":
			if rec, ok := r.Lookup(d.Token); ok {
				return Resolution{Outcome: StateConfirmed, Record: rec, Replayed: true}, e.s.clone(), nil
			}
		}
		return Resolution{}, e.s.clone(), inspection.NewError(inspection.ErrSessionExpired, "no pending candidate")
	}

	if d.Token != "" && d.Token != e.s.Pending.Token {
		return Resolution{}, e.s.clone(), inspection.NewError(inspection.ErrSessionExpired, "stale candidate token")
	}

	res, err := r.Resolve(ctx, e.s.clone(), d)
	if err != nil {
		m.log.Info(module, "decision not applied", map[string]any{
			"user_id":      userID,
			"candidate_id": e.s.Pending.ID,
			"action":       string(d.Action),
			"error":        err,
		})
		return Resolution{}, e.s.clone(), err
	}

	e.s.LastActivityAt = now
	switch res.Outcome {
	case StateAwaiting:
		if res.Candidate != nil {
			e.s.Pending = res.Candidate.Clone()
		}
		m.touchLocked(e, now)
	case StateConfirmed, StateRejected, StateCancelled:
		m.resetLocked(e, res.Outcome)
	}

	m.log.Info(module, "decision applied", map[string]any{
		"user_id": userID,
		"action":  string(d.Action),
		"outcome": string(res.Outcome),
		"state":   string(e.s.State),
	})
	return res, e.s.clone(), nil
}

// Sweep снимает просроченных кандидатов и убирает простаивающие записи.
// Занятых пользователей пропускает: их действие выигрывает у таймера.
func (m *Manager) Sweep() []Expiry {
	now := m.now()
	var out []Expiry

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.table {
		if !e.mu.TryLock() {
			continue
		}
		if exp := m.expireLocked(e, now, "sweep"); exp != nil {
			out = append(out, *exp)
		}
		if e.s.State == StateIdle && now.Sub(e.s.LastActivityAt) >= m.timeout {
			e.dead = true
			delete(m.table, id)
		}
		e.mu.Unlock()
	}
	return out
}

// Run периодически вызывает Sweep, пока не отменён ctx.
func (m *Manager) Run(ctx context.Context, interval time.Duration, onExpire func(Expiry)) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, exp := range m.Sweep() {
				if onExpire != nil {
					onExpire(exp)
				}
			}
		}
	}
}

// Active — число пользователей, ожидающих подтверждения.
func (m *Manager) Active() int {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.table))
	for _, e := range m.table {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.s.State == StateAwaiting {
			n++
		}
		e.mu.Unlock()
	}
	return n
}
