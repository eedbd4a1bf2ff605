package session

import (
	"context"
	"time"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateAwaiting  State = "AWAITING_CONFIRMATION"
	StateConfirmed State = "CONFIRMED"
	StateRejected  State = "REJECTED"
	StateExpired   State = "EXPIRED"
	StateCancelled State = "CANCELLED"
)

// Session — снимок состояния пользователя. В таблице хранятся только
// IDLE и AWAITING_CONFIRMATION; остальные состояния — исходы переходов.
type Session struct {
	UserID         string                `json:"user_id"`
	State          State                 `json:"state"`
	Pending        *inspection.Candidate `json:"pending_candidate,omitempty"`
	LastOutcome    State                 `json:"last_outcome,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	ExpiresAt      time.Time             `json:"expires_at,omitempty"`
}

func (s Session) clone() Session {
	s.Pending = s.Pending.Clone()
	return s
}

type Action string

const (
	ActionAccept Action = "accept"
	ActionEdit   Action = "edit"
	ActionReject Action = "reject"
	ActionCancel Action = "cancel"
)

// Patch — правка кандидата; nil-поля не трогаются.
type Patch struct {
	OrderIDs *[]string          `json:"order_ids,omitempty"`
	Status   *inspection.Status `json:"status,omitempty"`
	Notes    *string            `json:"notes,omitempty"`
}

func (p Patch) Empty() bool {
	return p.OrderIDs == nil && p.Status == nil && p.Notes == nil
}

type Decision struct {
	Action Action
	Token  string
	Patch  Patch
}

// Resolution — что решил координатор. Outcome AWAITING_CONFIRMATION
// означает правку: Candidate заменяет текущего.
type Resolution struct {
	Outcome   State
	Candidate *inspection.Candidate
	Record    *inspection.ConfirmedInspection
	Replayed  bool
}

// Resolver применяет решение пользователя к ожидающему кандидату.
type Resolver interface {
	Resolve(ctx context.Context, s Session, d Decision) (Resolution, error)
	// Lookup — уже подтверждённая запись по одноразовому токену.
	Lookup(token string) (*inspection.ConfirmedInspection, bool)
}

// Expiry — кандидат, снятый по таймауту.
type Expiry struct {
	UserID    string
	Candidate *inspection.Candidate
	At        time.Time
}
