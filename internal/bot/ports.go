package bot

import (
	"context"

	"github.com/Vovarama1992/otk-assistant/internal/extraction"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/media"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

// Inbound — одно сообщение от чат-транспорта.
type Inbound struct {
	UserID     string
	Attachment media.Attachment
}

type OutboundType string

const (
	OutboundPrompt       OutboundType = "prompt"
	OutboundNotification OutboundType = "notification"
	OutboundError        OutboundType = "error"
)

type Button struct {
	Action session.Action `json:"action"`
	Label  string         `json:"label"`
	Token  string         `json:"token,omitempty"`
}

// Outbound — ответ пользователю: запрос подтверждения, уведомление или ошибка.
type Outbound struct {
	Type      OutboundType                    `json:"type"`
	Text      string                          `json:"text"`
	Candidate *inspection.Candidate           `json:"candidate,omitempty"`
	Actions   []Button                        `json:"actions,omitempty"`
	Record    *inspection.ConfirmedInspection `json:"record,omitempty"`
	ErrorKind inspection.ErrorKind            `json:"error_kind,omitempty"`
}

// Notifier — доставка сообщений вне ответа на запрос (истечение сессии).
type Notifier interface {
	Notify(ctx context.Context, userID string, msg Outbound) error
}

type Normalizer interface {
	Normalize(ctx context.Context, a media.Attachment) (media.Normalized, error)
}

type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) (*inspection.Candidate, error)
}

// Service — оркестрация одного пользователя за раз.
type Service interface {
	HandleMessage(ctx context.Context, in Inbound) []Outbound
	HandleDecision(ctx context.Context, userID string, d session.Decision) []Outbound
	Expired(ctx context.Context, e session.Expiry)
	Session(userID string) session.Session
	Recent(ctx context.Context, userID string, limit int) ([]inspection.ConfirmedInspection, error)
}
