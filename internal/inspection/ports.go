package inspection

import (
	"context"
	"time"
)

type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusRework  Status = "REWORK"
	StatusUnknown Status = "UNKNOWN"
)

// Label — как статус показывается пользователю.
func (s Status) Label() string {
	switch s {
	case StatusPass:
		return "Годно"
	case StatusFail:
		return "В брак"
	case StatusRework:
		return "В доработку"
	}
	return "Не определён"
}

func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusRework, StatusUnknown:
		return true
	}
	return false
}

type SourceKind string

const (
	SourceText  SourceKind = "TEXT"
	SourceVoice SourceKind = "VOICE"
	SourcePhoto SourceKind = "PHOTO"
)

// Candidate — черновик записи, живёт только пока сессия ждёт подтверждения.
type Candidate struct {
	ID            string     `json:"id"`
	Token         string     `json:"token"`
	OrderIDs      []string   `json:"order_ids" validate:"required,min=1,unique,dive,required"`
	Status        Status     `json:"status" validate:"required,oneof=PASS FAIL REWORK"`
	SourceKind    SourceKind `json:"source_kind"`
	RawText       string     `json:"raw_text"`
	Notes         string     `json:"notes,omitempty"`
	Clarification string     `json:"clarification,omitempty"`
	Confidence    float64    `json:"confidence"`
	ExtractedAt   time.Time  `json:"extracted_at"`
}

// Complete — есть хотя бы один заказ и определённый статус.
func (c *Candidate) Complete() bool {
	return c != nil && len(c.OrderIDs) > 0 && c.Status != StatusUnknown && c.Status != ""
}

func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	cp := *c
	cp.OrderIDs = append([]string(nil), c.OrderIDs...)
	return &cp
}

// ConfirmedInspection — неизменяемая запись после подтверждения.
type ConfirmedInspection struct {
	ID          string     `json:"id"`
	Token       string     `json:"token"`
	CandidateID string     `json:"candidate_id"`
	UserID      string     `json:"user_id"`
	OrderIDs    []string   `json:"order_ids"`
	Status      Status     `json:"status"`
	SourceKind  SourceKind `json:"source_kind"`
	RawText     string     `json:"raw_text"`
	Notes       string     `json:"notes,omitempty"`
	Confidence  float64    `json:"confidence"`
	ExtractedAt time.Time  `json:"extracted_at"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
}

func FromCandidate(userID string, c *Candidate, confirmedAt time.Time) *ConfirmedInspection {
	return &ConfirmedInspection{
		Token:       c.Token,
		CandidateID: c.ID,
		UserID:      userID,
		OrderIDs:    append([]string(nil), c.OrderIDs...),
		Status:      c.Status,
		SourceKind:  c.SourceKind,
		RawText:     c.RawText,
		Notes:       c.Notes,
		Confidence:  c.Confidence,
		ExtractedAt: c.ExtractedAt,
		ConfirmedAt: confirmedAt,
	}
}

// Store — persistence
type Store interface {
	// Save пишет запись в одной транзакции. Повтор с тем же Token
	// возвращает id уже существующей записи.
	Save(ctx context.Context, rec *ConfirmedInspection) (string, error)
	Recent(ctx context.Context, userID string, limit int) ([]ConfirmedInspection, error)
}
