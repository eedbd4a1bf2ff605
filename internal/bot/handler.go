package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/media"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

const (
	defaultMaxMediaBytes = 25 << 20
	bodyHeadroom         = 1 << 20
)

type Handler struct {
	svc      Service
	validate *validator.Validate
	maxBody  int64
}

// NewHandler: тело запроса ограничено двойным лимитом медиа, чтобы файл
// чуть больше лимита дошёл до нормализатора и получил MEDIA_TOO_LARGE.
func NewHandler(svc Service, maxMediaBytes int64) *Handler {
	if maxMediaBytes <= 0 {
		maxMediaBytes = defaultMaxMediaBytes
	}
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		maxBody:  2*maxMediaBytes + bodyHeadroom,
	}
}

type messageRequest struct {
	UserID      string  `json:"user_id" validate:"required"`
	Type        string  `json:"type" validate:"required,oneof=text voice photo"`
	Text        string  `json:"text"`
	Data        []byte  `json:"data"`
	MIME        string  `json:"mime"`
	FileName    string  `json:"file_name"`
	DurationSec float64 `json:"duration_sec" validate:"gte=0"`
	Width       int     `json:"width" validate:"gte=0"`
	Height      int     `json:"height" validate:"gte=0"`
}

type decisionRequest struct {
	UserID   string    `json:"user_id" validate:"required"`
	Action   string    `json:"action" validate:"required,oneof=accept edit reject cancel"`
	Token    string    `json:"token"`
	OrderIDs *[]string `json:"order_ids"`
	Status   *string   `json:"status"`
	Notes    *string   `json:"notes"`
}

type repliesResponse struct {
	Replies []Outbound `json:"replies"`
}

var sourceByType = map[string]inspection.SourceKind{
	"text":  inspection.SourceText,
	"voice": inspection.SourceVoice,
	"photo": inspection.SourcePhoto,
}

// HandleMessage — вход от чат-транспорта: текст, голос или фото.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := h.decode(w, r, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeJSON(w, http.StatusOK, repliesResponse{Replies: []Outbound{failure(inspection.ErrMediaTooLarge)}})
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Type == "text" && strings.TrimSpace(req.Text) == "" {
		http.Error(w, "missing text", http.StatusBadRequest)
		return
	}
	if req.Type != "text" && len(req.Data) == 0 {
		http.Error(w, "missing data", http.StatusBadRequest)
		return
	}

	in := Inbound{
		UserID: req.UserID,
		Attachment: media.Attachment{
			Kind:     sourceByType[req.Type],
			Text:     req.Text,
			Data:     req.Data,
			MIME:     req.MIME,
			FileName: req.FileName,
			Duration: time.Duration(req.DurationSec * float64(time.Second)),
			Width:    req.Width,
			Height:   req.Height,
		},
	}

	writeJSON(w, http.StatusOK, repliesResponse{Replies: h.svc.HandleMessage(r.Context(), in)})
}

// HandleDecision — нажатие кнопки Согласен / Исправить / Отменить.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := h.decode(w, r, &req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}

	d := session.Decision{
		Action: session.Action(req.Action),
		Token:  req.Token,
		Patch: session.Patch{
			OrderIDs: req.OrderIDs,
			Notes:    req.Notes,
		},
	}
	if req.Status != nil {
		st := inspection.Status(*req.Status)
		d.Patch.Status = &st
	}

	writeJSON(w, http.StatusOK, repliesResponse{Replies: h.svc.HandleDecision(r.Context(), req.UserID, d)})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, h.svc.Session(userID))
}

func (h *Handler) ListInspections(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := h.svc.Recent(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []inspection.ConfirmedInspection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"inspections": recs})
}

var (
	errBodyTooLarge = errors.New("payload too large")
	errInvalidJSON  = errors.New("invalid json")
)

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return errBodyTooLarge
		}
		return errInvalidJSON
	}

	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
