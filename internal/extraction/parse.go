package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
)

const (
	defaultConfidence = 0.5
	partialConfidence = 0.25
)

var (
	thinkBlock     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
	digitRun       = regexp.MustCompile(`\d+`)
)

// Result — то, что удалось достать из ответа модели.
type Result struct {
	OrderIDs      []string
	Status        inspection.Status
	Notes         string
	Clarification string
	Confidence    float64
}

func (r Result) Partial() bool {
	return len(r.OrderIDs) == 0 || r.Status == inspection.StatusUnknown
}

// rawReply покрывает обе формы ответа: плоскую и списком orders.
type rawReply struct {
	OrderIDs      []json.RawMessage `json:"order_ids"`
	Status        string            `json:"status"`
	Notes         string            `json:"notes"`
	Comment       string            `json:"comment"`
	Confidence    *float64          `json:"confidence"`
	Requires      bool              `json:"requires_correction"`
	Clarification *string           `json:"clarification_question"`
	Orders        []struct {
		OrderID json.RawMessage `json:"order_id"`
		Status  string          `json:"status"`
		Comment string          `json:"comment"`
	} `json:"orders"`
}

var errNoJSON = errors.New("no json object in model output")

// Parse разбирает недоверенный ответ модели.
func Parse(raw string) (Result, error) {
	body, err := jsonObject(raw)
	if err != nil {
		return Result{}, err
	}

	var reply rawReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		fixed := trailingCommas.ReplaceAllString(body, "$1")
		if err2 := json.Unmarshal([]byte(fixed), &reply); err2 != nil {
			return Result{}, fmt.Errorf("decode model json: %w", err)
		}
	}

	res := Result{
		Status: ParseStatus(reply.Status),
		Notes:  strings.TrimSpace(firstNonEmpty(reply.Notes, reply.Comment)),
	}

	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			res.OrderIDs = append(res.OrderIDs, id)
		}
	}
	for _, id := range reply.OrderIDs {
		add(NormalizeOrderID(id))
	}

	var comments []string
	orderStatus := inspection.StatusUnknown
	mixed := false
	for _, o := range reply.Orders {
		add(NormalizeOrderID(o.OrderID))
		if s := ParseStatus(o.Status); s != inspection.StatusUnknown {
			if orderStatus != inspection.StatusUnknown && orderStatus != s {
				mixed = true
			}
			orderStatus = s
		}
		if c := strings.TrimSpace(o.Comment); c != "" {
			comments = append(comments, c)
		}
	}
	if res.Status == inspection.StatusUnknown && !mixed {
		res.Status = orderStatus
	}
	if res.Notes == "" && len(comments) > 0 {
		res.Notes = strings.Join(comments, "; ")
	}

	if reply.Clarification != nil {
		res.Clarification = strings.TrimSpace(*reply.Clarification)
	}
	if mixed && res.Clarification == "" {
		res.Clarification = "Для заказов указаны разные статусы. Пришлите, пожалуйста, отчёт по каждому статусу отдельно."
	}

	res.Confidence = defaultConfidence
	if reply.Confidence != nil && *reply.Confidence > 0 {
		res.Confidence = clamp(*reply.Confidence)
	}
	if res.Partial() || reply.Requires {
		res.Confidence = minf(res.Confidence, partialConfidence)
	}

	return res, nil
}

// jsonObject вырезает внешний {...}, предварительно убрав <think> и markdown.
func jsonObject(raw string) (string, error) {
	s := thinkBlock.ReplaceAllString(raw, "")
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

// NormalizeOrderID: "#с10409", "№ 10409", 10409 -> "10409".
func NormalizeOrderID(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		if t < 0 || t != float64(int64(t)) {
			return ""
		}
		s = strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}

	return OrderDigits(s)
}

// OrderDigits оставляет от номера заказа только цифры.
func OrderDigits(s string) string {
	return digitRun.FindString(s)
}

// ParseStatus понимает и enum, и русские формулировки контролёров.
func ParseStatus(s string) inspection.Status {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "pass", "passed", "ok":
		return inspection.StatusPass
	case "fail", "failed", "reject", "rejected":
		return inspection.StatusFail
	case "rework":
		return inspection.StatusRework
	case "", "unknown", "null":
		return inspection.StatusUnknown
	}

	switch {
	case strings.Contains(s, "не год"), strings.Contains(s, "негод"),
		strings.Contains(s, "не прош"), strings.Contains(s, "непрош"):
		return inspection.StatusFail
	case strings.Contains(s, "доработ"):
		return inspection.StatusRework
	case strings.Contains(s, "брак"):
		return inspection.StatusFail
	case strings.Contains(s, "годн"), strings.Contains(s, "годен"), strings.Contains(s, "прош"):
		return inspection.StatusPass
	}
	return inspection.StatusUnknown
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
