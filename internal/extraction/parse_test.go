package extraction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantIDs    []string
		wantStatus inspection.Status
		wantNotes  string
		wantConf   float64
	}{
		{
			name:       "flat schema",
			raw:        `{"order_ids":["101","102"],"status":"PASS","notes":"","confidence":0.92}`,
			wantIDs:    []string{"101", "102"},
			wantStatus: inspection.StatusPass,
			wantConf:   0.92,
		},
		{
			name:       "numeric ids and prefixes are normalized and deduped",
			raw:        `{"order_ids":[10494,"#с10495","№10494"],"status":"годно"}`,
			wantIDs:    []string{"10494", "10495"},
			wantStatus: inspection.StatusPass,
			wantConf:   defaultConfidence,
		},
		{
			name:       "think block and markdown fence",
			raw:        "<think>\nкажется это брак {\"x\":1}\n</think>\n```json\n{\"order_ids\":[\"9587\"],\"status\":\"в брак\",\"notes\":\"все\"}\n```",
			wantIDs:    []string{"9587"},
			wantStatus: inspection.StatusFail,
			wantNotes:  "все",
			wantConf:   defaultConfidence,
		},
		{
			name:       "orders schema with comments",
			raw:        `{"orders":[{"order_id":"10343","status":"годно","comment":"нет калибра М3-6G"}],"requires_correction":false}`,
			wantIDs:    []string{"10343"},
			wantStatus: inspection.StatusPass,
			wantNotes:  "нет калибра М3-6G",
			wantConf:   defaultConfidence,
		},
		{
			name:       "status without ids is a low confidence partial",
			raw:        `{"order_ids":[],"status":"REWORK","confidence":0.9}`,
			wantStatus: inspection.StatusRework,
			wantConf:   partialConfidence,
		},
		{
			name:       "trailing commas are tolerated",
			raw:        `{"order_ids":["10432",],"status":"PASS",}`,
			wantIDs:    []string{"10432"},
			wantStatus: inspection.StatusPass,
			wantConf:   defaultConfidence,
		},
		{
			name:       "confidence is clamped",
			raw:        `{"order_ids":["1"],"status":"FAIL","confidence":7}`,
			wantIDs:    []string{"1"},
			wantStatus: inspection.StatusFail,
			wantConf:   1,
		},
		{
			name:       "mixed statuses in orders become unknown",
			raw:        `{"orders":[{"order_id":"1","status":"годно"},{"order_id":"2","status":"в брак"}]}`,
			wantIDs:    []string{"1", "2"},
			wantStatus: inspection.StatusUnknown,
			wantConf:   partialConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.raw)
			require.NoError(t, err)

			assert.Equal(t, tt.wantIDs, res.OrderIDs)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantNotes, res.Notes)
			assert.InDelta(t, tt.wantConf, res.Confidence, 1e-9)
		})
	}
}

func TestParse_MixedStatusesAskForClarification(t *testing.T) {
	res, err := Parse(`{"orders":[{"order_id":"1","status":"PASS"},{"order_id":"2","status":"FAIL"}]}`)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Clarification)
}

func TestParse_NegatedOrderStatus(t *testing.T) {
	res, err := Parse(`{"orders":[{"order_id":"101","status":"не прошел"}]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, res.OrderIDs)
	assert.Equal(t, inspection.StatusFail, res.Status)
}

func TestParse_Garbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"Извините, я не понял",
		"} {",
		`{"order_ids": "oops" ,, }`,
	} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]inspection.Status{
		"PASS":               inspection.StatusPass,
		"Годно":              inspection.StatusPass,
		"прошли проверку":    inspection.StatusPass,
		"REWORK":             inspection.StatusRework,
		"в доработку":        inspection.StatusRework,
		"в брак":             inspection.StatusFail,
		"все в брак":         inspection.StatusFail,
		"не годно":           inspection.StatusFail,
		"не прошли проверку": inspection.StatusFail,
		"проверку не прошли": inspection.StatusFail,
		"не прошла":          inspection.StatusFail,
		"непрошедшие":        inspection.StatusFail,
		"fail":               inspection.StatusFail,
		"":                   inspection.StatusUnknown,
		"посмотрим":          inspection.StatusUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseStatus(in), in)
	}
}

func TestNormalizeOrderID(t *testing.T) {
	tests := map[string]string{
		`"#с10409"`:     "10409",
		`"c10494"`:      "10494",
		`"№ 9587"`:      "9587",
		`"строка 10494"`: "10494",
		`10432`:         "10432",
		`10432.5`:       "",
		`"без номера"`:  "",
		`null`:          "",
		`{"a":1}`:       "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeOrderID(json.RawMessage(in)), in)
	}
}
