package inspection

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vovarama1992/otk-assistant/internal/ai"
)

func TestKindOf(t *testing.T) {
	base := NewError(ErrIncompleteCandidate, "no orders")
	wrapped := fmt.Errorf("resolve: %w", base)

	assert.Equal(t, ErrIncompleteCandidate, KindOf(wrapped))
	assert.Equal(t, ErrInternal, KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))

	assert.True(t, errors.Is(wrapped, &Error{Kind: ErrIncompleteCandidate}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: ErrSessionExpired}))
}

func TestFromProvider(t *testing.T) {
	tests := []struct {
		in   ai.ErrorKind
		want ErrorKind
	}{
		{ai.ErrTimeout, ErrProviderTimeout},
		{ai.ErrUnavailable, ErrProviderUnavailable},
		{ai.ErrAuth, ErrProviderAuth},
		{ai.ErrRateLimit, ErrProviderRateLimit},
		{ai.ErrMalformed, ErrExtractionFailed},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			err := FromProvider(&ai.ProviderError{Kind: tt.in, Provider: ai.KindLLM})
			assert.Equal(t, tt.want, err.Kind)
		})
	}

	assert.Equal(t, ErrInternal, FromProvider(errors.New("x")).Kind)
}

func TestCandidate_Complete(t *testing.T) {
	assert.False(t, (*Candidate)(nil).Complete())
	assert.False(t, (&Candidate{Status: StatusPass}).Complete())
	assert.False(t, (&Candidate{OrderIDs: []string{"1"}, Status: StatusUnknown}).Complete())
	assert.True(t, (&Candidate{OrderIDs: []string{"1"}, Status: StatusRework}).Complete())

	c := &Candidate{OrderIDs: []string{"1"}}
	cp := c.Clone()
	cp.OrderIDs[0] = "2"
	assert.Equal(t, "1", c.OrderIDs[0])
}
