package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

type memStore struct {
	mu    sync.Mutex
	saves int
	fail  error
	byTok map[string]*inspection.ConfirmedInspection
}

func newMemStore() *memStore {
	return &memStore{byTok: map[string]*inspection.ConfirmedInspection{}}
}

func (s *memStore) Save(_ context.Context, rec *inspection.ConfirmedInspection) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	if old, ok := s.byTok[rec.Token]; ok {
		return old.ID, nil
	}
	s.saves++
	cp := *rec
	cp.ID = fmt.Sprintf("rec-%d", s.saves)
	s.byTok[rec.Token] = &cp
	return cp.ID, nil
}

func (s *memStore) Recent(context.Context, string, int) ([]inspection.ConfirmedInspection, error) {
	return nil, nil
}

func (s *memStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type recPublisher struct {
	mu   sync.Mutex
	recs []*inspection.ConfirmedInspection
	err  error
}

func (p *recPublisher) PublishConfirmed(_ context.Context, rec *inspection.ConfirmedInspection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return p.err
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Coordinator, *session.Manager, *memStore, *recPublisher) {
	t.Helper()
	store := newMemStore()
	pub := &recPublisher{}
	c := NewCoordinator(store, pub, time.Hour, logger.NewNop())
	c.now = func() time.Time { return fixedNow }
	m := session.NewManager(15*time.Minute, logger.NewNop())
	return c, m, store, pub
}

func pending(orderIDs ...string) *inspection.Candidate {
	return &inspection.Candidate{
		ID:          "cand-1",
		Token:       "tok-1",
		OrderIDs:    orderIDs,
		Status:      inspection.StatusPass,
		SourceKind:  inspection.SourceVoice,
		RawText:     "заказ 10432 годно",
		Confidence:  0.9,
		ExtractedAt: fixedNow.Add(-time.Minute),
	}
}

func TestCoordinator_Accept(t *testing.T) {
	c, m, store, pub := setup(t)
	m.Begin("42", pending("10432"))

	res, s, err := m.Decide(context.Background(), "42", session.Decision{Action: session.ActionAccept, Token: "tok-1"}, c)

	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmed, res.Outcome)
	assert.False(t, res.Replayed)
	require.NotNil(t, res.Record)
	assert.Equal(t, "rec-1", res.Record.ID)
	assert.Equal(t, []string{"10432"}, res.Record.OrderIDs)
	assert.Equal(t, inspection.StatusPass, res.Record.Status)
	assert.Equal(t, "42", res.Record.UserID)
	assert.Equal(t, "cand-1", res.Record.CandidateID)
	assert.Equal(t, fixedNow, res.Record.ConfirmedAt)

	assert.Equal(t, session.StateIdle, s.State)
	assert.Nil(t, s.Pending)
	assert.Equal(t, 1, store.Saves())
	require.Len(t, pub.recs, 1)
	assert.Equal(t, "rec-1", pub.recs[0].ID)
}

func TestCoordinator_DoubleAcceptWritesOnce(t *testing.T) {
	c, m, store, _ := setup(t)
	m.Begin("42", pending("10432"))
	accept := session.Decision{Action: session.ActionAccept, Token: "tok-1"}

	first, _, err := m.Decide(context.Background(), "42", accept, c)
	require.NoError(t, err)

	second, s, err := m.Decide(context.Background(), "42", accept, c)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, session.StateIdle, s.State)
	assert.Equal(t, 1, store.Saves())
}

func TestCoordinator_ConcurrentDoubleAccept(t *testing.T) {
	c, m, store, pub := setup(t)
	m.Begin("42", pending("10432"))
	accept := session.Decision{Action: session.ActionAccept, Token: "tok-1"}

	var wg sync.WaitGroup
	results := make([]session.Resolution, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = m.Decide(context.Background(), "42", accept, c)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.Saves())
	assert.Len(t, pub.recs, 1)
	for _, r := range results {
		require.NotNil(t, r.Record)
		assert.Equal(t, "rec-1", r.Record.ID)
	}
}

func TestCoordinator_AcceptIncomplete(t *testing.T) {
	tests := []struct {
		name string
		cand *inspection.Candidate
	}{
		{name: "no orders", cand: pending()},
		{name: "blank order", cand: pending("")},
		{name: "duplicate orders", cand: pending("1", "1")},
		{name: "unknown status", cand: func() *inspection.Candidate {
			p := pending("10432")
			p.Status = inspection.StatusUnknown
			return p
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m, store, pub := setup(t)
			m.Begin("42", tt.cand)

			_, s, err := m.Decide(context.Background(), "42", session.Decision{Action: session.ActionAccept}, c)

			assert.Equal(t, inspection.ErrIncompleteCandidate, inspection.KindOf(err))
			assert.Equal(t, session.StateAwaiting, s.State)
			assert.NotNil(t, s.Pending)
			assert.Zero(t, store.Saves())
			assert.Empty(t, pub.recs)
		})
	}
}

func TestCoordinator_SaveFailureAllowsRetry(t *testing.T) {
	c, m, store, _ := setup(t)
	m.Begin("42", pending("10432"))
	store.fail = errors.New("disk full")

	_, s, err := m.Decide(context.Background(), "42", session.Decision{Action: session.ActionAccept}, c)
	assert.Equal(t, inspection.ErrInternal, inspection.KindOf(err))
	assert.Equal(t, session.StateAwaiting, s.State)
	_, ok := c.Lookup("tok-1")
	assert.False(t, ok)

	store.fail = nil
	res, s, err := m.Decide(context.Background(), "42", session.Decision{Action: session.ActionAccept}, c)
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmed, res.Outcome)
	assert.Equal(t, session.StateIdle, s.State)
	assert.Equal(t, 1, store.Saves())
}

func TestCoordinator_PublishFailureDoesNotUndoConfirm(t *testing.T) {
	c, m, store, pub := setup(t)
	pub.err = errors.New("bus down")
	m.Begin("42", pending("10432"))

	res, _, err := m.Decide(context.Background(), "42", session.Decision{Action: session.ActionAccept}, c)

	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmed, res.Outcome)
	assert.Equal(t, 1, store.Saves())
}

func TestCoordinator_EditThenAccept(t *testing.T) {
	c, m, store, _ := setup(t)
	m.Begin("42", pending("10432"))

	ids := []string{"№ 10433", "10433", "10434"}
	status := inspection.Status("в брак")
	notes := "  скол на корпусе "
	res, s, err := m.Decide(context.Background(), "42", session.Decision{
		Action: session.ActionEdit,
		Patch:  session.Patch{OrderIDs: &ids, Status: &status, Notes: &notes},
	}, c)

	require.NoError(t, err)
	assert.Equal(t, session.StateAwaiting, res.Outcome)
	assert.Equal(t, session.StateAwaiting, s.State)
	require.NotNil(t, s.Pending)
	assert.Equal(t, []string{"10433", "10434"}, s.Pending.OrderIDs)
	assert.Equal(t, inspection.StatusFail, s.Pending.Status)
	assert.Equal(t, "скол на корпусе", s.Pending.Notes)
	assert.Equal(t, 1.0, s.Pending.Confidence)
	assert.Equal(t, "tok-1", s.Pending.Token)
	assert.Zero(t, store.Saves())

	res, _, err = m.Decide(context.Background(), "42", session.Decision{Action: session.ActionAccept, Token: "tok-1"}, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"10433", "10434"}, res.Record.OrderIDs)
	assert.Equal(t, inspection.StatusFail, res.Record.Status)
	assert.Equal(t, "скол на корпусе", res.Record.Notes)
}

func TestCoordinator_EditNegatedStatus(t *testing.T) {
	c, m, _, _ := setup(t)
	m.Begin("42", pending("10432"))

	status := inspection.Status("не прошли проверку")
	_, s, err := m.Decide(context.Background(), "42", session.Decision{
		Action: session.ActionEdit,
		Patch:  session.Patch{Status: &status},
	}, c)

	require.NoError(t, err)
	assert.Equal(t, inspection.StatusFail, s.Pending.Status)
}

func TestCoordinator_EmptyEdit(t *testing.T) {
	c, m, _, _ := setup(t)
	m.Begin("42", pending("10432"))

	_, s, err := m.Decide(context.Background(), "42", session.Decision{Action: session.ActionEdit}, c)

	assert.Equal(t, inspection.ErrIncompleteCandidate, inspection.KindOf(err))
	assert.Equal(t, []string{"10432"}, s.Pending.OrderIDs)
}

func TestCoordinator_RejectAndCancel(t *testing.T) {
	for _, action := range []session.Action{session.ActionReject, session.ActionCancel} {
		t.Run(string(action), func(t *testing.T) {
			c, m, store, pub := setup(t)
			m.Begin("42", pending("10432"))

			_, s, err := m.Decide(context.Background(), "42", session.Decision{Action: action}, c)

			require.NoError(t, err)
			assert.Equal(t, session.StateIdle, s.State)
			assert.Zero(t, store.Saves())
			assert.Empty(t, pub.recs)
		})
	}
}

func TestCoordinator_ResolveWithoutPending(t *testing.T) {
	c, _, _, _ := setup(t)

	_, err := c.Resolve(context.Background(), session.Session{UserID: "42", State: session.StateIdle}, session.Decision{Action: session.ActionAccept})

	assert.Equal(t, inspection.ErrSessionExpired, inspection.KindOf(err))
}
