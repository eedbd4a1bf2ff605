package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/otk-assistant/internal/ai"
	"github.com/Vovarama1992/otk-assistant/internal/confirm"
	"github.com/Vovarama1992/otk-assistant/internal/extraction"
	"github.com/Vovarama1992/otk-assistant/internal/inspection"
	"github.com/Vovarama1992/otk-assistant/internal/logger"
	"github.com/Vovarama1992/otk-assistant/internal/media"
	"github.com/Vovarama1992/otk-assistant/internal/session"
)

// --------------------------------------------------
// fakes
// --------------------------------------------------

type fakeGateway struct {
	mu     sync.Mutex
	calls  map[ai.Kind]int
	llm    string
	speech string
	err    error
}

func (g *fakeGateway) Call(_ context.Context, req ai.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = map[ai.Kind]int{}
	}
	g.calls[req.Kind]++
	if g.err != nil {
		return "", g.err
	}
	if req.Kind == ai.KindSpeech {
		return g.speech, nil
	}
	return g.llm, nil
}

func (g *fakeGateway) Total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

type memStore struct {
	mu    sync.Mutex
	saves int
	recs  []inspection.ConfirmedInspection
	err   error
}

func (s *memStore) Save(_ context.Context, rec *inspection.ConfirmedInspection) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recs {
		if r.Token == rec.Token {
			return r.ID, nil
		}
	}
	s.saves++
	cp := *rec
	cp.ID = fmt.Sprintf("rec-%d", s.saves)
	s.recs = append(s.recs, cp)
	return cp.ID, nil
}

func (s *memStore) Recent(_ context.Context, userID string, limit int) ([]inspection.ConfirmedInspection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []inspection.ConfirmedInspection
	for i := len(s.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if s.recs[i].UserID == userID {
			out = append(out, s.recs[i])
		}
	}
	return out, nil
}

func (s *memStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]Outbound
}

func (n *fakeNotifier) Notify(_ context.Context, userID string, msg Outbound) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = map[string][]Outbound{}
	}
	n.sent[userID] = append(n.sent[userID], msg)
	return nil
}

type harness struct {
	svc      *service
	gw       *fakeGateway
	store    *memStore
	sessions *session.Manager
	notifier *fakeNotifier
}

func newHarness(t *testing.T, llm string) *harness {
	t.Helper()
	log := logger.NewNop()
	gw := &fakeGateway{llm: llm}
	store := &memStore{}
	notifier := &fakeNotifier{}

	limits := media.Limits{
		MaxAudioBytes:    25 << 20,
		MaxAudioDuration: 25 * time.Minute,
		MaxImageBytes:    20 << 20,
		MaxImageWidth:    2048,
		MaxImageHeight:   2048,
	}
	sessions := session.NewManager(15*time.Minute, log)
	svc := NewService(
		media.NewNormalizer(gw, limits, "", "ru", log),
		extraction.NewEngine(gw, "", log),
		sessions,
		confirm.NewCoordinator(store, nil, time.Hour, log),
		store,
		notifier,
		NewDispatcher(log),
		log,
	).(*service)

	return &harness{svc: svc, gw: gw, store: store, sessions: sessions, notifier: notifier}
}

func text(userID, s string) Inbound {
	return Inbound{UserID: userID, Attachment: media.Attachment{Kind: inspection.SourceText, Text: s}}
}

const passReply = `{"order_ids":["101","102"],"status":"PASS","notes":"","confidence":0.95}`

// --------------------------------------------------
// scenarios
// --------------------------------------------------

func TestService_TextToConfirmedRecord(t *testing.T) {
	h := newHarness(t, passReply)
	ctx := context.Background()

	out := h.svc.HandleMessage(ctx, text("42", "Заказы 101, 102 прошли проверку"))

	require.Len(t, out, 1)
	p := out[0]
	assert.Equal(t, OutboundPrompt, p.Type)
	require.NotNil(t, p.Candidate)
	assert.Equal(t, []string{"101", "102"}, p.Candidate.OrderIDs)
	assert.Equal(t, inspection.StatusPass, p.Candidate.Status)
	assert.Contains(t, p.Text, "101, 102")
	assert.Contains(t, p.Text, "Годно")
	require.Len(t, p.Actions, 3)
	assert.Equal(t, session.ActionAccept, p.Actions[0].Action)
	assert.Equal(t, p.Candidate.Token, p.Actions[0].Token)

	accept := session.Decision{Action: session.ActionAccept, Token: p.Candidate.Token}
	out = h.svc.HandleDecision(ctx, "42", accept)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Record)
	assert.Equal(t, []string{"101", "102"}, out[0].Record.OrderIDs)
	assert.Equal(t, inspection.StatusPass, out[0].Record.Status)

	// повторное нажатие той же кнопки
	out = h.svc.HandleDecision(ctx, "42", accept)
	require.Len(t, out, 1)
	assert.Equal(t, OutboundNotification, out[0].Type)
	assert.Contains(t, out[0].Text, msgAlreadySaved)

	assert.Equal(t, 1, h.store.Saves())
	assert.Equal(t, session.StateIdle, h.svc.Session("42").State)
}

func TestService_OversizedAudioMakesNoCalls(t *testing.T) {
	h := newHarness(t, passReply)

	out := h.svc.HandleMessage(context.Background(), Inbound{
		UserID: "42",
		Attachment: media.Attachment{
			Kind: inspection.SourceVoice,
			Data: make([]byte, 30<<20),
			MIME: "audio/ogg",
		},
	})

	require.Len(t, out, 1)
	assert.Equal(t, OutboundError, out[0].Type)
	assert.Equal(t, inspection.ErrMediaTooLarge, out[0].ErrorKind)
	assert.Zero(t, h.gw.Total())
	assert.Equal(t, session.StateIdle, h.svc.Session("42").State)
}

func TestService_VoiceGoesThroughSpeechThenLLM(t *testing.T) {
	h := newHarness(t, `{"order_ids":["10432"],"status":"в доработку","notes":"царапина"}`)
	h.gw.speech = "заказ 10432 в доработку, царапина"

	out := h.svc.HandleMessage(context.Background(), Inbound{
		UserID: "42",
		Attachment: media.Attachment{
			Kind:     inspection.SourceVoice,
			Data:     []byte("OggS fake voice"),
			MIME:     "audio/ogg",
			Duration: 20 * time.Second,
		},
	})

	require.Len(t, out, 1)
	require.NotNil(t, out[0].Candidate)
	assert.Equal(t, inspection.StatusRework, out[0].Candidate.Status)
	assert.Equal(t, inspection.SourceVoice, out[0].Candidate.SourceKind)
	assert.Equal(t, 1, h.gw.calls[ai.KindSpeech])
	assert.Equal(t, 1, h.gw.calls[ai.KindLLM])
}

func TestService_ExtractionFailureLeavesIdle(t *testing.T) {
	h := newHarness(t, "не могу помочь")

	out := h.svc.HandleMessage(context.Background(), text("42", "привет"))

	require.Len(t, out, 1)
	assert.Equal(t, inspection.ErrExtractionFailed, out[0].ErrorKind)
	assert.Equal(t, session.StateIdle, h.svc.Session("42").State)
}

func TestService_ProviderErrorIsFriendly(t *testing.T) {
	h := newHarness(t, passReply)
	h.gw.err = &ai.ProviderError{Kind: ai.ErrUnavailable, Provider: ai.KindLLM, Err: errors.New("503")}

	out := h.svc.HandleMessage(context.Background(), text("42", "Заказ 101 годно"))

	require.Len(t, out, 1)
	assert.Equal(t, inspection.ErrProviderUnavailable, out[0].ErrorKind)
	assert.Contains(t, out[0].Text, "Попробуйте")
}

func TestService_IncompleteAcceptRepromptsThenEdit(t *testing.T) {
	h := newHarness(t, `{"order_ids":[],"status":"PASS","requires_correction":true,"clarification_question":"Какой номер заказа?"}`)
	ctx := context.Background()

	out := h.svc.HandleMessage(ctx, text("42", "всё годно"))
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "Какой номер заказа?")
	token := out[0].Candidate.Token

	out = h.svc.HandleDecision(ctx, "42", session.Decision{Action: session.ActionAccept, Token: token})
	require.Len(t, out, 2)
	assert.Equal(t, inspection.ErrIncompleteCandidate, out[0].ErrorKind)
	assert.Equal(t, OutboundPrompt, out[1].Type)
	assert.Equal(t, session.StateAwaiting, h.svc.Session("42").State)

	ids := []string{"10432"}
	out = h.svc.HandleDecision(ctx, "42", session.Decision{Action: session.ActionEdit, Token: token, Patch: session.Patch{OrderIDs: &ids}})
	require.Len(t, out, 1)
	assert.Equal(t, []string{"10432"}, out[0].Candidate.OrderIDs)

	out = h.svc.HandleDecision(ctx, "42", session.Decision{Action: session.ActionAccept, Token: token})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Record)
	assert.Equal(t, []string{"10432"}, out[0].Record.OrderIDs)
	assert.Equal(t, 1, h.store.Saves())
}

func TestService_NewReportReplacesPending(t *testing.T) {
	h := newHarness(t, passReply)
	ctx := context.Background()

	first := h.svc.HandleMessage(ctx, text("42", "Заказы 101, 102 прошли проверку"))
	second := h.svc.HandleMessage(ctx, text("42", "Заказы 101, 102 прошли проверку повторно"))

	require.Len(t, second, 2)
	assert.Equal(t, msgReplaced, second[0].Text)
	assert.Equal(t, OutboundPrompt, second[1].Type)

	out := h.svc.HandleDecision(ctx, "42", session.Decision{Action: session.ActionAccept, Token: first[0].Candidate.Token})
	require.Len(t, out, 1)
	assert.Equal(t, inspection.ErrSessionExpired, out[0].ErrorKind)
	assert.Zero(t, h.store.Saves())
}

func TestService_RejectAndCancel(t *testing.T) {
	h := newHarness(t, passReply)
	ctx := context.Background()

	h.svc.HandleMessage(ctx, text("42", "Заказ 101 годно"))
	out := h.svc.HandleDecision(ctx, "42", session.Decision{Action: session.ActionReject})
	assert.Equal(t, msgRejected, out[0].Text)

	h.svc.HandleMessage(ctx, text("42", "Заказ 101 годно"))
	out = h.svc.HandleMessage(ctx, text("42", "/cancel"))
	assert.Equal(t, msgCancelled, out[0].Text)

	out = h.svc.HandleDecision(ctx, "42", session.Decision{Action: session.ActionCancel})
	assert.Equal(t, msgIdle, out[0].Text)
	assert.Zero(t, h.store.Saves())
}

func TestService_Commands(t *testing.T) {
	h := newHarness(t, passReply)
	ctx := context.Background()

	assert.Equal(t, msgWelcome, h.svc.HandleMessage(ctx, text("42", "/start"))[0].Text)
	assert.Equal(t, msgHelp, h.svc.HandleMessage(ctx, text("42", "/help@otk_bot"))[0].Text)
	assert.Equal(t, msgIdle, h.svc.HandleMessage(ctx, text("42", "/status"))[0].Text)

	h.svc.HandleMessage(ctx, text("42", "Заказы 101, 102 прошли проверку"))
	st := h.svc.HandleMessage(ctx, text("42", "/status"))[0].Text
	assert.Contains(t, st, "Ожидает подтверждения")
	assert.Contains(t, st, "101, 102")
	assert.Zero(t, h.gw.calls[ai.KindSpeech])
	assert.Equal(t, 1, h.gw.calls[ai.KindLLM])
}

func TestService_ExpiredNotifies(t *testing.T) {
	h := newHarness(t, passReply)

	h.svc.Expired(context.Background(), session.Expiry{UserID: "42", Candidate: &inspection.Candidate{ID: "c1"}})

	require.Len(t, h.notifier.sent["42"], 1)
	assert.Equal(t, msgExpired, h.notifier.sent["42"][0].Text)
}

func TestService_Recent(t *testing.T) {
	h := newHarness(t, passReply)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out := h.svc.HandleMessage(ctx, text("42", "Заказы 101, 102 прошли проверку"))
		h.svc.HandleDecision(ctx, "42", session.Decision{Action: session.ActionAccept, Token: out[0].Candidate.Token})
	}

	recs, err := h.svc.Recent(ctx, "42", 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = h.svc.Recent(ctx, "42", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestService_UsersAreIndependent(t *testing.T) {
	h := newHarness(t, passReply)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i)
			out := h.svc.HandleMessage(ctx, text(user, "Заказы 101, 102 прошли проверку"))
			h.svc.HandleDecision(ctx, user, session.Decision{Action: session.ActionAccept, Token: out[0].Candidate.Token})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, h.store.Saves())
}
