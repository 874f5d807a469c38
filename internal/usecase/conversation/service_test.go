package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona-chat-relay/internal/adapter/memory"
	"persona-chat-relay/internal/domain"
)

type fakeRelay struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    chan struct{}
	requests []RelayRequest
}

func (f *fakeRelay) Chat(ctx context.Context, req RelayRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply, err, block := f.reply, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeRelay) last(t *testing.T) RelayRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

var testContacts = []domain.Contact{
	{ID: "girl", Name: "小雨", Greeting: "嗨~ 今天天气真好呢！"},
	{ID: "boy", Name: "陈阳", Greeting: "早上好。"},
}

func newTestService(relay Relay) (*Service, *memory.Store) {
	store := memory.NewStore()
	svc := NewService(store, relay, testContacts, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestContactsKeepsOrder(t *testing.T) {
	svc, _ := newTestService(&fakeRelay{})
	assert.Equal(t, testContacts, svc.Contacts())
}

func TestOpenSeedsGreetingOnce(t *testing.T) {
	svc, store := newTestService(&fakeRelay{})

	contact, history, err := svc.Open(1, "girl")
	require.NoError(t, err)
	assert.Equal(t, "小雨", contact.Name)
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleAssistant, history[0].Role)
	assert.Equal(t, "嗨~ 今天天气真好呢！", history[0].Content)

	_, history, err = svc.Open(1, "girl")
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Len(t, store.Messages(1, "girl"), 1)

	active, ok := svc.Active(1)
	require.True(t, ok)
	assert.Equal(t, "girl", active.ID)
}

func TestOpenUnknownPersona(t *testing.T) {
	svc, _ := newTestService(&fakeRelay{})

	_, _, err := svc.Open(1, "cat")
	assert.ErrorIs(t, err, ErrUnknownPersona)
	_, ok := svc.Active(1)
	assert.False(t, ok)
}

func TestSendTurnRequiresActivePersona(t *testing.T) {
	svc, _ := newTestService(&fakeRelay{reply: "hi"})

	_, err := svc.SendTurn(context.Background(), 1, "hello")
	assert.ErrorIs(t, err, ErrNoActivePersona)
}

func TestSendTurnRejectsBlankText(t *testing.T) {
	relay := &fakeRelay{reply: "hi"}
	svc, store := newTestService(relay)
	_, _, err := svc.Open(1, "girl")
	require.NoError(t, err)

	_, err = svc.SendTurn(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, relay.requests)
	assert.Len(t, store.Messages(1, "girl"), 1)
}

func TestSendTurnRecordsBothTurns(t *testing.T) {
	relay := &fakeRelay{reply: "我也很好呀"}
	svc, store := newTestService(relay)
	_, _, err := svc.Open(1, "girl")
	require.NoError(t, err)

	reply, err := svc.SendTurn(context.Background(), 1, " 今天很好 ")
	require.NoError(t, err)
	assert.Equal(t, "我也很好呀", reply)

	sent := relay.last(t)
	assert.Equal(t, "今天很好", sent.Message)
	assert.Equal(t, "girl", sent.PersonaID)
	require.Len(t, sent.History, 1)
	assert.Equal(t, "嗨~ 今天天气真好呢！", sent.History[0].Content)

	history := store.Messages(1, "girl")
	require.Len(t, history, 3)
	assert.Equal(t, domain.RoleUser, history[1].Role)
	assert.Equal(t, "今天很好", history[1].Content)
	assert.Equal(t, domain.RoleAssistant, history[2].Role)
	assert.Equal(t, "我也很好呀", history[2].Content)
}

func TestSendTurnRelayFailureAppendsFallback(t *testing.T) {
	relay := &fakeRelay{err: errors.New("connection refused")}
	svc, store := newTestService(relay)
	_, _, err := svc.Open(1, "boy")
	require.NoError(t, err)

	reply, err := svc.SendTurn(context.Background(), 1, "在吗")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)

	history := store.Messages(1, "boy")
	require.Len(t, history, 3)
	assert.Equal(t, "在吗", history[1].Content)
	assert.Equal(t, FallbackReply, history[2].Content)
}

func TestHistoriesArePerPersona(t *testing.T) {
	relay := &fakeRelay{reply: "ok"}
	svc, store := newTestService(relay)

	_, _, err := svc.Open(1, "girl")
	require.NoError(t, err)
	_, err = svc.SendTurn(context.Background(), 1, "to girl")
	require.NoError(t, err)

	_, _, err = svc.Open(1, "boy")
	require.NoError(t, err)
	_, err = svc.SendTurn(context.Background(), 1, "to boy")
	require.NoError(t, err)

	assert.Len(t, store.Messages(1, "girl"), 3)
	assert.Len(t, store.Messages(1, "boy"), 3)
	assert.Equal(t, "boy", relay.last(t).PersonaID)

	contact, history, err := svc.History(1)
	require.NoError(t, err)
	assert.Equal(t, "boy", contact.ID)
	assert.Equal(t, "to boy", history[1].Content)
}

func TestSendTurnRejectsConcurrentTurn(t *testing.T) {
	relay := &fakeRelay{reply: "slow", block: make(chan struct{})}
	svc, _ := newTestService(relay)
	_, _, err := svc.Open(1, "girl")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SendTurn(context.Background(), 1, "first")
		done <- err
	}()

	require.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		return len(relay.requests) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = svc.SendTurn(context.Background(), 1, "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)
	_, err = svc.Reset(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(relay.block)
	require.NoError(t, <-done)

	relay.mu.Lock()
	relay.block = nil
	relay.mu.Unlock()
	_, err = svc.SendTurn(context.Background(), 1, "third")
	assert.NoError(t, err)
}

func TestResetLeavesSingleGreeting(t *testing.T) {
	relay := &fakeRelay{reply: "ok"}
	svc, store := newTestService(relay)
	_, _, err := svc.Open(1, "girl")
	require.NoError(t, err)
	for _, text := range []string{"a", "b", "c"} {
		_, err = svc.SendTurn(context.Background(), 1, text)
		require.NoError(t, err)
	}

	relay.reply = "重新认识一下，我是小雨！"
	for i := 0; i < 2; i++ {
		greeting, err := svc.Reset(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "重新认识一下，我是小雨！", greeting)

		history := store.Messages(1, "girl")
		require.Len(t, history, 1)
		assert.Equal(t, domain.RoleAssistant, history[0].Role)
		assert.Equal(t, greeting, history[0].Content)
	}

	sent := relay.last(t)
	assert.Equal(t, domain.ResetSentinel, sent.Message)
	assert.Empty(t, sent.History)
}

func TestResetFallsBackToCannedGreeting(t *testing.T) {
	relay := &fakeRelay{err: errors.New("down")}
	svc, store := newTestService(relay)
	_, _, err := svc.Open(1, "boy")
	require.NoError(t, err)

	greeting, err := svc.Reset(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "早上好。", greeting)
	assert.Len(t, store.Messages(1, "boy"), 1)
}

func TestResetRequiresActivePersona(t *testing.T) {
	svc, _ := newTestService(&fakeRelay{})

	_, err := svc.Reset(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoActivePersona)
}

func TestContactWithoutGreetingNeverSeedsEmptyTurn(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, &fakeRelay{err: errors.New("down")}, []domain.Contact{{ID: "cat", Name: "猫"}}, zerolog.Nop())

	_, history, err := svc.Open(1, "cat")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, DefaultGreeting, history[0].Content)

	for i := 0; i < 3; i++ {
		greeting, err := svc.Reset(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, DefaultGreeting, greeting)
	}
	history = store.Messages(1, "cat")
	require.Len(t, history, 1)
	assert.Equal(t, DefaultGreeting, history[0].Content)
}

func TestBlankRelayRepliesAreReplaced(t *testing.T) {
	relay := &fakeRelay{reply: "  "}
	svc, store := newTestService(relay)
	_, _, err := svc.Open(1, "boy")
	require.NoError(t, err)

	reply, err := svc.SendTurn(context.Background(), 1, "hi")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, reply)

	greeting, err := svc.Reset(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "早上好。", greeting)
	assert.Len(t, store.Messages(1, "boy"), 1)
}

type failingClearStore struct {
	*memory.Store
}

func (failingClearStore) Clear(int64, string) error {
	return errors.New("disk full")
}

func TestResetStopsWhenHistoryCannotBeCleared(t *testing.T) {
	relay := &fakeRelay{reply: "重新认识一下"}
	store := failingClearStore{Store: memory.NewStore()}
	svc := NewService(store, relay, testContacts, zerolog.Nop())
	_, _, err := svc.Open(1, "girl")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Reset(context.Background(), 1)
		assert.ErrorContains(t, err, "disk full")
	}
	assert.Len(t, store.Messages(1, "girl"), 1)
	assert.Empty(t, relay.requests)

	_, err = svc.SendTurn(context.Background(), 1, "还在吗")
	assert.NoError(t, err)
}
