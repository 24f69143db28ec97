package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rafeeq.app/rafeeq/internal/store"
)

// tickingClock returns a clock, ahead of the real one, that advances one
// millisecond per call.
func tickingClock() func() time.Time {
	t := time.Now().Add(time.Hour)
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func newTestSessionStore(t *testing.T, kv store.KV) *SessionStore {
	t.Helper()
	s := NewSessionStore(context.Background(), kv, nil)
	s.now = tickingClock()
	return s
}

func assertStoreInvariant(t *testing.T, s *SessionStore) {
	t.Helper()
	sessions := s.Sessions()
	require.NotEmpty(t, sessions)
	_, ok := s.Session(s.ActiveSessionID())
	assert.True(t, ok, "active id must reference an existing session")
}

func TestSessionStoreStartsWithOneSession(t *testing.T) {
	kv := store.NewMemoryStore()
	s := newTestSessionStore(t, kv)

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, store.DefaultTitle, sessions[0].Title)
	assert.Empty(t, sessions[0].Messages)
	assert.Equal(t, sessions[0].ID, s.ActiveSessionID())

	active, ok, err := kv.Get(context.Background(), store.ActiveSessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sessions[0].ID, active)
}

func TestSessionStoreRehydrates(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	s := newTestSessionStore(t, kv)
	second := s.CreateNewSession(ctx)
	s.UpdateSessionMessages(ctx, second.ID, func(prev []store.Message) []store.Message {
		return append(prev, store.Message{ID: "m1", Text: "ازيك", Sender: store.SenderUser})
	})
	s.UpdateSessionTitle(ctx, second.ID, "سلام وكلام")

	reloaded := NewSessionStore(ctx, kv, nil)
	assert.Equal(t, second.ID, reloaded.ActiveSessionID())
	got, ok := reloaded.Session(second.ID)
	require.True(t, ok)
	assert.Equal(t, "سلام وكلام", got.Title)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "ازيك", got.Messages[0].Text)
	assert.Len(t, reloaded.Sessions(), 2)
}

func TestSessionStoreRepairsInvalidActiveID(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	sessions := []store.ChatSession{
		{ID: "old", Title: "a", CreatedAt: 100},
		{ID: "new", Title: "b", CreatedAt: 200},
		{ID: "mid", Title: "c", CreatedAt: 150},
	}
	data, err := json.Marshal(sessions)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, store.SessionsKey, string(data)))
	require.NoError(t, kv.Set(ctx, store.ActiveSessionKey, "gone"))

	s := NewSessionStore(ctx, kv, nil)
	assert.Equal(t, "new", s.ActiveSessionID())

	ids := []string{}
	for _, sess := range s.Sessions() {
		ids = append(ids, sess.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)
	active, ok := s.ActiveSession()
	require.True(t, ok)
	assert.NotNil(t, active.Messages)
}

func TestSessionStoreCorruptDataStartsFresh(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, store.SessionsKey, "{not json"))

	s := NewSessionStore(ctx, kv, nil)
	require.Len(t, s.Sessions(), 1)
	assertStoreInvariant(t, s)
}

func TestSessionStoreDeleteActiveFallsBackToOther(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	first := s.ActiveSessionID()
	second := s.CreateNewSession(ctx)
	require.Equal(t, second.ID, s.ActiveSessionID())

	require.NoError(t, s.DeleteSession(ctx, second.ID))
	assert.Equal(t, first, s.ActiveSessionID())
	assert.Len(t, s.Sessions(), 1)
}

func TestSessionStoreDeleteActivePicksLatestRemaining(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	b := s.CreateNewSession(ctx)
	c := s.CreateNewSession(ctx)
	require.NoError(t, s.SetActiveSessionID(ctx, b.ID))

	require.NoError(t, s.DeleteSession(ctx, b.ID))
	assert.Equal(t, c.ID, s.ActiveSessionID())
}

func TestSessionStoreDeleteInactiveKeepsActive(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	first := s.ActiveSessionID()
	second := s.CreateNewSession(ctx)

	require.NoError(t, s.DeleteSession(ctx, first))
	assert.Equal(t, second.ID, s.ActiveSessionID())
}

func TestSessionStoreDeleteOnlySessionCreatesFresh(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	only := s.ActiveSessionID()

	require.NoError(t, s.DeleteSession(ctx, only))
	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.NotEqual(t, only, sessions[0].ID)
	assert.Empty(t, sessions[0].Messages)
	assert.Equal(t, sessions[0].ID, s.ActiveSessionID())
}

func TestSessionStoreDeleteUnknown(t *testing.T) {
	s := newTestSessionStore(t, store.NewMemoryStore())
	assert.ErrorIs(t, s.DeleteSession(context.Background(), "nope"), ErrSessionNotFound)
	assertStoreInvariant(t, s)
}

func TestSessionStoreClearAll(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	s.CreateNewSession(ctx)
	s.CreateNewSession(ctx)

	fresh := s.ClearAllSessions(ctx)
	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, fresh.ID, sessions[0].ID)
	assert.Equal(t, fresh.ID, s.ActiveSessionID())
}

func TestSessionStoreInvariantUnderMixedOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	for i := 0; i < 5; i++ {
		s.CreateNewSession(ctx)
		assertStoreInvariant(t, s)
	}
	for _, sess := range s.Sessions() {
		require.NoError(t, s.DeleteSession(ctx, sess.ID))
		assertStoreInvariant(t, s)
	}
	s.ClearAllSessions(ctx)
	assertStoreInvariant(t, s)
}

func TestSessionStoreSetActiveRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	before := s.ActiveSessionID()
	assert.ErrorIs(t, s.SetActiveSessionID(ctx, "missing"), ErrSessionNotFound)
	assert.Equal(t, before, s.ActiveSessionID())
}

func TestSessionStoreUpdatesTargetOnlyTheirSession(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	first := s.ActiveSessionID()
	second := s.CreateNewSession(ctx)

	s.UpdateActiveSessionMessages(ctx, ReplaceMessages([]store.Message{{ID: "x", Text: "hi", Sender: store.SenderUser}}))
	got, _ := s.Session(second.ID)
	assert.Len(t, got.Messages, 1)
	got, _ = s.Session(first)
	assert.Empty(t, got.Messages)

	s.UpdateSessionTitle(ctx, first, "الأول")
	got, _ = s.Session(first)
	assert.Equal(t, "الأول", got.Title)
	got, _ = s.Session(second.ID)
	assert.Equal(t, store.DefaultTitle, got.Title)

	assert.False(t, s.UpdateSessionMessages(ctx, "missing", ReplaceMessages(nil)))
}

func TestSessionStoreReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestSessionStore(t, store.NewMemoryStore())
	s.UpdateActiveSessionMessages(ctx, ReplaceMessages([]store.Message{{ID: "x", Text: "original"}}))

	active, ok := s.ActiveSession()
	require.True(t, ok)
	active.Messages[0].Text = "mutated"

	again, _ := s.ActiveSession()
	assert.Equal(t, "original", again.Messages[0].Text)
}

type failingKV struct {
	store.KV
	broken bool
}

func (f *failingKV) Set(ctx context.Context, key, value string) error {
	if f.broken {
		return errors.New("disk full")
	}
	return f.KV.Set(ctx, key, value)
}

func (f *failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.broken {
		return "", false, errors.New("disk unreadable")
	}
	return f.KV.Get(ctx, key)
}

func TestSessionStoreSurvivesStorageFailures(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: store.NewMemoryStore(), broken: true}

	s := NewSessionStore(ctx, kv, nil)
	assertStoreInvariant(t, s)

	created := s.CreateNewSession(ctx)
	s.UpdateActiveSessionMessages(ctx, ReplaceMessages([]store.Message{{ID: "m", Text: "still here"}}))
	got, ok := s.Session(created.ID)
	require.True(t, ok)
	assert.Equal(t, "still here", got.Messages[0].Text, "memory stays authoritative when writes fail")
}
