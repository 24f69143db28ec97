package core

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rafeeq.app/rafeeq/internal/store"
)

var ErrSessionNotFound = errors.New("session not found")

// MessagesUpdater transforms a session's message list. It receives a private
// copy and must not call back into the SessionStore.
type MessagesUpdater func(prev []store.Message) []store.Message

// ReplaceMessages returns an updater that discards the previous list.
func ReplaceMessages(msgs []store.Message) MessagesUpdater {
	return func([]store.Message) []store.Message { return cloneMessages(msgs) }
}

// SessionStore owns the chat sessions and the active session pointer. The
// in-memory copy is authoritative; every mutation is written through to kv and
// write failures are only logged.
type SessionStore struct {
	kv     store.KV
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions []store.ChatSession // insertion order
	activeID string
}

// NewSessionStore rehydrates sessions from kv and repairs the state so that at
// least one session exists and the active id points at one of them.
func NewSessionStore(ctx context.Context, kv store.KV, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionStore{kv: kv, logger: logger, now: time.Now}
	s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.repair(ctx)
	return s
}

func (s *SessionStore) load(ctx context.Context) {
	raw, ok, err := s.kv.Get(ctx, store.SessionsKey)
	if err != nil {
		s.logger.Error("Failed to load sessions", zap.Error(err))
	} else if ok {
		var sessions []store.ChatSession
		if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
			s.logger.Error("Stored sessions are corrupt, starting fresh", zap.Error(err))
		} else {
			for _, sess := range sessions {
				if sess.ID == "" {
					continue
				}
				if sess.Messages == nil {
					sess.Messages = []store.Message{}
				}
				s.sessions = append(s.sessions, sess)
			}
		}
	}

	activeID, ok, err := s.kv.Get(ctx, store.ActiveSessionKey)
	if err != nil {
		s.logger.Error("Failed to load active session id", zap.Error(err))
	} else if ok {
		s.activeID = activeID
	}
}

// repair must be called with s.mu held.
func (s *SessionStore) repair(ctx context.Context) {
	if len(s.sessions) == 0 {
		s.insertNew(ctx)
		return
	}
	if s.indexOf(s.activeID) < 0 {
		s.logger.Info("Active session missing, switching to latest", zap.String("session_id", s.activeID))
		s.activeID = s.sessions[s.latestIndex()].ID
		s.persistActive(ctx)
	}
}

// Sessions returns copies of all sessions, most recently created first.
func (s *SessionStore) Sessions() []store.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.ChatSession, 0, len(s.sessions))
	for i := len(s.sessions) - 1; i >= 0; i-- {
		out = append(out, s.sessions[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

func (s *SessionStore) Session(id string) (store.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return store.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

func (s *SessionStore) ActiveSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *SessionStore) ActiveSession() (store.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(s.activeID)
	if i < 0 {
		return store.ChatSession{}, false
	}
	return s.sessions[i].Clone(), true
}

// CreateNewSession adds an empty session and makes it active.
func (s *SessionStore) CreateNewSession(ctx context.Context) store.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertNew(ctx).Clone()
}

// SetActiveSessionID switches the active session. Unknown ids are refused so the
// pointer never dangles.
func (s *SessionStore) SetActiveSessionID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return ErrSessionNotFound
	}
	if s.activeID == id {
		return nil
	}
	s.activeID = id
	s.persistActive(ctx)
	return nil
}

// UpdateActiveSessionMessages applies update to the active session only.
func (s *SessionStore) UpdateActiveSessionMessages(ctx context.Context, update MessagesUpdater) {
	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()
	if id == "" {
		return
	}
	s.UpdateSessionMessages(ctx, id, update)
}

// UpdateSessionMessages applies update to the session with id. It reports
// false when the session no longer exists.
func (s *SessionStore) UpdateSessionMessages(ctx context.Context, id string, update MessagesUpdater) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	next := update(cloneMessages(s.sessions[i].Messages))
	if next == nil {
		next = []store.Message{}
	}
	s.sessions[i].Messages = cloneMessages(next)
	s.persistSessions(ctx)
	return true
}

func (s *SessionStore) UpdateSessionTitle(ctx context.Context, id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.sessions[i].Title = title
	s.persistSessions(ctx)
}

// DeleteSession removes a session. When the active one is deleted the latest
// remaining session takes over, or a fresh one is created.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrSessionNotFound
	}
	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)

	if len(s.sessions) == 0 {
		s.insertNew(ctx)
		return nil
	}
	s.persistSessions(ctx)
	if id == s.activeID {
		s.activeID = s.sessions[s.latestIndex()].ID
		s.persistActive(ctx)
	}
	return nil
}

// ClearAllSessions drops everything and leaves one fresh active session.
func (s *SessionStore) ClearAllSessions(ctx context.Context) store.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	return s.insertNew(ctx).Clone()
}

// insertNew must be called with s.mu held.
func (s *SessionStore) insertNew(ctx context.Context) store.ChatSession {
	sess := store.ChatSession{
		ID:        uuid.NewString(),
		Title:     store.DefaultTitle,
		Messages:  []store.Message{},
		CreatedAt: s.now().UnixMilli(),
	}
	s.sessions = append(s.sessions, sess)
	s.activeID = sess.ID
	s.persistSessions(ctx)
	s.persistActive(ctx)
	return sess
}

func (s *SessionStore) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

// latestIndex picks the highest createdAt; ties go to the later insertion.
func (s *SessionStore) latestIndex() int {
	best := 0
	for i := range s.sessions {
		if s.sessions[i].CreatedAt >= s.sessions[best].CreatedAt {
			best = i
		}
	}
	return best
}

func (s *SessionStore) persistSessions(ctx context.Context) {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		s.logger.Error("Failed to encode sessions", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, store.SessionsKey, string(data)); err != nil {
		s.logger.Error("Failed to save sessions", zap.Error(err))
	}
}

func (s *SessionStore) persistActive(ctx context.Context) {
	var err error
	if s.activeID == "" {
		err = s.kv.Remove(ctx, store.ActiveSessionKey)
	} else {
		err = s.kv.Set(ctx, store.ActiveSessionKey, s.activeID)
	}
	if err != nil {
		s.logger.Error("Failed to save active session id", zap.Error(err))
	}
}
