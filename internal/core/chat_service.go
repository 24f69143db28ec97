package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rafeeq.app/rafeeq/internal/store"
)

const (
	NoticeSessionDeleted  = "الشات اتمسح"
	NoticeSessionsCleared = "كله اتمسح يا باشا"
	NoticeLiked           = "حبيبي تسلم!"
	NoticeDisliked        = "تمام، هحاول أظبطها المرة الجاية"
)

var (
	ErrInvalidFeedback    = errors.New("feedback must be like or dislike")
	ErrFeedbackNotAllowed = errors.New("only AI messages take feedback")
)

// SpeechPlayer is the speech output the chat service drives.
type SpeechPlayer interface {
	SpeechSink
	Available() bool
	SpeakingMessageID() string
	Pending() int
}

type SpeechStatus struct {
	Available         bool   `json:"available"`
	SpeakingMessageID string `json:"speakingMessageId,omitempty"`
	Pending           int    `json:"pending"`
}

// ChatService is what the API talks to: sessions, turns, speech, dictation and
// preferences behind one facade.
type ChatService struct {
	sessions  *SessionStore
	turns     *TurnController
	speech    SpeechPlayer
	prefs     *PreferenceStore
	dictation *Dictation
	logger    *zap.Logger
}

func NewChatService(sessions *SessionStore, turns *TurnController, speech SpeechPlayer, prefs *PreferenceStore, dictation *Dictation, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dictation == nil {
		dictation = NewDictation(nil, logger)
	}
	return &ChatService{
		sessions:  sessions,
		turns:     turns,
		speech:    speech,
		prefs:     prefs,
		dictation: dictation,
		logger:    logger,
	}
}

func (s *ChatService) Sessions() []store.ChatSession {
	return s.sessions.Sessions()
}

func (s *ChatService) Session(id string) (store.ChatSession, bool) {
	return s.sessions.Session(id)
}

func (s *ChatService) ActiveSession() (store.ChatSession, bool) {
	return s.sessions.ActiveSession()
}

func (s *ChatService) CreateSession(ctx context.Context) store.ChatSession {
	sess := s.sessions.CreateNewSession(ctx)
	s.logger.Info("Session created", zap.String("session_id", sess.ID))
	return sess
}

func (s *ChatService) SelectSession(ctx context.Context, id string) error {
	return s.sessions.SetActiveSessionID(ctx, id)
}

// DeleteSession removes a session and returns the notice to show.
func (s *ChatService) DeleteSession(ctx context.Context, id string) (string, error) {
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return "", err
	}
	s.logger.Info("Session deleted", zap.String("session_id", id))
	return NoticeSessionDeleted, nil
}

func (s *ChatService) ClearSessions(ctx context.Context) (store.ChatSession, string) {
	sess := s.sessions.ClearAllSessions(ctx)
	s.logger.Info("All sessions cleared")
	return sess, NoticeSessionsCleared
}

// SendMessage stops dictation, then runs a turn in the active session.
func (s *ChatService) SendMessage(ctx context.Context, text, imageDataURL string, observe TurnObserver) (*store.Message, error) {
	if s.dictation.Supported() {
		_ = s.dictation.Stop()
	}
	return s.turns.SendMessage(ctx, text, imageDataURL, observe)
}

func (s *ChatService) Regenerate(ctx context.Context, aiMessageID string, observe TurnObserver) (*store.Message, error) {
	return s.turns.Regenerate(ctx, aiMessageID, observe)
}

// StopGeneration cancels the running turn and any speech.
func (s *ChatService) StopGeneration() {
	s.turns.Cancel()
}

func (s *ChatService) TurnPhase() TurnPhase {
	return s.turns.Phase()
}

// SetMessageFeedback toggles feedback on an AI message of the active session:
// sending the current value again clears it.
func (s *ChatService) SetMessageFeedback(ctx context.Context, messageID string, fb store.Feedback) (store.Message, string, error) {
	if !fb.Valid() {
		return store.Message{}, "", ErrInvalidFeedback
	}
	active, ok := s.sessions.ActiveSession()
	if !ok {
		return store.Message{}, "", ErrNoActiveSession
	}
	target, err := findMessage(active.Messages, messageID)
	if err != nil {
		return store.Message{}, "", err
	}
	if target.Sender != store.SenderAI {
		return store.Message{}, "", ErrFeedbackNotAllowed
	}

	var updated store.Message
	s.sessions.UpdateSessionMessages(ctx, active.ID, func(prev []store.Message) []store.Message {
		return updateMessage(prev, messageID, func(m *store.Message) {
			if m.Feedback == fb {
				m.Feedback = store.FeedbackNone
			} else {
				m.Feedback = fb
			}
			updated = *m
		})
	})

	notice := NoticeDisliked
	if fb == store.FeedbackLike {
		notice = NoticeLiked
	}
	return updated, notice, nil
}

// SpeakMessage reads a whole message of the active session aloud, one
// sentence at a time.
func (s *ChatService) SpeakMessage(messageID string) error {
	if s.speech == nil || !s.speech.Available() {
		return ErrSpeechUnavailable
	}
	active, ok := s.sessions.ActiveSession()
	if !ok {
		return ErrNoActiveSession
	}
	msg, err := findMessage(active.Messages, messageID)
	if err != nil {
		return err
	}
	for _, sentence := range SplitSentences(msg.Text) {
		if sentence = strings.TrimSpace(sentence); sentence != "" {
			s.speech.Enqueue(sentence, messageID)
		}
	}
	return nil
}

func (s *ChatService) CancelSpeech() {
	if s.speech != nil {
		s.speech.Cancel()
	}
}

func (s *ChatService) SpeechStatus() SpeechStatus {
	if s.speech == nil {
		return SpeechStatus{}
	}
	return SpeechStatus{
		Available:         s.speech.Available(),
		SpeakingMessageID: s.speech.SpeakingMessageID(),
		Pending:           s.speech.Pending(),
	}
}

func (s *ChatService) Preferences() Preferences {
	return s.prefs.Get()
}

func (s *ChatService) UpdatePreferences(ctx context.Context, actions ...PreferenceAction) (Preferences, error) {
	p := s.prefs.Get()
	for _, a := range actions {
		var err error
		if p, err = s.prefs.Dispatch(ctx, a); err != nil {
			return p, fmt.Errorf("failed to update preferences: %w", err)
		}
	}
	return p, nil
}

func (s *ChatService) Dictation() *Dictation {
	return s.dictation
}

func findMessage(msgs []store.Message, id string) (store.Message, error) {
	for _, m := range msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return store.Message{}, ErrMessageNotFound
}
