package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rafeeq.app/rafeeq/internal/store"
)

const (
	turnApology            = "معلش يا غالي، حصلت مشكلة. ممكن تجرب تاني؟"
	noticeRegenerateFailed = "معلش، معرفتش أجيب إجابة تانية."
	noticeBadImage         = "معلش، الصورة فيها مشكلة."

	titleTimeout = 30 * time.Second
)

var (
	ErrEmptyMessage    = errors.New("message has no text and no image")
	ErrNoActiveSession = errors.New("no active session")
	ErrTurnInProgress  = errors.New("a turn is already in progress")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotRegenerable  = errors.New("message cannot be regenerated")
)

type TurnPhase string

const (
	PhaseIdle      TurnPhase = "idle"
	PhaseThinking  TurnPhase = "thinking"
	PhaseStreaming TurnPhase = "streaming"
	PhaseError     TurnPhase = "error"
)

type TurnEventKind string

const (
	TurnEventPhase   TurnEventKind = "phase"
	TurnEventMessage TurnEventKind = "message"
	TurnEventChunk   TurnEventKind = "chunk"
	TurnEventNotice  TurnEventKind = "notice"
	TurnEventDone    TurnEventKind = "done"
)

// TurnEvent reports progress of a turn. Only the fields relevant to Kind are set.
type TurnEvent struct {
	Kind      TurnEventKind  `json:"kind"`
	SessionID string         `json:"sessionId"`
	Phase     TurnPhase      `json:"phase,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Chunk     string         `json:"chunk,omitempty"`
	Notice    string         `json:"notice,omitempty"`
	Message   *store.Message `json:"message,omitempty"`
}

// TurnObserver is called synchronously, in order, from the goroutine running the turn.
type TurnObserver func(TurnEvent)

// SpeechSink receives sentence fragments to speak.
type SpeechSink interface {
	Enqueue(text, messageID string)
	Cancel()
}

type TurnControllerOptions struct {
	Persona   Persona
	AutoSpeak func() bool
	Logger    *zap.Logger
}

// TurnController runs one user-to-AI exchange at a time: it appends messages to
// the session the turn started in, streams the model answer into it and feeds
// complete sentences to speech.
type TurnController struct {
	sessions  *SessionStore
	provider  ModelProvider
	titles    TitleGenerator
	speech    SpeechSink
	persona   Persona
	autoSpeak func() bool
	logger    *zap.Logger
	newID     func() string

	mu      sync.Mutex
	phase   TurnPhase
	current *turn

	background sync.WaitGroup
}

type turn struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func NewTurnController(sessions *SessionStore, provider ModelProvider, titles TitleGenerator, speech SpeechSink, opts TurnControllerOptions) *TurnController {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AutoSpeak == nil {
		opts.AutoSpeak = func() bool { return false }
	}
	if opts.Persona.SystemInstruction == "" {
		opts.Persona = DefaultPersona()
	}
	return &TurnController{
		sessions:  sessions,
		provider:  provider,
		titles:    titles,
		speech:    speech,
		persona:   opts.Persona,
		autoSpeak: opts.AutoSpeak,
		logger:    opts.Logger,
		newID:     uuid.NewString,
		phase:     PhaseIdle,
	}
}

func (c *TurnController) Phase() TurnPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Cancel stops the running turn at the next chunk boundary and silences speech.
// It is safe to call when no turn is running.
func (c *TurnController) Cancel() {
	c.mu.Lock()
	t := c.current
	c.mu.Unlock()

	if t != nil {
		t.stopped.Store(true)
		t.cancel()
	}
	if c.speech != nil {
		c.speech.Cancel()
	}
}

// Wait blocks until background title generation has finished.
func (c *TurnController) Wait() {
	c.background.Wait()
}

// SendMessage appends a user message to the active session and streams the
// answer into a new AI message. imageDataURL is optional. It returns the final
// AI message, or nil when the turn produced none.
func (c *TurnController) SendMessage(ctx context.Context, text, imageDataURL string, observe TurnObserver) (*store.Message, error) {
	observe = orNop(observe)
	text = strings.TrimSpace(text)
	if text == "" && imageDataURL == "" {
		return nil, ErrEmptyMessage
	}
	session, ok := c.sessions.ActiveSession()
	if !ok {
		return nil, ErrNoActiveSession
	}

	var att *Attachment
	if imageDataURL != "" {
		var err error
		if att, err = ParseDataURL(imageDataURL); err != nil {
			c.logger.Warn("Rejected image attachment", zap.Error(err))
			observe(TurnEvent{Kind: TurnEventNotice, SessionID: session.ID, Notice: noticeBadImage})
			return nil, err
		}
	}

	t, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end()

	userMsg := store.Message{ID: c.newID(), Text: text, Sender: store.SenderUser}
	parts := []Part{}
	if text != "" {
		parts = append(parts, TextPart(text))
	}
	if att != nil {
		userMsg.ImageURL = att.DataURL()
		parts = append(parts, att.Part())
	}

	persistCtx := context.WithoutCancel(ctx)
	c.sessions.UpdateSessionMessages(persistCtx, session.ID, func(prev []store.Message) []store.Message {
		return append(prev, userMsg)
	})
	observe(TurnEvent{Kind: TurnEventMessage, SessionID: session.ID, MessageID: userMsg.ID, Message: &userMsg})

	if len(session.Messages) == 0 && text != "" {
		c.generateTitle(session.ID, text)
	}

	req := GenerationRequest{
		SystemInstruction: c.persona.SystemInstruction,
		Contents:          append(historyContents(SendHistoryWindow(session.Messages)), Content{Role: RoleUser, Parts: parts}),
		Sampling:          c.persona.Sampling,
	}
	return c.stream(t, session.ID, c.newID(), false, req, observe)
}

// Regenerate streams a fresh answer into an existing AI message of the active
// session, using the user message right before it. Images are not re-sent.
func (c *TurnController) Regenerate(ctx context.Context, aiMessageID string, observe TurnObserver) (*store.Message, error) {
	observe = orNop(observe)
	session, ok := c.sessions.ActiveSession()
	if !ok {
		return nil, ErrNoActiveSession
	}
	idx := -1
	for i, m := range session.Messages {
		if m.ID == aiMessageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrMessageNotFound
	}
	if idx < 1 || session.Messages[idx].Sender != store.SenderAI || session.Messages[idx-1].Sender != store.SenderUser {
		return nil, ErrNotRegenerable
	}
	userMsg := session.Messages[idx-1]

	t, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer c.end()

	c.sessions.UpdateSessionMessages(context.WithoutCancel(ctx), session.ID, func(prev []store.Message) []store.Message {
		return updateMessage(prev, aiMessageID, func(m *store.Message) {
			m.Text = ""
			m.Streaming = true
			m.Feedback = store.FeedbackNone
		})
	})
	reset := session.Messages[idx]
	reset.Text, reset.Streaming, reset.Feedback = "", true, store.FeedbackNone
	observe(TurnEvent{Kind: TurnEventMessage, SessionID: session.ID, MessageID: aiMessageID, Message: &reset})

	req := GenerationRequest{
		SystemInstruction: c.persona.SystemInstruction,
		Contents: append(historyContents(RegenerateHistoryWindow(session.Messages, idx-1)),
			Content{Role: RoleUser, Parts: []Part{TextPart(userMsg.Text)}}),
		Sampling: c.persona.Sampling,
	}
	return c.stream(t, session.ID, aiMessageID, true, req, observe)
}

func (c *TurnController) begin(ctx context.Context) (*turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return nil, ErrTurnInProgress
	}
	tctx, cancel := context.WithCancel(ctx)
	c.current = &turn{ctx: tctx, cancel: cancel}
	return c.current, nil
}

func (c *TurnController) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.phase = PhaseIdle
}

func (c *TurnController) setPhase(sessionID string, p TurnPhase, observe TurnObserver) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	observe(TurnEvent{Kind: TurnEventPhase, SessionID: sessionID, Phase: p})
}

// stream consumes the provider answer into message aiID. When existing is
// false the message is created on the first chunk.
func (c *TurnController) stream(t *turn, sessionID, aiID string, existing bool, req GenerationRequest, observe TurnObserver) (*store.Message, error) {
	persistCtx := context.WithoutCancel(t.ctx)
	speak := c.speech != nil && c.autoSpeak()
	var buf SentenceBuffer
	created := existing
	first := true
	var streamErr error

	c.setPhase(sessionID, PhaseThinking, observe)

	for chunk, err := range c.provider.StreamContent(t.ctx, req) {
		if t.stopped.Load() || t.ctx.Err() != nil {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		if first {
			first = false
			c.setPhase(sessionID, PhaseStreaming, observe)
		}
		if !created {
			created = true
			aiMsg := store.Message{ID: aiID, Text: chunk, Sender: store.SenderAI, Streaming: true}
			c.sessions.UpdateSessionMessages(persistCtx, sessionID, func(prev []store.Message) []store.Message {
				return append(prev, aiMsg)
			})
			observe(TurnEvent{Kind: TurnEventMessage, SessionID: sessionID, MessageID: aiID, Message: &aiMsg})
		} else {
			c.sessions.UpdateSessionMessages(persistCtx, sessionID, func(prev []store.Message) []store.Message {
				return updateMessage(prev, aiID, func(m *store.Message) { m.Text += chunk })
			})
		}
		observe(TurnEvent{Kind: TurnEventChunk, SessionID: sessionID, MessageID: aiID, Chunk: chunk})

		if speak && !t.stopped.Load() {
			for _, sentence := range buf.Push(chunk) {
				c.speech.Enqueue(sentence, aiID)
			}
		}
	}

	cancelled := t.stopped.Load() || t.ctx.Err() != nil
	if streamErr != nil && !cancelled {
		c.logger.Error("Streaming failed", zap.String("session_id", sessionID), zap.Error(streamErr))
		c.setPhase(sessionID, PhaseError, observe)
		final := c.failTurn(persistCtx, sessionID, aiID, existing, observe)
		c.setPhase(sessionID, PhaseIdle, observe)
		observe(TurnEvent{Kind: TurnEventDone, SessionID: sessionID, MessageID: aiID, Message: final})
		return final, fmt.Errorf("streaming answer: %w", streamErr)
	}

	if speak && !cancelled {
		if rest, ok := buf.Flush(); ok {
			c.speech.Enqueue(rest, aiID)
		}
	}

	var final *store.Message
	if created {
		c.sessions.UpdateSessionMessages(persistCtx, sessionID, func(prev []store.Message) []store.Message {
			return updateMessage(prev, aiID, func(m *store.Message) {
				m.Streaming = false
				msg := *m
				final = &msg
			})
		})
	}
	c.setPhase(sessionID, PhaseIdle, observe)
	observe(TurnEvent{Kind: TurnEventDone, SessionID: sessionID, MessageID: aiID, Message: final})
	return final, nil
}

// failTurn replaces whatever the turn produced with the apology.
func (c *TurnController) failTurn(ctx context.Context, sessionID, aiID string, existing bool, observe TurnObserver) *store.Message {
	apology := store.Message{ID: aiID, Text: turnApology, Sender: store.SenderAI}
	if existing {
		c.sessions.UpdateSessionMessages(ctx, sessionID, func(prev []store.Message) []store.Message {
			return updateMessage(prev, aiID, func(m *store.Message) {
				m.Text = turnApology
				m.Streaming = false
			})
		})
		observe(TurnEvent{Kind: TurnEventNotice, SessionID: sessionID, MessageID: aiID, Notice: noticeRegenerateFailed})
		return &apology
	}
	c.sessions.UpdateSessionMessages(ctx, sessionID, func(prev []store.Message) []store.Message {
		out := prev[:0]
		for _, m := range prev {
			if m.ID != aiID {
				out = append(out, m)
			}
		}
		return append(out, apology)
	})
	observe(TurnEvent{Kind: TurnEventMessage, SessionID: sessionID, MessageID: aiID, Message: &apology})
	return &apology
}

func (c *TurnController) generateTitle(sessionID, firstMessage string) {
	if c.titles == nil {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()

		title := c.titles.GenerateTitle(ctx, firstMessage)
		c.sessions.UpdateSessionTitle(ctx, sessionID, title)
		c.logger.Debug("Session titled", zap.String("session_id", sessionID), zap.String("title", title))
	}()
}

func updateMessage(msgs []store.Message, id string, fn func(*store.Message)) []store.Message {
	for i := range msgs {
		if msgs[i].ID == id {
			fn(&msgs[i])
		}
	}
	return msgs
}

func orNop(observe TurnObserver) TurnObserver {
	if observe == nil {
		return func(TurnEvent) {}
	}
	return observe
}
