package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultSpeechRetryDelay = 100 * time.Millisecond

// SpeechItem is one fragment waiting to be spoken for a message.
type SpeechItem struct {
	Text      string
	MessageID string
}

// Voice holds the utterance settings applied to every fragment.
type Voice struct {
	Lang  string
	Rate  float64
	Pitch float64
}

func DefaultVoice() Voice {
	return Voice{Lang: "ar-EG", Rate: 1.0, Pitch: 1.0}
}

// SpeechQueue plays fragments strictly one after another. Enqueue and Cancel are
// safe from any goroutine; playback is driven by Run.
type SpeechQueue struct {
	synth      Synthesizer
	voice      Voice
	retryDelay time.Duration
	logger     *zap.Logger

	mu         sync.Mutex
	pending    []SpeechItem
	current    uint64 // utterance playing, 0 when idle
	speakingID string
	paused     bool
	lastID     uint64

	wake   chan struct{}
	events chan SynthesisEvent
}

func NewSpeechQueue(synth Synthesizer, voice Voice, retryDelay time.Duration, logger *zap.Logger) *SpeechQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryDelay <= 0 {
		retryDelay = defaultSpeechRetryDelay
	}
	return &SpeechQueue{
		synth:      synth,
		voice:      voice,
		retryDelay: retryDelay,
		logger:     logger,
		wake:       make(chan struct{}, 1),
		events:     make(chan SynthesisEvent, 16),
	}
}

func (q *SpeechQueue) Available() bool {
	return q.synth.Available()
}

// Enqueue adds a fragment to the tail of the queue. Blank text is ignored.
func (q *SpeechQueue) Enqueue(text, messageID string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, SpeechItem{Text: text, MessageID: messageID})
	q.mu.Unlock()
	q.signal()
}

// Cancel drops every pending fragment and stops the one playing.
func (q *SpeechQueue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = nil
	q.current = 0
	q.speakingID = ""
	q.synth.Cancel()
}

// SpeakingMessageID returns the message whose fragment is playing, or "".
func (q *SpeechQueue) SpeakingMessageID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.speakingID
}

func (q *SpeechQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run drains the queue until ctx is done.
func (q *SpeechQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.Cancel()
			return
		case <-q.wake:
			q.drain(false)
		case ev := <-q.events:
			q.handle(ev)
		}
	}
}

func (q *SpeechQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *SpeechQueue) handle(ev SynthesisEvent) {
	q.mu.Lock()
	if ev.UtteranceID != q.current {
		q.mu.Unlock()
		return
	}

	switch ev.Kind {
	case SynthesisStarted:
		q.mu.Unlock()
	case SynthesisEnded:
		q.current = 0
		q.speakingID = ""
		q.mu.Unlock()
		q.drain(true)
	case SynthesisFailed:
		q.current = 0
		q.speakingID = ""
		q.paused = true
		q.mu.Unlock()
		q.logger.Error("Speech synthesis failed, skipping fragment",
			zap.Uint64("utterance", ev.UtteranceID), zap.Error(ev.Err))
		time.AfterFunc(q.retryDelay, func() {
			q.mu.Lock()
			q.paused = false
			q.mu.Unlock()
			q.signal()
		})
	default:
		q.mu.Unlock()
	}
}

// drain starts the head fragment when nothing is playing. Unless it follows a
// natural end, the engine is cancelled first so two utterances never overlap.
func (q *SpeechQueue) drain(afterEnd bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != 0 || q.paused || len(q.pending) == 0 {
		return
	}
	item := q.pending[0]
	q.pending = q.pending[1:]
	q.lastID++
	q.current = q.lastID
	q.speakingID = item.MessageID

	if !afterEnd {
		q.synth.Cancel()
	}
	q.synth.Speak(Utterance{
		ID:    q.current,
		Text:  item.Text,
		Lang:  q.voice.Lang,
		Rate:  q.voice.Rate,
		Pitch: q.voice.Pitch,
	}, q.events)
}
