package core

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const (
	noticeSpeechUnsupported  = "المايك بتاعك شكله مش شغال على المتصفح ده."
	noticeMicPermission      = "انت رفضت وصول المايكروفون. لو سمحت شغله من إعدادات المتصفح."
	noticeRecognitionFailure = "حصلت مشكلة في التعرّف على الصوت."
)

var (
	ErrSpeechUnsupported = errors.New("speech recognition is not supported")
	ErrRecognizerIdle    = errors.New("recognizer is not listening")
)

type DictationState string

const (
	DictationIdle      DictationState = "idle"
	DictationListening DictationState = "listening"
)

type RecognitionEventKind string

const (
	RecognitionResult RecognitionEventKind = "result"
	RecognitionEnd    RecognitionEventKind = "end"
	RecognitionError  RecognitionEventKind = "error"
)

// RecognitionEvent is posted by a Recognizer. Transcript carries the full
// cumulative hypothesis for result events; Code the engine error code.
type RecognitionEvent struct {
	Kind       RecognitionEventKind `json:"kind"`
	Transcript string               `json:"transcript,omitempty"`
	Code       string               `json:"code,omitempty"`
}

type DictationErrorKind string

const (
	DictationPermissionDenied DictationErrorKind = "permission-denied"
	DictationFailure          DictationErrorKind = "failure"
)

// Recognizer is a continuous speech-to-text engine. Start must not block;
// recognition progress is reported on events.
type Recognizer interface {
	Available() bool
	Start(events chan<- RecognitionEvent) error
	Stop()
}

// DictationSnapshot is a copy of the dictation state for the UI.
type DictationSnapshot struct {
	Supported  bool               `json:"supported"`
	State      DictationState     `json:"state"`
	Transcript string             `json:"transcript"`
	Error      DictationErrorKind `json:"error,omitempty"`
	Notice     string             `json:"notice,omitempty"`
}

// Dictation exposes a Recognizer as an idle/listening state machine.
type Dictation struct {
	rec    Recognizer
	logger *zap.Logger
	events chan RecognitionEvent

	mu         sync.Mutex
	state      DictationState
	transcript string
	errKind    DictationErrorKind
	notice     string
}

func NewDictation(rec Recognizer, logger *zap.Logger) *Dictation {
	if rec == nil {
		rec = UnsupportedRecognizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dictation{
		rec:    rec,
		logger: logger,
		events: make(chan RecognitionEvent, 16),
		state:  DictationIdle,
	}
}

func (d *Dictation) Supported() bool {
	return d.rec.Available()
}

// Start begins listening and clears the previous transcript. It does nothing
// while already listening.
func (d *Dictation) Start() error {
	if !d.Supported() {
		return ErrSpeechUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DictationIdle {
		return nil
	}
	if err := d.rec.Start(d.events); err != nil {
		d.logger.Warn("Speech recognizer failed to start", zap.Error(err))
		d.fail(DictationFailure)
		return err
	}
	d.state = DictationListening
	d.transcript = ""
	d.errKind = ""
	d.notice = ""
	return nil
}

func (d *Dictation) Stop() error {
	if !d.Supported() {
		return ErrSpeechUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != DictationListening {
		return nil
	}
	d.state = DictationIdle
	d.rec.Stop()
	return nil
}

func (d *Dictation) Snapshot() DictationSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := DictationSnapshot{
		Supported:  d.rec.Available(),
		State:      d.state,
		Transcript: d.transcript,
		Error:      d.errKind,
		Notice:     d.notice,
	}
	if !s.Supported {
		s.Notice = noticeSpeechUnsupported
	}
	return s
}

// Run consumes recognizer events until ctx is done.
func (d *Dictation) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.Stop()
			return
		case ev := <-d.events:
			d.handle(ev)
		}
	}
}

func (d *Dictation) handle(ev RecognitionEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case RecognitionResult:
		if d.state == DictationListening {
			d.transcript = ev.Transcript
		}
	case RecognitionEnd:
		d.state = DictationIdle
	case RecognitionError:
		d.logger.Warn("Speech recognition error", zap.String("code", ev.Code))
		if ev.Code == "not-allowed" {
			d.fail(DictationPermissionDenied)
		} else {
			d.fail(DictationFailure)
		}
	default:
		d.logger.Debug("Ignoring unknown recognition event", zap.String("kind", string(ev.Kind)))
	}
}

// fail must be called with d.mu held.
func (d *Dictation) fail(kind DictationErrorKind) {
	d.state = DictationIdle
	d.errKind = kind
	if kind == DictationPermissionDenied {
		d.notice = noticeMicPermission
	} else {
		d.notice = noticeRecognitionFailure
	}
}

type unsupportedRecognizer struct{}

func UnsupportedRecognizer() Recognizer { return unsupportedRecognizer{} }

func (unsupportedRecognizer) Available() bool { return false }

func (unsupportedRecognizer) Start(chan<- RecognitionEvent) error { return ErrSpeechUnsupported }

func (unsupportedRecognizer) Stop() {}

// RelayRecognizer stands in for an engine running in the UI shell. The shell
// polls Listening to learn whether it should capture audio and reports what it
// hears through Post.
type RelayRecognizer struct {
	mu     sync.Mutex
	events chan<- RecognitionEvent
}

func NewRelayRecognizer() *RelayRecognizer {
	return &RelayRecognizer{}
}

func (r *RelayRecognizer) Available() bool { return true }

func (r *RelayRecognizer) Start(events chan<- RecognitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = events
	return nil
}

func (r *RelayRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *RelayRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events != nil
}

// Post forwards an engine event. End and error events also drop the desired
// listening state, mirroring an engine that has stopped on its own.
func (r *RelayRecognizer) Post(ctx context.Context, ev RecognitionEvent) error {
	r.mu.Lock()
	events := r.events
	if ev.Kind == RecognitionEnd || ev.Kind == RecognitionError {
		r.events = nil
	}
	r.mu.Unlock()

	if events == nil {
		return ErrRecognizerIdle
	}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
