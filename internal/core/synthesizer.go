package core

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Utterance is one fragment handed to a speech engine.
type Utterance struct {
	ID    uint64
	Text  string
	Lang  string
	Rate  float64
	Pitch float64
}

type SynthesisEventKind int

const (
	SynthesisStarted SynthesisEventKind = iota
	SynthesisEnded
	SynthesisFailed
)

// SynthesisEvent is posted by a Synthesizer about the utterance with UtteranceID.
type SynthesisEvent struct {
	UtteranceID uint64
	Kind        SynthesisEventKind
	Err         error
}

// Synthesizer plays one utterance at a time. Speak must not block: progress is
// reported on events. Cancel stops whatever is playing; a cancelled utterance may
// still report an end or failure event.
type Synthesizer interface {
	Available() bool
	Speak(u Utterance, events chan<- SynthesisEvent)
	Cancel()
}

var ErrSpeechUnavailable = errors.New("speech synthesis is not available")

type unavailableSynthesizer struct{}

// UnavailableSynthesizer fails every utterance. Used when no engine exists on the host.
func UnavailableSynthesizer() Synthesizer { return unavailableSynthesizer{} }

func (unavailableSynthesizer) Available() bool { return false }

func (unavailableSynthesizer) Speak(u Utterance, events chan<- SynthesisEvent) {
	go func() {
		events <- SynthesisEvent{UtteranceID: u.ID, Kind: SynthesisFailed, Err: ErrSpeechUnavailable}
	}()
}

func (unavailableSynthesizer) Cancel() {}

// CommandSynthesizer speaks through an espeak-compatible command line tool
// (text on stdin, -v voice, -s words per minute, -p pitch 0-99).
type CommandSynthesizer struct {
	path string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCommandSynthesizer resolves command on PATH. When it is missing the
// returned synthesizer reports Available() == false.
func NewCommandSynthesizer(command string) Synthesizer {
	path, err := exec.LookPath(command)
	if err != nil {
		return UnavailableSynthesizer()
	}
	return &CommandSynthesizer{path: path}
}

func (s *CommandSynthesizer) Available() bool { return true }

func (s *CommandSynthesizer) Speak(u Utterance, events chan<- SynthesisEvent) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	cmd := exec.CommandContext(ctx, s.path, commandArgs(u)...)
	cmd.Stdin = strings.NewReader(u.Text)

	go func() {
		defer cancel()
		if err := cmd.Start(); err != nil {
			events <- SynthesisEvent{UtteranceID: u.ID, Kind: SynthesisFailed, Err: fmt.Errorf("start %s: %w", s.path, err)}
			return
		}
		events <- SynthesisEvent{UtteranceID: u.ID, Kind: SynthesisStarted}
		if err := cmd.Wait(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			events <- SynthesisEvent{UtteranceID: u.ID, Kind: SynthesisFailed, Err: err}
			return
		}
		events <- SynthesisEvent{UtteranceID: u.ID, Kind: SynthesisEnded}
	}()
}

func (s *CommandSynthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func commandArgs(u Utterance) []string {
	voice, _, _ := strings.Cut(strings.ToLower(u.Lang), "-")
	if voice == "" {
		voice = "ar"
	}
	// espeak speaks 175 wpm at its default rate.
	wpm := int(175 * u.Rate)
	if wpm <= 0 {
		wpm = 175
	}
	pitch := int(50 * u.Pitch)
	pitch = min(max(pitch, 0), 99)
	return []string{"-v", voice, "-s", strconv.Itoa(wpm), "-p", strconv.Itoa(pitch)}
}
