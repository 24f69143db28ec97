package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"rafeeq.app/rafeeq/internal/store"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

var ErrInvalidTheme = errors.New("invalid theme")

type Preferences struct {
	Theme     Theme `json:"theme"`
	AutoSpeak bool  `json:"autoSpeak"`
}

func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeLight}
}

type PreferenceActionKind int

const (
	ActionToggleTheme PreferenceActionKind = iota
	ActionToggleAutoSpeak
	ActionSetTheme
	ActionSetAutoSpeak
)

type PreferenceAction struct {
	Kind      PreferenceActionKind
	Theme     Theme
	AutoSpeak bool
}

func ToggleTheme() PreferenceAction     { return PreferenceAction{Kind: ActionToggleTheme} }
func ToggleAutoSpeak() PreferenceAction { return PreferenceAction{Kind: ActionToggleAutoSpeak} }
func SetTheme(t Theme) PreferenceAction { return PreferenceAction{Kind: ActionSetTheme, Theme: t} }
func SetAutoSpeak(on bool) PreferenceAction {
	return PreferenceAction{Kind: ActionSetAutoSpeak, AutoSpeak: on}
}

// reducePreferences is the pure transition function behind Dispatch.
func reducePreferences(p Preferences, a PreferenceAction) (Preferences, error) {
	switch a.Kind {
	case ActionToggleTheme:
		if p.Theme == ThemeDark {
			p.Theme = ThemeLight
		} else {
			p.Theme = ThemeDark
		}
	case ActionToggleAutoSpeak:
		p.AutoSpeak = !p.AutoSpeak
	case ActionSetTheme:
		if a.Theme != ThemeLight && a.Theme != ThemeDark {
			return p, fmt.Errorf("%w: %q", ErrInvalidTheme, a.Theme)
		}
		p.Theme = a.Theme
	case ActionSetAutoSpeak:
		p.AutoSpeak = a.AutoSpeak
	default:
		return p, fmt.Errorf("unknown preference action %d", a.Kind)
	}
	return p, nil
}

// PreferenceStore holds the user's UI preferences. Memory is authoritative;
// each transition is mirrored to kv.
type PreferenceStore struct {
	kv     store.KV
	logger *zap.Logger

	mu    sync.RWMutex
	prefs Preferences
}

func NewPreferenceStore(ctx context.Context, kv store.KV, logger *zap.Logger) *PreferenceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PreferenceStore{kv: kv, logger: logger, prefs: DefaultPreferences()}

	if v, ok, err := kv.Get(ctx, store.ThemeKey); err != nil {
		logger.Error("Failed to load theme", zap.Error(err))
	} else if ok && (Theme(v) == ThemeLight || Theme(v) == ThemeDark) {
		s.prefs.Theme = Theme(v)
	}
	if v, ok, err := kv.Get(ctx, store.AutoSpeakKey); err != nil {
		logger.Error("Failed to load auto-speak flag", zap.Error(err))
	} else if ok {
		s.prefs.AutoSpeak = v == "true"
	}
	return s
}

func (s *PreferenceStore) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

func (s *PreferenceStore) AutoSpeak() bool {
	return s.Get().AutoSpeak
}

// Dispatch applies an action and persists the result.
func (s *PreferenceStore) Dispatch(ctx context.Context, a PreferenceAction) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := reducePreferences(s.prefs, a)
	if err != nil {
		return s.prefs, err
	}
	s.prefs = next

	if err := s.kv.Set(ctx, store.ThemeKey, string(next.Theme)); err != nil {
		s.logger.Error("Failed to save theme", zap.Error(err))
	}
	if err := s.kv.Set(ctx, store.AutoSpeakKey, strconv.FormatBool(next.AutoSpeak)); err != nil {
		s.logger.Error("Failed to save auto-speak flag", zap.Error(err))
	}
	return next, nil
}
