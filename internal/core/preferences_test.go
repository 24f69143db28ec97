package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rafeeq.app/rafeeq/internal/store"
)

func TestPreferencesDefaults(t *testing.T) {
	p := NewPreferenceStore(context.Background(), store.NewMemoryStore(), nil)
	assert.Equal(t, Preferences{Theme: ThemeLight, AutoSpeak: false}, p.Get())
}

func TestPreferencesDispatchPersists(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	p := NewPreferenceStore(ctx, kv, nil)

	got, err := p.Dispatch(ctx, ToggleTheme())
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, got.Theme)

	got, err = p.Dispatch(ctx, ToggleAutoSpeak())
	require.NoError(t, err)
	assert.True(t, got.AutoSpeak)

	v, _, _ := kv.Get(ctx, store.ThemeKey)
	assert.Equal(t, "dark", v)
	v, _, _ = kv.Get(ctx, store.AutoSpeakKey)
	assert.Equal(t, "true", v)

	reloaded := NewPreferenceStore(ctx, kv, nil)
	assert.Equal(t, Preferences{Theme: ThemeDark, AutoSpeak: true}, reloaded.Get())
}

func TestPreferencesSetActions(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(ctx, store.NewMemoryStore(), nil)

	got, err := p.Dispatch(ctx, SetTheme(ThemeDark))
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, got.Theme)

	got, err = p.Dispatch(ctx, SetAutoSpeak(true))
	require.NoError(t, err)
	assert.True(t, got.AutoSpeak)

	got, err = p.Dispatch(ctx, ToggleTheme())
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, got.Theme)

	_, err = p.Dispatch(ctx, SetTheme("sepia"))
	assert.ErrorIs(t, err, ErrInvalidTheme)
	assert.Equal(t, ThemeLight, p.Get().Theme)
}

func TestPreferencesCorruptValuesFallBack(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, store.ThemeKey, "purple"))
	require.NoError(t, kv.Set(ctx, store.AutoSpeakKey, "yes please"))

	p := NewPreferenceStore(ctx, kv, nil)
	assert.Equal(t, DefaultPreferences(), p.Get())
}
