package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDictation(t *testing.T) (*Dictation, *RelayRecognizer) {
	t.Helper()
	relay := NewRelayRecognizer()
	d := NewDictation(relay, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	return d, relay
}

func waitForDictation(t *testing.T, d *Dictation, cond func(DictationSnapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(d.Snapshot()) }, time.Second, 5*time.Millisecond)
}

func TestDictationResultsReplaceTranscript(t *testing.T) {
	d, relay := startDictation(t)
	ctx := context.Background()

	require.NoError(t, d.Start())
	assert.True(t, relay.Listening())
	assert.Equal(t, DictationListening, d.Snapshot().State)

	require.NoError(t, relay.Post(ctx, RecognitionEvent{Kind: RecognitionResult, Transcript: "ازيك"}))
	require.NoError(t, relay.Post(ctx, RecognitionEvent{Kind: RecognitionResult, Transcript: "ازيك يا غالي"}))
	waitForDictation(t, d, func(s DictationSnapshot) bool { return s.Transcript == "ازيك يا غالي" })

	require.NoError(t, d.Stop())
	assert.False(t, relay.Listening())
	snap := d.Snapshot()
	assert.Equal(t, DictationIdle, snap.State)
	assert.Equal(t, "ازيك يا غالي", snap.Transcript, "stopping keeps the transcript for the input box")
}

func TestDictationStartIsIdempotentAndClearsTranscript(t *testing.T) {
	d, relay := startDictation(t)
	ctx := context.Background()

	require.NoError(t, d.Start())
	require.NoError(t, relay.Post(ctx, RecognitionEvent{Kind: RecognitionResult, Transcript: "أول مرة"}))
	waitForDictation(t, d, func(s DictationSnapshot) bool { return s.Transcript == "أول مرة" })

	require.NoError(t, d.Start())
	assert.Equal(t, "أول مرة", d.Snapshot().Transcript, "double start must not reset")

	require.NoError(t, d.Stop())
	require.NoError(t, d.Start())
	assert.Empty(t, d.Snapshot().Transcript)
}

func TestDictationEngineEndGoesIdle(t *testing.T) {
	d, relay := startDictation(t)

	require.NoError(t, d.Start())
	require.NoError(t, relay.Post(context.Background(), RecognitionEvent{Kind: RecognitionEnd}))
	waitForDictation(t, d, func(s DictationSnapshot) bool { return s.State == DictationIdle })
	assert.False(t, relay.Listening())
}

func TestDictationErrorCategories(t *testing.T) {
	tests := []struct {
		code   string
		kind   DictationErrorKind
		notice string
	}{
		{"not-allowed", DictationPermissionDenied, noticeMicPermission},
		{"network", DictationFailure, noticeRecognitionFailure},
		{"no-speech", DictationFailure, noticeRecognitionFailure},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			d, relay := startDictation(t)
			require.NoError(t, d.Start())
			require.NoError(t, relay.Post(context.Background(), RecognitionEvent{Kind: RecognitionError, Code: tt.code}))

			waitForDictation(t, d, func(s DictationSnapshot) bool { return s.State == DictationIdle })
			snap := d.Snapshot()
			assert.Equal(t, tt.kind, snap.Error)
			assert.Equal(t, tt.notice, snap.Notice)

			// A fresh start clears the error.
			require.NoError(t, d.Start())
			assert.Empty(t, d.Snapshot().Error)
		})
	}
}

func TestDictationUnsupported(t *testing.T) {
	d := NewDictation(nil, nil)
	assert.False(t, d.Supported())
	assert.ErrorIs(t, d.Start(), ErrSpeechUnsupported)
	assert.ErrorIs(t, d.Stop(), ErrSpeechUnsupported)

	snap := d.Snapshot()
	assert.Equal(t, DictationIdle, snap.State)
	assert.Equal(t, noticeSpeechUnsupported, snap.Notice)
}

func TestRelayRecognizerRejectsEventsWhenIdle(t *testing.T) {
	relay := NewRelayRecognizer()
	err := relay.Post(context.Background(), RecognitionEvent{Kind: RecognitionResult, Transcript: "x"})
	assert.ErrorIs(t, err, ErrRecognizerIdle)
}
