package core

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rafeeq.app/rafeeq/internal/store"
)

func TestNormalizeTitle(t *testing.T) {
	long := strings.Repeat("ك", 60)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "دردشة عن الطقس", "دردشة عن الطقس"},
		{"quotes and padding", "\"سؤال عن الأكل\".\n", "سؤال عن الأكل"},
		{"empty", "  \"\" ", store.DefaultTitle},
		{"long", long, strings.Repeat("ك", 47) + "..."},
		{"exactly fifty", strings.Repeat("ب", 50), strings.Repeat("ب", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTitle(tt.in))
		})
	}
}

func TestToGenaiParts(t *testing.T) {
	parts := toGenaiParts([]Part{
		TextPart("بص على دي"),
		TextPart(""),
		ImagePart{Data: tinyPNG, MIMEType: "image/png"},
	})
	require.Len(t, parts, 2)
	assert.Equal(t, genai.Text("بص على دي"), parts[0])
	assert.Equal(t, genai.Blob{MIMEType: "image/png", Data: tinyPNG}, parts[1])

	c := toGenaiContent(Content{Role: RoleModel, Parts: []Part{TextPart("أهلاً")}})
	assert.Equal(t, "model", c.Role)
}

func TestGenerationRequestQuestion(t *testing.T) {
	req := GenerationRequest{Contents: []Content{
		{Role: RoleUser, Parts: []Part{TextPart("قديم")}},
		{Role: RoleUser, Parts: []Part{TextPart("الطقس"), ImagePart{}, TextPart(" النهاردة")}},
	}}
	assert.Equal(t, "الطقس النهاردة", req.Question())
	assert.Empty(t, GenerationRequest{}.Question())
}

type funcProvider func(ctx context.Context, req GenerationRequest) iter.Seq2[string, error]

func (f funcProvider) StreamContent(ctx context.Context, req GenerationRequest) iter.Seq2[string, error] {
	return f(ctx, req)
}

func streamOf(chunks []string, err error) ModelProvider {
	return funcProvider(func(context.Context, GenerationRequest) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for _, c := range chunks {
				if !yield(c, nil) {
					return
				}
			}
			if err != nil {
				yield("", err)
			}
		}
	})
}

func collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for chunk, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, chunk)
	}
	return out, nil
}

func weatherRequest() GenerationRequest {
	return GenerationRequest{Contents: []Content{{Role: RoleUser, Parts: []Part{TextPart("إيه حال الطقس النهاردة؟")}}}}
}

func TestOfflineFallbackAnswersWhenProviderFailsEarly(t *testing.T) {
	responder := NewOfflineResponder(nil)
	p := WithOfflineFallback(streamOf(nil, errors.New("dial tcp: no route to host")), responder, nil)

	chunks, err := collect(p.StreamContent(context.Background(), weatherRequest()))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, responder.Answer("طقس"), chunks[0])
	assert.NotEqual(t, offlineApology, chunks[0])
}

func TestOfflineFallbackPassesThroughMidStreamFailure(t *testing.T) {
	p := WithOfflineFallback(streamOf([]string{"نص"}, errors.New("reset")), NewOfflineResponder(nil), nil)

	chunks, err := collect(p.StreamContent(context.Background(), weatherRequest()))
	assert.Error(t, err)
	assert.Equal(t, []string{"نص"}, chunks)
}

func TestOfflineFallbackPassesThroughCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := WithOfflineFallback(streamOf(nil, context.Canceled), NewOfflineResponder(nil), nil)

	_, err := collect(p.StreamContent(ctx, weatherRequest()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOfflineFallbackLeavesHealthyStreamsAlone(t *testing.T) {
	p := WithOfflineFallback(streamOf([]string{"أ", "ب"}, nil), NewOfflineResponder(nil), nil)
	chunks, err := collect(p.StreamContent(context.Background(), weatherRequest()))
	require.NoError(t, err)
	assert.Equal(t, []string{"أ", "ب"}, chunks)
}
