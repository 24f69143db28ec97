package core

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"rafeeq.app/rafeeq/internal/store"
)

const (
	defaultChatModelName  = "gemini-2.5-flash"
	defaultTitleModelName = "gemini-2.5-flash"

	titleSystemInstruction = "You generate concise titles for chat conversations. " +
		"Answer with the title only, in Egyptian Arabic, nothing else."
	titlePromptFormat = `اقترح عنوان قصير جدًا (3 أو 4 كلمات بالكتير) ومناسب للمحادثة دي باللهجة المصرية: "%s"`

	maxTitleRunes = 50
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one piece of a provider content: TextPart or ImagePart.
type Part interface {
	isPart()
}

type TextPart string

func (TextPart) isPart() {}

type ImagePart struct {
	Data     []byte
	MIMEType string
}

func (ImagePart) isPart() {}

type Content struct {
	Role  Role
	Parts []Part
}

type SamplingParams struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
}

// GenerationRequest is one streamed completion. The last content is the user turn being answered.
type GenerationRequest struct {
	SystemInstruction string
	Contents          []Content
	Sampling          SamplingParams
}

// Question returns the text of the final user content.
func (r GenerationRequest) Question() string {
	if len(r.Contents) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Contents[len(r.Contents)-1].Parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// ModelProvider streams a model answer as text chunks. The sequence ends when the
// stream closes; an error is yielded at most once and ends the sequence.
type ModelProvider interface {
	StreamContent(ctx context.Context, req GenerationRequest) iter.Seq2[string, error]
}

// TitleGenerator produces a short title for a conversation from its first message.
// It never fails; implementations fall back to store.DefaultTitle.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, firstMessage string) string
}

type LLMService struct {
	client     *genai.Client
	chatModel  string
	titleModel string
	logger     *zap.Logger
}

func NewLLMService(ctx context.Context, apiKey, chatModel, titleModel string, logger *zap.Logger) (*LLMService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chatModel == "" {
		chatModel = defaultChatModelName
	}
	if titleModel == "" {
		titleModel = defaultTitleModelName
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client:     client,
		chatModel:  chatModel,
		titleModel: titleModel,
		logger:     logger,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("Error closing GenAI client", zap.Error(err))
		} else {
			s.logger.Info("GenAI client closed")
		}
	}
}

func (s *LLMService) StreamContent(ctx context.Context, req GenerationRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if len(req.Contents) == 0 {
			yield("", errors.New("generation request has no contents"))
			return
		}
		last := req.Contents[len(req.Contents)-1]
		if last.Role != RoleUser {
			yield("", fmt.Errorf("last content is from %q, not the user", last.Role))
			return
		}

		model := s.client.GenerativeModel(s.chatModel)
		if req.SystemInstruction != "" {
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(req.SystemInstruction)},
			}
		}
		if req.Sampling.Temperature > 0 {
			model.SetTemperature(req.Sampling.Temperature)
		}
		if req.Sampling.TopP > 0 {
			model.SetTopP(req.Sampling.TopP)
		}
		if req.Sampling.MaxOutputTokens > 0 {
			model.SetMaxOutputTokens(req.Sampling.MaxOutputTokens)
		}

		chatSession := model.StartChat()
		for _, c := range req.Contents[:len(req.Contents)-1] {
			chatSession.History = append(chatSession.History, toGenaiContent(c))
		}

		it := chatSession.SendMessageStream(ctx, toGenaiParts(last.Parts)...)
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (s *LLMService) GenerateTitle(ctx context.Context, firstMessage string) string {
	model := s.client.GenerativeModel(s.titleModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(64)

	resp, err := model.GenerateContent(ctx, genai.Text(fmt.Sprintf(titlePromptFormat, firstMessage)))
	if err != nil {
		s.logger.Warn("Failed to generate title", zap.Error(err))
		return store.DefaultTitle
	}
	return normalizeTitle(responseText(resp))
}

// normalizeTitle strips quotes and padding and caps the length for display.
func normalizeTitle(raw string) string {
	title := strings.ReplaceAll(raw, `"`, "")
	title = strings.Trim(title, "'\n\r\t .")
	if title == "" {
		return store.DefaultTitle
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		runes := []rune(title)
		title = string(runes[:maxTitleRunes-3]) + "..."
	}
	return title
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func toGenaiContent(c Content) *genai.Content {
	return &genai.Content{Role: string(c.Role), Parts: toGenaiParts(c.Parts)}
}

func toGenaiParts(parts []Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case TextPart:
			if v != "" {
				out = append(out, genai.Text(v))
			}
		case ImagePart:
			out = append(out, genai.Blob{MIMEType: v.MIMEType, Data: v.Data})
		}
	}
	return out
}

type offlineFallbackProvider struct {
	next      ModelProvider
	responder *OfflineResponder
	logger    *zap.Logger
}

// WithOfflineFallback answers from the offline FAQ when next fails before
// producing any chunk. Failures after the first chunk, and cancellations, pass through.
func WithOfflineFallback(next ModelProvider, responder *OfflineResponder, logger *zap.Logger) ModelProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &offlineFallbackProvider{next: next, responder: responder, logger: logger}
}

func (p *offlineFallbackProvider) StreamContent(ctx context.Context, req GenerationRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		delivered := false
		for chunk, err := range p.next.StreamContent(ctx, req) {
			if err != nil {
				if delivered || ctx.Err() != nil {
					yield("", err)
					return
				}
				p.logger.Warn("Model provider failed, answering offline", zap.Error(err))
				yield(p.responder.Answer(req.Question()), nil)
				return
			}
			delivered = true
			if !yield(chunk, nil) {
				return
			}
		}
	}
}
