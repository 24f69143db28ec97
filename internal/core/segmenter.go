package core

import "strings"

// IsSentenceTerminator reports whether r ends a spoken sentence.
func IsSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '؟', '۔', '\n':
		return true
	}
	return false
}

// SplitSentences splits text immediately after every sentence terminator.
// The last element is the pending remainder and may be empty; joining all
// elements reproduces text exactly.
func SplitSentences(text string) []string {
	var fragments []string
	start := 0
	for i, r := range text {
		if IsSentenceTerminator(r) {
			end := i + len(string(r))
			fragments = append(fragments, text[start:end])
			start = end
		}
	}
	return append(fragments, text[start:])
}

// SentenceBuffer accumulates streamed text and releases it one complete sentence at a time.
type SentenceBuffer struct {
	pending string
}

// Push appends chunk and returns the sentences it completed, in order.
func (b *SentenceBuffer) Push(chunk string) []string {
	fragments := SplitSentences(b.pending + chunk)
	last := len(fragments) - 1
	b.pending = fragments[last]
	return fragments[:last]
}

// Flush returns and clears the retained remainder when it holds more than whitespace.
func (b *SentenceBuffer) Flush() (string, bool) {
	rest := b.pending
	b.pending = ""
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}

func (b *SentenceBuffer) Pending() string {
	return b.pending
}

func (b *SentenceBuffer) Reset() {
	b.pending = ""
}
