package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"rafeeq.app/rafeeq/internal/store"
)

func numberedMessages(n int) []store.Message {
	msgs := make([]store.Message, n)
	for i := range msgs {
		sender := store.SenderUser
		if i%2 == 1 {
			sender = store.SenderAI
		}
		msgs[i] = store.Message{ID: fmt.Sprintf("m%d", i), Text: fmt.Sprintf("text %d", i), Sender: sender}
	}
	return msgs
}

func ids(msgs []store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestSendHistoryWindow(t *testing.T) {
	assert.Empty(t, SendHistoryWindow(nil))
	assert.Empty(t, SendHistoryWindow(numberedMessages(1)), "the only prior message is the excluded latest one")
	assert.Equal(t, []string{"m0", "m1"}, ids(SendHistoryWindow(numberedMessages(3))))
	assert.Equal(t, []string{"m0", "m1", "m2", "m3", "m4", "m5", "m6", "m7"}, ids(SendHistoryWindow(numberedMessages(9))))
	assert.Equal(t, []string{"m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10"}, ids(SendHistoryWindow(numberedMessages(12))))
}

func TestRegenerateHistoryWindow(t *testing.T) {
	msgs := numberedMessages(12)

	assert.Empty(t, RegenerateHistoryWindow(msgs, 0), "first pair has no context")
	assert.Equal(t, []string{"m0", "m1"}, ids(RegenerateHistoryWindow(msgs, 2)))
	assert.Equal(t, []string{"m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9"}, ids(RegenerateHistoryWindow(msgs, 10)))
}

func TestHistoryWindowsDoNotAlias(t *testing.T) {
	msgs := numberedMessages(4)
	w := RegenerateHistoryWindow(msgs, 2)
	w[0].Text = "changed"
	assert.Equal(t, "text 0", msgs[0].Text)
}

func TestHistoryContents(t *testing.T) {
	msgs := []store.Message{
		{ID: "u", Text: "إزيك؟", Sender: store.SenderUser},
		{ID: "img", Text: "", Sender: store.SenderUser, ImageURL: "data:image/png;base64,AA=="},
		{ID: "a", Text: "تمام", Sender: store.SenderAI},
	}
	got := historyContents(msgs)
	assert.Equal(t, []Content{
		{Role: RoleUser, Parts: []Part{TextPart("إزيك؟")}},
		{Role: RoleModel, Parts: []Part{TextPart("تمام")}},
	}, got)
}
