package core

import "rafeeq.app/rafeeq/internal/store"

const historyWindowSize = 8

// SendHistoryWindow picks the context for a new message from the messages that
// existed before it was appended: the last 9 of them minus the very latest,
// i.e. prior[-9:-1].
func SendHistoryWindow(prior []store.Message) []store.Message {
	n := len(prior)
	end := n - 1
	if end <= 0 {
		return nil
	}
	start := max(0, n-(historyWindowSize+1))
	return cloneMessages(prior[start:end])
}

// RegenerateHistoryWindow picks the context for regenerating the answer to the
// user message at userIndex: up to 8 messages strictly before it.
func RegenerateHistoryWindow(messages []store.Message, userIndex int) []store.Message {
	if userIndex <= 0 {
		return nil
	}
	if userIndex > len(messages) {
		userIndex = len(messages)
	}
	start := max(0, userIndex-historyWindowSize)
	return cloneMessages(messages[start:userIndex])
}

// historyContents converts stored messages into provider contents. Messages with
// no text are skipped; past images are not re-sent.
func historyContents(history []store.Message) []Content {
	contents := make([]Content, 0, len(history))
	for _, msg := range history {
		if msg.Text == "" {
			continue
		}
		role := RoleUser
		if msg.Sender == store.SenderAI {
			role = RoleModel
		}
		contents = append(contents, Content{Role: role, Parts: []Part{TextPart(msg.Text)}})
	}
	return contents
}

func cloneMessages(msgs []store.Message) []store.Message {
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out
}
