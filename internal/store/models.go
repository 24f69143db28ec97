package store

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

type Feedback string

const (
	FeedbackNone    Feedback = ""
	FeedbackLike    Feedback = "like"
	FeedbackDislike Feedback = "dislike"
)

// Valid reports whether f is one of the feedback values a user can set.
func (f Feedback) Valid() bool {
	return f == FeedbackLike || f == FeedbackDislike
}

type Message struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Sender    Sender   `json:"sender"`
	Streaming bool     `json:"streaming,omitempty"`
	Feedback  Feedback `json:"feedback,omitempty"`
	ImageURL  string   `json:"imageUrl,omitempty"` // data URL, user messages only
}

type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"` // Unix milliseconds
}

// Clone returns a copy of the session that shares no message storage with s.
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// Keys used in the durable key-value store.
const (
	SessionsKey       = "rafeeq_chat_sessions"
	ActiveSessionKey  = "rafeeq_active_session_id"
	ThemeKey          = "theme"
	AutoSpeakKey      = "autoSpeak"
	DefaultTitle      = "شات جديد"
	defaultKeyPrefix  = "rafeeq:"
	defaultSQLiteFile = "rafeeq.db"
)
