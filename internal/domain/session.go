package domain

import "time"

// Role identifies the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ChatSession is an in-memory conversation
type ChatSession struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// NewChatSession creates an empty session
func NewChatSession(id, userID string, now time.Time) *ChatSession {
	return &ChatSession{
		ID:           id,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Append adds a message, refreshes the activity timestamp and trims the
// history to max messages.
func (s *ChatSession) Append(msg Message, max int) {
	s.Messages = append(s.Messages, msg)
	if msg.Timestamp.After(s.LastActivity) {
		s.LastActivity = msg.Timestamp
	}
	s.Trim(max)
}

// Trim drops the oldest non-system messages until at most max remain.
// System messages are never dropped, so a session holding more than max
// system messages stays above the cap.
func (s *ChatSession) Trim(max int) {
	excess := len(s.Messages) - max
	if max <= 0 || excess <= 0 {
		return
	}

	kept := make([]Message, 0, max)
	for _, m := range s.Messages {
		if excess > 0 && m.Role != RoleSystem {
			excess--
			continue
		}
		kept = append(kept, m)
	}
	s.Messages = kept
}

// IdleSince reports whether the session has been inactive for longer than ttl
func (s *ChatSession) IdleSince(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivity) > ttl
}

// Clone returns a deep copy safe to read without holding the session lock
func (s *ChatSession) Clone() *ChatSession {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m
		if m.Metadata != nil {
			md := make(map[string]string, len(m.Metadata))
			for k, v := range m.Metadata {
				md[k] = v
			}
			c.Messages[i].Metadata = md
		}
	}
	return &c
}
