package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Message is one immutable row in the message arena. Content never changes
// after insert; per-recipient read and archive state lives in separate
// relation tables because the same row is visible to several participants
// with independent state.
type Message struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	OrganizationID  uuid.UUID  `db:"organization_id" json:"organization_id"`
	FromUserID      uuid.UUID  `db:"from_user_id" json:"from_user_id"`
	ToUserID        *uuid.UUID `db:"to_user_id" json:"to_user_id,omitempty"`
	ThreadID        uuid.UUID  `db:"thread_id" json:"thread_id"`
	ParentMessageID *uuid.UUID `db:"parent_message_id" json:"parent_message_id,omitempty"`
	Subject         string     `db:"subject" json:"subject"`
	Content         string     `db:"content" json:"content"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// State is one user's relationship to one message.
type State struct {
	Read     bool `json:"read"`
	Archived bool `json:"archived"`
}

// Conversation is a derived view: one row per thread the user participates
// in, annotated with the latest message and that user's unread count.
// Threads are never stored; they exist only as the set of messages sharing
// a thread id.
type Conversation struct {
	ThreadID    uuid.UUID `json:"thread_id"`
	LastMessage *Message  `json:"last_message"`
	UnreadCount int       `json:"unread_count"`
	Total       int       `json:"total"`
}
