// Package conversation owns conversation lifecycle: one support conversation per
// customer, one direct conversation per unordered pair of users.
package conversation

import (
	"errors"
	"time"
)

// Conversation kind constants.
const (
	KindSupport = "support"
	KindDirect  = "direct"
)

// Participant role constants.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrNotFound       = errors.New("conversation not found")
	ErrNotParticipant = errors.New("user is not a participant of the conversation")
	ErrSelfPair       = errors.New("cannot open a conversation with yourself")
	ErrAdminPair      = errors.New("conversations with the admin are support conversations")
)

// Conversation is the persisted conversation container.
type Conversation struct {
	ID                 string     `json:"id"`
	Kind               string     `json:"kind"`
	PairKey            string     `json:"-"`
	LastMessageID      int64      `json:"last_message_id,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	// Created is set when the call that returned the conversation inserted it.
	Created bool `json:"-"`
}

// Participant is a user's membership in a conversation with their read state.
type Participant struct {
	ConversationID    string `json:"conversation_id"`
	UserID            string `json:"user_id"`
	Role              string `json:"role"`
	LastReadMessageID int64  `json:"last_read_message_id"`
	UnreadCount       int    `json:"unread_count"`
}

// Profile is the public face of the other side of a conversation.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ListItem is a conversation entry as seen by one participant.
type ListItem struct {
	ID                 string     `json:"id"`
	Kind               string     `json:"kind"`
	Counterparty       Profile    `json:"counterparty"`
	LastMessageID      int64      `json:"last_message_id,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	LastReadMessageID  int64      `json:"last_read_message_id"`
	UnreadCount        int        `json:"unread_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
