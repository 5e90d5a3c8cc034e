package message

import (
	"context"
	"errors"
	"time"
)

// Message kind constants.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

var (
	ErrInvalidInput = errors.New("invalid message input")
	ErrConflict     = errors.New("client token already used for a different message")
)

// Message represents a single immutable chat message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Kind           string    `json:"kind"`
	Text           string    `json:"text,omitempty"`
	MediaKey       string    `json:"-"`
	MediaURL       string    `json:"media_url,omitempty"`
	ClientToken    string    `json:"client_token,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppendInput is the input for appending a message.
type AppendInput struct {
	ConversationID string
	SenderID       string
	Kind           string
	Text           string
	MediaKey       string
	ClientToken    string
}

// AppendResult reports whether the message was created or replayed from its client token.
type AppendResult struct {
	Message  Message
	Replayed bool
}

// ListQuery selects a page. At most one of Before and Since may be set.
type ListQuery struct {
	Before int64
	Since  int64
	Limit  int
}

type Page struct {
	Items   []Message `json:"items"`
	HasMore bool      `json:"has_more"`
}

// UnreadDrift is a participant counter corrected by an audit.
type UnreadDrift struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Previous       int    `json:"previous"`
	Current        int    `json:"current"`
}

// Limits bounds message sizes and page sizes.
type Limits struct {
	PageDefault  int
	PageMax      int
	MaxTextRunes int
	PreviewRunes int
	ImageLabel   string
	FileLabel    string
}

func DefaultLimits() Limits {
	return Limits{
		PageDefault:  30,
		PageMax:      100,
		MaxTextRunes: 4000,
		PreviewRunes: 120,
		ImageLabel:   "[Image]",
		FileLabel:    "[File]",
	}
}

// Writer defines write behavior.
type Writer interface {
	Append(ctx context.Context, input AppendInput) (AppendResult, error)
}

// Service defines message read/write behavior.
type Service interface {
	Writer
	List(ctx context.Context, conversationID string, query ListQuery) (Page, error)
	ListLatest(ctx context.Context, conversationID, viewerID string, limit int) (Page, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	TotalUnread(ctx context.Context, userID string) (int64, error)
	RecomputeUnread(ctx context.Context, conversationID string) ([]UnreadDrift, error)
}
