package media

import (
	"context"
	"io"
	"time"
)

// Kind classifies an uploaded object the way messages refer to it.
type Kind string

const (
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// Object describes a stored media object addressed by an opaque key.
type Object struct {
	Key         string `json:"-"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Kind        Kind   `json:"kind"`
}

// UploadInput carries an upload destined for a conversation.
type UploadInput struct {
	ConversationID string
	Filename       string
	ContentType    string
	// Size is the declared size when known; 0 means unknown.
	Size int64
	// Reader provides the raw bytes; caller is responsible for closing.
	Reader io.Reader
}

// Signed is a short-lived, verifiable reference to an object. Ref is the token
// itself; URL embeds it for direct delivery.
type Signed struct {
	Ref         string    `json:"ref"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
	Kind        Kind      `json:"kind"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size,omitempty"`
}

// StorageProvider abstracts object storage operations.
type StorageProvider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}
