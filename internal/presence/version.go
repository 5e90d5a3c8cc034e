package presence

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// VersionEntry is the part of a conversation-list row that changes when the list does.
type VersionEntry struct {
	ID            string `msgpack:"id"`
	UpdatedAt     int64  `msgpack:"updated_at"`
	LastMessageID int64  `msgpack:"last_message_id"`
	Preview       string `msgpack:"preview"`
	Unread        int    `msgpack:"unread"`
}

// PageKey identifies one message page of a conversation as of its newest message.
// Epoch lets callers expire tokens whose payload embeds time-limited data.
type PageKey struct {
	ConversationID string `msgpack:"conversation_id"`
	LastMessageID  int64  `msgpack:"last_message_id"`
	Before         int64  `msgpack:"before"`
	Since          int64  `msgpack:"since"`
	Limit          int    `msgpack:"limit"`
	Epoch          int64  `msgpack:"epoch"`
}

// ComputeVersion digests a conversation list into an opaque, URL-safe token.
// Equal lists always yield equal tokens.
func ComputeVersion(entries []VersionEntry) (string, error) {
	return digest(entries)
}

// PageVersion digests a page key into a token of the same form.
func PageVersion(key PageKey) (string, error) {
	return digest(key)
}

func digest(v any) (string, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode version snapshot: %w", err)
	}
	sum := sha256.Sum256(raw)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// ETag quotes a version token for use in an HTTP header.
func ETag(token string) string {
	return `"` + token + `"`
}

// MatchesETag reports whether an If-None-Match header value names token.
func MatchesETag(header, token string) bool {
	if header == "" || token == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == ETag(token) || candidate == token || candidate == "W/"+ETag(token) {
			return true
		}
	}
	return false
}
