package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marketline/marketchat/internal/conversation"
	"github.com/marketline/marketchat/internal/identity"
	"github.com/marketline/marketchat/internal/media"
	"github.com/marketline/marketchat/internal/message"
	"github.com/marketline/marketchat/internal/schema"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"gate", fmt.Errorf("%w: table chat_messages is missing", schema.ErrMigrationRequired), CodeSchemaMigrationRequired},
		{"unknown user", identity.ErrNotFound, CodeUserNotFound},
		{"missing conversation", fmt.Errorf("get: %w", conversation.ErrNotFound), CodeConversationNotFound},
		{"outsider", conversation.ErrNotParticipant, CodeForbidden},
		{"self pair", conversation.ErrSelfPair, CodeInvalidInput},
		{"empty text", fmt.Errorf("%w: text is required", message.ErrInvalidInput), CodeInvalidInput},
		{"token conflict", message.ErrConflict, CodeConflict},
		{"too large", media.ErrTooLarge, CodePayloadTooLarge},
		{"wrong type", media.ErrUnsupportedType, CodeInvalidMedia},
		{"missing object", media.ErrObjectNotFound, CodeMediaNotFound},
		{"no provider", media.ErrProviderUnavailable, CodeStorageUnavailable},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, CodeSchemaMigrationRequired},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), CodeStorageUnavailable},
		{"anything else", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tt.err)
			if got.Code != tt.want {
				t.Fatalf("classify(%v) = %s, want %s", tt.err, got.Code, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error must wrap the original")
			}
		})
	}
}

func TestClassifyHidesInternalDetails(t *testing.T) {
	t.Parallel()

	err := classify(errors.New("dial tcp 10.0.0.5:5432: secret host"))
	if err.Message != "internal error" {
		t.Fatalf("unexpected public message %q", err.Message)
	}
	if err.Retryable() {
		t.Fatalf("internal errors are not retryable")
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q", got)
	}
	wrapped := fmt.Errorf("handler: %w", NewError(CodeForbidden, "nope", nil))
	if got := CodeOf(wrapped); got != CodeForbidden {
		t.Fatalf("CodeOf(wrapped) = %q", got)
	}
	if got := CodeOf(identity.ErrNotFound); got != CodeUserNotFound {
		t.Fatalf("CodeOf(sentinel) = %q", got)
	}
}
