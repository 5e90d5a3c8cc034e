package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/marketline/marketchat/internal/conversation"
	"github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/identity"
	"github.com/marketline/marketchat/internal/media"
	"github.com/marketline/marketchat/internal/message"
	"github.com/marketline/marketchat/internal/schema"
)

// Code is a transport-agnostic failure class.
type Code string

const (
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeUserNotFound            Code = "USER_NOT_FOUND"
	CodeConversationNotFound    Code = "CONVERSATION_NOT_FOUND"
	CodeMediaNotFound           Code = "MEDIA_NOT_FOUND"
	CodeForbidden               Code = "FORBIDDEN"
	CodeConflict                Code = "CONFLICT"
	CodePayloadTooLarge         Code = "PAYLOAD_TOO_LARGE"
	CodeInvalidMedia            Code = "INVALID_MEDIA"
	CodeSchemaMigrationRequired Code = "SCHEMA_MIGRATION_REQUIRED"
	CodeStorageUnavailable      Code = "STORAGE_UNAVAILABLE"
	CodeInternal                Code = "INTERNAL"
)

// Error carries a Code and a message safe to show to callers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later unchanged.
func (e *Error) Retryable() bool {
	return e.Code == CodeSchemaMigrationRequired || e.Code == CodeStorageUnavailable
}

// NewError builds a classified error. err may be nil.
func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of err, or CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return classify(err).Code
}

type rule struct {
	target error
	code   Code
}

var rules = []rule{
	{schema.ErrMigrationRequired, CodeSchemaMigrationRequired},
	{identity.ErrNotFound, CodeUserNotFound},
	{identity.ErrInvalidClaims, CodeInvalidInput},
	{conversation.ErrNotFound, CodeConversationNotFound},
	{conversation.ErrNotParticipant, CodeForbidden},
	{conversation.ErrSelfPair, CodeInvalidInput},
	{conversation.ErrAdminPair, CodeInvalidInput},
	{message.ErrInvalidInput, CodeInvalidInput},
	{message.ErrConflict, CodeConflict},
	{media.ErrTooLarge, CodePayloadTooLarge},
	{media.ErrEmpty, CodeInvalidMedia},
	{media.ErrUnsupportedType, CodeInvalidMedia},
	{media.ErrTypeMismatch, CodeInvalidMedia},
	{media.ErrTokenInvalid, CodeInvalidMedia},
	{media.ErrTokenExpired, CodeInvalidMedia},
	{media.ErrObjectNotFound, CodeMediaNotFound},
	{media.ErrProviderUnavailable, CodeStorageUnavailable},
}

// classify maps package sentinels and storage failures onto the taxonomy.
// Internal details are kept in Err and never copied into Message.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return NewError(r.code, publicMessage(r.code, err), err)
		}
	}
	switch {
	case db.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded):
		return NewError(CodeStorageUnavailable, "storage is temporarily unavailable", err)
	case db.IsUndefinedRelation(err):
		return NewError(CodeSchemaMigrationRequired, "chat storage needs a schema migration", err)
	}
	return NewError(CodeInternal, "internal error", err)
}

func publicMessage(code Code, err error) string {
	switch code {
	case CodeSchemaMigrationRequired:
		return "chat is temporarily unavailable, retry shortly"
	case CodeStorageUnavailable:
		return "storage is temporarily unavailable"
	case CodeInternal:
		return "internal error"
	}
	return err.Error()
}
