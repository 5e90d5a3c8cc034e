package media

import "errors"

var (
	// ErrObjectNotFound indicates the requested media object does not exist.
	ErrObjectNotFound = errors.New("media object not found")
	// ErrProviderUnavailable indicates the storage provider is not configured or reachable.
	ErrProviderUnavailable = errors.New("storage provider unavailable")
	// ErrTooLarge indicates the payload exceeds the configured max upload size.
	ErrTooLarge = errors.New("media too large")
	// ErrEmpty indicates an upload without content.
	ErrEmpty = errors.New("media payload is empty")
	// ErrUnsupportedType indicates a content type outside the allowlist.
	ErrUnsupportedType = errors.New("unsupported media type")
	// ErrTypeMismatch indicates the declared type, extension and content disagree.
	ErrTypeMismatch = errors.New("media content does not match its declared type")
	// ErrTokenInvalid indicates a malformed or tampered media token.
	ErrTokenInvalid = errors.New("invalid media token")
	// ErrTokenExpired indicates a media token past its expiry.
	ErrTokenExpired = errors.New("media token expired")
	// ErrPathTraversal indicates a storage key attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
)
