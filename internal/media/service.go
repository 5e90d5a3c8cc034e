package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultURLTTL bounds how long a signed reference stays valid.
	DefaultURLTTL = 10 * time.Minute
	// DefaultBaseURL prefixes delivery URLs.
	DefaultBaseURL = "/media"

	maxNamespaceLen = 64
)

// Options configures the media service.
type Options struct {
	MaxBytes  int64
	Allowlist Allowlist
	URLTTL    time.Duration
	BaseURL   string
}

// Service validates uploads, stores them through a provider and hands out
// signed references. Storage keys never leave the service unsigned.
type Service struct {
	provider StorageProvider
	signer   *Signer
	allowed  Allowlist
	maxBytes int64
	ttl      time.Duration
	baseURL  string
	logger   *slog.Logger
}

// NewService creates a media service with the given storage provider.
func NewService(log *slog.Logger, provider StorageProvider, signer *Signer, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.URLTTL <= 0 {
		opts.URLTTL = DefaultURLTTL
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Service{
		provider: provider,
		signer:   signer,
		allowed:  opts.Allowlist,
		maxBytes: opts.MaxBytes,
		ttl:      opts.URLTTL,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		logger:   log.With(slog.String("service", "media")),
	}
}

// MaxBytes returns the configured upload cap.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload validates and stores a payload and returns a signed reference to it.
func (s *Service) Upload(ctx context.Context, input UploadInput) (Signed, error) {
	if s.provider == nil {
		return Signed{}, ErrProviderUnavailable
	}
	data, err := ReadCapped(input.Reader, input.Size, s.maxBytes)
	if err != nil {
		return Signed{}, err
	}
	if len(data) == 0 {
		return Signed{}, ErrEmpty
	}
	ct, err := s.allowed.Check(input.Filename, input.ContentType, data)
	if err != nil {
		return Signed{}, err
	}

	key := path.Join(namespace(input.ConversationID), uuid.NewString()+extensionFromMime(ct))
	if err := s.provider.Put(ctx, key, bytes.NewReader(data)); err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return Signed{}, err
		}
		return Signed{}, fmt.Errorf("store media: %w", err)
	}
	s.logger.Debug("media stored",
		slog.String("conversation_id", input.ConversationID),
		slog.String("content_type", ct),
		slog.Int("size", len(data)),
	)
	signed := s.Sign(key)
	signed.Size = int64(len(data))
	return signed, nil
}

// Sign issues a fresh short-lived reference for a stored key.
func (s *Service) Sign(key string) Signed {
	token, expires := s.signer.Sign(key, s.ttl)
	ct := mimeFromExtension(path.Ext(key))
	return Signed{
		Ref:         token,
		URL:         s.baseURL + "/" + token,
		ExpiresAt:   expires,
		Kind:        KindOf(ct),
		ContentType: ct,
	}
}

// ResolveRef verifies a reference and returns the storage key it binds.
func (s *Service) ResolveRef(ref string) (string, error) {
	key, _, err := s.signer.Verify(ref)
	if err != nil {
		return "", err
	}
	return key, nil
}

// Open verifies token and streams the referenced object.
func (s *Service) Open(ctx context.Context, token string) (io.ReadCloser, Object, error) {
	if s.provider == nil {
		return nil, Object{}, ErrProviderUnavailable
	}
	key, err := s.ResolveRef(token)
	if err != nil {
		return nil, Object{}, err
	}
	reader, err := s.provider.Open(ctx, key)
	if err != nil {
		return nil, Object{}, err
	}
	ct := mimeFromExtension(path.Ext(key))
	return reader, Object{Key: key, ContentType: ct, Kind: KindOf(ct)}, nil
}

// namespace turns a conversation id into a safe single path segment.
func namespace(conversationID string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(conversationID) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= maxNamespaceLen {
			break
		}
	}
	if b.Len() == 0 {
		return "misc"
	}
	return b.String()
}

// URLTTL returns how long issued references stay valid.
func (s *Service) URLTTL() time.Duration {
	return s.ttl
}

// InNamespace reports whether key was stored for conversationID.
func InNamespace(key, conversationID string) bool {
	return strings.HasPrefix(key, namespace(conversationID)+"/")
}
