package media

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const signingInfo = "marketchat/media-url/v1"

// Signer issues and checks compact tokens binding a storage key to an expiry.
// Token layout: base64url(key "\n" unix-expiry) "." base64url(hmac-sha256).
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner derives the MAC key from the configured secret.
func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(signingInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Signer{key: key, now: time.Now}, nil
}

func (s *Signer) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write(payload)
	return h.Sum(nil)
}

// Sign returns a token for key valid for ttl.
func (s *Signer) Sign(key string, ttl time.Duration) (string, time.Time) {
	expires := s.now().Add(ttl).Truncate(time.Second)
	payload := []byte(key + "\n" + strconv.FormatInt(expires.Unix(), 10))
	token := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(s.mac(payload))
	return token, expires
}

// Verify returns the key bound by token when the MAC matches and it has not expired.
func (s *Signer) Verify(token string) (string, time.Time, error) {
	encPayload, encSig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || encPayload == "" || encSig == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return "", time.Time{}, ErrTokenInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(encSig)
	if err != nil {
		return "", time.Time{}, ErrTokenInvalid
	}
	if !hmac.Equal(sig, s.mac(payload)) {
		return "", time.Time{}, ErrTokenInvalid
	}
	key, rawExpiry, ok := strings.Cut(string(payload), "\n")
	if !ok || key == "" {
		return "", time.Time{}, ErrTokenInvalid
	}
	unix, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return "", time.Time{}, ErrTokenInvalid
	}
	expires := time.Unix(unix, 0)
	if !s.now().Before(expires) {
		return "", expires, ErrTokenExpired
	}
	return key, expires, nil
}
