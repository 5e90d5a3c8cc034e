package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type memProvider struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemProvider() *memProvider {
	return &memProvider{objects: map[string][]byte{}}
}

func (p *memProvider) Put(_ context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[key] = data
	return nil
}

func (p *memProvider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *memProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, key)
	return nil
}

func newTestService(t *testing.T, provider StorageProvider) *Service {
	t.Helper()
	allow, err := NewAllowlist([]string{"image/jpeg", "image/png", "application/pdf"})
	if err != nil {
		t.Fatalf("NewAllowlist: %v", err)
	}
	signer, err := NewSigner("test-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return NewService(nil, provider, signer, Options{
		MaxBytes:  2_000_000,
		Allowlist: allow,
		URLTTL:    time.Minute,
	})
}

func jpegPayload(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	return data
}

func pdfPayload() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
}

func TestUploadAcceptsJPEGUnderCap(t *testing.T) {
	t.Parallel()
	provider := newMemProvider()
	svc := newTestService(t, provider)

	signed, err := svc.Upload(context.Background(), UploadInput{
		ConversationID: "0b1c6f9e-2a7d-4c1e-9f3e-1d2c3b4a5f60",
		Filename:       "photo.jpg",
		ContentType:    "image/jpeg",
		Reader:         bytes.NewReader(jpegPayload(1_000_000)),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if signed.Kind != KindImage {
		t.Fatalf("expected image kind, got %q", signed.Kind)
	}
	if signed.Size != 1_000_000 {
		t.Fatalf("unexpected size %d", signed.Size)
	}
	if !strings.HasPrefix(signed.URL, "/media/") || !strings.HasSuffix(signed.URL, signed.Ref) {
		t.Fatalf("unexpected url %q", signed.URL)
	}

	key, err := svc.ResolveRef(signed.Ref)
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if !strings.HasPrefix(key, "0b1c6f9e-2a7d-4c1e-9f3e-1d2c3b4a5f60/") || !strings.HasSuffix(key, ".jpg") {
		t.Fatalf("unexpected key %q", key)
	}
	if strings.Contains(signed.Ref, key) {
		t.Fatalf("raw key leaked into ref")
	}

	reader, obj, err := svc.Open(context.Background(), signed.Ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()
	got, _ := io.ReadAll(reader)
	if len(got) != 1_000_000 {
		t.Fatalf("unexpected payload length %d", len(got))
	}
	if obj.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", obj.ContentType)
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	t.Parallel()
	provider := newMemProvider()
	svc := newTestService(t, provider)

	_, err := svc.Upload(context.Background(), UploadInput{
		ConversationID: "conv",
		Filename:       "big.jpg",
		ContentType:    "image/jpeg",
		Reader:         bytes.NewReader(jpegPayload(3_000_000)),
	})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if len(provider.objects) != 0 {
		t.Fatalf("oversize upload must not be stored")
	}

	_, err = svc.Upload(context.Background(), UploadInput{
		ConversationID: "conv",
		Filename:       "big.jpg",
		ContentType:    "image/jpeg",
		Size:           3_000_000,
		Reader:         bytes.NewReader(jpegPayload(10)),
	})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected declared size to be rejected, got %v", err)
	}
}

func TestUploadValidatesType(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, newMemProvider())

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		wantErr     error
		wantKind    Kind
	}{
		{name: "pdf", filename: "doc.pdf", contentType: "application/pdf", data: pdfPayload(), wantKind: KindFile},
		{name: "sniffed when undeclared", filename: "doc", contentType: "", data: pdfPayload(), wantKind: KindFile},
		{name: "declared with params", filename: "a.jpeg", contentType: "image/jpeg; charset=binary", data: jpegPayload(64), wantKind: KindImage},
		{name: "content mismatch", filename: "a.png", contentType: "image/png", data: jpegPayload(64), wantErr: ErrTypeMismatch},
		{name: "extension mismatch", filename: "a.pdf", contentType: "image/jpeg", data: jpegPayload(64), wantErr: ErrTypeMismatch},
		{name: "not allowed", filename: "a.txt", contentType: "text/plain", data: []byte("hello"), wantErr: ErrUnsupportedType},
		{name: "unknown content", filename: "blob", contentType: "application/octet-stream", data: []byte("plain text"), wantErr: ErrUnsupportedType},
		{name: "empty", filename: "a.jpg", contentType: "image/jpeg", data: nil, wantErr: ErrEmpty},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			signed, err := svc.Upload(context.Background(), UploadInput{
				ConversationID: "conv",
				Filename:       tt.filename,
				ContentType:    tt.contentType,
				Reader:         bytes.NewReader(tt.data),
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if signed.Kind != tt.wantKind {
				t.Fatalf("expected kind %q, got %q", tt.wantKind, signed.Kind)
			}
		})
	}
}

func TestOpenRejectsBadTokens(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, newMemProvider())

	if _, _, err := svc.Open(context.Background(), "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	missing := svc.Sign("conv/missing.png")
	if _, _, err := svc.Open(context.Background(), missing.Ref); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestUploadWithoutProvider(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, nil)
	_, err := svc.Upload(context.Background(), UploadInput{Reader: bytes.NewReader(jpegPayload(8))})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestNamespace(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"abc-123", "abc-123"},
		{"../../etc", "etc"},
		{"", "misc"},
		{"a/b c", "abc"},
		{strings.Repeat("x", 80), strings.Repeat("x", maxNamespaceLen)},
	}
	for _, tt := range tests {
		if got := namespace(tt.in); got != tt.want {
			t.Errorf("namespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInNamespace(t *testing.T) {
	t.Parallel()
	if !InNamespace("conv-1/abc.png", "conv-1") {
		t.Fatalf("expected key in its namespace")
	}
	if InNamespace("conv-10/abc.png", "conv-1") || InNamespace("conv-1/abc.png", "conv-2") {
		t.Fatalf("unexpected namespace match")
	}
}
