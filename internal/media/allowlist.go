package media

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// sniffLen is how many leading bytes the content sniffer needs.
const sniffLen = 262

var extensionsByType = map[string][]string{
	"image/jpeg":      {".jpg", ".jpeg"},
	"image/png":       {".png"},
	"image/gif":       {".gif"},
	"image/webp":      {".webp"},
	"application/pdf": {".pdf"},
}

// Allowlist is the closed set of content types accepted for upload.
type Allowlist struct {
	types map[string]struct{}
}

// NewAllowlist builds an allowlist from content types. Types without a known
// extension mapping are rejected so stored keys always carry an extension.
func NewAllowlist(contentTypes []string) (Allowlist, error) {
	a := Allowlist{types: make(map[string]struct{}, len(contentTypes))}
	for _, raw := range contentTypes {
		ct := normalizeType(raw)
		if _, ok := extensionsByType[ct]; !ok {
			return Allowlist{}, fmt.Errorf("%w: %q", ErrUnsupportedType, raw)
		}
		a.types[ct] = struct{}{}
	}
	if len(a.types) == 0 {
		return Allowlist{}, fmt.Errorf("media allowlist is empty")
	}
	return a, nil
}

// Check resolves the effective content type of an upload. The declared type,
// the filename extension and the sniffed content must all agree.
func (a Allowlist) Check(filename, declared string, head []byte) (string, error) {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	sniffed := ""
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		sniffed = normalizeType(kind.MIME.Value)
	}
	ct := normalizeType(declared)
	if ct == "" || ct == "application/octet-stream" {
		ct = sniffed
	}
	if ct == "" {
		return "", ErrUnsupportedType
	}
	if _, ok := a.types[ct]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}
	if sniffed != ct {
		return "", fmt.Errorf("%w: declared %s", ErrTypeMismatch, ct)
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && !extensionMatches(ct, ext) {
		return "", fmt.Errorf("%w: extension %s for %s", ErrTypeMismatch, ext, ct)
	}
	return ct, nil
}

// Allows reports whether ct is in the allowlist.
func (a Allowlist) Allows(ct string) bool {
	_, ok := a.types[normalizeType(ct)]
	return ok
}

func extensionMatches(ct, ext string) bool {
	for _, candidate := range extensionsByType[ct] {
		if candidate == ext {
			return true
		}
	}
	return false
}

func extensionFromMime(ct string) string {
	if exts := extensionsByType[normalizeType(ct)]; len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func mimeFromExtension(ext string) string {
	ext = strings.ToLower(ext)
	for ct, exts := range extensionsByType {
		for _, candidate := range exts {
			if candidate == ext {
				return ct
			}
		}
	}
	return "application/octet-stream"
}

// KindOf classifies a content type.
func KindOf(ct string) Kind {
	if strings.HasPrefix(normalizeType(ct), "image/") {
		return KindImage
	}
	return KindFile
}

func normalizeType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ct, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

// KindOfKey classifies a stored object by its key extension.
func KindOfKey(key string) Kind {
	return KindOf(mimeFromExtension(filepath.Ext(key)))
}
