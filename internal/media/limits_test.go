package media

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// countingReader records how much of the body was consumed.
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestReadCapped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		body     string
		declared int64
		cap      int64
		tooLarge bool
	}{
		{name: "under cap", body: "jpeg", cap: 8},
		{name: "at cap", body: "12345", cap: 5},
		{name: "one byte over", body: "123456", cap: 5, tooLarge: true},
		{name: "declared over cap", body: "12", declared: 50, cap: 5, tooLarge: true},
		{name: "declared size understated", body: "1234567", declared: 3, cap: 5, tooLarge: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReadCapped(bytes.NewBufferString(tc.body), tc.declared, tc.cap)
			if tc.tooLarge {
				if !errors.Is(err, ErrTooLarge) {
					t.Fatalf("expected ErrTooLarge, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tc.body {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestReadCappedStopsEarly(t *testing.T) {
	t.Parallel()

	src := &countingReader{r: bytes.NewReader(make([]byte, 1<<20))}
	if _, err := ReadCapped(src, 0, 1024); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if src.read > 1025 {
		t.Fatalf("read %d bytes past a 1024 byte cap", src.read)
	}

	declared := &countingReader{r: bytes.NewReader(make([]byte, 10))}
	if _, err := ReadCapped(declared, 4096, 1024); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if declared.read != 0 {
		t.Fatalf("declared oversize should not read the body, read %d", declared.read)
	}
}

func TestReadCappedRejectsBadArguments(t *testing.T) {
	t.Parallel()

	if _, err := ReadCapped(nil, 0, 10); err == nil {
		t.Fatalf("expected error for nil reader")
	}
	if _, err := ReadCapped(bytes.NewReader(nil), 0, 0); err == nil {
		t.Fatalf("expected error for zero cap")
	}
}

func TestTooLargeMessageIsHumanReadable(t *testing.T) {
	t.Parallel()

	_, err := ReadCapped(bytes.NewReader(make([]byte, 3_000_000)), 0, DefaultMaxBytes)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if got := err.Error(); got != "media too large: limit is 2.0 MB" {
		t.Fatalf("unexpected message: %q", got)
	}
}
