package media

import (
	"bytes"
	"errors"
	"io"

	"github.com/dustin/go-humanize"
)

// DefaultMaxBytes is the upload cap used when none is configured.
const DefaultMaxBytes int64 = 2_000_000

// ReadCapped buffers an upload of at most maxBytes. A declared size above the
// cap is refused before anything is read; a body that outgrows the cap is
// refused as soon as the extra byte arrives.
func ReadCapped(r io.Reader, declared, maxBytes int64) ([]byte, error) {
	if r == nil {
		return nil, errors.New("upload reader is required")
	}
	if maxBytes <= 0 {
		return nil, errors.New("upload cap must be positive")
	}
	if declared > maxBytes {
		return nil, tooLarge(maxBytes)
	}
	var buf bytes.Buffer
	if declared > 0 {
		buf.Grow(int(declared))
	}
	n, err := buf.ReadFrom(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if n > maxBytes {
		return nil, tooLarge(maxBytes)
	}
	return buf.Bytes(), nil
}

func tooLarge(maxBytes int64) error {
	return &sizeError{limit: maxBytes}
}

type sizeError struct {
	limit int64
}

func (e *sizeError) Error() string {
	return ErrTooLarge.Error() + ": limit is " + humanize.Bytes(uint64(e.limit))
}

func (e *sizeError) Unwrap() error { return ErrTooLarge }
