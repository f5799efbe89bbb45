package decoder

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/junsooki/ppmview/internal/frame"
)

// Magic is the token every frame header starts with.
const Magic = "P6"

// SeparatorLen is the single byte between the bit depth and the raw samples.
// It is read together with the payload and counted in PayloadLen; producers
// rely on this, so it stays part of the wire format.
const SeparatorLen = 1

// maxTokenLen bounds how much of a garbage stream is read before giving up
// on the magic token.
const maxTokenLen = 64

// Errors returned while decoding a stream. All of them are fatal: the stream
// has no resynchronisation marker, so nothing after a bad frame can be trusted.
var (
	ErrBadMagic      = errors.New("wrong image type")
	ErrBadHeader     = errors.New("malformed frame header")
	ErrShortRead     = errors.New("wrong image size")
	ErrFrameTooLarge = errors.New("frame too large")
)

// Header is the textual part of a frame.
type Header struct {
	Width  uint32
	Height uint32
	// MaxVal is the bit depth field. It is carried but not validated.
	MaxVal uint32
}

// ReadHeader reads a header from r. The separator byte that follows the last
// number is left unread. It returns io.EOF, unwrapped, only when the stream ends
// cleanly before a new header starts.
func ReadHeader(r io.ByteScanner) (Header, error) {
	var hdr Header

	magic, err := readToken(r)
	if err != nil {
		return hdr, err
	}
	if magic != Magic {
		return hdr, errors.Wrapf(ErrBadMagic, "read %q instead of %s", magic, Magic)
	}

	fields := []struct {
		name string
		dst  *uint32
	}{
		{"width", &hdr.Width},
		{"height", &hdr.Height},
		{"bit depth", &hdr.MaxVal},
	}
	for _, f := range fields {
		v, err := readUint(r)
		if err != nil {
			return hdr, errors.Wrapf(err, "read %s", f.name)
		}
		*f.dst = v
	}
	return hdr, nil
}

// PayloadLen returns the number of bytes that follow the header: the separator
// plus width*height*3 samples. Lengths above limit are rejected.
func (h Header) PayloadLen(limit int64) (int, error) {
	if limit <= 0 || limit > math.MaxInt {
		limit = math.MaxInt
	}
	pixels := uint64(h.Width) * uint64(h.Height)
	if pixels > uint64(limit-SeparatorLen)/frame.BytesPerPixel {
		return 0, errors.Wrapf(ErrFrameTooLarge, "%dx%d exceeds %d bytes", h.Width, h.Height, limit)
	}
	return int(pixels)*frame.BytesPerPixel + SeparatorLen, nil
}

// WriteTo writes the header without the separator byte.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "%s\n%d %d\n%d", Magic, h.Width, h.Height, h.MaxVal)
	return int64(n), err
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// skipSpace consumes whitespace and reports whether anything else is left.
func skipSpace(r io.ByteScanner) error {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return err
		}
		if !isSpace(c) {
			return r.UnreadByte()
		}
	}
}

func readToken(r io.ByteScanner) (string, error) {
	if err := skipSpace(r); err != nil {
		return "", err
	}

	var tok []byte
	for len(tok) < maxTokenLen {
		c, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if isSpace(c) {
			if err := r.UnreadByte(); err != nil {
				return "", err
			}
			break
		}
		tok = append(tok, c)
	}
	return string(tok), nil
}

func readUint(r io.ByteScanner) (uint32, error) {
	if err := skipSpace(r); err != nil {
		if err == io.EOF {
			return 0, errors.Wrap(ErrBadHeader, "truncated")
		}
		return 0, err
	}

	var v uint64
	digits := 0
	for {
		c, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		if c < '0' || c > '9' {
			if err := r.UnreadByte(); err != nil {
				return 0, err
			}
			break
		}
		v = v*10 + uint64(c-'0')
		if v > math.MaxUint32 {
			return 0, errors.Wrap(ErrBadHeader, "number out of range")
		}
		digits++
	}
	if digits == 0 {
		return 0, errors.Wrap(ErrBadHeader, "expected an unsigned integer")
	}
	return uint32(v), nil
}
