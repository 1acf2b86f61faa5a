// Package binutil reads fixed-size little-endian structures from a seekable
// byte stream.
package binutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/getsentry/pe2pdburl/internal/errorutil"
)

type (
	// Layout describes a fixed-size structure read in one piece.
	Layout struct {
		Name string
		Size int
	}

	// Fields is the raw content of a structure. Offsets passed to its
	// accessors are byte offsets from the start of the structure.
	Fields []byte

	// Cursor is a position in a seekable stream of known size.
	Cursor struct {
		r    io.ReadSeeker
		pos  int64
		size int64
	}
)

// NewCursor returns a cursor positioned at the start of r.
func NewCursor(r io.ReadSeeker) (*Cursor, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &Cursor{r: r, size: size}, nil
}

// Size returns the total size of the underlying stream.
func (c *Cursor) Size() int64 {
	return c.size
}

// Offset returns the current position.
func (c *Cursor) Offset() int64 {
	return c.pos
}

// Remaining returns the number of bytes between the position and the end of the stream.
func (c *Cursor) Remaining() int64 {
	return c.size - c.pos
}

// Seek moves the cursor to an absolute offset. Seeking exactly to the end is
// allowed, seeking beyond it is not.
func (c *Cursor) Seek(offset int64) error {
	if offset < 0 || offset > c.size {
		return fmt.Errorf("%w: offset %d outside of %d bytes", errorutil.ErrTruncatedRead, offset, c.size)
	}
	if _, err := c.r.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	c.pos = offset
	return nil
}

// Read consumes exactly l.Size bytes.
func (c *Cursor) Read(l Layout) (Fields, error) {
	b := make([]byte, l.Size)
	n, err := io.ReadFull(c.r, b)
	c.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf(
				"%w: %s needs %d bytes at offset %d, got %d",
				errorutil.ErrTruncatedRead,
				l.Name,
				l.Size,
				c.pos-int64(n),
				n,
			)
		}
		return nil, err
	}
	return Fields(b), nil
}

// ReadUpTo consumes at most l.Size bytes and returns what was available.
func (c *Cursor) ReadUpTo(l Layout) (Fields, error) {
	b := make([]byte, l.Size)
	n, err := io.ReadFull(c.r, b)
	c.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return Fields(b[:n]), nil
}

func (f Fields) Uint8(off int) uint8 {
	return f[off]
}

func (f Fields) Uint16(off int) uint16 {
	return binary.LittleEndian.Uint16(f[off:])
}

func (f Fields) Uint32(off int) uint32 {
	return binary.LittleEndian.Uint32(f[off:])
}

func (f Fields) Uint64(off int) uint64 {
	return binary.LittleEndian.Uint64(f[off:])
}

func (f Fields) Int32(off int) int32 {
	return int32(f.Uint32(off))
}

// Bytes returns a copy of n bytes starting at off.
func (f Fields) Bytes(off, n int) []byte {
	b := make([]byte, n)
	copy(b, f[off:off+n])
	return b
}
