package errorutil

import (
	"errors"
	"fmt"
)

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrTruncatedRead is returned when a fixed-size structure could not be read
// because the input ended before it.
var ErrTruncatedRead = fmt.Errorf("%w: truncated read", ErrDataIntegrity)

// ErrMalformedHeader is returned when the DOS or NT header region can't be
// used to locate the rest of the image.
var ErrMalformedHeader = fmt.Errorf("%w: malformed header", ErrDataIntegrity)

// ErrNoDebugInfo represents images without a usable CodeView debug entry.
var ErrNoDebugInfo = errors.New("no debug info")

// ErrFileNotFound and ErrNotReadable are returned before any parsing happens.
var (
	ErrFileNotFound = errors.New("file not found")
	ErrNotReadable  = errors.New("file not readable")
)
