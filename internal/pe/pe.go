package pe

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/getsentry/pe2pdburl/internal/binutil"
	"github.com/getsentry/pe2pdburl/internal/errorutil"
)

// DebugInfo is what an image exposes to identify itself and its PDB on a
// symbol server.
type DebugInfo struct {
	Headers  NTHeaders
	Sections SectionTable
	Entry    DebugDirectoryEntry
	CodeView CodeViewRecord
	// SkippedNativeImages counts CodeView entries passed over before Entry.
	SkippedNativeImages int
	// MaxFileExtent is the furthest file offset referenced by a section or
	// a debug directory entry.
	MaxFileExtent int64
}

// SizeOfImage returns the image size from whichever optional header was read.
func (d DebugInfo) SizeOfImage() uint32 {
	return d.Headers.OptionalHeader.SizeOfImage()
}

func (d DebugInfo) Machine() Machine {
	return d.Headers.FileHeader.Machine
}

// ReadDebugInfo parses r up to its first usable CodeView record. It returns
// errorutil.ErrNoDebugInfo if the image has none.
func ReadDebugInfo(r io.ReadSeeker) (DebugInfo, error) {
	c, err := binutil.NewCursor(r)
	if err != nil {
		return DebugInfo{}, err
	}
	dos, err := ReadDOSHeader(c)
	if err != nil {
		return DebugInfo{}, err
	}
	headers, err := ReadNTHeaders(c, dos)
	if err != nil {
		return DebugInfo{}, err
	}
	sections, err := ReadSections(c, headers.FileHeader.NumberOfSections)
	if err != nil {
		return DebugInfo{}, err
	}

	dir := headers.OptionalHeader.DebugDirectory()
	offset, ok := sections.VirtualToFileOffset(dir)
	if !ok {
		return DebugInfo{}, fmt.Errorf("%w: debug directory %#x+%d is not mapped by any section", errorutil.ErrNoDebugInfo, dir.VirtualAddress, dir.Size)
	}
	res, err := ScanDebugDirectory(c, offset, dir.Size, sections.MaxFileExtent)
	if err != nil {
		return DebugInfo{}, fmt.Errorf("debug directory at %#x: %w", offset, err)
	}
	if res.State != Found {
		return DebugInfo{}, fmt.Errorf("%w: no CodeView entry in %d bytes of debug directory", errorutil.ErrNoDebugInfo, dir.Size)
	}
	return DebugInfo{
		Headers:             headers,
		Sections:            sections,
		Entry:               res.Entry,
		CodeView:            res.CodeView,
		SkippedNativeImages: res.Skipped,
		MaxFileExtent:       res.MaxFileExtent,
	}, nil
}

// ReadFile opens path read-only and parses it. The file is closed before
// returning.
func ReadFile(path string) (DebugInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DebugInfo{}, fmt.Errorf("%w: %s", errorutil.ErrFileNotFound, path)
		}
		return DebugInfo{}, fmt.Errorf("%w: %v", errorutil.ErrNotReadable, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return DebugInfo{}, fmt.Errorf("%w: %v", errorutil.ErrNotReadable, err)
	}
	if st.IsDir() {
		return DebugInfo{}, fmt.Errorf("%w: %s is a directory", errorutil.ErrNotReadable, path)
	}
	return ReadDebugInfo(f)
}
