package pe

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/getsentry/pe2pdburl/internal/binutil"
	"github.com/getsentry/pe2pdburl/internal/errorutil"
)

const (
	// DebugTypeCodeView is the debug directory type of CodeView records.
	DebugTypeCodeView = 2

	// NativeImageMarker flags the PDB of a precompiled native image, which
	// is skipped in favor of the original image's own entry.
	NativeImageMarker = ".ni."

	maxCodeViewNameSize = 255

	// DebugDirectoryEntrySize is the on-disk size of one debug directory entry.
	DebugDirectoryEntrySize = 28
)

var (
	debugDirectoryEntryLayout = binutil.Layout{Name: "IMAGE_DEBUG_DIRECTORY", Size: DebugDirectoryEntrySize}
	codeViewHeaderLayout      = binutil.Layout{Name: "CodeView record", Size: 24}
	codeViewNameLayout        = binutil.Layout{Name: "CodeView name", Size: maxCodeViewNameSize}
)

type (
	DebugDirectoryEntry struct {
		Characteristics  uint32
		TimeDateStamp    uint32
		MajorVersion     uint16
		MinorVersion     uint16
		Type             uint32
		SizeOfData       uint32
		AddressOfRawData uint32
		PointerToRawData uint32
	}

	// CodeViewRecord is an RSDS-style payload. GUID holds the raw on-disk
	// bytes and Name the bounded, possibly NUL-padded, name field.
	CodeViewRecord struct {
		Format [4]byte
		GUID   [16]byte
		Age    uint32
		Name   []byte
	}

	ScanState int

	ScanResult struct {
		State    ScanState
		Entry    DebugDirectoryEntry
		CodeView CodeViewRecord
		// Skipped counts CodeView entries passed over for being native images.
		Skipped       int
		MaxFileExtent int64
	}
)

const (
	Scanning ScanState = iota
	Found
	Exhausted
)

func (s ScanState) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Found:
		return "found"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("ScanState(%d)", int(s))
}

// End returns the file offset right after the entry's data.
func (e DebugDirectoryEntry) End() int64 {
	return int64(e.PointerToRawData) + int64(e.SizeOfData)
}

// PDBName returns the name field up to its first NUL.
func (r CodeViewRecord) PDBName() string {
	if i := bytes.IndexByte(r.Name, 0); i >= 0 {
		return string(r.Name[:i])
	}
	return string(r.Name)
}

func (r CodeViewRecord) IsNativeImage() bool {
	return strings.Contains(r.PDBName(), NativeImageMarker)
}

// ReadDebugDirectoryEntry reads one entry at the current position.
func ReadDebugDirectoryEntry(c *binutil.Cursor) (DebugDirectoryEntry, error) {
	f, err := c.Read(debugDirectoryEntryLayout)
	if err != nil {
		return DebugDirectoryEntry{}, err
	}
	return DebugDirectoryEntry{
		Characteristics:  f.Uint32(0),
		TimeDateStamp:    f.Uint32(4),
		MajorVersion:     f.Uint16(8),
		MinorVersion:     f.Uint16(10),
		Type:             f.Uint32(12),
		SizeOfData:       f.Uint32(16),
		AddressOfRawData: f.Uint32(20),
		PointerToRawData: f.Uint32(24),
	}, nil
}

// ReadCodeViewRecord reads the record at offset. The name may be cut short by
// the end of the file as long as its terminating NUL was read.
func ReadCodeViewRecord(c *binutil.Cursor, offset uint32) (CodeViewRecord, error) {
	if err := c.Seek(int64(offset)); err != nil {
		return CodeViewRecord{}, err
	}
	f, err := c.Read(codeViewHeaderLayout)
	if err != nil {
		return CodeViewRecord{}, err
	}
	var r CodeViewRecord
	copy(r.Format[:], f[0:4])
	copy(r.GUID[:], f[4:20])
	r.Age = f.Uint32(20)

	name, err := c.ReadUpTo(codeViewNameLayout)
	if err != nil {
		return CodeViewRecord{}, err
	}
	if len(name) < maxCodeViewNameSize && bytes.IndexByte(name, 0) < 0 {
		return CodeViewRecord{}, fmt.Errorf(
			"%w: CodeView name at offset %d ends without a terminator",
			errorutil.ErrTruncatedRead,
			int64(offset)+int64(codeViewHeaderLayout.Size),
		)
	}
	r.Name = name
	return r, nil
}

// ScanDebugDirectory walks size bytes of debug directory entries starting at
// offset until a CodeView entry that isn't a native image is found. Every
// entry read consumes exactly one entry size from the budget, including
// skipped native images. extent seeds MaxFileExtent.
func ScanDebugDirectory(c *binutil.Cursor, offset, size uint32, extent int64) (ScanResult, error) {
	res := ScanResult{State: Scanning, MaxFileExtent: extent}
	if err := c.Seek(int64(offset)); err != nil {
		return res, err
	}
	remaining := size
	for res.State == Scanning {
		if remaining < DebugDirectoryEntrySize {
			res.State = Exhausted
			break
		}
		entry, err := ReadDebugDirectoryEntry(c)
		if err != nil {
			return res, err
		}
		next := c.Offset()
		remaining -= DebugDirectoryEntrySize

		if entry.Type == DebugTypeCodeView {
			cv, err := ReadCodeViewRecord(c, entry.PointerToRawData)
			if err != nil {
				return res, err
			}
			if cv.IsNativeImage() {
				res.Skipped++
				if err := c.Seek(next); err != nil {
					return res, err
				}
			} else {
				res.State = Found
				res.Entry = entry
				res.CodeView = cv
			}
		}

		if entry.PointerToRawData != 0 && entry.SizeOfData != 0 && entry.End() > res.MaxFileExtent {
			res.MaxFileExtent = entry.End()
		}
	}
	return res, nil
}
