// Package pe walks the header chain of a Portable Executable image up to its
// CodeView debug record.
package pe

import (
	"fmt"

	"github.com/getsentry/pe2pdburl/internal/binutil"
	"github.com/getsentry/pe2pdburl/internal/errorutil"
)

const (
	debugDirectoryIndex = 6
	numDataDirectories  = 16
)

var (
	dosHeaderLayout        = binutil.Layout{Name: "IMAGE_DOS_HEADER", Size: 64}
	ntSignatureLayout      = binutil.Layout{Name: "NT signature", Size: 4}
	fileHeaderLayout       = binutil.Layout{Name: "IMAGE_FILE_HEADER", Size: 20}
	optionalHeader32Layout = binutil.Layout{Name: "IMAGE_OPTIONAL_HEADER32", Size: 96 + numDataDirectories*8}
	optionalHeader64Layout = binutil.Layout{Name: "IMAGE_OPTIONAL_HEADER64", Size: 112 + numDataDirectories*8}
)

type (
	DOSHeader struct {
		Magic  uint16
		LFANew int32
	}

	FileHeader struct {
		Machine              Machine
		NumberOfSections     uint16
		TimeDateStamp        uint32
		SizeOfOptionalHeader uint16
		Characteristics      uint16
	}

	DataDirectory struct {
		VirtualAddress uint32
		Size           uint32
	}

	// OptionalHeader is either an *OptionalHeader32 or an *OptionalHeader64.
	OptionalHeader interface {
		Is32Bit() bool
		SizeOfImage() uint32
		DebugDirectory() DataDirectory
	}

	OptionalHeader32 struct {
		Magic           uint16
		ImageBase       uint32
		ImageSize       uint32
		DataDirectories [numDataDirectories]DataDirectory
	}

	OptionalHeader64 struct {
		Magic           uint16
		ImageBase       uint64
		ImageSize       uint32
		DataDirectories [numDataDirectories]DataDirectory
	}

	// NTHeaders is everything between e_lfanew and the section table.
	NTHeaders struct {
		Signature      uint32
		FileHeader     FileHeader
		OptionalHeader OptionalHeader
	}
)

func (h *OptionalHeader32) Is32Bit() bool { return true }
func (h *OptionalHeader32) SizeOfImage() uint32 { return h.ImageSize }
func (h *OptionalHeader32) DebugDirectory() DataDirectory { return h.DataDirectories[debugDirectoryIndex] }

func (h *OptionalHeader64) Is32Bit() bool { return false }
func (h *OptionalHeader64) SizeOfImage() uint32 { return h.ImageSize }
func (h *OptionalHeader64) DebugDirectory() DataDirectory { return h.DataDirectories[debugDirectoryIndex] }

// ReadDOSHeader reads the MS-DOS header at offset 0.
func ReadDOSHeader(c *binutil.Cursor) (DOSHeader, error) {
	if err := c.Seek(0); err != nil {
		return DOSHeader{}, err
	}
	f, err := c.Read(dosHeaderLayout)
	if err != nil {
		return DOSHeader{}, fmt.Errorf("%w: %v", errorutil.ErrMalformedHeader, err)
	}
	return DOSHeader{
		Magic:  f.Uint16(0),
		LFANew: f.Int32(0x3c),
	}, nil
}

// ReadFileHeader reads the COFF header at the current position.
func ReadFileHeader(c *binutil.Cursor) (FileHeader, error) {
	f, err := c.Read(fileHeaderLayout)
	if err != nil {
		return FileHeader{}, err
	}
	return FileHeader{
		Machine:              Machine(f.Uint16(0)),
		NumberOfSections:     f.Uint16(2),
		TimeDateStamp:        f.Uint32(4),
		SizeOfOptionalHeader: f.Uint16(16),
		Characteristics:      f.Uint16(18),
	}, nil
}

// ReadOptionalHeader reads the optional header shape selected by is32Bit.
// The shape is always read at its full size, whatever SizeOfOptionalHeader
// says, so the section table is expected to follow it directly.
func ReadOptionalHeader(c *binutil.Cursor, is32Bit bool) (OptionalHeader, error) {
	if is32Bit {
		f, err := c.Read(optionalHeader32Layout)
		if err != nil {
			return nil, err
		}
		h := &OptionalHeader32{
			Magic:     f.Uint16(0),
			ImageBase: f.Uint32(28),
			ImageSize: f.Uint32(56),
		}
		readDataDirectories(f, 96, h.DataDirectories[:])
		return h, nil
	}
	f, err := c.Read(optionalHeader64Layout)
	if err != nil {
		return nil, err
	}
	h := &OptionalHeader64{
		Magic:     f.Uint16(0),
		ImageBase: f.Uint64(24),
		ImageSize: f.Uint32(56),
	}
	readDataDirectories(f, 112, h.DataDirectories[:])
	return h, nil
}

func readDataDirectories(f binutil.Fields, off int, dirs []DataDirectory) {
	for i := range dirs {
		dirs[i] = DataDirectory{
			VirtualAddress: f.Uint32(off + i*8),
			Size:           f.Uint32(off + i*8 + 4),
		}
	}
}

// ReadNTHeaders follows e_lfanew and reads the signature, the file header and
// the optional header. The signature is returned as read and not checked
// against "PE\0\0".
func ReadNTHeaders(c *binutil.Cursor, dos DOSHeader) (NTHeaders, error) {
	if dos.LFANew < 0 || int64(dos.LFANew) >= c.Size() {
		return NTHeaders{}, fmt.Errorf("%w: e_lfanew %d outside of %d bytes", errorutil.ErrMalformedHeader, dos.LFANew, c.Size())
	}
	if err := c.Seek(int64(dos.LFANew)); err != nil {
		return NTHeaders{}, fmt.Errorf("%w: %v", errorutil.ErrMalformedHeader, err)
	}
	f, err := c.Read(ntSignatureLayout)
	if err != nil {
		return NTHeaders{}, fmt.Errorf("%w: %v", errorutil.ErrMalformedHeader, err)
	}
	var h NTHeaders
	h.Signature = f.Uint32(0)
	h.FileHeader, err = ReadFileHeader(c)
	if err != nil {
		return NTHeaders{}, fmt.Errorf("%w: %v", errorutil.ErrMalformedHeader, err)
	}
	h.OptionalHeader, err = ReadOptionalHeader(c, h.FileHeader.Machine.Is32Bit())
	if err != nil {
		return NTHeaders{}, fmt.Errorf("%w: %v", errorutil.ErrMalformedHeader, err)
	}
	return h, nil
}
