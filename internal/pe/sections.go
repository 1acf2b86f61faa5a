package pe

import (
	"bytes"
	"fmt"

	"github.com/getsentry/pe2pdburl/internal/binutil"
)

var sectionHeaderLayout = binutil.Layout{Name: "IMAGE_SECTION_HEADER", Size: 40}

type (
	SectionHeader struct {
		Name             string
		VirtualSize      uint32
		VirtualAddress   uint32
		SizeOfRawData    uint32
		PointerToRawData uint32
	}

	// SectionTable holds the section headers in file order.
	SectionTable struct {
		Sections []SectionHeader
		// MaxFileExtent is the largest PointerToRawData+SizeOfRawData of
		// sections with both values set.
		MaxFileExtent int64
	}
)

// End returns the file offset right after the section's raw data.
func (s SectionHeader) End() int64 {
	return int64(s.PointerToRawData) + int64(s.SizeOfRawData)
}

// Contains reports whether va falls in [VirtualAddress, VirtualAddress+SizeOfRawData).
func (s SectionHeader) Contains(va uint32) bool {
	return s.VirtualAddress <= va && uint64(va) < uint64(s.VirtualAddress)+uint64(s.SizeOfRawData)
}

// ReadSections reads count section headers from the current position.
func ReadSections(c *binutil.Cursor, count uint16) (SectionTable, error) {
	t := SectionTable{Sections: make([]SectionHeader, 0, count)}
	for i := 0; i < int(count); i++ {
		f, err := c.Read(sectionHeaderLayout)
		if err != nil {
			return SectionTable{}, fmt.Errorf("section %d: %w", i, err)
		}
		s := SectionHeader{
			Name:             string(bytes.TrimRight(f.Bytes(0, 8), "\x00")),
			VirtualSize:      f.Uint32(8),
			VirtualAddress:   f.Uint32(12),
			SizeOfRawData:    f.Uint32(16),
			PointerToRawData: f.Uint32(20),
		}
		if s.PointerToRawData != 0 && s.SizeOfRawData != 0 && s.End() > t.MaxFileExtent {
			t.MaxFileExtent = s.End()
		}
		t.Sections = append(t.Sections, s)
	}
	return t, nil
}

// VirtualToFileOffset translates the directory's virtual address into a file
// offset using the first section, in file order, containing it. Nothing is
// resolved for an empty directory.
func (t SectionTable) VirtualToFileOffset(dir DataDirectory) (uint32, bool) {
	if dir.Size == 0 {
		return 0, false
	}
	for _, s := range t.Sections {
		if s.Contains(dir.VirtualAddress) {
			return dir.VirtualAddress - s.VirtualAddress + s.PointerToRawData, true
		}
	}
	return 0, false
}
