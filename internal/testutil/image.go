package testutil

import (
	"encoding/binary"
)

// Offsets used by Image when laying out headers.
const (
	DefaultLFANew     = 0x40
	fileHeaderSize    = 20
	optional32Size    = 224
	optional64Size    = 240
	sectionHeaderSize = 40
)

type (
	Section struct {
		Name             string
		VirtualAddress   uint32
		SizeOfRawData    uint32
		PointerToRawData uint32
	}

	DebugEntry struct {
		Type             uint32
		TimeDateStamp    uint32
		SizeOfData       uint32
		PointerToRawData uint32
	}

	CodeView struct {
		Offset uint32
		GUID   [16]byte
		Age    uint32
		Name   string
	}

	// Image describes a minimal PE file. Bytes lays it out; anything not
	// described is zero.
	Image struct {
		Machine     uint16
		SizeOfImage uint32
		// LFANew defaults to DefaultLFANew when zero.
		LFANew int32

		DebugVirtualAddress uint32
		DebugSize           uint32

		Sections []Section

		// DebugEntries are written contiguously at DebugEntriesOffset.
		DebugEntriesOffset uint32
		DebugEntries       []DebugEntry

		CodeViews []CodeView

		// Size is the minimum length of the file.
		Size int
		// Truncate cuts the file to this length when positive.
		Truncate int
	}
)

// SampleGUID is 3249d99d-0c40-4931-8610-f4e4fb0b6936 as stored on disk.
var SampleGUID = [16]byte{
	0x9d, 0xd9, 0x49, 0x32,
	0x40, 0x0c,
	0x31, 0x49,
	0x86, 0x10, 0xf4, 0xe4, 0xfb, 0x0b, 0x69, 0x36,
}

// SampleImage returns an image with a .text and an .rdata section and a
// single CodeView entry for C:\build\app.pdb.
func SampleImage(is32Bit bool) Image {
	machine := uint16(0x8664)
	if is32Bit {
		machine = 0x14c
	}
	return Image{
		Machine:             machine,
		SizeOfImage:         0x9000,
		DebugVirtualAddress: 0x2010,
		DebugSize:           28,
		Sections: []Section{
			{Name: ".text", VirtualAddress: 0x1000, SizeOfRawData: 0x200, PointerToRawData: 0x400},
			{Name: ".rdata", VirtualAddress: 0x2000, SizeOfRawData: 0x400, PointerToRawData: 0x600},
		},
		DebugEntriesOffset: 0x610,
		DebugEntries: []DebugEntry{
			{Type: 2, TimeDateStamp: 0x5ab38077, SizeOfData: 0x40, PointerToRawData: 0x700},
		},
		CodeViews: []CodeView{
			{Offset: 0x700, GUID: SampleGUID, Age: 1, Name: `C:\build\app.pdb`},
		},
		Size: 0xa00,
	}
}

func (img Image) is32Bit() bool {
	return img.Machine == 0x14c
}

func (img Image) Bytes() []byte {
	var b []byte
	put := func(off int, data []byte) {
		if need := off + len(data); need > len(b) {
			b = append(b, make([]byte, need-len(b))...)
		}
		copy(b[off:], data)
	}
	u16 := func(off int, v uint16) {
		var d [2]byte
		binary.LittleEndian.PutUint16(d[:], v)
		put(off, d[:])
	}
	u32 := func(off int, v uint32) {
		var d [4]byte
		binary.LittleEndian.PutUint32(d[:], v)
		put(off, d[:])
	}

	lfanew := img.LFANew
	if lfanew == 0 {
		lfanew = DefaultLFANew
	}
	put(0, []byte("MZ"))
	u32(0x3c, uint32(lfanew))
	if lfanew < 0 {
		return b
	}

	put(int(lfanew), []byte("PE\x00\x00"))
	fh := int(lfanew) + 4
	u16(fh, img.Machine)
	u16(fh+2, uint16(len(img.Sections)))

	oh := fh + fileHeaderSize
	var sections, dataDirs int
	if img.is32Bit() {
		u16(fh+16, optional32Size)
		u16(oh, 0x10b)
		dataDirs = oh + 96
		sections = oh + optional32Size
	} else {
		u16(fh+16, optional64Size)
		u16(oh, 0x20b)
		dataDirs = oh + 112
		sections = oh + optional64Size
	}
	u32(oh+56, img.SizeOfImage)
	u32(dataDirs+6*8, img.DebugVirtualAddress)
	u32(dataDirs+6*8+4, img.DebugSize)

	for i, s := range img.Sections {
		off := sections + i*sectionHeaderSize
		name := make([]byte, 8)
		copy(name, s.Name)
		put(off, name)
		u32(off+8, s.SizeOfRawData)
		u32(off+12, s.VirtualAddress)
		u32(off+16, s.SizeOfRawData)
		u32(off+20, s.PointerToRawData)
	}

	for i, e := range img.DebugEntries {
		off := int(img.DebugEntriesOffset) + i*28
		u32(off+4, e.TimeDateStamp)
		u32(off+12, e.Type)
		u32(off+16, e.SizeOfData)
		u32(off+24, e.PointerToRawData)
	}

	for _, cv := range img.CodeViews {
		off := int(cv.Offset)
		put(off, []byte("RSDS"))
		put(off+4, cv.GUID[:])
		u32(off+20, cv.Age)
		put(off+24, append([]byte(cv.Name), 0))
	}

	if len(b) < img.Size {
		b = append(b, make([]byte, img.Size-len(b))...)
	}
	if img.Truncate > 0 && img.Truncate < len(b) {
		b = b[:img.Truncate]
	}
	return b
}
