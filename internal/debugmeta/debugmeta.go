package debugmeta

import (
	"fmt"
	"strings"

	"github.com/getsentry/pe2pdburl/internal/pe"
	"github.com/getsentry/pe2pdburl/internal/symbolurl"
)

type (
	Features struct {
		HasDebugInfo  bool `json:"has_debug_info"`
		HasSources    bool `json:"has_sources"`
		HasSymbols    bool `json:"has_symbols"`
		HasUnwindInfo bool `json:"has_unwind_info"`
	}

	Image struct {
		Arch        string   `json:"arch"`
		CodeFile    string   `json:"code_file"`
		CodeID      string   `json:"code_id"`
		DebugFile   string   `json:"debug_file"`
		DebugID     string   `json:"debug_id"`
		DebugStatus string   `json:"debug_status,omitempty"`
		Features    Features `json:"features"`
		ImageSize   uint64   `json:"image_size"`
		Type        string   `json:"type"`

		PEURL  string `json:"pe_url,omitempty"`
		PDBURL string `json:"pdb_url,omitempty"`
	}

	DebugMeta struct {
		Images []Image `json:"images,omitempty"`
	}
)

// CodeID identifies an image by its timestamp and size, the same pair used in
// its symbol server URL.
func CodeID(timestamp, imageSize uint32) string {
	return fmt.Sprintf("%08X%x", timestamp, imageSize)
}

// DebugID identifies a PDB by its GUID and age.
func DebugID(guid [16]byte, age uint32) string {
	return fmt.Sprintf("%s-%x", symbolurl.GUIDFromWindowsBytes(guid).String(), age)
}

// NewImage describes the image found at codeFile.
func NewImage(codeFile string, info pe.DebugInfo, urls symbolurl.Result) Image {
	return Image{
		Arch:      info.Machine().Arch(),
		CodeFile:  codeFile,
		CodeID:    CodeID(info.Entry.TimeDateStamp, info.SizeOfImage()),
		DebugFile: info.CodeView.PDBName(),
		DebugID:   DebugID(info.CodeView.GUID, info.CodeView.Age),
		Features: Features{
			HasDebugInfo: true,
		},
		ImageSize: uint64(info.SizeOfImage()),
		Type:      "pe",
		PEURL:     urls.PEURL,
		PDBURL:    urls.PDBURL,
	}
}

// Add appends an image, replacing a previous one with the same code file.
func (d *DebugMeta) Add(img Image) {
	for i := range d.Images {
		if strings.EqualFold(d.Images[i].CodeFile, img.CodeFile) {
			d.Images[i] = img
			return
		}
	}
	d.Images = append(d.Images, img)
}
