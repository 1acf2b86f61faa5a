// Package symbolurl builds symbol server download URLs for PE images and
// their PDBs.
package symbolurl

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/getsentry/pe2pdburl/internal/pe"
)

// DefaultServerURL is Microsoft's public symbol server.
const DefaultServerURL = "http://msdl.microsoft.com/download/symbols"

type (
	Builder struct {
		ServerURL string
	}

	Result struct {
		PEURL  string `json:"pe_url"`
		PDBURL string `json:"pdb_url"`
	}
)

// NewBuilder returns a builder for serverURL, or for DefaultServerURL if it's empty.
func NewBuilder(serverURL string) Builder {
	serverURL = strings.TrimRight(serverURL, "/")
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return Builder{ServerURL: serverURL}
}

func (b Builder) server() string {
	if b.ServerURL == "" {
		return DefaultServerURL
	}
	return b.ServerURL
}

// PDBURL returns the download URL of the PDB described by r.
func (b Builder) PDBURL(r pe.CodeViewRecord) string {
	name := BaseName(r.PDBName())
	return fmt.Sprintf("%s/%s/%s%X/%s", b.server(), name, GUIDHex(r.GUID), r.Age, name)
}

// PEURL returns the download URL of the image itself, keyed by the debug
// entry's timestamp and the image size.
func (b Builder) PEURL(e pe.DebugDirectoryEntry, imageSize uint32, fileName string) string {
	return fmt.Sprintf("%s/%s/%X%X/%s", b.server(), fileName, e.TimeDateStamp, imageSize, fileName)
}

// URLs builds both URLs for an image stored as fileName.
func (b Builder) URLs(info pe.DebugInfo, fileName string) Result {
	return Result{
		PEURL:  b.PEURL(info.Entry, info.SizeOfImage(), fileName),
		PDBURL: b.PDBURL(info.CodeView),
	}
}

// FromReader parses r and builds its URLs. Nothing is returned unless both
// URLs can be built.
func (b Builder) FromReader(r io.ReadSeeker, fileName string) (Result, pe.DebugInfo, error) {
	info, err := pe.ReadDebugInfo(r)
	if err != nil {
		return Result{}, pe.DebugInfo{}, err
	}
	return b.URLs(info, fileName), info, nil
}

// FromFile parses the file at path and builds its URLs, naming the image
// after the last element of path.
func (b Builder) FromFile(path string) (Result, pe.DebugInfo, error) {
	info, err := pe.ReadFile(path)
	if err != nil {
		return Result{}, pe.DebugInfo{}, err
	}
	return b.URLs(info, filepath.Base(path)), info, nil
}

// PDBURL uses DefaultServerURL.
func PDBURL(r pe.CodeViewRecord) string {
	return Builder{}.PDBURL(r)
}

// PEURL uses DefaultServerURL.
func PEURL(e pe.DebugDirectoryEntry, imageSize uint32, fileName string) string {
	return Builder{}.PEURL(e, imageSize, fileName)
}

// BaseName keeps what follows the last path separator, Windows or not.
func BaseName(name string) string {
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// GUIDFromWindowsBytes converts an on-disk GUID, whose first three groups
// are little-endian, into its canonical form.
func GUIDFromWindowsBytes(b [16]byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:])
	return u
}

// GUIDHex renders an on-disk GUID as 32 uppercase hex digits.
func GUIDHex(b [16]byte) string {
	u := GUIDFromWindowsBytes(b)
	return strings.ToUpper(strings.ReplaceAll(u.String(), "-", ""))
}
