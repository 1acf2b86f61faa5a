package pe

import "fmt"

// Machine is the COFF target machine type.
type Machine uint16

const (
	MachineI386  Machine = 0x14c
	MachineARM   Machine = 0x1c0
	MachineARMNT Machine = 0x1c4
	MachineAMD64 Machine = 0x8664
	MachineARM64 Machine = 0xaa64
)

// Is32Bit reports whether images for this machine carry the 32-bit optional
// header. Only i386 does; every other value is read with the 64-bit shape.
func (m Machine) Is32Bit() bool {
	return m == MachineI386
}

// Arch returns the architecture name used in debug images.
func (m Machine) Arch() string {
	switch m {
	case MachineI386:
		return "x86"
	case MachineAMD64:
		return "x86_64"
	case MachineARM, MachineARMNT:
		return "arm"
	case MachineARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

func (m Machine) String() string {
	return fmt.Sprintf("%s (%#x)", m.Arch(), uint16(m))
}
