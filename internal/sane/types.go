package sane

import (
	"fmt"
	"strings"
)

// Status is a SANE_Status code.
type Status int32

const (
	StatusGood Status = iota
	StatusUnsupported
	StatusCancelled
	StatusDeviceBusy
	StatusInval
	StatusEOF
	StatusJammed
	StatusNoDocs
	StatusCoverOpen
	StatusIOError
	StatusNoMem
	StatusAccessDenied
)

var statusNames = [...]string{
	StatusGood:         "Good",
	StatusUnsupported:  "Unsupported",
	StatusCancelled:    "Cancelled",
	StatusDeviceBusy:   "DeviceBusy",
	StatusInval:        "Inval",
	StatusEOF:          "EOF",
	StatusJammed:       "Jammed",
	StatusNoDocs:       "NoDocs",
	StatusCoverOpen:    "CoverOpen",
	StatusIOError:      "IOError",
	StatusNoMem:        "NoMem",
	StatusAccessDenied: "AccessDenied",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// ValueType is the type of an option value.
type ValueType int32

const (
	TypeBool ValueType = iota
	TypeInt
	TypeFixed
	TypeString
	TypeButton
	TypeGroup
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "Bool"
	case TypeInt:
		return "Int"
	case TypeFixed:
		return "Fixed"
	case TypeString:
		return "String"
	case TypeButton:
		return "Button"
	case TypeGroup:
		return "Group"
	default:
		return fmt.Sprintf("ValueType(%d)", int32(t))
	}
}

// Unit is the physical unit of an option value.
type Unit int32

const (
	UnitNone Unit = iota
	UnitPixel
	UnitBit
	UnitMm
	UnitDpi
	UnitPercent
	UnitMicrosecond
)

func (u Unit) String() string {
	switch u {
	case UnitNone:
		return ""
	case UnitPixel:
		return "pixels"
	case UnitBit:
		return "bits"
	case UnitMm:
		return "mm"
	case UnitDpi:
		return "dpi"
	case UnitPercent:
		return "%"
	case UnitMicrosecond:
		return "us"
	default:
		return fmt.Sprintf("Unit(%d)", int32(u))
	}
}

// ConstraintType tags the constraint union of a descriptor.
type ConstraintType int32

const (
	ConstraintNone ConstraintType = iota
	ConstraintRange
	ConstraintWordList
	ConstraintStringList
)

// Action selects the operation performed by ControlOption.
type Action int32

const (
	ActionGetValue Action = iota
	ActionSetValue
	ActionSetAuto
)

// Frame is the format of a frame.
type Frame int32

const (
	FrameGray Frame = iota
	FrameRGB
	FrameRed
	FrameGreen
	FrameBlue
)

func (f Frame) String() string {
	switch f {
	case FrameGray:
		return "gray"
	case FrameRGB:
		return "rgb"
	case FrameRed:
		return "red"
	case FrameGreen:
		return "green"
	case FrameBlue:
		return "blue"
	default:
		return fmt.Sprintf("Frame(%d)", int32(f))
	}
}

// Capability is the SANE_CAP_* bitset of an option.
type Capability uint32

const (
	CapSoftSelect Capability = 1 << iota
	CapHardSelect
	CapSoftDetect
	CapEmulated
	CapAutomatic
	CapInactive
	CapAdvanced
)

var capabilityNames = []struct {
	flag Capability
	name string
}{
	{CapSoftSelect, "soft-select"},
	{CapHardSelect, "hard-select"},
	{CapSoftDetect, "soft-detect"},
	{CapEmulated, "emulated"},
	{CapAutomatic, "automatic"},
	{CapInactive, "inactive"},
	{CapAdvanced, "advanced"},
}

// Has reports whether all bits of flag are set.
func (c Capability) Has(flag Capability) bool { return c&flag == flag }

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Info is the SANE_INFO_* bitset returned by set operations.
type Info uint32

const (
	// InfoInexact means the value was rounded to one the device accepts.
	InfoInexact Info = 1 << iota
	// InfoReloadOptions means previously read option descriptors are stale.
	InfoReloadOptions
	// InfoReloadParams means the scan parameters changed.
	InfoReloadParams
)

// Has reports whether all bits of flag are set.
func (i Info) Has(flag Info) bool { return i&flag == flag }

func (i Info) String() string {
	var parts []string
	if i.Has(InfoInexact) {
		parts = append(parts, "inexact")
	}
	if i.Has(InfoReloadOptions) {
		parts = append(parts, "reload-options")
	}
	if i.Has(InfoReloadParams) {
		parts = append(parts, "reload-params")
	}
	return strings.Join(parts, "|")
}

// VersionCode encodes a SANE version number the way SANE_VERSION_CODE does.
func VersionCode(major, minor, build int32) int32 {
	return (major&0xff)<<24 | (minor&0xff)<<16 | build&0xffff
}

// VersionMajor extracts the major number of a version code.
func VersionMajor(code int32) int32 { return (code >> 24) & 0xff }

// VersionMinor extracts the minor number of a version code.
func VersionMinor(code int32) int32 { return (code >> 16) & 0xff }

// VersionBuild extracts the build number of a version code.
func VersionBuild(code int32) int32 { return code & 0xffff }
