package sane

import "errors"

// ErrNoCGO is returned by Default in builds without cgo.
var ErrNoCGO = errors.New("sane: libsane support requires cgo")

// RawHandle is an opaque reference to an opened device, owned by the ABI.
type RawHandle uintptr

// ABI is the set of libsane entry points the package depends on.
//
// Records returned by the ABI (devices, descriptors) are views into memory
// the ABI owns and may reuse; callers copy what they keep.
// Implementations are not required to be safe for concurrent use.
type ABI interface {
	// Init initializes the backend. version may be rewritten to the version
	// of the loaded library. The authorization callback is always null.
	Init(version *int32) Status

	// Exit tears the backend down.
	Exit()

	// GetDevices returns the device list. The last element is a nil sentinel.
	GetDevices(localOnly bool) ([]*RawDevice, Status)

	// Open opens the device named by the NUL-terminated name.
	Open(name []byte) (RawHandle, Status)

	Close(h RawHandle)

	// OptionDescriptor returns nil if idx is out of range.
	OptionDescriptor(h RawHandle, idx int32) *RawDescriptor

	// ControlOption gets or sets an option value. A nil value or info
	// is passed to the backend as a null pointer.
	ControlOption(h RawHandle, idx int32, action Action, value []byte, info *Info) Status

	GetParameters(h RawHandle, p *Parameters) Status
	Start(h RawHandle) Status

	// Read stores up to len(buf) bytes into buf and the count into n.
	Read(h RawHandle, buf []byte, n *int32) Status

	Cancel(h RawHandle)

	// StrStatus returns the backend's description of a status code.
	StrStatus(s Status) string
}

// RawDevice is an ABI-owned device record. Strings exclude the NUL terminator.
type RawDevice struct {
	Name   []byte
	Vendor []byte
	Model  []byte
	Type   []byte
}

// RawDescriptor is an ABI-owned option descriptor.
// Exactly one of Range, WordList, StringList is set, according to ConstraintType.
type RawDescriptor struct {
	Name  []byte
	Title []byte
	Desc  []byte
	Type  ValueType
	Unit  Unit
	Size  int32
	Cap   int32

	ConstraintType ConstraintType
	Range          *Range
	// WordList holds the length word followed by that many values.
	WordList []int32
	// StringList is terminated by a nil entry.
	StringList [][]byte
}

// Range mirrors SANE_Range.
type Range struct {
	Min   int32
	Max   int32
	Quant int32
}

// Parameters describes the geometry and format of the pending or current frame.
type Parameters struct {
	Format        Frame
	LastFrame     bool
	BytesPerLine  int32
	PixelsPerLine int32
	// Lines is -1 when the height is not known in advance (hand scanners, ADF with
	// length detection).
	Lines int32
	Depth int32
}

// Size returns the expected frame size in bytes, or 0 when Lines is unknown.
func (p Parameters) Size() int {
	if p.Lines <= 0 || p.BytesPerLine <= 0 {
		return 0
	}
	return int(p.BytesPerLine) * int(p.Lines)
}
