package sane

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeABI is an in-memory backend with scripted responses.
type fakeABI struct {
	calls []string

	initStatus  Status
	initVersion int32 // written back by Init when non-zero
	gotVersion  int32

	devices   []*RawDevice
	devStatus Status
	localOnly []bool

	openStatus Status

	count  int32 // reported by option 0; defaults to len(descs)+1
	descs  map[int32]*RawDescriptor
	values map[int32][]byte
	// onSet replaces the stored value and reports info. When nil the value is
	// stored verbatim and setInfo is reported.
	onSet      func(idx int32, value []byte) ([]byte, Info)
	setInfo    Info
	ctrlStatus Status
	lastSet    []byte

	params      Parameters
	paramStatus Status
	startStatus Status
	reads       []fakeRead
}

type fakeRead struct {
	status Status
	n      int
}

func newFakeABI() *fakeABI {
	return &fakeABI{
		descs:  make(map[int32]*RawDescriptor),
		values: make(map[int32][]byte),
	}
}

// newContext initializes a Context on abi and closes it when the test ends.
func newContext(t *testing.T, abi ABI) *Context {
	t.Helper()
	ctx, err := Init10(abi)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func word(v int32) []byte {
	return binary.NativeEndian.AppendUint32(nil, uint32(v))
}

func (f *fakeABI) count32() int32 {
	if f.count != 0 {
		return f.count
	}
	return int32(len(f.descs)) + 1
}

func (f *fakeABI) Init(version *int32) Status {
	f.calls = append(f.calls, "init")
	f.gotVersion = *version
	if f.initVersion != 0 {
		*version = f.initVersion
	}
	return f.initStatus
}

func (f *fakeABI) Exit() { f.calls = append(f.calls, "exit") }

func (f *fakeABI) GetDevices(localOnly bool) ([]*RawDevice, Status) {
	f.calls = append(f.calls, "get_devices")
	f.localOnly = append(f.localOnly, localOnly)
	if f.devStatus != StatusGood {
		return nil, f.devStatus
	}
	return f.devices, StatusGood
}

func (f *fakeABI) Open(name []byte) (RawHandle, Status) {
	f.calls = append(f.calls, "open:"+string(name[:len(name)-1]))
	if f.openStatus != StatusGood {
		return 0, f.openStatus
	}
	return 1, StatusGood
}

func (f *fakeABI) Close(h RawHandle) { f.calls = append(f.calls, "close") }

func (f *fakeABI) OptionDescriptor(h RawHandle, idx int32) *RawDescriptor {
	return f.descs[idx]
}

func (f *fakeABI) ControlOption(h RawHandle, idx int32, action Action, value []byte, info *Info) Status {
	if f.ctrlStatus != StatusGood {
		return f.ctrlStatus
	}
	switch action {
	case ActionGetValue:
		if idx == 0 {
			copy(value, word(f.count32()))
			return StatusGood
		}
		copy(value, f.values[idx])
	case ActionSetValue:
		f.lastSet = value
		stored, reported := append([]byte(nil), value...), f.setInfo
		if f.onSet != nil {
			stored, reported = f.onSet(idx, value)
		}
		f.values[idx] = stored
		if info != nil {
			*info = reported
		}
	case ActionSetAuto:
		f.calls = append(f.calls, "set_auto")
		if info != nil {
			*info = f.setInfo
		}
	}
	return StatusGood
}

func (f *fakeABI) GetParameters(h RawHandle, p *Parameters) Status {
	if f.paramStatus != StatusGood {
		return f.paramStatus
	}
	*p = f.params
	return StatusGood
}

func (f *fakeABI) Start(h RawHandle) Status {
	f.calls = append(f.calls, "start")
	return f.startStatus
}

func (f *fakeABI) Read(h RawHandle, buf []byte, n *int32) Status {
	f.calls = append(f.calls, "read")
	if len(f.reads) == 0 {
		*n = 0
		return StatusEOF
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	count := min(r.n, len(buf))
	for i := range count {
		buf[i] = byte(i)
	}
	*n = int32(count)
	return r.status
}

func (f *fakeABI) Cancel(h RawHandle) { f.calls = append(f.calls, "cancel") }

func (f *fakeABI) StrStatus(s Status) string { return "fake: " + s.String() }

// countCalls returns how often name appears in the call log.
func (f *fakeABI) countCalls(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}
