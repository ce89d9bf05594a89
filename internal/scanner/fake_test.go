package scanner

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mzyy94/airsane/internal/sane"
)

// fakeDevice is an in-memory SANE backend holding one flatbed/ADF scanner
// that produces uniform gray pages.
type fakeDevice struct {
	descs  []*sane.RawDescriptor // index 0 is unused
	values map[int32][]byte
	params sane.Parameters
	fill   byte
	feeder int // pages left in the feeder, -1 for unlimited

	starts  int
	pos     int
	setLog  []string
	reloads int // set calls that reported a reload
}

func word(v int32) []byte {
	return binary.NativeEndian.AppendUint32(nil, uint32(v))
}

func cstr(s string, size int) []byte {
	b := make([]byte, size)
	copy(b, s)
	return b
}

func stringList(choices ...string) [][]byte {
	var out [][]byte
	for _, c := range choices {
		out = append(out, []byte(c))
	}
	return append(out, nil)
}

const settable = int32(sane.CapSoftSelect | sane.CapSoftDetect)

func newFakeDevice() *fakeDevice {
	f := &fakeDevice{
		values: make(map[int32][]byte),
		params: sane.Parameters{Format: sane.FrameGray, LastFrame: true, BytesPerLine: 4, PixelsPerLine: 4, Lines: 3, Depth: 8},
		fill:   0x80,
		feeder: -1,
	}
	f.add(&sane.RawDescriptor{Name: []byte("mode"), Type: sane.TypeString, Size: 16, Cap: settable,
		ConstraintType: sane.ConstraintStringList, StringList: stringList("Lineart", "Gray", "Color")}, cstr("Gray", 16))
	f.add(&sane.RawDescriptor{Name: []byte("source"), Type: sane.TypeString, Size: 32, Cap: settable,
		ConstraintType: sane.ConstraintStringList, StringList: stringList("Flatbed", "Automatic Document Feeder", "ADF Duplex")}, cstr("Flatbed", 32))
	f.add(&sane.RawDescriptor{Name: []byte("resolution"), Type: sane.TypeInt, Unit: sane.UnitDpi, Size: 4, Cap: settable,
		ConstraintType: sane.ConstraintWordList, WordList: []int32{4, 75, 150, 300, 600}}, word(150))
	f.add(&sane.RawDescriptor{Name: []byte("br-x"), Type: sane.TypeFixed, Unit: sane.UnitMm, Size: 4, Cap: settable,
		ConstraintType: sane.ConstraintRange, Range: &sane.Range{Max: int32(sane.FixedFromFloat(215.9))}}, word(int32(sane.FixedFromFloat(215.9))))
	f.add(&sane.RawDescriptor{Name: []byte("br-y"), Type: sane.TypeFixed, Unit: sane.UnitMm, Size: 4, Cap: settable,
		ConstraintType: sane.ConstraintRange, Range: &sane.Range{Max: int32(sane.FixedFromFloat(297))}}, word(int32(sane.FixedFromFloat(297))))
	f.add(&sane.RawDescriptor{Name: []byte("scan"), Type: sane.TypeBool, Size: 4,
		Cap: int32(sane.CapSoftDetect | sane.CapHardSelect)}, word(0))
	return f
}

// add appends an option descriptor with its initial value.
func (f *fakeDevice) add(d *sane.RawDescriptor, value []byte) int32 {
	if len(f.descs) == 0 {
		f.descs = append(f.descs, nil)
	}
	f.descs = append(f.descs, d)
	idx := int32(len(f.descs) - 1)
	f.values[idx] = value
	return idx
}

func (f *fakeDevice) index(name string) int32 {
	for i, d := range f.descs {
		if d != nil && string(d.Name) == name {
			return int32(i)
		}
	}
	return -1
}

func (f *fakeDevice) Init(version *int32) sane.Status {
	*version = sane.VersionCode(1, 2, 1)
	return sane.StatusGood
}

func (f *fakeDevice) Exit() {}

func (f *fakeDevice) GetDevices(bool) ([]*sane.RawDevice, sane.Status) {
	return []*sane.RawDevice{
		{Name: []byte("fake:0"), Vendor: []byte("Acme"), Model: []byte("Flatbed 9000"), Type: []byte("flatbed scanner")},
		nil,
	}, sane.StatusGood
}

func (f *fakeDevice) Open([]byte) (sane.RawHandle, sane.Status) { return 1, sane.StatusGood }

func (f *fakeDevice) Close(sane.RawHandle) {}

func (f *fakeDevice) OptionDescriptor(_ sane.RawHandle, idx int32) *sane.RawDescriptor {
	if idx <= 0 || int(idx) >= len(f.descs) {
		return nil
	}
	return f.descs[idx]
}

func (f *fakeDevice) ControlOption(_ sane.RawHandle, idx int32, action sane.Action, value []byte, info *sane.Info) sane.Status {
	if idx == 0 {
		copy(value, word(int32(len(f.descs))))
		return sane.StatusGood
	}
	switch action {
	case sane.ActionGetValue:
		copy(value, f.values[idx])
	case sane.ActionSetValue:
		f.values[idx] = append([]byte(nil), value...)
		f.setLog = append(f.setLog, string(f.descs[idx].Name))
		if string(f.descs[idx].Name) == "mode" && info != nil {
			*info = sane.InfoReloadOptions | sane.InfoReloadParams
			f.reloads++
		}
	}
	return sane.StatusGood
}

func (f *fakeDevice) GetParameters(_ sane.RawHandle, p *sane.Parameters) sane.Status {
	*p = f.params
	return sane.StatusGood
}

func (f *fakeDevice) Start(sane.RawHandle) sane.Status {
	if f.feeder == 0 {
		return sane.StatusNoDocs
	}
	if f.feeder > 0 {
		f.feeder--
	}
	f.starts++
	f.pos = 0
	return sane.StatusGood
}

func (f *fakeDevice) Read(_ sane.RawHandle, buf []byte, n *int32) sane.Status {
	remaining := f.params.Size() - f.pos
	if remaining <= 0 {
		*n = 0
		return sane.StatusEOF
	}
	k := min(len(buf), remaining)
	for i := range k {
		buf[i] = f.fill
	}
	f.pos += k
	*n = int32(k)
	return sane.StatusGood
}

func (f *fakeDevice) Cancel(sane.RawHandle) {}

func (f *fakeDevice) StrStatus(s sane.Status) string { return "fake: " + s.String() }

// connect initializes a Context on dev and returns a connected Scanner.
func connect(t *testing.T, dev *fakeDevice) *Scanner {
	t.Helper()
	ctx, err := sane.Init10(dev)
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })

	d, err := Resolve(ctx, "fake")
	require.NoError(t, err)
	sc := New(ctx, d)
	require.NoError(t, sc.Connect(context.Background()))
	return sc
}
