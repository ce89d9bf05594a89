package sane

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFake(t *testing.T, abi *fakeABI) *Handle {
	t.Helper()
	ctx := newContext(t, abi)
	h, err := ctx.Open(Device{Name: "test:0"})
	require.NoError(t, err)
	return h
}

func resolutionDescriptor() *RawDescriptor {
	return &RawDescriptor{
		Name:           []byte("resolution"),
		Title:          []byte("Scan resolution"),
		Desc:           []byte("Sets the resolution of the scanned image."),
		Type:           TypeInt,
		Unit:           UnitDpi,
		Size:           4,
		Cap:            int32(CapSoftSelect | CapSoftDetect),
		ConstraintType: ConstraintRange,
		Range:          &Range{Min: 0, Max: 100, Quant: 10},
	}
}

func TestOpen_Error(t *testing.T) {
	abi := newFakeABI()
	abi.openStatus = StatusAccessDenied
	ctx := newContext(t, abi)

	_, err := ctx.OpenName("test:0")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestOptions_CountExcludesOptionZero(t *testing.T) {
	abi := newFakeABI()
	abi.count = 3
	abi.descs[1] = resolutionDescriptor()
	abi.descs[2] = &RawDescriptor{Name: []byte("mode"), Type: TypeString, Size: 32}
	h := openFake(t, abi)

	options, err := h.Options()
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, int32(1), options[0].Index)
	assert.Equal(t, int32(2), options[1].Index)
	assert.Equal(t, "resolution", options[0].Name)
	assert.Equal(t, "Scan resolution", options[0].Title)
	assert.Equal(t, UnitDpi, options[0].Unit)
	assert.Equal(t, RangeConstraint{Min: 0, Max: 100, Quant: 10}, options[0].Constraint)
	assert.True(t, options[0].IsSettable())
	assert.False(t, options[0].IsAutomatic())
}

func TestOptions_MissingDescriptor(t *testing.T) {
	abi := newFakeABI()
	abi.count = 3
	abi.descs[1] = resolutionDescriptor()
	h := openFake(t, abi)

	_, err := h.Options()
	assert.ErrorIs(t, err, ErrInval)
}

func TestOptions_StableSnapshot(t *testing.T) {
	abi := newFakeABI()
	abi.descs[1] = resolutionDescriptor()
	h := openFake(t, abi)

	first, err := h.Options()
	require.NoError(t, err)
	second, err := h.Options()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The snapshot does not alias descriptor memory.
	copy(abi.descs[1].Name, "XXXXXXXXXX")
	assert.Equal(t, "resolution", first[0].Name)
}

func TestSetOption_Inexact(t *testing.T) {
	abi := newFakeABI()
	abi.descs[1] = resolutionDescriptor()
	abi.onSet = func(idx int32, value []byte) ([]byte, Info) {
		v := decodeValue(Option{Type: TypeInt}, value).(Int)
		snapped := (v + 5) / 10 * 10
		return word(int32(snapped)), InfoInexact
	}
	h := openFake(t, abi)
	options, err := h.Options()
	require.NoError(t, err)

	info, err := h.SetOption(options[0], Int(37))
	require.NoError(t, err)
	assert.Equal(t, InfoInexact, info)

	v, err := h.Option(options[0])
	require.NoError(t, err)
	assert.Equal(t, Int(40), v)
}

func TestSetOption_ReloadOptions(t *testing.T) {
	abi := newFakeABI()
	abi.descs[1] = &RawDescriptor{Name: []byte("mode"), Type: TypeString, Size: 16,
		ConstraintType: ConstraintStringList,
		StringList:     [][]byte{[]byte("Color"), []byte("Gray"), nil}}
	abi.setInfo = InfoReloadOptions | InfoReloadParams
	h := openFake(t, abi)
	options, err := h.Options()
	require.NoError(t, err)

	info, err := h.SetOption(options[0], String("Gray"))
	require.NoError(t, err)
	assert.True(t, info.Has(InfoReloadOptions))
	assert.True(t, info.Has(InfoReloadParams))
	assert.False(t, info.Has(InfoInexact))
	assert.Equal(t, "reload-options|reload-params", info.String())
}

func TestSetOption_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		desc *RawDescriptor
		v    Value
	}{
		{"bool_true", &RawDescriptor{Name: []byte("preview"), Type: TypeBool, Size: 4}, Bool(true)},
		{"bool_false", &RawDescriptor{Name: []byte("preview"), Type: TypeBool, Size: 4}, Bool(false)},
		{"int_negative", &RawDescriptor{Name: []byte("brightness"), Type: TypeInt, Size: 4}, Int(-25)},
		{"fixed", &RawDescriptor{Name: []byte("br-x"), Type: TypeFixed, Size: 4}, FixedFromFloat(215.9)},
		{"string", &RawDescriptor{Name: []byte("source"), Type: TypeString, Size: 32}, String("Automatic Document Feeder")},
		{"string_empty", &RawDescriptor{Name: []byte("source"), Type: TypeString, Size: 8}, String("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abi := newFakeABI()
			abi.descs[1] = tt.desc
			h := openFake(t, abi)
			options, err := h.Options()
			require.NoError(t, err)

			_, err = h.SetOption(options[0], tt.v)
			require.NoError(t, err)
			got, err := h.Option(options[0])
			require.NoError(t, err)
			assert.Equal(t, tt.v, got)
		})
	}
}

func TestSetOption_Button(t *testing.T) {
	abi := newFakeABI()
	abi.descs[1] = &RawDescriptor{Name: []byte("calibrate"), Type: TypeButton}
	h := openFake(t, abi)
	options, err := h.Options()
	require.NoError(t, err)

	_, err = h.SetOption(options[0], Button{})
	require.NoError(t, err)
	assert.Nil(t, abi.lastSet)
}

func TestOptionPreconditions(t *testing.T) {
	abi := newFakeABI()
	abi.descs[1] = &RawDescriptor{Name: []byte("geometry"), Type: TypeGroup}
	abi.descs[2] = resolutionDescriptor()
	h := openFake(t, abi)
	options, err := h.Options()
	require.NoError(t, err)

	assert.Panics(t, func() { h.Option(options[0]) })
	assert.Panics(t, func() { h.SetOption(options[0], Group{}) })
	assert.Panics(t, func() { h.SetOption(options[1], String("300")) })
}

func TestSetOptionAuto(t *testing.T) {
	abi := newFakeABI()
	desc := resolutionDescriptor()
	desc.Cap |= int32(CapAutomatic)
	abi.descs[1] = desc
	abi.setInfo = InfoReloadParams
	h := openFake(t, abi)
	options, err := h.Options()
	require.NoError(t, err)
	require.True(t, options[0].IsAutomatic())

	info, err := h.SetOptionAuto(options[0])
	require.NoError(t, err)
	assert.Equal(t, InfoReloadParams, info)
	assert.Equal(t, 1, abi.countCalls("set_auto"))
}

func TestControlOptionError(t *testing.T) {
	abi := newFakeABI()
	abi.descs[1] = resolutionDescriptor()
	h := openFake(t, abi)
	options, err := h.Options()
	require.NoError(t, err)

	abi.ctrlStatus = StatusInval
	_, err = h.SetOption(options[0], Int(1000))
	assert.ErrorIs(t, err, ErrInval)
	_, err = h.Option(options[0])
	assert.ErrorIs(t, err, ErrInval)
}

func TestRead_NotScanning(t *testing.T) {
	abi := newFakeABI()
	h := openFake(t, abi)

	n, err := h.Read(make([]byte, 16))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, abi.countCalls("read"))
}

func TestStart_ErrorKeepsIdle(t *testing.T) {
	abi := newFakeABI()
	abi.startStatus = StatusNoDocs
	h := openFake(t, abi)

	_, err := h.Start()
	assert.ErrorIs(t, err, ErrNoDocs)
	assert.False(t, h.Scanning())
	assert.Equal(t, StateIdle, h.State())
}

func TestRead_EOFWithData(t *testing.T) {
	abi := newFakeABI()
	abi.reads = []fakeRead{{StatusEOF, 100}, {StatusEOF, 0}}
	h := openFake(t, abi)
	_, err := h.Start()
	require.NoError(t, err)

	buf := make([]byte, 256)
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.True(t, h.Scanning())

	n, err = h.Read(buf)
	assert.Equal(t, io.EOF, err)
	assert.Zero(t, n)
	assert.False(t, h.Scanning())
	assert.Equal(t, 1, abi.countCalls("cancel"))

	// Further reads do not reach the backend.
	_, err = h.Read(buf)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, abi.countCalls("read"))
}

func TestReadAll_FullScan(t *testing.T) {
	abi := newFakeABI()
	abi.params = Parameters{Format: FrameGray, LastFrame: true, BytesPerLine: 1024, PixelsPerLine: 1024, Lines: 3, Depth: 8}
	abi.reads = []fakeRead{{StatusGood, 1024}, {StatusGood, 1024}, {StatusGood, 1024}, {StatusEOF, 0}}
	h := openFake(t, abi)

	p, err := h.Start()
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Size())
	assert.Equal(t, StateScanning, h.State())

	data, err := h.ReadAll()
	require.NoError(t, err)
	assert.Len(t, data, 3072)
	assert.False(t, h.Scanning())
	assert.Equal(t, 1, abi.countCalls("cancel"))
}

func TestReadAll_RetriesEmptyReads(t *testing.T) {
	abi := newFakeABI()
	abi.params = Parameters{Format: FrameGray, LastFrame: true, BytesPerLine: 512, PixelsPerLine: 512, Lines: 2, Depth: 8}
	abi.reads = []fakeRead{{StatusGood, 512}, {StatusGood, 0}, {StatusGood, 0}, {StatusGood, 512}, {StatusEOF, 0}}
	h := openFake(t, abi)
	_, err := h.Start()
	require.NoError(t, err)

	data, err := h.ReadAll()
	require.NoError(t, err)
	assert.Len(t, data, 1024)
	assert.Equal(t, 5, abi.countCalls("read"))
	assert.False(t, h.Scanning())
}

func TestReadAll_ErrorMidRead(t *testing.T) {
	abi := newFakeABI()
	abi.params = Parameters{BytesPerLine: 1024, Lines: 3}
	abi.reads = []fakeRead{{StatusGood, 1024}, {StatusIOError, 0}}
	ctx := newContext(t, abi)
	h, err := ctx.OpenName("test:0")
	require.NoError(t, err)
	_, err = h.Start()
	require.NoError(t, err)

	data, err := h.ReadAll()
	assert.ErrorIs(t, err, ErrIOError)
	assert.Len(t, data, 1024)
	assert.True(t, h.Scanning())

	require.NoError(t, h.Close())
	calls := abi.calls[len(abi.calls)-2:]
	assert.Equal(t, []string{"cancel", "close"}, calls)
}

func TestClose_Idle(t *testing.T) {
	abi := newFakeABI()
	h := openFake(t, abi)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Zero(t, abi.countCalls("cancel"))
	assert.Equal(t, 1, abi.countCalls("close"))

	_, err := h.Options()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancel(t *testing.T) {
	abi := newFakeABI()
	h := openFake(t, abi)
	h.Cancel()
	assert.Zero(t, abi.countCalls("cancel"))

	_, err := h.Start()
	require.NoError(t, err)
	h.Cancel()
	assert.Equal(t, 1, abi.countCalls("cancel"))
	assert.Equal(t, StateIdle, h.State())
}
