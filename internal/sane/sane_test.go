package sane

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit10_PassesVersionCode(t *testing.T) {
	abi := newFakeABI()
	abi.initVersion = VersionCode(1, 0, 32)

	ctx := newContext(t, abi)

	assert.Equal(t, int32(0x01000000), abi.gotVersion)
	assert.Equal(t, VersionCode(1, 0, 32), ctx.Version())
	assert.Equal(t, int32(32), VersionBuild(ctx.Version()))
}

func TestInit_FailureReleasesGuard(t *testing.T) {
	abi := newFakeABI()
	abi.initStatus = StatusIOError

	_, err := Init10(abi)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIOError))
	assert.Equal(t, "fake: IOError", err.Error())

	// A failed Init must not block the next one.
	newContext(t, newFakeABI())
}

func TestInit_SecondContextRejected(t *testing.T) {
	newContext(t, newFakeABI())

	_, err := Init10(newFakeABI())
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestContextClose_ExitOnce(t *testing.T) {
	abi := newFakeABI()
	ctx, err := Init10(abi)
	require.NoError(t, err)

	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close())

	assert.Equal(t, 1, abi.countCalls("exit"))

	_, err = ctx.Devices()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestContextClose_ClosesHandlesFirst(t *testing.T) {
	abi := newFakeABI()
	abi.params = Parameters{BytesPerLine: 10, Lines: 1}
	ctx, err := Init10(abi)
	require.NoError(t, err)

	h, err := ctx.OpenName("test:0")
	require.NoError(t, err)
	_, err = h.Start()
	require.NoError(t, err)

	require.NoError(t, ctx.Close())

	assert.Equal(t, []string{"init", "open:test:0", "start", "cancel", "close", "exit"}, abi.calls)
	assert.Equal(t, StateClosed, h.State())
}

func TestDevices_Empty(t *testing.T) {
	abi := newFakeABI()
	abi.devices = []*RawDevice{nil}
	ctx := newContext(t, abi)

	devices, err := ctx.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestDevices_StopsAtSentinel(t *testing.T) {
	abi := newFakeABI()
	abi.devices = []*RawDevice{
		{Name: []byte("net:host:pixma:04A91912"), Vendor: []byte("CANON"), Model: []byte("Canon PIXMA MG5200"), Type: []byte("multi-function peripheral")},
		{Name: []byte("test:0"), Vendor: []byte("Noname"), Model: []byte("frontend-tester"), Type: []byte("virtual device")},
		nil,
		{Name: []byte("never:reached")},
	}
	ctx := newContext(t, abi)

	devices, err := ctx.Devices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, Device{Name: "test:0", Vendor: "Noname", Model: "frontend-tester", Type: "virtual device"}, devices[1])
}

func TestDevices_LocalOnlyFlag(t *testing.T) {
	abi := newFakeABI()
	abi.devices = []*RawDevice{nil}
	ctx := newContext(t, abi)

	_, err := ctx.Devices()
	require.NoError(t, err)
	_, err = ctx.AllDevices()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, abi.localOnly)
}

func TestDevices_DeepCopy(t *testing.T) {
	name := []byte("test:0")
	abi := newFakeABI()
	abi.devices = []*RawDevice{{Name: name, Vendor: []byte("v"), Model: []byte("m"), Type: []byte("t")}, nil}
	ctx := newContext(t, abi)

	devices, err := ctx.Devices()
	require.NoError(t, err)

	// The backend reuses its buffer.
	copy(name, "XXXXXX")
	assert.Equal(t, "test:0", devices[0].Name)

	// Mutating the returned list does not reach the backend.
	devices[0].Name = "changed"
	assert.Equal(t, "XXXXXX", string(abi.devices[0].Name))
}

func TestDevices_Error(t *testing.T) {
	abi := newFakeABI()
	abi.devStatus = StatusNoMem
	ctx := newContext(t, abi)

	_, err := ctx.Devices()
	assert.ErrorIs(t, err, ErrNoMem)
	assert.Equal(t, StatusNoMem, StatusOf(err))
}

func TestError_SentinelText(t *testing.T) {
	assert.Equal(t, "Document feeder out of documents", ErrNoDocs.Error())
	assert.Equal(t, "sane: Status(42)", (&Error{Status: 42}).Error())
	assert.False(t, errors.Is(ErrJammed, ErrNoDocs))
	assert.Equal(t, StatusGood, StatusOf(nil))
	assert.Equal(t, StatusInval, StatusOf(errors.New("other")))
}

func TestVersionCode(t *testing.T) {
	code := VersionCode(1, 2, 3)
	assert.Equal(t, int32(0x01020003), code)
	assert.Equal(t, int32(1), VersionMajor(code))
	assert.Equal(t, int32(2), VersionMinor(code))
	assert.Equal(t, int32(3), VersionBuild(code))
}
