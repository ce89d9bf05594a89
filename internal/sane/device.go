package sane

import (
	"io"
	"log/slog"
)

// readChunk is the working buffer size used by ReadAll.
const readChunk = 1 << 20

// Device describes a device found by Context.Devices.
type Device struct {
	// Name identifies the device to Open.
	Name   string
	Vendor string
	Model  string
	Type   string
}

// State is the scan session state of a Handle.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateScanning:
		return "Scanning"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Handle is an open device.
//
// A Handle is Idle after Open. Start moves it to Scanning; Read returning
// io.EOF moves it back to Idle. Close cancels a running scan and releases
// the device.
type Handle struct {
	ctx      *Context
	abi      ABI
	raw      RawHandle
	name     string
	scanning bool
	closed   bool
}

// Open opens dev.
func (c *Context) Open(dev Device) (*Handle, error) {
	return c.OpenName(dev.Name)
}

// OpenName opens the device with the given name. An empty name opens the
// backend's default device.
func (c *Context) OpenName(name string) (*Handle, error) {
	if c.closed {
		return nil, ErrClosed
	}
	cname := append([]byte(name), 0)
	raw, status := c.abi.Open(cname)
	if status != StatusGood {
		return nil, newError(c.abi, status)
	}
	h := &Handle{ctx: c, abi: c.abi, raw: raw, name: name}
	c.handles[h] = struct{}{}
	slog.Debug("sane device opened", "device", name)
	return h, nil
}

// Name returns the name the handle was opened with.
func (h *Handle) Name() string { return h.name }

// Scanning reports whether a scan session is in progress.
func (h *Handle) Scanning() bool { return h.scanning }

// State returns the scan session state.
func (h *Handle) State() State {
	switch {
	case h.closed:
		return StateClosed
	case h.scanning:
		return StateScanning
	default:
		return StateIdle
	}
}

// Options reads all option descriptors of the device.
func (h *Handle) Options() ([]Option, error) {
	if h.closed {
		return nil, ErrClosed
	}
	buf := make([]byte, wordSize)
	if status := h.abi.ControlOption(h.raw, 0, ActionGetValue, buf, nil); status != StatusGood {
		return nil, newError(h.abi, status)
	}
	count := int32(decodeValue(Option{Type: TypeInt}, buf).(Int))
	slog.Debug("sane options available", "device", h.name, "count", count)

	options := make([]Option, 0, max(count-1, 0))
	for idx := int32(1); idx < count; idx++ {
		d := h.abi.OptionDescriptor(h.raw, idx)
		if d == nil {
			return nil, newError(h.abi, StatusInval)
		}
		options = append(options, decodeDescriptor(idx, d))
	}
	return options, nil
}

// Option reads the current value of opt.
// It panics if opt is a Button or Group, which have no value.
func (h *Handle) Option(opt Option) (Value, error) {
	if !opt.HasValue() {
		panic("sane: option " + opt.Name + " of type " + opt.Type.String() + " has no value")
	}
	if h.closed {
		return nil, ErrClosed
	}
	size := int(opt.Size)
	if opt.Type != TypeString {
		size = max(size, wordSize)
	}
	buf := make([]byte, size)
	if status := h.abi.ControlOption(h.raw, opt.Index, ActionGetValue, buf, nil); status != StatusGood {
		return nil, newError(h.abi, status)
	}
	return decodeValue(opt, buf), nil
}

// SetOption sets opt to v and reports side effects. v must match the option
// type; passing a Button triggers the button. It panics on a type mismatch
// or when opt is a Group.
//
// When the result has InfoReloadOptions set, every Option obtained so far is
// stale and Options must be called again.
func (h *Handle) SetOption(opt Option, v Value) (Info, error) {
	value := encodeValue(opt, v)
	if h.closed {
		return 0, ErrClosed
	}
	var info Info
	if status := h.abi.ControlOption(h.raw, opt.Index, ActionSetValue, value, &info); status != StatusGood {
		return 0, newError(h.abi, status)
	}
	return info, nil
}

// SetOptionAuto lets the backend choose the value of opt. The option should
// have CapAutomatic.
func (h *Handle) SetOptionAuto(opt Option) (Info, error) {
	if h.closed {
		return 0, ErrClosed
	}
	var info Info
	if status := h.abi.ControlOption(h.raw, opt.Index, ActionSetAuto, nil, &info); status != StatusGood {
		return 0, newError(h.abi, status)
	}
	return info, nil
}

// Parameters returns the scan parameters. Before the first Read of a
// session the values are estimates.
func (h *Handle) Parameters() (Parameters, error) {
	if h.closed {
		return Parameters{}, ErrClosed
	}
	var p Parameters
	if status := h.abi.GetParameters(h.raw, &p); status != StatusGood {
		return Parameters{}, newError(h.abi, status)
	}
	return p, nil
}

// Start begins acquiring a frame and returns its parameters.
func (h *Handle) Start() (Parameters, error) {
	if h.closed {
		return Parameters{}, ErrClosed
	}
	if status := h.abi.Start(h.raw); status != StatusGood {
		return Parameters{}, newError(h.abi, status)
	}
	p, err := h.Parameters()
	if err != nil {
		return Parameters{}, err
	}
	h.scanning = true
	return p, nil
}

// Read reads image bytes of the current frame into buf. It returns io.EOF
// when no scan is in progress or the frame is complete; in the latter case
// the session is cancelled so that Start may be called again.
// A zero count with a nil error means no data was available yet.
func (h *Handle) Read(buf []byte) (int, error) {
	if !h.scanning || h.closed {
		return 0, io.EOF
	}
	var n int32
	status := h.abi.Read(h.raw, buf, &n)
	switch status {
	case StatusGood:
		return int(n), nil
	case StatusEOF:
		if n > 0 {
			return int(n), nil
		}
		h.scanning = false
		h.abi.Cancel(h.raw)
		return 0, io.EOF
	default:
		return 0, newError(h.abi, status)
	}
}

// ReadAll reads the current frame to the end. On a read error it returns
// the bytes received so far together with the error; the session stays
// open and is cancelled by Close.
func (h *Handle) ReadAll() ([]byte, error) {
	p, err := h.Parameters()
	if err != nil {
		return nil, err
	}
	image := make([]byte, 0, p.Size())
	buf := make([]byte, readChunk)
	for {
		n, err := h.Read(buf)
		image = append(image, buf[:n]...)
		if err == io.EOF {
			return image, nil
		}
		if err != nil {
			return image, err
		}
	}
}

// Cancel aborts the scan session, if any.
func (h *Handle) Cancel() {
	if !h.scanning || h.closed {
		return
	}
	h.scanning = false
	h.abi.Cancel(h.raw)
}

// Close cancels a running scan and closes the device. Calling Close more
// than once has no effect.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	if h.scanning {
		h.abi.Cancel(h.raw)
		h.scanning = false
	}
	h.abi.Close(h.raw)
	h.closed = true
	delete(h.ctx.handles, h)
	slog.Debug("sane device closed", "device", h.name)
	return nil
}
