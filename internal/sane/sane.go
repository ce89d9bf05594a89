// Package sane is a resource-scoped wrapper around the SANE scanner API.
//
// A program initializes the backend once with Init, enumerates devices,
// opens a Handle per device, inspects and sets its options, then starts a
// scan and reads image bytes until io.EOF. Handles must be closed before
// their Context; Context.Close closes any that are still open.
//
// The backend is not thread-safe. All calls on a Context and its Handles
// must be serialized by the caller.
//
// API docs: https://sane-project.gitlab.io/standard/1.06/api.html
package sane

import (
	"log/slog"
	"sync/atomic"
)

// initialized guards the process-wide backend state.
var initialized atomic.Bool

// Context is a live initialization of the backend.
type Context struct {
	abi     ABI
	version int32
	handles map[*Handle]struct{}
	closed  bool
}

// Init initializes the backend, requesting the given version code.
// Only one Context may be live per process.
func Init(abi ABI, version int32) (*Context, error) {
	if !initialized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}
	if status := abi.Init(&version); status != StatusGood {
		initialized.Store(false)
		return nil, newError(abi, status)
	}
	slog.Debug("sane initialized",
		"version", VersionMajor(version), "minor", VersionMinor(version), "build", VersionBuild(version))
	return &Context{
		abi:     abi,
		version: version,
		handles: make(map[*Handle]struct{}),
	}, nil
}

// Init10 initializes the backend requesting version 1.0.0.
func Init10(abi ABI) (*Context, error) {
	return Init(abi, VersionCode(1, 0, 0))
}

// Version returns the version code reported by the backend.
func (c *Context) Version() int32 { return c.version }

// Devices lists the locally attached devices. The returned records are
// copies and stay valid after the backend reuses its buffers.
func (c *Context) Devices() ([]Device, error) {
	return c.devices(true)
}

// AllDevices is like Devices but also asks network backends for their
// remote devices, which can take several seconds.
func (c *Context) AllDevices() ([]Device, error) {
	return c.devices(false)
}

func (c *Context) devices(localOnly bool) ([]Device, error) {
	if c.closed {
		return nil, ErrClosed
	}
	list, status := c.abi.GetDevices(localOnly)
	if status != StatusGood {
		return nil, newError(c.abi, status)
	}
	var devices []Device
	for _, d := range list {
		if d == nil {
			break
		}
		devices = append(devices, Device{
			Name:   string(d.Name),
			Vendor: string(d.Vendor),
			Model:  string(d.Model),
			Type:   string(d.Type),
		})
	}
	slog.Debug("sane devices enumerated", "count", len(devices), "local_only", localOnly)
	return devices, nil
}

// Close closes all open handles, then shuts the backend down.
// Calling Close more than once has no effect.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	for h := range c.handles {
		h.Close()
	}
	c.closed = true
	c.abi.Exit()
	initialized.Store(false)
	slog.Debug("sane exited")
	return nil
}
