package sane

import (
	"errors"
	"strings"
)

// Error is a non-Good status returned by the backend.
type Error struct {
	Status Status
	msg    string
}

// Sentinel errors for errors.Is comparisons. Matching is by status only.
var (
	ErrUnsupported  = &Error{Status: StatusUnsupported}
	ErrCancelled    = &Error{Status: StatusCancelled}
	ErrDeviceBusy   = &Error{Status: StatusDeviceBusy}
	ErrInval        = &Error{Status: StatusInval}
	ErrEOF          = &Error{Status: StatusEOF}
	ErrJammed       = &Error{Status: StatusJammed}
	ErrNoDocs       = &Error{Status: StatusNoDocs}
	ErrCoverOpen    = &Error{Status: StatusCoverOpen}
	ErrIOError      = &Error{Status: StatusIOError}
	ErrNoMem        = &Error{Status: StatusNoMem}
	ErrAccessDenied = &Error{Status: StatusAccessDenied}
)

// ErrAlreadyInitialized is returned by Init while another Context is live.
var ErrAlreadyInitialized = &Error{Status: StatusDeviceBusy, msg: "sane: library already initialized"}

// ErrClosed is returned by operations on a closed Context or Handle.
var ErrClosed = &Error{Status: StatusInval, msg: "sane: use of closed handle"}

// statusText mirrors the descriptions libsane reports. It is used for
// sentinel values, which are created without an ABI at hand.
var statusText = map[Status]string{
	StatusGood:         "Success",
	StatusUnsupported:  "Operation not supported",
	StatusCancelled:    "Operation was cancelled",
	StatusDeviceBusy:   "Device busy",
	StatusInval:        "Invalid argument",
	StatusEOF:          "End of file reached",
	StatusJammed:       "Document feeder jammed",
	StatusNoDocs:       "Document feeder out of documents",
	StatusCoverOpen:    "Scanner cover is open",
	StatusIOError:      "Error during device I/O",
	StatusNoMem:        "Out of memory",
	StatusAccessDenied: "Access to resource has been denied",
}

// newError describes s with the backend's own status text.
func newError(abi ABI, s Status) *Error {
	return &Error{Status: s, msg: strings.ToValidUTF8(abi.StrStatus(s), "�")}
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	if text, ok := statusText[e.Status]; ok {
		return text
	}
	return "sane: " + e.Status.String()
}

// Is reports whether target is an *Error with the same status.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Status == e.Status
}

// StatusOf returns the status carried by err, or StatusGood when err is nil
// and StatusInval when err is not a SANE error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusGood
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusInval
}
