//go:build cgo

package sane

/*
#cgo LDFLAGS: -lsane
#include <stdlib.h>
#include <string.h>
#include <sane/sane.h>

static const SANE_Device *device_at(const SANE_Device **list, int i) { return list[i]; }
static SANE_String_Const string_at(const SANE_String_Const *list, int i) { return list[i]; }

static const SANE_Range *desc_range(const SANE_Option_Descriptor *d) { return d->constraint.range; }
static const SANE_Word *desc_word_list(const SANE_Option_Descriptor *d) { return d->constraint.word_list; }
static const SANE_String_Const *desc_string_list(const SANE_Option_Descriptor *d) { return d->constraint.string_list; }
*/
import "C"

import "unsafe"

// libsane calls the system SANE library. Native handles stay on the C side
// and are referred to by number.
type libsane struct {
	handles map[RawHandle]C.SANE_Handle
	next    RawHandle
}

// Default returns the ABI backed by the system libsane.
func Default() (ABI, error) {
	return &libsane{handles: make(map[RawHandle]C.SANE_Handle)}, nil
}

// cbytes returns a view of the NUL-terminated C string at p, without the terminator.
func cbytes(p unsafe.Pointer) []byte {
	if p == nil {
		return []byte{}
	}
	n := C.strlen((*C.char)(p))
	return unsafe.Slice((*byte)(p), int(n))
}

func (l *libsane) handle(h RawHandle) C.SANE_Handle {
	return l.handles[h]
}

func (l *libsane) Init(version *int32) Status {
	v := C.SANE_Int(*version)
	status := C.sane_init(&v, nil)
	*version = int32(v)
	return Status(status)
}

func (l *libsane) Exit() {
	C.sane_exit()
	clear(l.handles)
}

func (l *libsane) GetDevices(localOnly bool) ([]*RawDevice, Status) {
	var list **C.SANE_Device
	var local C.SANE_Bool
	if localOnly {
		local = 1
	}
	if status := C.sane_get_devices(&list, local); status != C.SANE_STATUS_GOOD {
		return nil, Status(status)
	}
	var devices []*RawDevice
	for i := 0; ; i++ {
		d := C.device_at(list, C.int(i))
		if d == nil {
			break
		}
		devices = append(devices, &RawDevice{
			Name:   cbytes(unsafe.Pointer(d.name)),
			Vendor: cbytes(unsafe.Pointer(d.vendor)),
			Model:  cbytes(unsafe.Pointer(d.model)),
			Type:   cbytes(unsafe.Pointer(d._type)),
		})
	}
	return append(devices, nil), StatusGood
}

func (l *libsane) Open(name []byte) (RawHandle, Status) {
	var h C.SANE_Handle
	status := C.sane_open((*C.SANE_Char)(unsafe.Pointer(&name[0])), &h)
	if status != C.SANE_STATUS_GOOD {
		return 0, Status(status)
	}
	l.next++
	l.handles[l.next] = h
	return l.next, StatusGood
}

func (l *libsane) Close(h RawHandle) {
	C.sane_close(l.handle(h))
	delete(l.handles, h)
}

func (l *libsane) OptionDescriptor(h RawHandle, idx int32) *RawDescriptor {
	d := C.sane_get_option_descriptor(l.handle(h), C.SANE_Int(idx))
	if d == nil {
		return nil
	}
	raw := &RawDescriptor{
		Name:           cbytes(unsafe.Pointer(d.name)),
		Title:          cbytes(unsafe.Pointer(d.title)),
		Desc:           cbytes(unsafe.Pointer(d.desc)),
		Type:           ValueType(d._type),
		Unit:           Unit(d.unit),
		Size:           int32(d.size),
		Cap:            int32(d.cap),
		ConstraintType: ConstraintType(d.constraint_type),
	}
	switch raw.ConstraintType {
	case ConstraintRange:
		if r := C.desc_range(d); r != nil {
			raw.Range = &Range{Min: int32(r.min), Max: int32(r.max), Quant: int32(r.quant)}
		}
	case ConstraintWordList:
		if w := C.desc_word_list(d); w != nil {
			raw.WordList = unsafe.Slice((*int32)(unsafe.Pointer(w)), int(*w)+1)
		}
	case ConstraintStringList:
		if list := C.desc_string_list(d); list != nil {
			for i := 0; ; i++ {
				s := C.string_at(list, C.int(i))
				if s == nil {
					raw.StringList = append(raw.StringList, nil)
					break
				}
				raw.StringList = append(raw.StringList, cbytes(unsafe.Pointer(s)))
			}
		}
	}
	return raw
}

func (l *libsane) ControlOption(h RawHandle, idx int32, action Action, value []byte, info *Info) Status {
	var v unsafe.Pointer
	if len(value) > 0 {
		v = unsafe.Pointer(&value[0])
	}
	var ci C.SANE_Int
	var pi *C.SANE_Int
	if info != nil {
		pi = &ci
	}
	status := C.sane_control_option(l.handle(h), C.SANE_Int(idx), C.SANE_Action(action), v, pi)
	if info != nil {
		*info = Info(uint32(ci))
	}
	return Status(status)
}

func (l *libsane) GetParameters(h RawHandle, p *Parameters) Status {
	var cp C.SANE_Parameters
	status := C.sane_get_parameters(l.handle(h), &cp)
	if status != C.SANE_STATUS_GOOD {
		return Status(status)
	}
	*p = Parameters{
		Format:        Frame(cp.format),
		LastFrame:     cp.last_frame != 0,
		BytesPerLine:  int32(cp.bytes_per_line),
		PixelsPerLine: int32(cp.pixels_per_line),
		Lines:         int32(cp.lines),
		Depth:         int32(cp.depth),
	}
	return StatusGood
}

func (l *libsane) Start(h RawHandle) Status {
	return Status(C.sane_start(l.handle(h)))
}

func (l *libsane) Read(h RawHandle, buf []byte, n *int32) Status {
	var p *C.SANE_Byte
	if len(buf) > 0 {
		p = (*C.SANE_Byte)(unsafe.Pointer(&buf[0]))
	}
	var cn C.SANE_Int
	status := C.sane_read(l.handle(h), p, C.SANE_Int(len(buf)), &cn)
	*n = int32(cn)
	return Status(status)
}

func (l *libsane) Cancel(h RawHandle) {
	C.sane_cancel(l.handle(h))
}

func (l *libsane) StrStatus(s Status) string {
	return C.GoString((*C.char)(unsafe.Pointer(C.sane_strstatus(C.SANE_Status(s)))))
}
