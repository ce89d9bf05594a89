//go:build !cgo

package sane

// Default returns ErrNoCGO: talking to libsane requires a cgo build.
func Default() (ABI, error) {
	return nil, ErrNoCGO
}
