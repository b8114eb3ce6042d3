package sample

import "unsafe"

// uintptrOf returns the address of a slice's backing array, used only to
// compute alignment padding in newAligned.
func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
