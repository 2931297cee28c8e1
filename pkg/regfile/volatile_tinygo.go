//go:build tinygo

package regfile

import (
	"runtime/volatile"
	"unsafe"
)

// Volatile accesses registers directly in the MCU address space.
type Volatile struct{}

func (Volatile) Read32(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, ErrUnaligned
	}
	return volatile.LoadUint32((*uint32)(unsafe.Pointer(uintptr(addr)))), nil
}

func (Volatile) Write32(addr uint32, val uint32) error {
	if addr&3 != 0 {
		return ErrUnaligned
	}
	volatile.StoreUint32((*uint32)(unsafe.Pointer(uintptr(addr))), val)
	return nil
}

// Read16 uses a half-word load. A 32-bit load of a calibration word that is
// not word aligned faults on Cortex-M0+.
func (Volatile) Read16(addr uint32) (uint16, error) {
	if addr&1 != 0 {
		return 0, ErrUnaligned
	}
	return volatile.LoadUint16((*uint16)(unsafe.Pointer(uintptr(addr)))), nil
}
