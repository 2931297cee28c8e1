// Package regfile models a bank of memory-mapped peripheral registers.
//
// Drivers never touch memory directly. They hold a [Bus] and address registers
// through [Register] handles, so the same register sequence runs against real
// hardware, a remote bridge or the in-memory [Sim] used by tests.
package regfile

import (
	"errors"
	"fmt"
)

// Bus is a 32-bit register file. Reads may have side effects (clearing a flag
// on read is common), so implementations must not cache values.
type Bus interface {
	Read32(addr uint32) (uint32, error)
	Write32(addr uint32, val uint32) error

	// Read16 reads a half-word. Used for factory calibration words that are
	// not word aligned.
	Read16(addr uint32) (uint16, error)
}

var (
	ErrUnaligned = errors.New("regfile: unaligned access")
	ErrNoBus     = errors.New("regfile: register has no bus")
)

// Register is a named handle on a single 32-bit register.
type Register struct {
	Name string
	Addr uint32
	bus  Bus
}

// Reg returns a handle for the register at addr on bus.
func Reg(bus Bus, name string, addr uint32) Register {
	return Register{Name: name, Addr: addr, bus: bus}
}

func (r Register) String() string {
	return fmt.Sprintf("%s@0x%08X", r.Name, r.Addr)
}

func (r Register) wrap(op string, err error) error {
	return fmt.Errorf("%s %s: %w", op, r, err)
}

// Get reads the register.
func (r Register) Get() (uint32, error) {
	if r.bus == nil {
		return 0, r.wrap("read", ErrNoBus)
	}
	v, err := r.bus.Read32(r.Addr)
	if err != nil {
		return 0, r.wrap("read", err)
	}
	return v, nil
}

// Set writes val to the register.
func (r Register) Set(val uint32) error {
	if r.bus == nil {
		return r.wrap("write", ErrNoBus)
	}
	if err := r.bus.Write32(r.Addr, val); err != nil {
		return r.wrap("write", err)
	}
	return nil
}

// SetBits sets the bits in mask with a read-modify-write.
func (r Register) SetBits(mask uint32) error {
	v, err := r.Get()
	if err != nil {
		return err
	}
	return r.Set(v | mask)
}

// ClearBits clears the bits in mask with a read-modify-write.
func (r Register) ClearBits(mask uint32) error {
	v, err := r.Get()
	if err != nil {
		return err
	}
	return r.Set(v &^ mask)
}

// HasBits reports whether any bit in mask is set.
func (r Register) HasBits(mask uint32) (bool, error) {
	v, err := r.Get()
	if err != nil {
		return false, err
	}
	return v&mask != 0, nil
}

// ReplaceBits replaces the field (mask << pos) with (val << pos), leaving the
// other bits as read from hardware.
func (r Register) ReplaceBits(val, mask uint32, pos uint8) error {
	v, err := r.Get()
	if err != nil {
		return err
	}
	v &^= mask << pos
	v |= (val & mask) << pos
	return r.Set(v)
}
