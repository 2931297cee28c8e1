//go:build linux && !tinygo

package regfile

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrOutOfWindow is returned for addresses outside every mapped window.
var ErrOutOfWindow = errors.New("regfile: address outside mapped windows")

type window struct {
	base uint32
	mem  []byte
}

// DevMem maps physical register windows through /dev/mem. Accesses go through
// sync/atomic so the compiler neither merges nor elides them.
type DevMem struct {
	f       *os.File
	windows []window
}

// OpenDevMem opens /dev/mem. Map at least one window before use.
func OpenDevMem() (*DevMem, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("regfile: open /dev/mem: %w", err)
	}
	return &DevMem{f: f}, nil
}

// Map maps size bytes starting at the page-aligned physical address base.
func (d *DevMem) Map(base uint32, size int) error {
	if base%uint32(os.Getpagesize()) != 0 {
		return fmt.Errorf("%w: window base 0x%08X not page aligned", ErrUnaligned, base)
	}
	mem, err := unix.Mmap(int(d.f.Fd()), int64(base), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("regfile: mmap 0x%08X+%d: %w", base, size, err)
	}
	d.windows = append(d.windows, window{base: base, mem: mem})
	return nil
}

func (d *DevMem) ptr(addr uint32, width uint32) (unsafe.Pointer, error) {
	if addr%width != 0 {
		return nil, ErrUnaligned
	}
	for _, w := range d.windows {
		if addr >= w.base && uint64(addr)+uint64(width) <= uint64(w.base)+uint64(len(w.mem)) {
			return unsafe.Pointer(&w.mem[addr-w.base]), nil
		}
	}
	return nil, fmt.Errorf("%w: 0x%08X", ErrOutOfWindow, addr)
}

func (d *DevMem) Read32(addr uint32) (uint32, error) {
	p, err := d.ptr(addr, 4)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32((*uint32)(p)), nil
}

func (d *DevMem) Write32(addr uint32, val uint32) error {
	p, err := d.ptr(addr, 4)
	if err != nil {
		return err
	}
	atomic.StoreUint32((*uint32)(p), val)
	return nil
}

func (d *DevMem) Read16(addr uint32) (uint16, error) {
	if addr&1 != 0 {
		return 0, ErrUnaligned
	}
	v, err := d.Read32(addr &^ 3)
	if err != nil {
		return 0, err
	}
	return uint16(v >> ((addr & 2) * 8)), nil
}

// Close unmaps every window and closes /dev/mem.
func (d *DevMem) Close() error {
	var err error
	for _, w := range d.windows {
		err = errors.Join(err, unix.Munmap(w.mem))
	}
	d.windows = nil
	return errors.Join(err, d.f.Close())
}
