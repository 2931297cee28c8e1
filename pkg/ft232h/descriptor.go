package ft232h

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yunginnanet/ft232h"
)

var ErrBadDescriptor = errors.New("ft232h: invalid descriptor")

// Descriptor selects which FT232H on the USB bus is wired to the target.
type Descriptor struct {
	Index  int
	Serial string
	mask   *ft232h.Mask
}

// Validate checks if [Descriptor] is valid.
func (ftd Descriptor) Validate() error {
	if ftd.Index < 0 && ftd.Serial == "" && emptyMask(ftd.mask) {
		return ErrBadDescriptor
	}
	return nil
}

// Mask returns a pointer to the [ft232h.Mask] representation of the [Descriptor].
func (ftd Descriptor) Mask() *ft232h.Mask {
	if ftd.mask == nil {
		ftd.mask = new(ft232h.Mask)
	}
	if ftd.Serial != "" {
		ftd.mask.Serial = ftd.Serial
	}
	if ftd.Index >= 0 {
		ftd.mask.Index = strconv.Itoa(ftd.Index)
	}
	return ftd.mask
}

// String returns a string representation of the [Descriptor].
func (ftd Descriptor) String() string {
	return fmt.Sprintf("Descriptor{Index:%d, Serial:%s, mask:%v}", ftd.Index, ftd.Serial, ftd.mask)
}

// ByIndex returns a [Descriptor] with the specified index.
func ByIndex(index int) Descriptor {
	return Descriptor{Index: index}
}

// BySerial returns a [Descriptor] with the specified serial number.
func BySerial(serial string) Descriptor {
	return Descriptor{Serial: serial, Index: -1}
}

// ByMask returns a [Descriptor] with the specified mask.
func ByMask(mask *ft232h.Mask) Descriptor {
	return Descriptor{mask: mask, Index: -1}
}

// ParseDescriptor accepts a bare USB index ("0") or "serial:<serial>".
func ParseDescriptor(s string) (Descriptor, error) {
	if serial, ok := strings.CutPrefix(s, "serial:"); ok {
		d := BySerial(serial)
		return d, d.Validate()
	}
	idx, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Descriptor{Index: -1}, fmt.Errorf("%w: %q", ErrBadDescriptor, s)
	}
	d := ByIndex(idx)
	return d, d.Validate()
}
