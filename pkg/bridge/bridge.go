// Package bridge gives a host access to the registers of a remote STM32L0
// running a small register proxy. Requests and replies are short frames
// exchanged over SPI (through an FT232H) or a UART.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
)

// Transport moves raw frame bytes. start and stop mark the first and last
// transfer of a transaction, for transports that frame on their own.
type Transport interface {
	Read(count uint, start bool, stop bool) ([]byte, error)
	Write(data []byte, start bool, stop bool) (uint, error)

	// WaitReady blocks until the target has a reply ready.
	WaitReady() error

	// SetCS drives chip select. Transports without one ignore it.
	SetCS(bool) error

	Close() error
}

var _ regfile.Bus = (*Bus)(nil)

// Bus is a [regfile.Bus] backed by a remote target.
type Bus struct {
	mu  sync.Mutex // one transaction at a time
	t   Transport
	log zerolog.Logger

	// Last read and last written values per address, for debugging.
	lastRead  map[uint32]uint32
	lastWrite map[uint32]uint32
}

// New wraps t. The bus owns t from here on; Close closes it.
func New(t Transport, log zerolog.Logger) *Bus {
	return &Bus{
		t:         t,
		log:       log.With().Str("bus", "bridge").Logger(),
		lastRead:  make(map[uint32]uint32),
		lastWrite: make(map[uint32]uint32),
	}
}

func (b *Bus) Read32(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, fmt.Errorf("%w: 0x%08X", regfile.ErrUnaligned, addr)
	}
	return b.transact(Frame{Op: OpRead32, Addr: addr})
}

func (b *Bus) Read16(addr uint32) (uint16, error) {
	if addr&1 != 0 {
		return 0, fmt.Errorf("%w: 0x%08X", regfile.ErrUnaligned, addr)
	}
	v, err := b.transact(Frame{Op: OpRead16, Addr: addr})
	return uint16(v), err
}

func (b *Bus) Write32(addr, val uint32) error {
	if addr&3 != 0 {
		return fmt.Errorf("%w: 0x%08X", regfile.ErrUnaligned, addr)
	}
	_, err := b.transact(Frame{Op: OpWrite32, Addr: addr, Value: val})
	return err
}

// LastRead returns the value most recently read from addr.
func (b *Bus) LastRead(addr uint32) (uint32, bool) {
	b.mu.Lock()
	v, ok := b.lastRead[addr]
	b.mu.Unlock()
	return v, ok
}

// LastWritten returns the value most recently written to addr.
func (b *Bus) LastWritten(addr uint32) (uint32, bool) {
	b.mu.Lock()
	v, ok := b.lastWrite[addr]
	b.mu.Unlock()
	return v, ok
}

// Close closes the transport.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.t.Close()
}

func (b *Bus) setCSLow() error {
	return b.t.SetCS(false)
}

func (b *Bus) setCSHigh() error {
	return b.t.SetCS(true)
}

// transact sends f and reads its reply with chip select held low across both.
func (b *Bus) transact(f Frame) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := getFrameBuf()
	defer putFrameBuf(buf)

	req, err := AppendRequest(buf[:0], f)
	if err != nil {
		return 0, err
	}

	if err = b.setCSLow(); err != nil {
		return 0, err
	}
	if _, err = b.t.Write(req, true, false); err != nil {
		return 0, errors.Join(fmt.Errorf("bridge: %s: %w", f, err), b.setCSHigh())
	}
	if err = b.t.WaitReady(); err != nil {
		return 0, errors.Join(fmt.Errorf("bridge: %s: %w", f, err), b.setCSHigh())
	}
	reply, err := b.t.Read(uint(ReplyLen(f.Op)), false, true)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("bridge: %s: %w", f, err), b.setCSHigh())
	}
	if err = b.setCSHigh(); err != nil {
		return 0, err
	}

	v, err := ParseReply(f.Op, reply)
	if err != nil {
		b.log.Warn().Err(err).Stringer("frame", f).Hex("reply", reply).Msg("bad reply")
		return 0, fmt.Errorf("%s: %w", f, err)
	}

	switch f.Op {
	case OpWrite32:
		b.lastWrite[f.Addr] = f.Value
	default:
		b.lastRead[f.Addr] = v
	}
	b.log.Trace().Stringer("frame", f).Uint32("val", v).Msg("ok")
	return v, nil
}
