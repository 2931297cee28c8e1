package regfile

import (
	"sync"

	"github.com/rs/zerolog"
)

// Mem is the raw word store behind a [Sim]. Hooks receive it so they can
// model side effects on other registers without re-entering the Sim.
type Mem map[uint32]uint32

func (m Mem) Peek(addr uint32) uint32 { return m[addr&^3] }

func (m Mem) Poke(addr, val uint32) { m[addr&^3] = val }

func (m Mem) SetBits(addr, mask uint32) { m[addr&^3] |= mask }

func (m Mem) ClearBits(addr, mask uint32) { m[addr&^3] &^= mask }

// ReadHook is called on every read of its address. It returns the value the
// reader observes and may mutate mem.
type ReadHook func(mem Mem, addr, stored uint32) uint32

// WriteHook is called on every write to its address. It returns the value to
// store, which lets it model write-1-to-clear or read-only bits.
type WriteHook func(mem Mem, addr, old, val uint32) uint32

// Access is a single recorded bus write, as issued by the driver before any
// write hook altered the stored value.
type Access struct {
	Addr uint32
	Val  uint32
}

// Sim is an in-memory [Bus]. Unwritten addresses read as zero.
type Sim struct {
	mu      sync.Mutex
	mem     Mem
	onRead  map[uint32]ReadHook
	onWrite map[uint32]WriteHook
	reads   map[uint32]int
	writes  []Access
	log     zerolog.Logger
}

// NewSim returns an empty register file.
func NewSim() *Sim {
	return &Sim{
		mem:     make(Mem),
		onRead:  make(map[uint32]ReadHook),
		onWrite: make(map[uint32]WriteHook),
		reads:   make(map[uint32]int),
		log:     zerolog.Nop(),
	}
}

// SetLogger enables trace logging of every access.
func (s *Sim) SetLogger(l zerolog.Logger) {
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// OnRead installs a read hook for addr, replacing any previous one.
func (s *Sim) OnRead(addr uint32, h ReadHook) {
	s.mu.Lock()
	s.onRead[addr&^3] = h
	s.mu.Unlock()
}

// OnWrite installs a write hook for addr, replacing any previous one.
func (s *Sim) OnWrite(addr uint32, h WriteHook) {
	s.mu.Lock()
	s.onWrite[addr&^3] = h
	s.mu.Unlock()
}

// Seed stores val at addr without running hooks or recording the access.
func (s *Sim) Seed(addr, val uint32) {
	s.mu.Lock()
	s.mem.Poke(addr, val)
	s.mu.Unlock()
}

// Seed16 stores a half-word without touching the other half of the word.
func (s *Sim) Seed16(addr uint32, val uint16) {
	s.mu.Lock()
	word := addr &^ 3
	shift := (addr & 2) * 8
	v := s.mem[word]
	v &^= 0xFFFF << shift
	v |= uint32(val) << shift
	s.mem[word] = v
	s.mu.Unlock()
}

// Peek returns the stored value at addr without running hooks.
func (s *Sim) Peek(addr uint32) uint32 {
	s.mu.Lock()
	v := s.mem.Peek(addr)
	s.mu.Unlock()
	return v
}

// Reads returns how many bus reads hit addr.
func (s *Sim) Reads(addr uint32) int {
	s.mu.Lock()
	n := s.reads[addr&^3]
	s.mu.Unlock()
	return n
}

// Writes returns a copy of the write trace.
func (s *Sim) Writes() []Access {
	s.mu.Lock()
	w := make([]Access, len(s.writes))
	copy(w, s.writes)
	s.mu.Unlock()
	return w
}

// WritesTo returns the values written to addr, in order.
func (s *Sim) WritesTo(addr uint32) []uint32 {
	s.mu.Lock()
	var vals []uint32
	for _, w := range s.writes {
		if w.Addr == addr&^3 {
			vals = append(vals, w.Val)
		}
	}
	s.mu.Unlock()
	return vals
}

// ResetTrace clears the read counters and write trace.
func (s *Sim) ResetTrace() {
	s.mu.Lock()
	s.reads = make(map[uint32]int)
	s.writes = nil
	s.mu.Unlock()
}

// Snapshot copies the word store.
func (s *Sim) Snapshot() map[uint32]uint32 {
	s.mu.Lock()
	m := make(map[uint32]uint32, len(s.mem))
	for k, v := range s.mem {
		m[k] = v
	}
	s.mu.Unlock()
	return m
}

func (s *Sim) read32(addr uint32) uint32 {
	v := s.mem[addr]
	s.reads[addr]++
	if h, ok := s.onRead[addr]; ok {
		v = h(s.mem, addr, v)
	}
	s.log.Trace().Uint32("addr", addr).Hex("val", be32(v)).Msg("read")
	return v
}

func (s *Sim) Read32(addr uint32) (uint32, error) {
	if addr&3 != 0 {
		return 0, ErrUnaligned
	}
	s.mu.Lock()
	v := s.read32(addr)
	s.mu.Unlock()
	return v, nil
}

func (s *Sim) Write32(addr uint32, val uint32) error {
	if addr&3 != 0 {
		return ErrUnaligned
	}
	s.mu.Lock()
	s.writes = append(s.writes, Access{Addr: addr, Val: val})
	s.log.Trace().Uint32("addr", addr).Hex("val", be32(val)).Msg("write")
	old := s.mem[addr]
	if h, ok := s.onWrite[addr]; ok {
		val = h(s.mem, addr, old, val)
	}
	s.mem[addr] = val
	s.mu.Unlock()
	return nil
}

func (s *Sim) Read16(addr uint32) (uint16, error) {
	if addr&1 != 0 {
		return 0, ErrUnaligned
	}
	s.mu.Lock()
	v := s.read32(addr &^ 3)
	s.mu.Unlock()
	return uint16(v >> ((addr & 2) * 8)), nil
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
