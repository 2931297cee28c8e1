package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Request opcodes. The target answers every request with a status byte,
// followed by the value for reads.
const (
	OpRead32  byte = 0x52 // 'R'
	OpWrite32 byte = 0x57 // 'W'
	OpRead16  byte = 0x48 // 'H'

	Ack byte = 0xA5
)

var (
	ErrNAK        = errors.New("bridge: target rejected request")
	ErrShortReply = errors.New("bridge: short reply")
	ErrBadOp      = errors.New("bridge: unknown opcode")
)

// Frame is a single request to the register proxy on the target.
type Frame struct {
	Op    byte
	Addr  uint32
	Value uint32 // OpWrite32 only
}

func (f Frame) String() string {
	switch f.Op {
	case OpWrite32:
		return fmt.Sprintf("W32 0x%08X <- 0x%08X", f.Addr, f.Value)
	case OpRead32:
		return fmt.Sprintf("R32 0x%08X", f.Addr)
	case OpRead16:
		return fmt.Sprintf("R16 0x%08X", f.Addr)
	default:
		return fmt.Sprintf("op(0x%02X) 0x%08X", f.Op, f.Addr)
	}
}

// RequestLen returns the encoded size of a request with opcode op.
func RequestLen(op byte) int {
	if op == OpWrite32 {
		return 9
	}
	return 5
}

// ReplyLen returns the size of the reply to a request with opcode op.
func ReplyLen(op byte) int {
	switch op {
	case OpRead32:
		return 5
	case OpRead16:
		return 3
	default:
		return 1
	}
}

// AppendRequest appends the wire encoding of f to b. Multi-byte fields are
// big endian.
func AppendRequest(b []byte, f Frame) ([]byte, error) {
	switch f.Op {
	case OpRead32, OpRead16:
		b = append(b, f.Op)
		return binary.BigEndian.AppendUint32(b, f.Addr), nil
	case OpWrite32:
		b = append(b, f.Op)
		b = binary.BigEndian.AppendUint32(b, f.Addr)
		return binary.BigEndian.AppendUint32(b, f.Value), nil
	default:
		return b, fmt.Errorf("%w: 0x%02X", ErrBadOp, f.Op)
	}
}

// ParseRequest decodes a request. It is the target side of AppendRequest.
func ParseRequest(b []byte) (Frame, error) {
	if len(b) < 1 {
		return Frame{}, ErrShortReply
	}
	f := Frame{Op: b[0]}
	switch f.Op {
	case OpRead32, OpRead16, OpWrite32:
	default:
		return f, fmt.Errorf("%w: 0x%02X", ErrBadOp, f.Op)
	}
	if len(b) < RequestLen(f.Op) {
		return f, fmt.Errorf("%w: %d bytes for %s", ErrShortReply, len(b), f)
	}
	f.Addr = binary.BigEndian.Uint32(b[1:5])
	if f.Op == OpWrite32 {
		f.Value = binary.BigEndian.Uint32(b[5:9])
	}
	return f, nil
}

// ParseReply checks the status byte of a reply to op and returns the value it
// carries, if any.
func ParseReply(op byte, b []byte) (uint32, error) {
	if len(b) < ReplyLen(op) {
		return 0, fmt.Errorf("%w: got %d of %d bytes", ErrShortReply, len(b), ReplyLen(op))
	}
	if b[0] != Ack {
		return 0, fmt.Errorf("%w: status 0x%02X", ErrNAK, b[0])
	}
	switch op {
	case OpRead32:
		return binary.BigEndian.Uint32(b[1:5]), nil
	case OpRead16:
		return uint32(binary.BigEndian.Uint16(b[1:3])), nil
	default:
		return 0, nil
	}
}
