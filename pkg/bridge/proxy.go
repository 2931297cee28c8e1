package bridge

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
)

// Nak is sent back for requests the proxy cannot execute.
const Nak byte = 0x5A

// Handle executes one encoded request against bus and returns the encoded
// reply. This is the target side of [Bus].
func Handle(bus regfile.Bus, req []byte) []byte {
	f, err := ParseRequest(req)
	if err != nil {
		return []byte{Nak}
	}
	switch f.Op {
	case OpRead32:
		v, err := bus.Read32(f.Addr)
		if err != nil {
			return []byte{Nak}
		}
		return binary.BigEndian.AppendUint32([]byte{Ack}, v)
	case OpRead16:
		v, err := bus.Read16(f.Addr)
		if err != nil {
			return []byte{Nak}
		}
		return binary.BigEndian.AppendUint16([]byte{Ack}, v)
	default:
		if err = bus.Write32(f.Addr, f.Value); err != nil {
			return []byte{Nak}
		}
		return []byte{Ack}
	}
}

// Serve answers requests read from rw until rw is closed. A request with an
// unknown opcode cannot be delimited, so the rest of the stream is dropped.
func Serve(rw io.ReadWriter, bus regfile.Bus) error {
	buf := make([]byte, maxFrame)
	for {
		if _, err := io.ReadFull(rw, buf[:1]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch buf[0] {
		case OpRead32, OpRead16, OpWrite32:
		default:
			_, _ = rw.Write([]byte{Nak})
			return ErrBadOp
		}
		n := RequestLen(buf[0])
		if _, err := io.ReadFull(rw, buf[1:n]); err != nil {
			return err
		}
		reply := Handle(bus, buf[:n])
		// Pad NAKs to the length the host expects so it never stalls.
		if len(reply) < ReplyLen(buf[0]) {
			reply = append(reply, make([]byte, ReplyLen(buf[0])-len(reply))...)
		}
		if _, err := rw.Write(reply); err != nil {
			return err
		}
	}
}
