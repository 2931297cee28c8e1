package bridge

import "sync"

// maxFrame is the longest request, an OpWrite32.
const maxFrame = 9

var frameBufs = &sync.Pool{New: func() interface{} { return make([]byte, maxFrame) }}

func getFrameBuf() []byte {
	return frameBufs.Get().([]byte)
}

func putFrameBuf(b []byte) {
	b = b[:maxFrame]
	for i := range b {
		b[i] = 0
	}
	frameBufs.Put(b)
}
