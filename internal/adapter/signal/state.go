package signal

import "encoding/binary"

// stateSize is the on-disk size of the shared state: a big-endian
// generation followed by one pending byte.
const stateSize = 9

type state struct {
	generation uint64
	pending    bool
}

func decodeState(b []byte) state {
	if len(b) < stateSize {
		return state{}
	}
	return state{
		generation: binary.BigEndian.Uint64(b[:8]),
		pending:    b[8] == 1,
	}
}

func (s state) encode() []byte {
	b := make([]byte, stateSize)
	binary.BigEndian.PutUint64(b[:8], s.generation)
	if s.pending {
		b[8] = 1
	}
	return b
}
