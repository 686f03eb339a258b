package simulator

import (
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/seantiz/sisyphus/internal/model"
)

// Memory holds a buffer of the requested size for the requested duration.
type Memory struct{}

// Simulate allocates and randomly fills the buffer, sleeps, then returns the
// sum of its bytes. The buffer is unreachable once Simulate returns.
func (Memory) Simulate(p model.TaskParams) uint64 {
	buf := make([]byte, p.MemoryBytes())
	fillRandom(buf)

	time.Sleep(p.Duration())

	var sum uint64
	for _, b := range buf {
		sum += uint64(b)
	}
	return sum
}

func (Memory) Info() Info {
	return Info{Name: "memory", Suspends: true, Allocs: true}
}

func fillRandom(buf []byte) {
	var word [8]byte
	for i := 0; i < len(buf); i += len(word) {
		binary.LittleEndian.PutUint64(word[:], rand.Uint64())
		copy(buf[i:], word[:])
	}
}
