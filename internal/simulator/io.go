package simulator

import (
	"math/rand/v2"
	"time"

	"github.com/seantiz/sisyphus/internal/model"
)

// IO waits for the requested duration without holding any buffer.
type IO struct{}

// Simulate sleeps and returns a pseudo-random value.
func (IO) Simulate(p model.TaskParams) uint64 {
	time.Sleep(p.Duration())
	return rand.Uint64()
}

func (IO) Info() Info {
	return Info{Name: "io", Suspends: true}
}
