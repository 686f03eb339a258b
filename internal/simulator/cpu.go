package simulator

import (
	"time"

	"github.com/seantiz/sisyphus/internal/model"
)

// sieveLimit is the exclusive upper bound of each primality pass.
const sieveLimit = 10_000

// CPU busy-spins the calling goroutine for the requested duration.
type CPU struct{}

// Simulate repeats a trial-division pass over [2, sieveLimit) until the duration
// elapses and returns the sum of primes found by the final pass. At least one
// pass always runs.
func (CPU) Simulate(p model.TaskParams) uint64 {
	end := time.Now().Add(p.Duration())
	for {
		sum := primeSum(sieveLimit)
		if !time.Now().Before(end) {
			return sum
		}
	}
}

func (CPU) Info() Info {
	return Info{Name: "cpu"}
}

func primeSum(limit uint64) uint64 {
	var sum uint64
	for n := uint64(2); n < limit; n++ {
		if isPrime(n) {
			sum += n
		}
	}
	return sum
}

func isPrime(n uint64) bool {
	for i := uint64(2); i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return n >= 2
}
