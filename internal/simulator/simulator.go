package simulator

import "github.com/seantiz/sisyphus/internal/model"

// Simulator is the interface every workload implements.
type Simulator interface {
	// Simulate consumes the time and memory described by p and returns a checksum
	// proving the work happened. It never fails.
	Simulate(p model.TaskParams) uint64

	// Info describes how the workload uses the machine.
	Info() Info
}

// Info describes a simulator.
type Info struct {
	Name     string `json:"name"`
	Suspends bool   `json:"suspends"`
	Allocs   bool   `json:"allocates"`
}
