package device

import (
	"math/rand/v2"

	"github.com/crcx/retroforth/pkg/vm"
)

// RNG pushes non-negative random cells.
type RNG struct {
	r *rand.Rand
}

// NewRNG creates the random number device. A nil source uses a randomly
// seeded PCG generator.
func NewRNG(r *rand.Rand) *RNG {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RNG{r: r}
}

func (d *RNG) Query() (revision, kind vm.Cell) {
	return 0, KindRNG
}

func (d *RNG) Invoke(m vm.Machine) error {
	m.Data().Push(vm.Cell(d.r.Int32()))
	return nil
}
