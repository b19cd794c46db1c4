package device

import "github.com/crcx/retroforth/pkg/vm"

// Console writes one character per invocation to the machine output.
type Console struct{}

// NewConsole creates the console device.
func NewConsole() *Console {
	return &Console{}
}

func (c *Console) Query() (revision, kind vm.Cell) {
	return 0, KindConsole
}

func (c *Console) Invoke(m vm.Machine) error {
	ch, err := m.Data().Pop()
	if err != nil {
		return err
	}
	return vm.WriteConsole(m.Output(), ch)
}
