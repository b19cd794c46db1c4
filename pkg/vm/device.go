package vm

import (
	"fmt"
	"io"
)

// Device is a numbered host capability reachable from bytecode through
// ienumerate, iquery and iinvoke. A device's id is its position in the
// VM's device list.
type Device interface {
	// Query returns the device revision and kind. iquery pushes them in
	// that order, leaving the kind on top.
	Query() (revision, kind Cell)
	// Invoke performs one action. Devices with several actions pop the
	// action selector from the data stack themselves.
	Invoke(m Machine) error
}

// Machine is the view of the VM that devices operate on.
type Machine interface {
	Data() *Stack
	Memory() Memory
	Output() io.Writer
	Script() *ScriptState
	Include(path string) error
}

// ScriptState tracks the source being included, for the scripting device.
type ScriptState struct {
	Args      []string // host arguments; Args[0] is the program name
	Sources   []string // stack of sources being included, innermost last
	Line      int      // current line in the innermost source
	LineText  string   // text of the current line
	IgnoreEOL bool
	IgnoreEOF bool
	Abort     bool
}

// Source returns the innermost source name, or "" at the top level.
func (s *ScriptState) Source() string {
	if len(s.Sources) == 0 {
		return ""
	}
	return s.Sources[len(s.Sources)-1]
}

// ActionError reports an action number a device does not implement.
func ActionError(device string, action Cell) error {
	return fmt.Errorf("%w: %s action %d", ErrUnknownAction, device, action)
}

func (vm *VM) device(id Cell) (Device, error) {
	if id < 0 || int(id) >= len(vm.devices) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	return vm.devices[id], nil
}

func (vm *VM) ienumerate() {
	vm.data.Push(Cell(len(vm.devices)))
}

func (vm *VM) iquery() error {
	id, err := vm.data.Pop()
	if err != nil {
		return err
	}
	dev, err := vm.device(id)
	if err != nil {
		return err
	}
	rev, kind := dev.Query()
	vm.data.Push(rev)
	vm.data.Push(kind)
	return nil
}

func (vm *VM) iinvoke() error {
	id, err := vm.data.Pop()
	if err != nil {
		return err
	}
	dev, err := vm.device(id)
	if err != nil {
		return err
	}
	if err := dev.Invoke(vm); err != nil {
		return fmt.Errorf("device %d: %w", id, err)
	}
	return nil
}
