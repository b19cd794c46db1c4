package vm

import (
	"slices"
	"strconv"
	"strings"
)

// whichOffset is the distance from the xt of d:lookup back to the "which"
// variable that records the last lookup result.
const whichOffset = 20

// hotWord is a dictionary word run natively instead of stepping its
// bytecode. fn reports whether it handled the call; unhandled calls fall
// through to the bytecode body with the stacks untouched.
type hotWord struct {
	name string
	fn   func(*VM) (bool, error)
}

func (h hotWord) run(vm *VM) (bool, error) {
	return h.fn(vm)
}

var hotWords = []hotWord{
	{name: "s:eq?", fn: hotStringEqual},
	{name: "s:length", fn: hotStringLength},
	{name: "s:to-number", fn: hotStringToNumber},
	{name: "d:lookup", fn: hotLookup},
}

func (vm *VM) cacheHotWords() {
	vm.hot = make(map[Cell]hotWord, len(hotWords))
	for _, h := range hotWords {
		if xt, ok := vm.dict.XT(h.name); ok {
			vm.hot[xt] = h
		}
	}
}

// HotWords returns the names of the words currently run natively.
func (vm *VM) HotWords() []string {
	names := make([]string, 0, len(vm.hot))
	for _, h := range hotWords {
		if xt, ok := vm.dict.XT(h.name); ok {
			if _, cached := vm.hot[xt]; cached {
				names = append(names, h.name)
			}
		}
	}
	return names
}

func (vm *VM) popCells() ([]Cell, error) {
	addr, err := vm.data.Pop()
	if err != nil {
		return nil, err
	}
	return vm.mem.ExtractCells(addr)
}

func hotStringEqual(vm *VM) (bool, error) {
	a, err := vm.popCells()
	if err != nil {
		return false, err
	}
	b, err := vm.popCells()
	if err != nil {
		return false, err
	}
	vm.data.Push(Flag(slices.Equal(a, b)))
	return true, nil
}

func hotStringLength(vm *VM) (bool, error) {
	s, err := vm.popCells()
	if err != nil {
		return false, err
	}
	vm.data.Push(Cell(len(s)))
	return true, nil
}

func hotStringToNumber(vm *VM) (bool, error) {
	addr, err := vm.data.Peek(0)
	if err != nil {
		return false, err
	}
	s, err := vm.mem.ExtractString(addr)
	if err != nil {
		return false, err
	}
	if s == "" || strings.HasPrefix(s, "+") {
		return false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return false, nil
	}
	_, _ = vm.data.Pop()
	vm.data.Push(Cell(n))
	return true, nil
}

func hotLookup(vm *VM) (bool, error) {
	name, err := vm.popCells()
	if err != nil {
		return false, err
	}
	header, _ := vm.dict.FindCells(name)
	vm.data.Push(header)
	if xt, ok := vm.dict.XT("d:lookup"); ok {
		which := xt - whichOffset
		if which >= 0 && which < Cell(len(vm.mem)) {
			vm.mem[which] = header
		}
	}
	return true, nil
}
