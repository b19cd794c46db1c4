package vm

import "github.com/samber/lo"

// Stack is a LIFO of cells. The VM owns two: the data stack and the
// address stack.
type Stack struct {
	name  string
	cells []Cell
}

// NewStack creates an empty stack. The name appears in underflow errors.
func NewStack(name string) *Stack {
	return &Stack{name: name, cells: make([]Cell, 0, 128)}
}

// Push adds v to the top.
func (s *Stack) Push(v Cell) {
	s.cells = append(s.cells, v)
}

// Pop removes and returns the top cell.
func (s *Stack) Pop() (Cell, error) {
	n := len(s.cells)
	if n == 0 {
		return 0, &StackError{Stack: s.name, Err: ErrStackUnderflow}
	}
	v := s.cells[n-1]
	s.cells = s.cells[:n-1]
	return v, nil
}

// Pop2 removes the top two cells and returns them as (top, second).
func (s *Stack) Pop2() (a, b Cell, err error) {
	if len(s.cells) < 2 {
		return 0, 0, &StackError{Stack: s.name, Err: ErrStackUnderflow}
	}
	a, _ = s.Pop()
	b, _ = s.Pop()
	return a, b, nil
}

// Peek returns the cell at depth i from the top (0 is TOS).
func (s *Stack) Peek(i int) (Cell, error) {
	n := len(s.cells)
	if i < 0 || i >= n {
		return 0, &StackError{Stack: s.name, Err: ErrStackUnderflow}
	}
	return s.cells[n-1-i], nil
}

// Depth returns the number of cells on the stack.
func (s *Stack) Depth() int {
	return len(s.cells)
}

// Dup duplicates the top cell.
func (s *Stack) Dup() error {
	v, err := s.Peek(0)
	if err != nil {
		return err
	}
	s.Push(v)
	return nil
}

// Swap exchanges the top two cells.
func (s *Stack) Swap() error {
	n := len(s.cells)
	if n < 2 {
		return &StackError{Stack: s.name, Err: ErrStackUnderflow}
	}
	s.cells[n-1], s.cells[n-2] = s.cells[n-2], s.cells[n-1]
	return nil
}

// Reset empties the stack.
func (s *Stack) Reset() {
	s.cells = s.cells[:0]
}

// Values returns a copy of the stack contents, bottom first.
func (s *Stack) Values() []Cell {
	out := make([]Cell, len(s.cells))
	copy(out, s.cells)
	return out
}

// TopFirst returns a copy of the stack contents, top first.
func (s *Stack) TopFirst() []Cell {
	return lo.Reverse(s.Values())
}

// replace swaps in a new backing slice and returns the old one. Used by
// nested includes to isolate the address stack.
func (s *Stack) replace(cells []Cell) []Cell {
	old := s.cells
	s.cells = cells
	return old
}
