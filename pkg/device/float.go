package device

import (
	"math"
	"strconv"
	"strings"

	"github.com/crcx/retroforth/pkg/vm"
)

// Float actions.
const (
	FloatFromNumber vm.Cell = iota
	FloatFromString
	FloatToNumber
	FloatToString
	FloatAdd
	FloatSub
	FloatMul
	FloatDiv
	FloatFloor
	FloatCeil
	FloatSqrt
	FloatEq
	FloatNeq
	FloatLt
	FloatGt
	FloatDepth
	FloatDup
	FloatDrop
	FloatSwap
	FloatLog
	FloatPow
	FloatSin
	FloatCos
	FloatTan
	FloatAsin
	FloatAtan
	FloatAcos
	FloatPushAlt
	FloatPopAlt
	FloatAltDepth
)

// Float is a float64 stack with an alternate stack for temporaries.
// Binary operations take the second item as the left operand.
type Float struct {
	stack []float64
	alt   []float64
}

// NewFloat creates the floating point device.
func NewFloat() *Float {
	return &Float{}
}

func (f *Float) Query() (revision, kind vm.Cell) {
	return 1, KindFloat
}

// Depth returns the number of items on the float stack.
func (f *Float) Depth() int {
	return len(f.stack)
}

// Push pushes v.
func (f *Float) Push(v float64) {
	f.stack = append(f.stack, v)
}

// Pop removes and returns the top item.
func (f *Float) Pop() (float64, error) {
	n := len(f.stack)
	if n == 0 {
		return 0, ErrFloatUnderflow
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v, nil
}

func (f *Float) pop2() (a, b float64, err error) {
	if len(f.stack) < 2 {
		return 0, 0, ErrFloatUnderflow
	}
	a, _ = f.Pop()
	b, _ = f.Pop()
	return a, b, nil
}

func (f *Float) Invoke(m vm.Machine) error {
	a, err := action(m)
	if err != nil {
		return err
	}
	data := m.Data()

	switch a {
	case FloatFromNumber:
		n, err := data.Pop()
		if err != nil {
			return err
		}
		f.Push(float64(n))

	case FloatFromString:
		s, err := extract(m)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			v = math.NaN()
		}
		f.Push(v)

	case FloatToNumber:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		data.Push(floatToCell(v))

	case FloatToString:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		if _, err := inject(m, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
			return err
		}

	case FloatAdd, FloatSub, FloatMul, FloatDiv, FloatLog, FloatPow:
		x, y, err := f.pop2()
		if err != nil {
			return err
		}
		f.Push(binaryFloat(a, y, x))

	case FloatFloor, FloatCeil, FloatSqrt, FloatSin, FloatCos, FloatTan, FloatAsin, FloatAtan, FloatAcos:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		f.Push(unaryFloat(a, v))

	case FloatEq, FloatNeq, FloatLt, FloatGt:
		x, y, err := f.pop2()
		if err != nil {
			return err
		}
		var r bool
		switch a {
		case FloatEq:
			r = y == x
		case FloatNeq:
			r = y != x
		case FloatLt:
			r = y < x
		default:
			r = y > x
		}
		data.Push(vm.Flag(r))

	case FloatDepth:
		data.Push(vm.Cell(len(f.stack)))

	case FloatDup:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		f.Push(v)
		f.Push(v)

	case FloatDrop:
		_, err := f.Pop()
		return err

	case FloatSwap:
		x, y, err := f.pop2()
		if err != nil {
			return err
		}
		f.Push(x)
		f.Push(y)

	case FloatPushAlt:
		v, err := f.Pop()
		if err != nil {
			return err
		}
		f.alt = append(f.alt, v)

	case FloatPopAlt:
		n := len(f.alt)
		if n == 0 {
			return ErrFloatUnderflow
		}
		f.Push(f.alt[n-1])
		f.alt = f.alt[:n-1]

	case FloatAltDepth:
		data.Push(vm.Cell(len(f.alt)))

	default:
		return vm.ActionError("float", a)
	}
	return nil
}

// binaryFloat applies op with b as the left operand.
func binaryFloat(op vm.Cell, b, a float64) float64 {
	switch op {
	case FloatAdd:
		return b + a
	case FloatSub:
		return b - a
	case FloatMul:
		return b * a
	case FloatDiv:
		return b / a
	case FloatLog:
		return math.Log(b) / math.Log(a)
	default:
		return math.Pow(b, a)
	}
}

func unaryFloat(op vm.Cell, v float64) float64 {
	switch op {
	case FloatFloor:
		return math.Floor(v)
	case FloatCeil:
		return math.Ceil(v)
	case FloatSqrt:
		return math.Sqrt(v)
	case FloatSin:
		return math.Sin(v)
	case FloatCos:
		return math.Cos(v)
	case FloatTan:
		return math.Tan(v)
	case FloatAsin:
		return math.Asin(v)
	case FloatAtan:
		return math.Atan(v)
	default:
		return math.Acos(v)
	}
}

// floatToCell truncates v toward zero, clamping to the cell range. NaN
// becomes 0.
func floatToCell(v float64) vm.Cell {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= float64(vm.MaxCell):
		return vm.MaxCell
	case v <= float64(vm.MinCell):
		return vm.MinCell
	}
	return vm.Cell(math.Trunc(v))
}
