package device

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/crcx/retroforth/pkg/vm"
)

// DefaultPrecision is the number of significant digits kept by the
// decimal device.
const DefaultPrecision = 34

// Decimal actions.
const (
	DecimalFromNumber vm.Cell = iota
	DecimalFromString
	DecimalToNumber
	DecimalToString
	DecimalAdd
	DecimalSub
	DecimalMul
	DecimalDiv
	DecimalFloor
	DecimalCeil
	DecimalSqrt
	DecimalEq
	DecimalNeq
	DecimalLt
	DecimalGt
	DecimalDepth
	DecimalDup
	DecimalDrop
	DecimalSwap
	DecimalQuantize
	DecimalPow
	DecimalAbs
	DecimalNeg
	DecimalRem
)

// Decimal is an arbitrary precision decimal stack. It mirrors the float
// device: binary operations take the second item as the left operand and
// comparisons leave a flag on the data stack.
type Decimal struct {
	ctx   *apd.Context
	stack []*apd.Decimal
}

// NewDecimal creates the decimal device with the given precision in
// digits. Zero selects DefaultPrecision.
func NewDecimal(precision uint32) *Decimal {
	if precision == 0 {
		precision = DefaultPrecision
	}
	return &Decimal{ctx: apd.BaseContext.WithPrecision(precision)}
}

func (d *Decimal) Query() (revision, kind vm.Cell) {
	return 0, KindDecimal
}

// Depth returns the number of items on the decimal stack.
func (d *Decimal) Depth() int {
	return len(d.stack)
}

// Push pushes v.
func (d *Decimal) Push(v *apd.Decimal) {
	d.stack = append(d.stack, v)
}

// Pop removes and returns the top item.
func (d *Decimal) Pop() (*apd.Decimal, error) {
	n := len(d.stack)
	if n == 0 {
		return nil, ErrDecimalUnderflow
	}
	v := d.stack[n-1]
	d.stack = d.stack[:n-1]
	return v, nil
}

func (d *Decimal) pop2() (a, b *apd.Decimal, err error) {
	if len(d.stack) < 2 {
		return nil, nil, ErrDecimalUnderflow
	}
	a, _ = d.Pop()
	b, _ = d.Pop()
	return a, b, nil
}

func (d *Decimal) Invoke(m vm.Machine) error {
	a, err := action(m)
	if err != nil {
		return err
	}
	data := m.Data()

	switch a {
	case DecimalFromNumber:
		n, err := data.Pop()
		if err != nil {
			return err
		}
		d.Push(apd.New(int64(n), 0))

	case DecimalFromString:
		s, err := extract(m)
		if err != nil {
			return err
		}
		v, _, err := d.ctx.NewFromString(s)
		if err != nil {
			v = &apd.Decimal{Form: apd.NaN}
		}
		d.Push(v)

	case DecimalToNumber:
		v, err := d.Pop()
		if err != nil {
			return err
		}
		data.Push(decimalToCell(v))

	case DecimalToString:
		v, err := d.Pop()
		if err != nil {
			return err
		}
		if _, err := inject(m, v.String()); err != nil {
			return err
		}

	case DecimalAdd, DecimalSub, DecimalMul, DecimalDiv, DecimalPow, DecimalRem:
		x, y, err := d.pop2()
		if err != nil {
			return err
		}
		r := new(apd.Decimal)
		if _, err := d.binary(a, r, y, x); err != nil {
			return fmt.Errorf("decimal: %w", err)
		}
		d.Push(r)

	case DecimalFloor, DecimalCeil, DecimalSqrt, DecimalAbs, DecimalNeg:
		v, err := d.Pop()
		if err != nil {
			return err
		}
		r := new(apd.Decimal)
		if _, err := d.unary(a, r, v); err != nil {
			return fmt.Errorf("decimal: %w", err)
		}
		d.Push(r)

	case DecimalQuantize:
		exp, err := data.Pop()
		if err != nil {
			return err
		}
		v, err := d.Pop()
		if err != nil {
			return err
		}
		r := new(apd.Decimal)
		if _, err := d.ctx.Quantize(r, v, -int32(exp)); err != nil {
			return fmt.Errorf("decimal: %w", err)
		}
		d.Push(r)

	case DecimalEq, DecimalNeq, DecimalLt, DecimalGt:
		x, y, err := d.pop2()
		if err != nil {
			return err
		}
		c := y.Cmp(x)
		var r bool
		switch {
		case isNaN(x) || isNaN(y):
			// NaN is unordered and equal to nothing.
			r = a == DecimalNeq
		case a == DecimalEq:
			r = c == 0
		case a == DecimalNeq:
			r = c != 0
		case a == DecimalLt:
			r = c < 0
		default:
			r = c > 0
		}
		data.Push(vm.Flag(r))

	case DecimalDepth:
		data.Push(vm.Cell(len(d.stack)))

	case DecimalDup:
		v, err := d.Pop()
		if err != nil {
			return err
		}
		d.Push(v)
		d.Push(new(apd.Decimal).Set(v))

	case DecimalDrop:
		_, err := d.Pop()
		return err

	case DecimalSwap:
		x, y, err := d.pop2()
		if err != nil {
			return err
		}
		d.Push(x)
		d.Push(y)

	default:
		return vm.ActionError("decimal", a)
	}
	return nil
}

// binary applies op with b as the left operand.
func (d *Decimal) binary(op vm.Cell, r, b, a *apd.Decimal) (apd.Condition, error) {
	switch op {
	case DecimalAdd:
		return d.ctx.Add(r, b, a)
	case DecimalSub:
		return d.ctx.Sub(r, b, a)
	case DecimalMul:
		return d.ctx.Mul(r, b, a)
	case DecimalDiv:
		return d.ctx.Quo(r, b, a)
	case DecimalPow:
		return d.ctx.Pow(r, b, a)
	default:
		return d.ctx.Rem(r, b, a)
	}
}

func (d *Decimal) unary(op vm.Cell, r, v *apd.Decimal) (apd.Condition, error) {
	switch op {
	case DecimalFloor:
		return d.ctx.Floor(r, v)
	case DecimalCeil:
		return d.ctx.Ceil(r, v)
	case DecimalSqrt:
		return d.ctx.Sqrt(r, v)
	case DecimalAbs:
		return d.ctx.Abs(r, v)
	default:
		return d.ctx.Neg(r, v)
	}
}

var (
	maxCellDecimal = apd.New(int64(vm.MaxCell), 0)
	minCellDecimal = apd.New(int64(vm.MinCell), 0)
)

func isNaN(v *apd.Decimal) bool {
	return v.Form == apd.NaN || v.Form == apd.NaNSignaling
}

// decimalToCell truncates v toward zero, clamping to the cell range.
// Non-finite values become 0.
func decimalToCell(v *apd.Decimal) vm.Cell {
	if v.Form != apd.Finite {
		return 0
	}
	switch {
	case v.Cmp(maxCellDecimal) >= 0:
		return vm.MaxCell
	case v.Cmp(minCellDecimal) <= 0:
		return vm.MinCell
	}
	var integ, frac apd.Decimal
	v.Modf(&integ, &frac)
	n, err := integ.Int64()
	if err != nil {
		return 0
	}
	return vm.Cell(n)
}
