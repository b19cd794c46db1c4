package vm

import "math"

// Cell is the machine word: a signed 32-bit integer. Arithmetic on Cells
// wraps around in two's complement.
type Cell int32

const (
	CellBytes = 4

	MinCell Cell = math.MinInt32
	MaxCell Cell = math.MaxInt32
)

// Flag converts a Go boolean to the machine's truth values, -1 and 0.
func Flag(b bool) Cell {
	if b {
		return -1
	}
	return 0
}

// DivMod divides dividend by divisor, truncating toward zero. The remainder
// carries the sign of the dividend.
func DivMod(dividend, divisor Cell) (quotient, remainder Cell, err error) {
	if divisor == 0 {
		return 0, 0, ErrDivisionByZero
	}
	x, y := abs64(int64(dividend)), abs64(int64(divisor))
	q, r := x/y, x%y
	switch {
	case dividend < 0 && divisor < 0:
		r = -r
	case dividend > 0 && divisor < 0:
		q = -q
	case dividend < 0 && divisor > 0:
		q, r = -q, -r
	}
	return Cell(q), Cell(r), nil
}

// Shift shifts value right by count, or left by -count when count is
// negative. Right shifts are arithmetic.
func Shift(value, count Cell) Cell {
	if count < 0 {
		return value << uint32(-int64(count))
	}
	return value >> uint32(count)
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
