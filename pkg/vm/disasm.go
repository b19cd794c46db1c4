package vm

import (
	"bytes"
	"fmt"
)

// Disassemble renders cells[from:to] as assembler directives. Valid bundles
// become "i" lines and the literal operands that follow them "d" lines;
// anything else is shown as data. When dict is non-nil, header addresses
// and execution targets are annotated with their word names.
func Disassemble(cells []Cell, from, to int, dict *Dictionary) string {
	if from < 0 {
		from = 0
	}
	if to <= 0 || to > len(cells) {
		to = len(cells)
	}

	names := make(map[Cell]string)
	if dict != nil {
		_ = dict.Walk(func(h Header) bool {
			if _, ok := names[h.XT]; !ok {
				names[h.XT] = h.Name
			}
			if _, ok := names[h.Addr]; !ok {
				names[h.Addr] = "header:" + h.Name
			}
			return true
		})
	}

	var buf bytes.Buffer
	buf.WriteString("; Disassembled from Nga image\n")
	buf.WriteString(fmt.Sprintf("; cells %d to %d of %d\n\n", from, to, len(cells)))

	literals := 0
	for addr := from; addr < to; addr++ {
		cell := cells[addr]
		if name, ok := names[Cell(addr)]; ok {
			buf.WriteString(fmt.Sprintf("        ; %s\n", name))
		}
		buf.WriteString(fmt.Sprintf("%06d: ", addr))

		b := Bundle(cell)
		switch {
		case literals > 0:
			literals--
			buf.WriteString(fmt.Sprintf("d %d", cell))
		case cell != 0 && b.Valid():
			buf.WriteString("i " + b.String())
			for _, op := range b.Ops() {
				if op == OpLit {
					literals++
				}
			}
		default:
			buf.WriteString(fmt.Sprintf("d %d", cell))
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}
