package vm

// Bundle is a cell interpreted as four packed instructions.
//
// Layout:
// ┌────────────┬────────────┬────────────┬────────────┐
// │  field 3   │  field 2   │  field 1   │  field 0   │
// │ bits 31-24 │ bits 23-16 │ bits 15-8  │ bits 7-0   │
// └────────────┴────────────┴────────────┴────────────┘
//
// Field 0 runs first. A zero field is a no-op.
type Bundle Cell

// EncodeBundle packs up to four opcodes into a bundle. Missing trailing
// opcodes are no-ops.
func EncodeBundle(ops ...Opcode) Bundle {
	var b uint32
	for i := 0; i < 4 && i < len(ops); i++ {
		b |= uint32(ops[i]) << (8 * i)
	}
	return Bundle(int32(b))
}

// Field returns the raw 8-bit value of field i (0-3).
func (b Bundle) Field(i int) uint8 {
	return uint8(uint32(b) >> (8 * i))
}

// Ops returns the four fields as opcodes. Fields may be outside the
// instruction set; use Valid to check.
func (b Bundle) Ops() [4]Opcode {
	return [4]Opcode{
		Opcode(b.Field(0)),
		Opcode(b.Field(1)),
		Opcode(b.Field(2)),
		Opcode(b.Field(3)),
	}
}

// Valid reports whether every field names an instruction.
func (b Bundle) Valid() bool {
	for _, op := range b.Ops() {
		if !op.Valid() {
			return false
		}
	}
	return true
}

// String returns the bundle as eight mnemonic characters, e.g. "liadre..".
func (b Bundle) String() string {
	buf := make([]byte, 0, 8)
	for _, op := range b.Ops() {
		buf = append(buf, op.Mnemonic()...)
	}
	return string(buf)
}
