package vm

import "fmt"

// Opcode is one of the thirty Nga instructions. A bundle holds four of them.
type Opcode uint8

const (
	// ===== Stack (0-6) =====
	OpNop  Opcode = 0 // ..  no effect
	OpLit  Opcode = 1 // li  push the next cell, skip over it
	OpDup  Opcode = 2 // du  n -> n n
	OpDrop Opcode = 3 // dr  n ->
	OpSwap Opcode = 4 // sw  a b -> b a
	OpPush Opcode = 5 // pu  data -> address
	OpPop  Opcode = 6 // po  address -> data

	// ===== Control Flow (7-10) =====
	OpJump   Opcode = 7  // ju  ip = target - 1
	OpCall   Opcode = 8  // ca  push ip to address, ip = target - 1
	OpCCall  Opcode = 9  // cc  flag target -> ; call when flag != 0
	OpReturn Opcode = 10 // re  ip = pop address

	// ===== Comparison (11-14) =====
	OpEq  Opcode = 11 // eq  b == a -> -1/0
	OpNeq Opcode = 12 // ne  b != a
	OpLt  Opcode = 13 // lt  b < a
	OpGt  Opcode = 14 // gt  b > a

	// ===== Memory (15-16) =====
	OpFetch Opcode = 15 // fe  addr -> memory[addr]; negative addresses are queries
	OpStore Opcode = 16 // st  value addr ->

	// ===== Arithmetic (17-24) =====
	OpAdd      Opcode = 17 // ad  b + a
	OpSubtract Opcode = 18 // su  b - a
	OpMultiply Opcode = 19 // mu  b * a
	OpDivMod   Opcode = 20 // di  b a -> rem quot
	OpAnd      Opcode = 21 // an
	OpOr       Opcode = 22 // or
	OpXor      Opcode = 23 // xo
	OpShift    Opcode = 24 // sh  value count -> ; negative count shifts left

	// ===== Machine (25-29) =====
	OpZReturn    Opcode = 25 // zr  return and drop when TOS == 0
	OpHalt       Opcode = 26 // ha
	OpIEnumerate Opcode = 27 // ie  -> device count
	OpIQuery     Opcode = 28 // iq  device -> revision kind
	OpIInvoke    Opcode = 29 // ii  ... device ->
)

// NumOpcodes is the size of the instruction set. Bundle fields at or above
// this value are invalid.
const NumOpcodes = 30

// LegacyConsoleOp is the historical single-instruction console output
// sentinel. It is honoured only when the VM is configured for legacy images.
const LegacyConsoleOp Cell = 1000

var mnemonics = [NumOpcodes]string{
	"..", "li", "du", "dr", "sw", "pu", "po", "ju", "ca", "cc",
	"re", "eq", "ne", "lt", "gt", "fe", "st", "ad", "su", "mu",
	"di", "an", "or", "xo", "sh", "zr", "ha", "ie", "iq", "ii",
}

var opNames = [NumOpcodes]string{
	"NOP", "LIT", "DUP", "DROP", "SWAP", "PUSH", "POP", "JUMP", "CALL", "CCALL",
	"RETURN", "EQ", "NEQ", "LT", "GT", "FETCH", "STORE", "ADD", "SUBTRACT", "MULTIPLY",
	"DIVMOD", "AND", "OR", "XOR", "SHIFT", "ZRETURN", "HALT", "IENUMERATE", "IQUERY", "IINVOKE",
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	return op < NumOpcodes
}

// String returns the long name of the opcode.
func (op Opcode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(op))
	}
	return opNames[op]
}

// Mnemonic returns the two-character assembler name of the opcode.
func (op Opcode) Mnemonic() string {
	if !op.Valid() {
		return "??"
	}
	return mnemonics[op]
}

// OpcodeFromMnemonic converts a two-character name ("li", "..") to an Opcode.
func OpcodeFromMnemonic(s string) (Opcode, bool) {
	for i, m := range mnemonics {
		if m == s {
			return Opcode(i), true
		}
	}
	return 0, false
}

// OpcodeFromString converts either a mnemonic or a long name to an Opcode.
func OpcodeFromString(s string) (Opcode, bool) {
	if op, ok := OpcodeFromMnemonic(s); ok {
		return op, true
	}
	for i, n := range opNames {
		if n == s {
			return Opcode(i), true
		}
	}
	return 0, false
}
