package assembler

import (
	"fmt"
	"strconv"

	"github.com/crcx/retroforth/pkg/vm"
)

// Kind is the directive selected by the first character of a line.
type Kind byte

const (
	KindInstruction Kind = 'i' // i liadre..
	KindData        Kind = 'd' // d 42
	KindReference   Kind = 'r' // r label
	KindString      Kind = 's' // s text
	KindLabel       Kind = ':' // : label
)

// String returns the directive character.
func (k Kind) String() string {
	return string(rune(k))
}

// Directive is one parsed source line.
type Directive struct {
	Kind Kind
	Line int
	Arg  string       // raw argument text
	Ops  [4]vm.Opcode // instruction bundle, for KindInstruction
	Data vm.Cell      // value, for KindData
}

// Size returns the number of cells the directive emits.
func (d Directive) Size() int {
	switch d.Kind {
	case KindInstruction, KindData, KindReference:
		return 1
	case KindString:
		return len([]rune(d.Arg)) + 1
	default:
		return 0
	}
}

// Parser turns fenced source lines into directives.
type Parser struct {
	lines []Line
	pos   int
}

// NewParser creates a parser over the code blocks of src.
func NewParser(src, fence string) *Parser {
	return &Parser{lines: Extract(src, fence)}
}

// Parse parses every line. Blank lines are skipped.
func (p *Parser) Parse() ([]Directive, error) {
	var directives []Directive
	for ; p.pos < len(p.lines); p.pos++ {
		line := p.lines[p.pos]
		if line.Text == "" {
			continue
		}
		d, err := ParseLine(line.Text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line.Num, err)
		}
		d.Line = line.Num
		directives = append(directives, d)
	}
	return directives, nil
}

// ParseLine parses a single directive line. The directive character is
// followed by one separator character and the argument.
func ParseLine(text string) (Directive, error) {
	d := Directive{Kind: Kind(text[0])}
	if len(text) > 1 {
		if text[1] != ' ' && text[1] != '\t' {
			return d, fmt.Errorf("%w: %q", ErrBadDirective, text)
		}
	}
	if len(text) > 2 {
		d.Arg = text[2:]
	}

	switch d.Kind {
	case KindInstruction:
		ops, err := parseBundle(d.Arg)
		if err != nil {
			return d, err
		}
		d.Ops = ops

	case KindData:
		n, err := strconv.ParseInt(d.Arg, 10, 32)
		if err != nil {
			return d, fmt.Errorf("%w: %q", ErrBadNumber, d.Arg)
		}
		d.Data = vm.Cell(n)

	case KindReference, KindLabel:
		if d.Arg == "" {
			return d, fmt.Errorf("%w: %s needs a label name", ErrBadDirective, d.Kind)
		}

	case KindString:
		// any text, including none

	default:
		return d, fmt.Errorf("%w: %q", ErrBadDirective, text)
	}
	return d, nil
}

// parseBundle reads up to four two-character mnemonics. Missing trailing
// mnemonics are no-ops.
func parseBundle(arg string) ([4]vm.Opcode, error) {
	var ops [4]vm.Opcode
	if len(arg) > 8 || len(arg)%2 != 0 {
		return ops, fmt.Errorf("%w: bundle %q", ErrBadDirective, arg)
	}
	for i := 0; i*2 < len(arg); i++ {
		name := arg[i*2 : i*2+2]
		op, ok := vm.OpcodeFromMnemonic(name)
		if !ok {
			return ops, fmt.Errorf("%w: %q", ErrUnknownMnemonic, name)
		}
		ops[i] = op
	}
	return ops, nil
}
