package device

import (
	"fmt"

	"github.com/crcx/retroforth/pkg/vm"
)

// Scripting actions.
const (
	ScriptArgCount vm.Cell = iota
	ScriptArg
	ScriptInclude
	ScriptName
	ScriptSource
	ScriptLine
	ScriptIgnoreToEOL
	ScriptIgnoreToEOF
	ScriptAbort
	ScriptLineText
)

// Scripting exposes host arguments and the include machinery. Arguments
// follow the host convention: Args[0] is the program, Args[1] the script
// and the rest are passed to it.
type Scripting struct{}

// NewScripting creates the scripting device.
func NewScripting() *Scripting {
	return &Scripting{}
}

func (s *Scripting) Query() (revision, kind vm.Cell) {
	return 2, KindScripting
}

func (s *Scripting) Invoke(m vm.Machine) error {
	a, err := action(m)
	if err != nil {
		return err
	}
	data := m.Data()
	script := m.Script()

	switch a {
	case ScriptArgCount:
		data.Push(vm.Cell(max(len(script.Args)-2, 0)))

	case ScriptArg:
		n, err := data.Pop()
		if err != nil {
			return err
		}
		arg := ""
		if i := int(n) + 2; n >= 0 && i < len(script.Args) {
			arg = script.Args[i]
		}
		return injectAndPush(m, arg)

	case ScriptInclude:
		name, err := extract(m)
		if err != nil {
			return err
		}
		if err := m.Include(name); err != nil {
			return fmt.Errorf("include %s: %w", name, err)
		}

	case ScriptName:
		name := ""
		if len(script.Args) > 1 {
			name = script.Args[1]
		}
		return injectAndPush(m, name)

	case ScriptSource:
		return injectAndPush(m, script.Source())

	case ScriptLine:
		data.Push(vm.Cell(script.Line))

	case ScriptIgnoreToEOL:
		script.IgnoreEOL = true

	case ScriptIgnoreToEOF:
		script.IgnoreEOF = true

	case ScriptAbort:
		script.Abort = true

	case ScriptLineText:
		_, err := inject(m, script.LineText)
		return err

	default:
		return vm.ActionError("scripting", a)
	}
	return nil
}

func injectAndPush(m vm.Machine, s string) error {
	addr, err := inject(m, s)
	if err != nil {
		return err
	}
	m.Data().Push(addr)
	return nil
}
