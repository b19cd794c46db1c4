package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Fence toggles between prose and code in literate sources.
const Fence = "~~~"

// Evaluate hands one token to the image's interpreter: the token is
// copied to the text input buffer, its address pushed, and interpret run.
func (vm *VM) Evaluate(token string) error {
	if vm.interpret < 0 {
		return ErrNoInterpreter
	}
	tib := vm.mem[AddrTIB]
	if _, err := vm.mem.InjectString(token, tib); err != nil {
		return fmt.Errorf("injecting token %q: %w", token, err)
	}
	vm.token = token
	vm.data.Push(tib)
	return vm.Execute(vm.interpret)
}

// Include evaluates the fenced code in the file at path.
func (vm *VM) Include(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()
	return vm.IncludeReader(path, f)
}

// IncludeReader evaluates the fenced code read from r. Only lines between
// fence lines are evaluated, one whitespace separated token at a time.
//
// The caller's ip and address stack are saved and the source runs on a
// fresh address stack, so includes may nest inside running code.
func (vm *VM) IncludeReader(name string, r io.Reader) error {
	savedIP := vm.ip
	savedAddress := vm.address.replace(make([]Cell, 0, 128))
	savedLine, savedText := vm.script.Line, vm.script.LineText
	savedToken := vm.token
	vm.script.Sources = append(vm.script.Sources, name)
	vm.script.Line = 0
	vm.logger.Debug("include", "source", name, "depth", len(vm.script.Sources))

	defer func() {
		vm.ip = savedIP
		vm.address.replace(savedAddress)
		vm.script.Line, vm.script.LineText = savedLine, savedText
		vm.token = savedToken
		vm.script.Sources = vm.script.Sources[:len(vm.script.Sources)-1]
		vm.script.IgnoreEOL = false
		vm.script.IgnoreEOF = false
		if len(vm.script.Sources) == 0 {
			vm.script.Abort = false
		}
		vm.Refresh()
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	inCode := false
	for scanner.Scan() {
		if vm.script.Abort || vm.script.IgnoreEOF {
			break
		}
		line := scanner.Text()
		vm.script.Line++
		vm.script.LineText = line

		if strings.TrimSpace(line) == Fence {
			inCode = !inCode
			continue
		}
		if !inCode {
			continue
		}

		for _, token := range strings.Fields(line) {
			if err := vm.Evaluate(token); err != nil {
				return fmt.Errorf("%s:%d: %w", name, vm.script.Line, err)
			}
			if vm.script.IgnoreEOL || vm.script.IgnoreEOF || vm.script.Abort {
				break
			}
		}
		vm.script.IgnoreEOL = false
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}
