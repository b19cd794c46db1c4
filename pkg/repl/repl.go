// Package repl implements the interactive listener.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/crcx/retroforth/pkg/vm"
)

const prompt = "Ok> "

// errBye ends the listener.
var errBye = errors.New("bye")

// REPL feeds lines of input to an image's interpreter.
type REPL struct {
	vm      *vm.VM
	history []string
	shrink  bool
}

// New creates a listener over machine.
func New(machine *vm.VM) *REPL {
	return &REPL{
		vm:      machine,
		history: []string{},
		shrink:  true,
	}
}

// SetShrink controls whether .save writes only the used part of memory.
func (r *REPL) SetShrink(shrink bool) {
	r.shrink = shrink
}

// History returns the lines evaluated so far.
func (r *REPL) History() []string {
	return r.history
}

// Start reads lines from in until it is exhausted or "bye" is seen. Faults
// are reported and the listener carries on with clean stacks.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "RETRO listener. Type .help for listener commands, bye to exit")

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return
		}

		line := scanner.Text()
		if handled := r.handleCommand(line, out); handled {
			continue
		}
		if err := r.eval(line); err != nil {
			if errors.Is(err, errBye) {
				return
			}
			fmt.Fprintf(out, "\nError: %v\n", err)
			r.vm.Data().Reset()
			r.vm.Address().Reset()
		}
		if r.vm.Script().Abort {
			r.vm.Script().Abort = false
		}
	}
}

func (r *REPL) handleCommand(line string, out io.Writer) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}

	switch parts[0] {
	case ".help":
		r.printHelp(out)
		return true

	case ".s":
		r.printStack(out)
		return true

	case ".words":
		fmt.Fprintln(out, strings.Join(r.vm.Dictionary().Words(), " "))
		return true

	case ".history":
		for i, cmd := range r.history {
			fmt.Fprintf(out, "%3d: %s\n", i+1, cmd)
		}
		return true

	case ".include":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: .include <file>")
			return true
		}
		if err := r.vm.Include(parts[1]); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		return true

	case ".save":
		if len(parts) != 2 {
			fmt.Fprintln(out, "Usage: .save <image>")
			return true
		}
		if err := r.vm.Memory().Save(parts[1], r.shrink); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return true
		}
		fmt.Fprintf(out, "Saved %s\n", parts[1])
		return true
	}

	return false
}

// eval runs each token of line through the interpreter.
func (r *REPL) eval(line string) error {
	r.history = append(r.history, line)
	for _, tok := range strings.Fields(line) {
		if tok == "bye" {
			return errBye
		}
		if err := r.vm.Evaluate(tok); err != nil {
			return err
		}
		if r.vm.Script().Abort {
			return nil
		}
	}
	return nil
}

func (r *REPL) printStack(out io.Writer) {
	values := r.vm.Data().Values()
	fmt.Fprintf(out, "<%d>", len(values))
	for _, v := range values {
		fmt.Fprintf(out, " %d", v)
	}
	fmt.Fprintln(out)
}

func (r *REPL) printHelp(out io.Writer) {
	help := `
Listener commands:
  .help            Show this help message
  .s               Show the data stack, bottom first
  .words           List dictionary words, newest first
  .history         Show evaluated lines
  .include <file>  Include a literate source file
  .save <image>    Save memory as an image file
  bye              Exit the listener

Anything else is split on whitespace and each token is handed to the
image's interpret word.
`
	fmt.Fprint(out, help)
}
