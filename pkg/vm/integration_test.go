package vm_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crcx/retroforth/internal/testutil"
	"github.com/crcx/retroforth/pkg/vm"
)

type consoleDevice struct{}

func (consoleDevice) Query() (vm.Cell, vm.Cell) { return 0, 0 }

func (consoleDevice) Invoke(m vm.Machine) error {
	c, err := m.Data().Pop()
	if err != nil {
		return err
	}
	return vm.WriteConsole(m.Output(), c)
}

func newTiny(t *testing.T) (*vm.VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	machine, err := vm.New(testutil.TinyImage(t, 4096),
		vm.WithOutput(&out),
		vm.WithDevices(consoleDevice{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return machine, &out
}

func evaluate(t *testing.T, machine *vm.VM, tokens ...string) {
	t.Helper()
	for _, tok := range tokens {
		if err := machine.Evaluate(tok); err != nil {
			t.Fatalf("Evaluate(%q) failed: %v", tok, err)
		}
	}
}

func TestDictionary_Find(t *testing.T) {
	machine, _ := newTiny(t)
	dict := machine.Dictionary()

	h, ok := dict.Find("add1")
	if !ok {
		t.Fatal("expected add1 in dictionary")
	}
	hdr, err := dict.Header(h)
	if err != nil {
		t.Fatalf("Header failed: %v", err)
	}
	if hdr.Name != "add1" {
		t.Errorf("expected name add1, got %q", hdr.Name)
	}
	if name, ok := dict.NameForXT(hdr.XT); !ok || name != "add1" {
		t.Errorf("NameForXT(%d) = %q, %v", hdr.XT, name, ok)
	}

	if _, ok := dict.Find("ADD1"); ok {
		t.Error("lookup must be case-sensitive")
	}
	if _, ok := dict.Find("missing"); ok {
		t.Error("expected missing word to be absent")
	}

	words := dict.Words()
	if words[0] != "halt" || words[len(words)-1] != "interpret" {
		t.Errorf("expected newest first, got %v", words)
	}
}

func TestDictionary_BadNameOffset(t *testing.T) {
	if _, err := vm.NewDictionary(vm.NewMemory(16), 5); !errors.Is(err, vm.ErrBadNameOffset) {
		t.Errorf("expected ErrBadNameOffset, got %v", err)
	}
}

func TestVM_ExecuteWord(t *testing.T) {
	machine, _ := newTiny(t)
	xt, ok := machine.Dictionary().XT("add1")
	if !ok {
		t.Fatal("expected add1 in dictionary")
	}
	machine.Data().Push(5)
	if err := machine.Execute(xt); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if diff := cmp.Diff([]vm.Cell{6}, machine.Data().Values()); diff != "" {
		t.Errorf("data stack mismatch (-want +got):\n%s", diff)
	}
	if machine.Address().Depth() != 0 {
		t.Errorf("expected empty address stack, got %d", machine.Address().Depth())
	}
}

func TestVM_EvaluateNumbersAndWords(t *testing.T) {
	machine, _ := newTiny(t)
	evaluate(t, machine, "5", "add1", "-3", "square")
	if diff := cmp.Diff([]vm.Cell{6, 9}, machine.Data().Values()); diff != "" {
		t.Errorf("data stack mismatch (-want +got):\n%s", diff)
	}
}

func TestVM_EvaluateEmit(t *testing.T) {
	machine, out := newTiny(t)
	evaluate(t, machine, "72", "emit", "105", "emit")
	if out.String() != "Hi" {
		t.Errorf("expected output %q, got %q", "Hi", out.String())
	}
}

func TestVM_EvaluateNotFound(t *testing.T) {
	machine, out := newTiny(t)
	machine.EnableStats()
	evaluate(t, machine, "1", "bogus")
	if !strings.Contains(out.String(), "word not found: bogus") {
		t.Errorf("expected not-found report, got %q", out.String())
	}
	if diff := cmp.Diff([]vm.Cell{1}, machine.Data().Values()); diff != "" {
		t.Errorf("data stack mismatch (-want +got):\n%s", diff)
	}
	if machine.Stats().NotFound != 1 {
		t.Errorf("expected 1 not-found, got %d", machine.Stats().NotFound)
	}
}

func TestVM_HotWords(t *testing.T) {
	machine, _ := newTiny(t)
	hot := machine.HotWords()
	if diff := cmp.Diff([]string{"s:eq?", "s:length", "s:to-number", "d:lookup"}, hot); diff != "" {
		t.Errorf("hot words mismatch (-want +got):\n%s", diff)
	}

	mem := machine.Memory()
	if _, err := mem.InjectString("abc", 1000); err != nil {
		t.Fatalf("InjectString failed: %v", err)
	}
	if _, err := mem.InjectString("abc", 1010); err != nil {
		t.Fatalf("InjectString failed: %v", err)
	}

	eq, _ := machine.Dictionary().XT("s:eq?")
	machine.Data().Push(1000)
	machine.Data().Push(1010)
	if err := machine.Execute(eq); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	length, _ := machine.Dictionary().XT("s:length")
	machine.Data().Push(1000)
	if err := machine.Execute(length); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if diff := cmp.Diff([]vm.Cell{-1, 3}, machine.Data().Values()); diff != "" {
		t.Errorf("data stack mismatch (-want +got):\n%s", diff)
	}
}

func TestVM_StringEqualComparesCells(t *testing.T) {
	machine, _ := newTiny(t)
	mem := machine.Memory()
	mem[1000], mem[1001] = -1, 0
	mem[1010], mem[1011] = -2, 0

	eq, _ := machine.Dictionary().XT("s:eq?")
	machine.Data().Push(1000)
	machine.Data().Push(1010)
	if err := machine.Execute(eq); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if diff := cmp.Diff([]vm.Cell{0}, machine.Data().Values()); diff != "" {
		t.Errorf("data stack mismatch (-want +got):\n%s", diff)
	}
}

func TestVM_LookupComparesCells(t *testing.T) {
	machine, _ := newTiny(t)
	lookup, _ := machine.Dictionary().XT("d:lookup")
	mem := machine.Memory()

	// A header named by the single cell -1.
	const header = 1100
	name := header + vm.Cell(machine.Dictionary().NameOffset())
	mem[header+vm.HeaderLink] = mem[vm.AddrDictionary]
	mem[header+vm.HeaderXT] = 777
	mem[name], mem[name+1] = -1, 0
	mem[vm.AddrDictionary] = header

	if _, ok := machine.Dictionary().Find("\uFFFD"); ok {
		t.Error("expected a header named by cell -1 not to match U+FFFD")
	}

	mem[1010], mem[1011] = -1, 0
	machine.Data().Push(1010)
	if err := machine.Execute(lookup); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got, _ := machine.Data().Pop(); got != header {
		t.Errorf("expected header %d, got %d", header, got)
	}
}

func TestVM_LookupSetsWhich(t *testing.T) {
	machine, _ := newTiny(t)
	lookup, _ := machine.Dictionary().XT("d:lookup")
	want, _ := machine.Dictionary().Find("emit")

	mem := machine.Memory()
	if _, err := mem.InjectString("emit", 1000); err != nil {
		t.Fatalf("InjectString failed: %v", err)
	}
	machine.Data().Push(1000)
	if err := machine.Execute(lookup); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got, _ := machine.Data().Pop(); got != want {
		t.Errorf("expected header %d, got %d", want, got)
	}
	if mem[lookup-20] != want {
		t.Errorf("expected which = %d, got %d", want, mem[lookup-20])
	}
}

func TestVM_ToNumberFallsBack(t *testing.T) {
	machine, out := newTiny(t)
	evaluate(t, machine, "+5")
	if !strings.Contains(out.String(), "word not found: +5") {
		t.Errorf("expected +5 to run the bytecode fallback, got %q", out.String())
	}
	if machine.Data().Depth() != 0 {
		t.Errorf("expected empty stack, got %v", machine.Data().Values())
	}
}

func TestVM_AddHeaderRemembersName(t *testing.T) {
	machine, _ := newTiny(t)
	addHeader, _ := machine.Dictionary().XT("d:add-header")
	mem := machine.Memory()
	if _, err := mem.InjectString("fresh", 1000); err != nil {
		t.Fatalf("InjectString failed: %v", err)
	}
	machine.Data().Push(1000)
	machine.Data().Push(0)
	machine.Data().Push(0)
	if err := machine.Execute(addHeader); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	h, ok := machine.Dictionary().Find("fresh")
	if !ok || h != mem.Here() {
		t.Errorf("expected fresh cached at here (%d), got %d %v", mem.Here(), h, ok)
	}
}

func TestVM_IncludeReader(t *testing.T) {
	machine, out := newTiny(t)
	src := "prose 1 2 3\n~~~\n72 emit\n  105 emit\n~~~\nmore prose emit\n"
	if err := machine.IncludeReader("test.retro", strings.NewReader(src)); err != nil {
		t.Fatalf("IncludeReader failed: %v", err)
	}
	if out.String() != "Hi" {
		t.Errorf("expected output %q, got %q", "Hi", out.String())
	}
	if machine.Data().Depth() != 0 {
		t.Errorf("expected empty stack, got %v", machine.Data().Values())
	}
	if machine.Script().Source() != "" {
		t.Errorf("expected no active source, got %q", machine.Script().Source())
	}
}

func TestVM_IncludeFile(t *testing.T) {
	machine, _ := newTiny(t)
	path := testutil.TempFile(t, testutil.Fenced("4 add1", "add1"), ".retro")
	if err := machine.Include(path); err != nil {
		t.Fatalf("Include failed: %v", err)
	}
	if diff := cmp.Diff([]vm.Cell{6}, machine.Data().Values()); diff != "" {
		t.Errorf("data stack mismatch (-want +got):\n%s", diff)
	}
}

func TestVM_IncludeMissingFile(t *testing.T) {
	machine, _ := newTiny(t)
	if err := machine.Include("/nonexistent/file.retro"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestVM_Snapshot(t *testing.T) {
	machine, _ := newTiny(t)
	evaluate(t, machine, "41", "add1")

	data, err := vm.MarshalSnapshot(machine.Snapshot())
	if err != nil {
		t.Fatalf("MarshalSnapshot failed: %v", err)
	}
	snap, err := vm.UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot failed: %v", err)
	}

	restored, _ := newTiny(t)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if diff := cmp.Diff([]vm.Cell{42}, restored.Data().Values()); diff != "" {
		t.Errorf("data stack mismatch (-want +got):\n%s", diff)
	}
	if len(restored.Memory()) != 4096 {
		t.Errorf("expected 4096 cells, got %d", len(restored.Memory()))
	}
	evaluate(t, restored, "add1")
	if got, _ := restored.Data().Peek(0); got != 43 {
		t.Errorf("expected 43, got %d", got)
	}
}

func TestVM_NoInterpreter(t *testing.T) {
	machine, err := vm.New(vm.NewMemory(64))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := machine.Evaluate("1"); !errors.Is(err, vm.ErrNoInterpreter) {
		t.Errorf("expected ErrNoInterpreter, got %v", err)
	}
}
