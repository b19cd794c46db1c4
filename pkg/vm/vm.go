// Package vm implements the Nga virtual machine.
//
// The VM is a dual-stack bytecode interpreter with:
//   - a flat memory of signed 32-bit cells loaded from an image file
//   - a data stack and an address (return) stack
//   - instruction bundles packing four opcodes into one cell
//   - a dictionary of named words threaded through memory
//   - numbered I/O devices reached through ienumerate/iquery/iinvoke
//
// Basic usage:
//
//	mem, err := vm.LoadImage("ngaImage", 1000000, false)
//	machine, err := vm.New(mem, vm.WithDevices(devs...))
//	err = machine.Include("program.retro")
//
// With resource limits:
//
//	machine.SetMaxSteps(10000)
//	machine.SetContext(ctx)
//	err = machine.Execute(xt)
package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// ExecutionStats contains metrics about VM execution for profiling.
type ExecutionStats struct {
	BundlesExecuted int64            // Bundles decoded and run
	Instructions    int64            // Non-nop instructions run
	ExecutionTimeNs int64            // Wall time spent in Execute
	NotFound        int64            // Times the not-found handler was entered
	OpCounts        map[string]int64 // Instructions run, by opcode name
	HotHits         map[string]int64 // Fast-path interceptions, by word
	Calls           map[Cell]int64   // Taken call/ccall, by target address
}

func newStats() ExecutionStats {
	return ExecutionStats{
		OpCounts: make(map[string]int64),
		HotHits:  make(map[string]int64),
		Calls:    make(map[Cell]int64),
	}
}

// VM represents the virtual machine.
type VM struct {
	mem     Memory
	data    *Stack
	address *Stack
	ip      Cell
	dict    *Dictionary
	devices []Device

	nameOffset    int
	legacyConsole bool

	// Words resolved from the dictionary
	interpret Cell
	notFound  Cell
	addHeader Cell
	hot       map[Cell]hotWord

	token  string // last token handed to interpret
	script ScriptState

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger

	// Resource limits
	maxSteps  int64
	stepCount int64
	ctx       context.Context

	// Observability - execution statistics
	stats        ExecutionStats
	statsEnabled bool
}

// Option configures a VM.
type Option func(*VM)

// WithNameOffset sets the position of the name field in dictionary headers.
func WithNameOffset(n int) Option {
	return func(vm *VM) {
		vm.nameOffset = n
	}
}

// WithDevices installs devices; device ids follow slice order.
func WithDevices(devs ...Device) Option {
	return func(vm *VM) {
		vm.devices = append(vm.devices, devs...)
	}
}

// WithOutput sets where console output goes.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) {
		vm.out = w
	}
}

// WithErrorOutput sets where "word not found" reports go. Defaults to the
// console output.
func WithErrorOutput(w io.Writer) Option {
	return func(vm *VM) {
		vm.errOut = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(vm *VM) {
		vm.logger = l
	}
}

// WithLegacyConsole enables the single-cell console output sentinel.
func WithLegacyConsole(enabled bool) Option {
	return func(vm *VM) {
		vm.legacyConsole = enabled
	}
}

// WithArgs sets the host arguments seen by the scripting device.
func WithArgs(args []string) Option {
	return func(vm *VM) {
		vm.script.Args = args
	}
}

// New creates a VM over mem. mem is owned by the VM from now on.
func New(mem Memory, opts ...Option) (*VM, error) {
	vm := &VM{
		mem:        mem,
		data:       NewStack("data"),
		address:    NewStack("address"),
		nameOffset: NameOffsetCurrent,
		out:        os.Stdout,
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.errOut == nil {
		vm.errOut = vm.out
	}
	if vm.logger == nil {
		vm.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(mem) <= int(AddrTIB) {
		return nil, fmt.Errorf("%w: memory of %d cells has no control block", ErrAddressRange, len(mem))
	}

	dict, err := NewDictionary(mem, vm.nameOffset)
	if err != nil {
		return nil, err
	}
	vm.dict = dict
	vm.Refresh()
	return vm, nil
}

// Refresh re-resolves the interpreter, the not-found handler and the
// fast-path words. Call it after the image defines new versions of them.
func (vm *VM) Refresh() {
	vm.interpret = vm.resolve("interpret", AddrInterpret)
	vm.notFound = vm.resolve("err:notfound", AddrNotFound)
	vm.addHeader = vm.resolve("d:add-header", -1)
	vm.cacheHotWords()
	vm.logger.Debug("resolved words",
		"interpret", vm.interpret,
		"notfound", vm.notFound,
		"hot", len(vm.hot))
}

// resolve finds the xt of name, falling back to the control cell at
// fallback (or -1 when there is none).
func (vm *VM) resolve(name string, fallback Cell) Cell {
	if xt, ok := vm.dict.XT(name); ok {
		return xt
	}
	if fallback >= 0 && vm.mem[fallback] != 0 {
		return vm.mem[fallback]
	}
	return -1
}

// SetMaxSteps sets the maximum number of bundles the machine may run from
// now on, across Execute calls. Zero means unlimited.
func (vm *VM) SetMaxSteps(n int64) {
	vm.maxSteps = n
	vm.stepCount = 0
}

// SetLogger replaces the logger. A nil logger discards output.
func (vm *VM) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	vm.logger = l
}

// SetContext sets the context for cancellation/timeout.
func (vm *VM) SetContext(ctx context.Context) {
	vm.ctx = ctx
}

// EnableStats enables execution statistics collection.
func (vm *VM) EnableStats() {
	vm.statsEnabled = true
	vm.stats = newStats()
}

// Stats returns the execution statistics accumulated so far.
// Returns nil if stats were not enabled via EnableStats().
func (vm *VM) Stats() *ExecutionStats {
	if !vm.statsEnabled {
		return nil
	}
	return &vm.stats
}

// Data returns the data stack.
func (vm *VM) Data() *Stack { return vm.data }

// Address returns the address stack.
func (vm *VM) Address() *Stack { return vm.address }

// Memory returns the VM memory.
func (vm *VM) Memory() Memory { return vm.mem }

// Dictionary returns the dictionary view of memory.
func (vm *VM) Dictionary() *Dictionary { return vm.dict }

// Output returns the console writer.
func (vm *VM) Output() io.Writer { return vm.out }

// Script returns the scripting state.
func (vm *VM) Script() *ScriptState { return &vm.script }

// Devices returns the installed devices.
func (vm *VM) Devices() []Device { return vm.devices }

// IP returns the instruction pointer.
func (vm *VM) IP() Cell { return vm.ip }

// Execute runs code starting at addr until the address stack empties or
// ip leaves memory. An empty address stack gets a 0 sentinel so the
// final return ends the run.
func (vm *VM) Execute(addr Cell) error {
	var startTime time.Time
	if vm.statsEnabled {
		startTime = time.Now()
		defer func() {
			vm.stats.ExecutionTimeNs += time.Since(startTime).Nanoseconds()
		}()
	}

	bound := Cell(len(vm.mem))
	vm.ip = addr
	if vm.address.Depth() == 0 {
		vm.address.Push(0)
	}

	for vm.ip < bound {
		if vm.script.Abort {
			vm.data.Reset()
			vm.address.Reset()
			vm.ip = bound
			break
		}

		// Context cancellation check
		if vm.ctx != nil {
			select {
			case <-vm.ctx.Done():
				return vm.ctx.Err()
			default:
			}
		}

		// Resource limit check
		vm.stepCount++
		if vm.maxSteps > 0 && vm.stepCount > vm.maxSteps {
			return ErrStepLimitExceeded
		}

		if err := vm.cycle(); err != nil {
			cell := Cell(0)
			if vm.ip >= 0 && vm.ip < bound {
				cell = vm.mem[vm.ip]
			}
			vm.logger.Error("vm fault", "ip", vm.ip, "bundle", cell, "error", err)
			return &Fault{IP: vm.ip, Bundle: cell, Err: err}
		}

		if vm.address.Depth() == 0 {
			break
		}
		vm.ip++
	}
	return nil
}

// cycle runs the word or bundle at ip.
func (vm *VM) cycle() error {
	if hw, ok := vm.hot[vm.ip]; ok {
		handled, err := hw.run(vm)
		if err != nil {
			return err
		}
		if handled {
			if vm.statsEnabled {
				vm.stats.HotHits[hw.name]++
			}
			ret, err := vm.address.Pop()
			if err != nil {
				return err
			}
			vm.ip = ret
			return nil
		}
	}

	if vm.ip == vm.notFound {
		vm.reportNotFound()
	}
	if vm.ip == vm.addHeader {
		vm.rememberHeader()
	}

	cell, err := vm.mem.Fetch(vm.ip)
	if err != nil {
		return err
	}
	if vm.legacyConsole && cell == LegacyConsoleOp {
		c, err := vm.data.Pop()
		if err != nil {
			return err
		}
		return WriteConsole(vm.out, c)
	}

	b := Bundle(cell)
	if !b.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidBundle, cell)
	}
	if vm.statsEnabled {
		vm.stats.BundlesExecuted++
	}
	for _, op := range b.Ops() {
		if op == OpNop {
			continue
		}
		if vm.statsEnabled {
			vm.stats.Instructions++
			vm.stats.OpCounts[op.String()]++
		}
		if err := vm.step(op); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// step executes a single instruction.
func (vm *VM) step(op Opcode) error {
	switch op {
	// ===== Stack =====
	case OpLit:
		vm.ip++
		v, err := vm.mem.Fetch(vm.ip)
		if err != nil {
			return err
		}
		vm.data.Push(v)

	case OpDup:
		return vm.data.Dup()

	case OpDrop:
		_, err := vm.data.Pop()
		return err

	case OpSwap:
		return vm.data.Swap()

	case OpPush:
		v, err := vm.data.Pop()
		if err != nil {
			return err
		}
		vm.address.Push(v)

	case OpPop:
		v, err := vm.address.Pop()
		if err != nil {
			return err
		}
		vm.data.Push(v)

	// ===== Control Flow =====
	case OpJump:
		target, err := vm.data.Pop()
		if err != nil {
			return err
		}
		vm.ip = target - 1

	case OpCall:
		target, err := vm.data.Pop()
		if err != nil {
			return err
		}
		vm.call(target)

	case OpCCall:
		target, flag, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		if flag != 0 {
			vm.call(target)
		}

	case OpReturn:
		ret, err := vm.address.Pop()
		if err != nil {
			return err
		}
		vm.ip = ret

	// ===== Comparison =====
	case OpEq, OpNeq, OpLt, OpGt:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(compare(op, b, a))

	// ===== Memory =====
	case OpFetch:
		target, err := vm.data.Pop()
		if err != nil {
			return err
		}
		if target < 0 {
			return vm.query(target)
		}
		v, err := vm.mem.Fetch(target)
		if err != nil {
			return err
		}
		vm.data.Push(v)

	case OpStore:
		addr, v, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		return vm.mem.Store(addr, v)

	// ===== Arithmetic =====
	case OpAdd:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(b + a)

	case OpSubtract:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(b - a)

	case OpMultiply:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(b * a)

	case OpDivMod:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		q, r, err := DivMod(b, a)
		if err != nil {
			return err
		}
		vm.data.Push(r)
		vm.data.Push(q)

	case OpAnd:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(b & a)

	case OpOr:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(b | a)

	case OpXor:
		a, b, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(b ^ a)

	case OpShift:
		count, v, err := vm.data.Pop2()
		if err != nil {
			return err
		}
		vm.data.Push(Shift(v, count))

	// ===== Machine =====
	case OpZReturn:
		tos, err := vm.data.Peek(0)
		if err != nil {
			return err
		}
		if tos == 0 {
			_, _ = vm.data.Pop()
			ret, err := vm.address.Pop()
			if err != nil {
				return err
			}
			vm.ip = ret
		}

	case OpHalt:
		vm.ip = Cell(len(vm.mem))

	case OpIEnumerate:
		vm.ienumerate()

	case OpIQuery:
		return vm.iquery()

	case OpIInvoke:
		return vm.iinvoke()

	default:
		return fmt.Errorf("%w: opcode %d", ErrInvalidBundle, op)
	}
	return nil
}

func (vm *VM) call(target Cell) {
	if vm.statsEnabled {
		vm.stats.Calls[target]++
	}
	vm.address.Push(vm.ip)
	vm.ip = target - 1
}

func compare(op Opcode, b, a Cell) Cell {
	switch op {
	case OpEq:
		return Flag(b == a)
	case OpNeq:
		return Flag(b != a)
	case OpLt:
		return Flag(b < a)
	default:
		return Flag(b > a)
	}
}

// Introspection queries reached through fetch with a negative address.
const (
	QueryDataDepth    Cell = -1
	QueryAddressDepth Cell = -2
	QueryMemorySize   Cell = -3
	QueryMinCell      Cell = -4
	QueryMaxCell      Cell = -5
)

func (vm *VM) query(target Cell) error {
	switch target {
	case QueryDataDepth:
		vm.data.Push(Cell(vm.data.Depth()))
	case QueryAddressDepth:
		vm.data.Push(Cell(vm.address.Depth()))
	case QueryMemorySize:
		vm.data.Push(Cell(len(vm.mem)))
	case QueryMinCell:
		vm.data.Push(MinCell)
	case QueryMaxCell:
		vm.data.Push(MaxCell)
	default:
		return fmt.Errorf("%w: %d", ErrBadQuery, target)
	}
	return nil
}

func (vm *VM) reportNotFound() {
	if vm.statsEnabled {
		vm.stats.NotFound++
	}
	vm.logger.Warn("word not found", "token", vm.token)
	fmt.Fprintf(vm.errOut, "ERROR: word not found: %s\n", vm.token)
}

// rememberHeader caches the header d:add-header is about to create. The
// name is the third item on the data stack and the header lands at here.
func (vm *VM) rememberHeader() {
	addr, err := vm.data.Peek(2)
	if err != nil {
		return
	}
	name, err := vm.mem.ExtractCells(addr)
	if err != nil {
		return
	}
	vm.dict.Remember(name, vm.mem.Here())
}
