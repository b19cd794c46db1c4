// Package embed provides the Go embedding API for Retro.
//
// Load an image, pass a string of Retro code, get the data stack back.
//
// Basic usage:
//
//	mem, _ := vm.LoadImage("ngaImage", 1000000, false)
//	stack, err := embed.Execute(mem, `2 3 + 4 *`)
//
// With limits and a custom output writer:
//
//	stack, err := embed.Execute(mem, code,
//	    embed.WithTimeout(5*time.Second),
//	    embed.WithMaxSteps(100000),
//	    embed.WithOutput(&buf),
//	)
package embed

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/crcx/retroforth/pkg/device"
	"github.com/crcx/retroforth/pkg/vm"
)

// Common errors
var (
	ErrTimeout   = errors.New("execution timeout exceeded")
	ErrStepLimit = errors.New("step limit exceeded")
)

// Options configures a machine built by New.
type Options struct {
	// Memory is the machine size in cells. Zero keeps the image size.
	Memory int

	// NameOffset is the header field holding the word name.
	NameOffset int

	// Timeout sets maximum execution time. Zero means no timeout.
	Timeout time.Duration

	// MaxSteps limits the number of bundles the machine executes.
	// Zero means unlimited.
	MaxSteps int64

	// Args is the host argument vector seen by the scripting device.
	Args []string

	Output io.Writer
	Logger *slog.Logger

	// Devices replaces the default device set.
	Devices []vm.Device

	LegacyConsole bool
	Stats         bool

	// Context for cancellation. If nil, context.Background() is used.
	Context context.Context
}

// Option is a functional option for configuring execution.
type Option func(*Options)

// WithMemory sets the machine size in cells.
func WithMemory(cells int) Option {
	return func(o *Options) {
		o.Memory = cells
	}
}

// WithNameOffset sets the dictionary name field offset.
func WithNameOffset(n int) Option {
	return func(o *Options) {
		o.NameOffset = n
	}
}

// WithTimeout sets execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxSteps sets the step limit.
func WithMaxSteps(n int64) Option {
	return func(o *Options) {
		o.MaxSteps = n
	}
}

// WithArgs sets the scripting argument vector.
func WithArgs(args ...string) Option {
	return func(o *Options) {
		o.Args = args
	}
}

// WithOutput sets where console output goes.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Output = w
	}
}

// WithLogger sets the machine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithDevices replaces the default devices.
func WithDevices(devs ...vm.Device) Option {
	return func(o *Options) {
		o.Devices = devs
	}
}

// WithLegacyConsole enables the 1000 console opcode used by older images.
func WithLegacyConsole() Option {
	return func(o *Options) {
		o.LegacyConsole = true
	}
}

// WithStats enables execution statistics.
func WithStats() Option {
	return func(o *Options) {
		o.Stats = true
	}
}

// WithContext sets the context for cancellation.
func WithContext(ctx context.Context) Option {
	return func(o *Options) {
		o.Context = ctx
	}
}

func buildOptions(opts []Option) *Options {
	options := &Options{
		NameOffset: 4,
		Output:     os.Stdout,
		Context:    context.Background(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// New builds a machine over a copy of image.
func New(image vm.Memory, opts ...Option) (*vm.VM, error) {
	options := buildOptions(opts)
	if options.Devices == nil {
		options.Devices = device.Default()
	}

	size := max(options.Memory, len(image))
	mem := vm.NewMemory(size)
	copy(mem, image)

	vmOpts := []vm.Option{
		vm.WithNameOffset(options.NameOffset),
		vm.WithDevices(options.Devices...),
		vm.WithOutput(options.Output),
		vm.WithLegacyConsole(options.LegacyConsole),
		vm.WithArgs(options.Args),
	}
	if options.Logger != nil {
		vmOpts = append(vmOpts, vm.WithLogger(options.Logger))
	}
	machine, err := vm.New(mem, vmOpts...)
	if err != nil {
		return nil, err
	}
	machine.SetMaxSteps(options.MaxSteps)
	machine.SetContext(options.Context)
	if options.Stats {
		machine.EnableStats()
	}
	return machine, nil
}

// Load reads an image file and builds a machine over it.
func Load(path string, opts ...Option) (*vm.VM, error) {
	options := buildOptions(opts)
	mem, err := vm.LoadImage(path, options.Memory, true)
	if err != nil {
		return nil, err
	}
	return New(mem, opts...)
}

// Execute evaluates the whitespace separated tokens of code on a fresh
// machine built from image and returns the data stack, bottom first.
func Execute(image vm.Memory, code string, opts ...Option) ([]vm.Cell, error) {
	machine, err := New(image, opts...)
	if err != nil {
		return nil, err
	}
	defer device.Close(machine.Devices())

	if err := Run(machine, strings.NewReader(code), opts...); err != nil {
		return nil, err
	}
	return machine.Data().Values(), nil
}

// ExecuteFile includes a literate source file on a fresh machine built
// from image and returns the data stack.
func ExecuteFile(image vm.Memory, path string, opts ...Option) ([]vm.Cell, error) {
	machine, err := New(image, opts...)
	if err != nil {
		return nil, err
	}
	defer device.Close(machine.Devices())

	err = withLimits(machine, opts, func() error {
		return machine.Include(path)
	})
	if err != nil {
		return nil, err
	}
	return machine.Data().Values(), nil
}

// Run evaluates every token read from r on machine, stopping at the first
// fault or when the scripting device requests an abort.
func Run(machine *vm.VM, r io.Reader, opts ...Option) error {
	return withLimits(machine, opts, func() error {
		scanner := bufio.NewScanner(r)
		scanner.Split(bufio.ScanWords)
		for scanner.Scan() {
			if err := machine.Evaluate(scanner.Text()); err != nil {
				return err
			}
			if machine.Script().Abort {
				machine.Script().Abort = false
				return nil
			}
		}
		return scanner.Err()
	})
}

// withLimits applies the timeout of opts around fn and maps limit errors
// to this package's errors.
func withLimits(machine *vm.VM, opts []Option, fn func() error) error {
	options := buildOptions(opts)
	ctx := options.Context
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}
	machine.SetContext(ctx)

	err := fn()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vm.ErrStepLimitExceeded):
		return errors.Join(ErrStepLimit, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	}
	return err
}
