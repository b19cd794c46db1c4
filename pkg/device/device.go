// Package device implements the host devices reached through the Nga
// ienumerate/iquery/iinvoke instructions.
//
// Device ids follow the order of the slice returned by Default:
//
//	0 console     character output
//	1 float       floating point stack
//	2 files       file I/O over a small slot table
//	3 rng         random numbers
//	4 clock       wall clock and calendar
//	5 scripting   arguments, nested includes, source position
//	6 decimal     arbitrary precision decimal stack
package device

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/crcx/retroforth/pkg/vm"
)

// Device kinds reported by iquery.
const (
	KindConsole   vm.Cell = 0
	KindFloat     vm.Cell = 2
	KindFiles     vm.Cell = 4
	KindClock     vm.Cell = 5
	KindScripting vm.Cell = 9
	KindRNG       vm.Cell = 10
	KindDecimal   vm.Cell = 11
)

// Error definitions
var (
	ErrFloatUnderflow   = errors.New("float stack underflow")
	ErrDecimalUnderflow = errors.New("decimal stack underflow")
	ErrBadSlot          = errors.New("invalid file slot")
)

// Options configures the default device set.
type Options struct {
	Now       func() time.Time
	Rand      *rand.Rand
	Precision uint32
}

// Option is a functional option for Default.
type Option func(*Options)

// WithClock sets the time source of the clock device.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// WithRand sets the random source of the rng device.
func WithRand(r *rand.Rand) Option {
	return func(o *Options) {
		o.Rand = r
	}
}

// WithPrecision sets the decimal device precision in digits.
func WithPrecision(p uint32) Option {
	return func(o *Options) {
		o.Precision = p
	}
}

// Default returns the standard devices in id order.
func Default(opts ...Option) []vm.Device {
	o := &Options{
		Now:       time.Now,
		Precision: DefaultPrecision,
	}
	for _, opt := range opts {
		opt(o)
	}
	return []vm.Device{
		NewConsole(),
		NewFloat(),
		NewFiles(),
		NewRNG(o.Rand),
		NewClock(o.Now),
		NewScripting(),
		NewDecimal(o.Precision),
	}
}

// Close releases host resources held by devs, such as open files.
func Close(devs []vm.Device) error {
	var errs []error
	for _, d := range devs {
		if c, ok := d.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// action pops the action selector.
func action(m vm.Machine) (vm.Cell, error) {
	return m.Data().Pop()
}

// inject pops an address and writes s there.
func inject(m vm.Machine, s string) (vm.Cell, error) {
	addr, err := m.Data().Pop()
	if err != nil {
		return 0, err
	}
	if _, err := m.Memory().InjectString(s, addr); err != nil {
		return 0, fmt.Errorf("injecting string: %w", err)
	}
	return addr, nil
}

// extract pops an address and reads the string stored there.
func extract(m vm.Machine) (string, error) {
	addr, err := m.Data().Pop()
	if err != nil {
		return "", err
	}
	return m.Memory().ExtractString(addr)
}
