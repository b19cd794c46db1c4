// Package assembler builds Nga images from literate assembly source.
//
// Source is markdown-like text; only lines between fence lines (~~~) are
// assembled. Each code line starts with a directive character:
//
//	i liadre..   instruction bundle, up to four mnemonics
//	d 42         data cell
//	r main       address of a label
//	s hello      characters followed by a zero cell
//	: main       define a label at the current address
//
// Assembly takes two passes over the same parsed directives: the first
// assigns addresses to labels, the second emits cells.
package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/crcx/retroforth/pkg/vm"
)

// DefaultImageCells is the size of an assembled image.
const DefaultImageCells = 1024

// Error definitions
var (
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrUndefinedLabel  = errors.New("undefined label")
	ErrBadDirective    = errors.New("malformed directive")
	ErrBadNumber       = errors.New("malformed number")
	ErrImageOverflow   = errors.New("image overflow")
	ErrCursorDrift     = errors.New("cursor drift between passes")
)

// Options configures assembly.
type Options struct {
	Fence      string
	ImageCells int
}

// Option is a functional option for Assemble.
type Option func(*Options)

// WithFence sets the code block marker.
func WithFence(fence string) Option {
	return func(o *Options) {
		o.Fence = fence
	}
}

// WithImageCells sets the size of the output image.
func WithImageCells(n int) Option {
	return func(o *Options) {
		o.ImageCells = n
	}
}

func defaultOptions() *Options {
	return &Options{
		Fence:      DefaultFence,
		ImageCells: DefaultImageCells,
	}
}

// Image is an assembled image.
type Image struct {
	Cells  []vm.Cell
	Labels map[string]vm.Cell
	Used   int // cells emitted by the source

	listing []listed
}

type listed struct {
	addr int
	d    Directive
}

// Assemble assembles src into an image.
func Assemble(src string, opts ...Option) (*Image, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	directives, err := NewParser(src, o.Fence).Parse()
	if err != nil {
		return nil, err
	}

	a := &assembler{
		directives: directives,
		labels:     make(map[string]vm.Cell),
		cells:      make([]vm.Cell, o.ImageCells),
	}
	if err := a.pass1(); err != nil {
		return nil, err
	}
	if err := a.pass2(); err != nil {
		return nil, err
	}

	return &Image{
		Cells:   a.cells,
		Labels:  a.labels,
		Used:    a.cursor,
		listing: a.listing,
	}, nil
}

type assembler struct {
	directives []Directive
	labels     map[string]vm.Cell
	cells      []vm.Cell
	cursor     int
	listing    []listed
}

// pass1 assigns addresses to labels. A label defined twice keeps its last
// address.
func (a *assembler) pass1() error {
	cursor := 0
	for _, d := range a.directives {
		if d.Kind == KindLabel {
			a.labels[d.Arg] = vm.Cell(cursor)
		}
		cursor += d.Size()
	}
	if cursor > len(a.cells) {
		return fmt.Errorf("%w: %d cells needed, image holds %d", ErrImageOverflow, cursor, len(a.cells))
	}
	return nil
}

// pass2 emits cells.
func (a *assembler) pass2() error {
	for _, d := range a.directives {
		start := a.cursor
		if err := a.emitDirective(d); err != nil {
			return fmt.Errorf("line %d: %w", d.Line, err)
		}
		if a.cursor-start != d.Size() {
			return fmt.Errorf("line %d: %w: emitted %d cells, expected %d", d.Line, ErrCursorDrift, a.cursor-start, d.Size())
		}
		if d.Kind == KindLabel && a.labels[d.Arg] != vm.Cell(start) && a.isLastDefinition(d) {
			return fmt.Errorf("line %d: %w: label %s at %d, expected %d", d.Line, ErrCursorDrift, d.Arg, start, a.labels[d.Arg])
		}
		a.listing = append(a.listing, listed{addr: start, d: d})
	}
	return nil
}

func (a *assembler) isLastDefinition(d Directive) bool {
	for i := len(a.directives) - 1; i >= 0; i-- {
		other := a.directives[i]
		if other.Kind == KindLabel && other.Arg == d.Arg {
			return other.Line == d.Line
		}
	}
	return false
}

func (a *assembler) emit(c vm.Cell) error {
	if a.cursor >= len(a.cells) {
		return fmt.Errorf("%w: at cell %d", ErrImageOverflow, a.cursor)
	}
	a.cells[a.cursor] = c
	a.cursor++
	return nil
}

func (a *assembler) emitDirective(d Directive) error {
	switch d.Kind {
	case KindInstruction:
		return a.emit(vm.Cell(vm.EncodeBundle(d.Ops[:]...)))

	case KindData:
		return a.emit(d.Data)

	case KindReference:
		addr, ok := a.labels[d.Arg]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUndefinedLabel, d.Arg)
		}
		return a.emit(addr)

	case KindString:
		for _, r := range d.Arg {
			if err := a.emit(vm.Cell(r)); err != nil {
				return err
			}
		}
		return a.emit(0)
	}
	return nil
}

// Bytes returns the image in little-endian file format.
func (img *Image) Bytes() []byte {
	return vm.EncodeImage(img.Cells)
}

// WriteTo writes the image in file format.
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(img.Bytes())
	return int64(n), err
}

// Memory returns a VM memory of size cells holding the image.
func (img *Image) Memory(size int) vm.Memory {
	if size < len(img.Cells) {
		size = len(img.Cells)
	}
	mem := vm.NewMemory(size)
	copy(mem, img.Cells)
	return mem
}

// Listing returns the address of every directive alongside its source,
// followed by the label table.
func (img *Image) Listing() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("; %d of %d cells used\n\n", img.Used, len(img.Cells)))
	for _, l := range img.listing {
		switch l.d.Kind {
		case KindLabel:
			buf.WriteString(fmt.Sprintf("%06d  : %s\n", l.addr, l.d.Arg))
		case KindInstruction:
			bundle := vm.EncodeBundle(l.d.Ops[:]...)
			buf.WriteString(fmt.Sprintf("%06d    i %s  (%d)\n", l.addr, bundle, int32(bundle)))
		default:
			buf.WriteString(fmt.Sprintf("%06d    %s %s\n", l.addr, l.d.Kind, l.d.Arg))
		}
	}

	names := make([]string, 0, len(img.Labels))
	for name := range img.Labels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ai, aj := img.Labels[names[i]], img.Labels[names[j]]
		if ai != aj {
			return ai < aj
		}
		return names[i] < names[j]
	})
	buf.WriteString("\n; labels\n")
	for _, name := range names {
		buf.WriteString(fmt.Sprintf("%06d  %s\n", img.Labels[name], name))
	}
	return buf.String()
}
