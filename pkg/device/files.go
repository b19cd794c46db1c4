package device

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/crcx/retroforth/pkg/vm"
)

// File actions.
const (
	FileOpen vm.Cell = iota
	FileClose
	FileRead
	FileWrite
	FilePosition
	FileSeek
	FileSize
	FileDelete
	FileFlush
)

// File open modes.
const (
	ModeRead   vm.Cell = 0
	ModeWrite  vm.Cell = 1
	ModeAppend vm.Cell = 2
	ModeUpdate vm.Cell = 3
)

// MaxFiles is the size of the slot table. Slot 0 is never used so that a
// failed open can return 0.
const MaxFiles = 10

// Files gives bytecode byte-level access to host files through numbered
// slots. Host I/O failures are reported in-band; using a slot that is not
// open is a fault.
type Files struct {
	slots [MaxFiles]*os.File
}

// NewFiles creates the file device.
func NewFiles() *Files {
	return &Files{}
}

func (f *Files) Query() (revision, kind vm.Cell) {
	return 0, KindFiles
}

// Close closes every open slot.
func (f *Files) Close() error {
	var errs []error
	for i, fh := range f.slots {
		if fh != nil {
			errs = append(errs, fh.Close())
			f.slots[i] = nil
		}
	}
	return errors.Join(errs...)
}

func (f *Files) freeSlot() int {
	for i := 1; i < MaxFiles; i++ {
		if f.slots[i] == nil {
			return i
		}
	}
	return 0
}

func (f *Files) slot(m vm.Machine) (vm.Cell, *os.File, error) {
	n, err := m.Data().Pop()
	if err != nil {
		return 0, nil, err
	}
	if n <= 0 || n >= MaxFiles || f.slots[n] == nil {
		return n, nil, fmt.Errorf("%w: %d", ErrBadSlot, n)
	}
	return n, f.slots[n], nil
}

func openFlags(mode vm.Cell) (int, bool) {
	switch mode {
	case ModeRead:
		return os.O_RDONLY, true
	case ModeWrite:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC, true
	case ModeAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND, true
	case ModeUpdate:
		return os.O_RDWR, true
	}
	return 0, false
}

func (f *Files) Invoke(m vm.Machine) error {
	a, err := action(m)
	if err != nil {
		return err
	}
	data := m.Data()

	switch a {
	case FileOpen:
		mode, err := data.Pop()
		if err != nil {
			return err
		}
		name, err := extract(m)
		if err != nil {
			return err
		}
		data.Push(vm.Cell(f.open(name, mode)))

	case FileClose:
		n, fh, err := f.slot(m)
		if err != nil {
			return err
		}
		_ = fh.Close()
		f.slots[n] = nil

	case FileRead:
		_, fh, err := f.slot(m)
		if err != nil {
			return err
		}
		var b [1]byte
		if _, err := io.ReadFull(fh, b[:]); err != nil {
			data.Push(0)
			return nil
		}
		data.Push(vm.Cell(b[0]))

	case FileWrite:
		_, fh, err := f.slot(m)
		if err != nil {
			return err
		}
		c, err := data.Pop()
		if err != nil {
			return err
		}
		_, _ = fh.Write([]byte{byte(c)})

	case FilePosition:
		_, fh, err := f.slot(m)
		if err != nil {
			return err
		}
		pos, err := fh.Seek(0, io.SeekCurrent)
		if err != nil {
			pos = -1
		}
		data.Push(vm.Cell(pos))

	case FileSeek:
		_, fh, err := f.slot(m)
		if err != nil {
			return err
		}
		pos, err := data.Pop()
		if err != nil {
			return err
		}
		_, _ = fh.Seek(int64(pos), io.SeekStart)

	case FileSize:
		_, fh, err := f.slot(m)
		if err != nil {
			return err
		}
		info, err := fh.Stat()
		if err != nil || info.IsDir() {
			data.Push(0)
			return nil
		}
		data.Push(vm.Cell(info.Size()))

	case FileDelete:
		name, err := extract(m)
		if err != nil {
			return err
		}
		_ = os.Remove(name)

	case FileFlush:
		_, fh, err := f.slot(m)
		if err != nil {
			return err
		}
		_ = fh.Sync()

	default:
		return vm.ActionError("files", a)
	}
	return nil
}

// open returns the slot of the newly opened file, or 0.
func (f *Files) open(name string, mode vm.Cell) int {
	n := f.freeSlot()
	if n == 0 {
		return 0
	}
	flags, ok := openFlags(mode)
	if !ok {
		return 0
	}
	fh, err := os.OpenFile(name, flags, 0644)
	if err != nil {
		return 0
	}
	f.slots[n] = fh
	return n
}
