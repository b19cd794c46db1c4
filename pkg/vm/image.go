package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// Image file format:
// - A raw sequence of little-endian signed 32-bit cells, no header.
// - Cell 0 is loaded at address 0; the rest of memory is zero-filled.
// - Saved images are truncated after the cell recorded at address 3 ("here").

// Reserved control cells.
const (
	AddrDictionary Cell = 2 // most recent dictionary header
	AddrHere       Cell = 3 // next free cell
	AddrInterpret  Cell = 5 // interpret word, used when the dictionary lacks one
	AddrNotFound   Cell = 6 // not-found handler, same
	AddrTIB        Cell = 7 // text input buffer address

	DefaultMemorySize = 1000000
)

// Memory is the VM's flat cell array.
type Memory []Cell

// NewMemory allocates zeroed memory of the given number of cells.
func NewMemory(size int) Memory {
	return make(Memory, size)
}

// Fetch returns memory[addr].
func (m Memory) Fetch(addr Cell) (Cell, error) {
	if addr < 0 || int(addr) >= len(m) {
		return 0, fmt.Errorf("%w: fetch %d", ErrAddressRange, addr)
	}
	return m[addr], nil
}

// Store sets memory[addr] = v.
func (m Memory) Store(addr, v Cell) error {
	if addr < 0 || int(addr) >= len(m) {
		return fmt.Errorf("%w: store %d", ErrAddressRange, addr)
	}
	m[addr] = v
	return nil
}

// Here returns the next free cell as recorded in control cell 3.
func (m Memory) Here() Cell {
	if len(m) <= int(AddrHere) {
		return 0
	}
	return m[AddrHere]
}

// ExtractCells reads a zero-terminated string starting at addr and returns
// its cells unchanged.
func (m Memory) ExtractCells(addr Cell) ([]Cell, error) {
	var buf []Cell
	for {
		c, err := m.Fetch(addr)
		if err != nil {
			return nil, err
		}
		if c == 0 {
			return buf, nil
		}
		buf = append(buf, c)
		addr++
	}
}

// ExtractString reads a zero-terminated string starting at addr. Each cell
// holds one character code; cells that are not valid code points become
// U+FFFD, so the result is for display only.
func (m Memory) ExtractString(addr Cell) (string, error) {
	cells, err := m.ExtractCells(addr)
	if err != nil {
		return "", err
	}
	s, _ := cellsText(cells)
	return s, nil
}

// cellsText converts cells to a string and reports whether the conversion
// is lossless.
func cellsText(cells []Cell) (string, bool) {
	exact := true
	buf := make([]rune, len(cells))
	for i, c := range cells {
		r := rune(c)
		if !utf8.ValidRune(r) {
			exact = false
		}
		buf[i] = r
	}
	return string(buf), exact
}

// textCells is the inverse of cellsText for valid text.
func textCells(s string) []Cell {
	var cells []Cell
	for _, r := range s {
		cells = append(cells, Cell(r))
	}
	return cells
}

// InjectString writes s followed by a terminating zero starting at addr.
// It returns addr.
func (m Memory) InjectString(s string, addr Cell) (Cell, error) {
	at := addr
	for _, r := range s {
		if err := m.Store(at, Cell(r)); err != nil {
			return 0, err
		}
		at++
	}
	if err := m.Store(at, 0); err != nil {
		return 0, err
	}
	return addr, nil
}

// DecodeImage converts raw image bytes to cells.
func DecodeImage(data []byte) ([]Cell, error) {
	if len(data)%CellBytes != 0 {
		return nil, ErrImageSize
	}
	cells := make([]Cell, len(data)/CellBytes)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, cells); err != nil {
		return nil, fmt.Errorf("decoding cells: %w", err)
	}
	return cells, nil
}

// EncodeImage converts cells to raw image bytes.
func EncodeImage(cells []Cell) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(cells) * CellBytes)
	// writing to a bytes.Buffer cannot fail
	_ = binary.Write(buf, binary.LittleEndian, cells)
	return buf.Bytes()
}

// ReadImage reads a whole image from r.
func ReadImage(r io.Reader) ([]Cell, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return DecodeImage(data)
}

// WriteImage writes cells to w in image format.
func WriteImage(w io.Writer, cells []Cell) error {
	if err := binary.Write(w, binary.LittleEndian, cells); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}

// LoadImage reads the image at path into a fresh memory of size cells.
// When grow is set, memory is enlarged to fit a bigger image instead of
// failing.
func LoadImage(path string, size int, grow bool) (Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageError{Path: path, Err: err}
	}
	cells, err := DecodeImage(data)
	if err != nil {
		return nil, &ImageError{Path: path, Err: err}
	}
	if len(cells) > size {
		if !grow {
			return nil, &ImageError{Path: path, Err: fmt.Errorf("%w: %d cells, memory is %d", ErrImageTooLarge, len(cells), size)}
		}
		size = len(cells)
	}
	mem := NewMemory(size)
	copy(mem, cells)
	return mem, nil
}

// Image returns the cells that make up a saved image: everything up to and
// including "here" when shrink is set, all of memory otherwise.
func (m Memory) Image(shrink bool) []Cell {
	if !shrink {
		return m
	}
	end := int(m.Here()) + 1
	if end <= 0 || end > len(m) {
		end = len(m)
	}
	return m[:end]
}

// Save writes the memory image to path.
func (m Memory) Save(path string, shrink bool) error {
	if err := os.WriteFile(path, EncodeImage(m.Image(shrink)), 0644); err != nil {
		return &ImageError{Path: path, Err: err}
	}
	return nil
}
