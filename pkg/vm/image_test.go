package vm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestImage_EncodeDecode(t *testing.T) {
	cells := []Cell{0, 1, -1, MaxCell, MinCell, 1000}
	data := EncodeImage(cells)
	if len(data) != len(cells)*CellBytes {
		t.Fatalf("expected %d bytes, got %d", len(cells)*CellBytes, len(data))
	}
	// little-endian: 1 is 01 00 00 00
	if data[4] != 1 || data[5] != 0 {
		t.Errorf("expected little-endian encoding, got % x", data[4:8])
	}

	decoded, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if diff := cmp.Diff(cells, decoded); diff != "" {
		t.Errorf("decoded cells mismatch (-want +got):\n%s", diff)
	}
}

func TestImage_DecodeBadSize(t *testing.T) {
	if _, err := DecodeImage([]byte{1, 2, 3}); !errors.Is(err, ErrImageSize) {
		t.Errorf("expected ErrImageSize, got %v", err)
	}
}

func TestImage_LoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ngaImage")
	if err := os.WriteFile(path, EncodeImage([]Cell{5, 6, 7}), 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	mem, err := LoadImage(path, 100, false)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if len(mem) != 100 {
		t.Errorf("expected 100 cells, got %d", len(mem))
	}
	if mem[2] != 7 || mem[3] != 0 {
		t.Errorf("unexpected memory contents: %v", mem[:4])
	}
}

func TestImage_LoadImageTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ngaImage")
	if err := os.WriteFile(path, EncodeImage(make([]Cell, 20)), 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	_, err := LoadImage(path, 10, false)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	var imgErr *ImageError
	if !errors.As(err, &imgErr) || imgErr.Path != path {
		t.Errorf("expected ImageError for %s, got %v", path, err)
	}

	mem, err := LoadImage(path, 10, true)
	if err != nil {
		t.Fatalf("LoadImage with grow failed: %v", err)
	}
	if len(mem) != 20 {
		t.Errorf("expected memory grown to 20 cells, got %d", len(mem))
	}
}

func TestImage_LoadImageOddSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ngaImage")
	if err := os.WriteFile(path, []byte{1, 2, 3, 4, 5}, 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	if _, err := LoadImage(path, 10, false); !errors.Is(err, ErrImageSize) {
		t.Errorf("expected ErrImageSize, got %v", err)
	}
}

func TestImage_SaveShrink(t *testing.T) {
	mem := NewMemory(50)
	mem[AddrHere] = 9
	mem[9] = 42
	mem[30] = 1

	path := filepath.Join(t.TempDir(), "out")
	if err := mem.Save(path, true); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadImage(path, 50, false)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if loaded[9] != 42 || loaded[30] != 0 {
		t.Errorf("expected cells through here only, got [9]=%d [30]=%d", loaded[9], loaded[30])
	}

	info, _ := os.Stat(path)
	if info.Size() != 10*CellBytes {
		t.Errorf("expected %d bytes, got %d", 10*CellBytes, info.Size())
	}
}

func TestMemory_Strings(t *testing.T) {
	mem := NewMemory(32)
	if _, err := mem.InjectString("héllo", 10); err != nil {
		t.Fatalf("InjectString failed: %v", err)
	}
	if mem[11] != 'é' || mem[15] != 0 {
		t.Errorf("expected one rune per cell, got %v", mem[10:16])
	}
	s, err := mem.ExtractString(10)
	if err != nil {
		t.Fatalf("ExtractString failed: %v", err)
	}
	if s != "héllo" {
		t.Errorf("expected %q, got %q", "héllo", s)
	}

	if _, err := mem.InjectString("too long", 28); !errors.Is(err, ErrAddressRange) {
		t.Errorf("expected ErrAddressRange, got %v", err)
	}
}

func TestMemory_ExtractCellsLossless(t *testing.T) {
	mem := NewMemory(40)
	mem[20], mem[30] = -1, -2

	a, err := mem.ExtractCells(20)
	if err != nil {
		t.Fatalf("ExtractCells failed: %v", err)
	}
	b, err := mem.ExtractCells(30)
	if err != nil {
		t.Fatalf("ExtractCells failed: %v", err)
	}
	if diff := cmp.Diff([]Cell{-1}, a); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
	if cmp.Equal(a, b) {
		t.Errorf("expected %v and %v to differ", a, b)
	}

	if _, exact := cellsText(a); exact {
		t.Error("expected -1 to be reported as a lossy conversion")
	}
	if _, exact := cellsText([]Cell{'o', 'k'}); !exact {
		t.Error("expected plain text to convert losslessly")
	}
}

func TestMemory_Bounds(t *testing.T) {
	mem := NewMemory(4)
	if _, err := mem.Fetch(4); !errors.Is(err, ErrAddressRange) {
		t.Errorf("expected ErrAddressRange on fetch, got %v", err)
	}
	if err := mem.Store(-1, 0); !errors.Is(err, ErrAddressRange) {
		t.Errorf("expected ErrAddressRange on store, got %v", err)
	}
}
