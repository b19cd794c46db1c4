// Package testutil provides testing utilities for retroforth tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crcx/retroforth/pkg/assembler"
	"github.com/crcx/retroforth/pkg/vm"
)

// TempFile creates a temporary file with the given content and extension.
// The file is automatically cleaned up when the test finishes.
func TempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test"+ext)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// Fenced wraps code lines in a code block.
func Fenced(lines ...string) string {
	s := "~~~\n"
	for _, l := range lines {
		s += l + "\n"
	}
	return s + "~~~\n"
}

// TinyTIB is where the tiny image keeps its text input buffer.
const TinyTIB = 900

// TinySource returns the assembly source of a minimal working image.
//
// The image carries a dictionary (name offset 4) with:
//
//	interpret      look a token up; run it if found, else parse it as a number
//	err:notfound   drop the token
//	s:to-number    bytecode falls through to err:notfound
//	s:eq? s:length d:lookup d:add-header
//	add1           n -> n+1
//	emit           c -> ; console output through device 0
//	square         n -> n*n
//	halt           stop the machine
func TinySource() string {
	return `# tiny image

Control block: entry jump, dictionary head, here, unused, interpret,
not-found handler and TIB address.

~~~
i liju....
r main
r h-halt
r end
d 0
r interpret
r err:notfound
d 900
: main
i ha......
~~~

Words.

~~~
: err:notfound
i drre....
: s:to-number
i liju....
r err:notfound
: s:eq?
i re......
: s:length
i re......
: d:add-header
i re......
: which
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
d 0
: d:lookup
i re......
: add1
i liadre..
d 1
: emit
i liiire..
d 0
: square
i dumure..
: halt
i ha......
~~~

The interpreter picks a target without branching: found when the
header is non-zero, number otherwise.

~~~
: interpret
i dulica..
r d:lookup
i dulineli
d 0
r found
i lisuanli
r number
r number
i adju....
: found
i swdrliad
d 1
i feju....
: number
i drliju..
r s:to-number
~~~

Headers: link, xt, class, doc, name.

~~~
: h-interpret
d 0
r interpret
d 0
d 0
s interpret
: h-notfound
r h-interpret
r err:notfound
d 0
d 0
s err:notfound
: h-to-number
r h-notfound
r s:to-number
d 0
d 0
s s:to-number
: h-eq
r h-to-number
r s:eq?
d 0
d 0
s s:eq?
: h-length
r h-eq
r s:length
d 0
d 0
s s:length
: h-add-header
r h-length
r d:add-header
d 0
d 0
s d:add-header
: h-lookup
r h-add-header
r d:lookup
d 0
d 0
s d:lookup
: h-add1
r h-lookup
r add1
d 0
d 0
s add1
: h-emit
r h-add1
r emit
d 0
d 0
s emit
: h-square
r h-emit
r square
d 0
d 0
s square
: h-halt
r h-square
r halt
d 0
d 0
s halt
: end
~~~
`
}

// TinyImage assembles TinySource and loads it into a memory of size cells.
func TinyImage(t *testing.T, size int) vm.Memory {
	t.Helper()
	img := AssembleImage(t, TinySource())
	return img.Memory(size)
}

// AssembleImage assembles src or fails the test.
func AssembleImage(t *testing.T, src string) *assembler.Image {
	t.Helper()
	img, err := assembler.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	return img
}

// TinyImageFile writes the tiny image to a temporary file and returns its
// path.
func TinyImageFile(t *testing.T) string {
	t.Helper()
	img := AssembleImage(t, TinySource())
	path := filepath.Join(t.TempDir(), "ngaImage")
	if err := os.WriteFile(path, img.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}
