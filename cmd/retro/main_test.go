package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crcx/retroforth/internal/testutil"
	"github.com/crcx/retroforth/pkg/vm"
)

// runCLI runs the command line in-process and returns stdout.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestCLI_Help(t *testing.T) {
	out, err := runCLI(t, "", "help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, want := range []string{"Retro", "run", "asm", "disasm", "profile"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output should contain %q", want)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "retro version") {
		t.Errorf("expected version output, got: %s", out)
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	if _, err := runCLI(t, "", "frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestCLI_Asm(t *testing.T) {
	src := testutil.TempFile(t, testutil.TinySource(), ".muri")
	image := filepath.Join(t.TempDir(), "ngaImage")

	out, err := runCLI(t, "", "asm", "-o", image, "-l", src)
	if err != nil {
		t.Fatalf("asm failed: %v", err)
	}
	if !strings.Contains(out, "Assembled: "+image) || !strings.Contains(out, "; labels") {
		t.Errorf("unexpected asm output: %s", out)
	}

	data, err := os.ReadFile(image)
	if err != nil {
		t.Fatalf("image was not written: %v", err)
	}
	if len(data) != 1024*vm.CellBytes {
		t.Errorf("expected %d bytes, got %d", 1024*vm.CellBytes, len(data))
	}
}

func TestCLI_AsmError(t *testing.T) {
	src := testutil.TempFile(t, testutil.Fenced("i xx......"), ".muri")
	image := filepath.Join(t.TempDir(), "ngaImage")
	_, err := runCLI(t, "", "asm", "-o", image, src)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected error on line 2, got %v", err)
	}
	if _, err := os.Stat(image); !os.IsNotExist(err) {
		t.Error("no image should be written on error")
	}
}

func TestCLI_RunFile(t *testing.T) {
	image := testutil.TinyImageFile(t)
	src := testutil.TempFile(t, testutil.Fenced("72 emit 105 emit"), ".retro")

	out, err := runCLI(t, "", "run", "-image", image, "-memory", "8192", src)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "Hi" {
		t.Errorf("expected Hi, got %q", out)
	}
}

func TestCLI_RunListener(t *testing.T) {
	image := testutil.TinyImageFile(t)
	out, err := runCLI(t, "3 add1\n.s\nbye\n", "run", "-image", image, "-memory", "8192")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "<1> 4") {
		t.Errorf("expected stack listing, got %q", out)
	}
}

func TestCLI_RunMissingImage(t *testing.T) {
	_, err := runCLI(t, "", "run", "-image", filepath.Join(t.TempDir(), "none"), "x.retro")
	if err == nil {
		t.Fatal("expected error for missing image")
	}
}

func TestCLI_RunImageTooLarge(t *testing.T) {
	image := testutil.TinyImageFile(t)
	src := testutil.TempFile(t, testutil.Fenced("72 emit"), ".retro")

	_, err := runCLI(t, "", "run", "-image", image, "-memory", "100", src)
	if !errors.Is(err, vm.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}

	out, err := runCLI(t, "", "run", "-image", image, "-memory", "100", "-grow", src)
	if err != nil {
		t.Fatalf("run with -grow failed: %v", err)
	}
	if out != "H" {
		t.Errorf("expected H, got %q", out)
	}
}

func TestCLI_RunArtifacts(t *testing.T) {
	dir := t.TempDir()
	image := testutil.TinyImageFile(t)
	src := testutil.TempFile(t, testutil.Fenced("20 add1 square"), ".retro")
	prof := filepath.Join(dir, "prof.csv")
	snap := filepath.Join(dir, "state.cbor")
	saved := filepath.Join(dir, "saved")

	if _, err := runCLI(t, "", "run", "-image", image, "-memory", "8192",
		"-stats", prof, "-snapshot", snap, "-u", saved, src); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, err := runCLI(t, "", "profile", "-top", "5", prof)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if !strings.Contains(out, "opcode") || !strings.Contains(out, "COUNT") {
		t.Errorf("unexpected profile output: %s", out)
	}

	out, err = runCLI(t, "", "snapshot", snap)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !strings.Contains(out, "data: 441") {
		t.Errorf("expected data stack in summary, got: %s", out)
	}

	mem, err := vm.LoadImage(saved, 8192, false)
	if err != nil {
		t.Fatalf("saved image failed to load: %v", err)
	}
	if mem.Here() == 0 {
		t.Error("expected saved image to keep here")
	}
}

func TestCLI_Disasm(t *testing.T) {
	image := testutil.TinyImageFile(t)
	out, err := runCLI(t, "", "disasm", image)
	if err != nil {
		t.Fatalf("disasm failed: %v", err)
	}
	for _, want := range []string{"; Disassembled from Nga image", "; add1", "000000: i liju...."} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q", want)
		}
	}
}

func TestSplitScriptArgs(t *testing.T) {
	flags, script := splitScriptArgs([]string{"-i", "a.retro", "--", "x", "-y"})
	if diff := cmp.Diff([]string{"-i", "a.retro"}, flags); diff != "" {
		t.Errorf("flag args mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x", "-y"}, script); diff != "" {
		t.Errorf("script args mismatch (-want +got):\n%s", diff)
	}
}
