package profile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/crcx/retroforth/internal/testutil"
	"github.com/crcx/retroforth/pkg/vm"
)

func sampleStats() *vm.ExecutionStats {
	return &vm.ExecutionStats{
		OpCounts: map[string]int64{"LIT": 5, "ADD": 2, "RETURN": 3},
		HotHits:  map[string]int64{},
		Calls:    map[vm.Cell]int64{40: 1, 12: 4},
	}
}

func TestRows_Order(t *testing.T) {
	rows := Rows(sampleStats(), nil)
	want := []Row{
		{KindOpcode, "LIT", 1, 5},
		{KindOpcode, "RETURN", 10, 3},
		{KindOpcode, "ADD", 17, 2},
		{KindCall, "", 12, 4},
		{KindCall, "", 40, 1},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_NamesFromDictionary(t *testing.T) {
	machine, err := vm.New(testutil.TinyImage(t, 4096))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	machine.EnableStats()
	if err := machine.Evaluate("3"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if err := machine.Evaluate("add1"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	df, err := Build(machine.Stats(), machine.Dictionary())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	rows, err := ToRows(df)
	if err != nil {
		t.Fatalf("ToRows failed: %v", err)
	}

	seen := map[string]bool{}
	for _, r := range rows {
		seen[r.Kind+":"+r.Name] = true
	}
	for _, want := range []string{"hot:d:lookup", "hot:s:to-number", "opcode:LIT"} {
		if !seen[want] {
			t.Errorf("expected row %s in %v", want, rows)
		}
	}
}

func TestBuild_NoStats(t *testing.T) {
	if _, err := Build(nil, nil); !errors.Is(err, ErrNoStats) {
		t.Errorf("expected ErrNoStats, got %v", err)
	}
}

func TestTop(t *testing.T) {
	df := FromRows(Rows(sampleStats(), nil))
	rows, err := Top(context.Background(), df, 2)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	want := []Row{
		{KindOpcode, "LIT", 1, 5},
		{KindCall, "", 12, 4},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("top rows mismatch (-want +got):\n%s", diff)
	}
	if df.NRows() != 5 {
		t.Errorf("Top must not reorder the input, got %d rows", df.NRows())
	}
}

func TestExportLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	want := []Row{
		{KindOpcode, "LIT", 1, 5},
		{KindHot, "s:eq?", 300, 7},
		{KindCall, "add1", 12, 4},
	}

	for _, ext := range []string{".csv", ".jsonl"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "profile"+ext)
			if err := Export(ctx, FromRows(want), path); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			df, err := Load(ctx, path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			got, err := ToRows(df)
			if err != nil {
				t.Fatalf("ToRows failed: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExportLoad_Parquet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profile.parquet")
	if err := Export(ctx, FromRows(Rows(sampleStats(), nil)), path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	df, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if df.NRows() != 5 {
		t.Errorf("expected 5 rows, got %d", df.NRows())
	}
}

func TestFormatFor(t *testing.T) {
	if f, _ := FormatFor("x.JSON"); f != FormatJSON {
		t.Errorf("expected FormatJSON, got %d", f)
	}
	if _, err := FormatFor("x.xlsx"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}
