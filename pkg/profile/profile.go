// Package profile turns VM execution statistics into a dataframe and moves
// it in and out of CSV, JSON lines and Parquet files.
//
// Every profile has four columns:
//
//	kind     opcode, hot or call
//	name     opcode name, hot word name or the word owning a call target
//	address  opcode number, word xt or call target
//	count    times executed
package profile

import (
	"context"
	"errors"
	"fmt"
	"slices"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/samber/lo"

	"github.com/crcx/retroforth/pkg/vm"
)

// Row kinds.
const (
	KindOpcode = "opcode"
	KindHot    = "hot"
	KindCall   = "call"
)

// Column names.
const (
	ColKind    = "kind"
	ColName    = "name"
	ColAddress = "address"
	ColCount   = "count"
)

// Error definitions
var (
	ErrNoStats       = errors.New("no execution statistics")
	ErrEmptyProfile  = errors.New("empty profile")
	ErrUnknownFormat = errors.New("unknown profile format")
)

// Row is one profile entry.
type Row struct {
	Kind    string
	Name    string
	Address int64
	Count   int64
}

// Rows flattens stats into rows: opcodes in opcode order, then hot words
// and call targets by address. dict may be nil, leaving call names empty.
func Rows(stats *vm.ExecutionStats, dict *vm.Dictionary) []Row {
	var rows []Row
	for op := vm.Opcode(0); op < vm.NumOpcodes; op++ {
		if n := stats.OpCounts[op.String()]; n > 0 {
			rows = append(rows, Row{Kind: KindOpcode, Name: op.String(), Address: int64(op), Count: n})
		}
	}

	var hot []Row
	for name, n := range stats.HotHits {
		var xt vm.Cell
		if dict != nil {
			xt, _ = dict.XT(name)
		}
		hot = append(hot, Row{Kind: KindHot, Name: name, Address: int64(xt), Count: n})
	}
	slices.SortFunc(hot, func(a, b Row) int {
		if a.Address != b.Address {
			return int(a.Address - b.Address)
		}
		if a.Name < b.Name {
			return -1
		}
		return 1
	})
	rows = append(rows, hot...)

	targets := lo.Keys(stats.Calls)
	slices.Sort(targets)
	for _, target := range targets {
		var name string
		if dict != nil {
			name, _ = dict.NameForXT(target)
		}
		rows = append(rows, Row{Kind: KindCall, Name: name, Address: int64(target), Count: stats.Calls[target]})
	}
	return rows
}

// Build returns the profile of stats as a dataframe.
func Build(stats *vm.ExecutionStats, dict *vm.Dictionary) (*dataframe.DataFrame, error) {
	if stats == nil {
		return nil, ErrNoStats
	}
	return FromRows(Rows(stats, dict)), nil
}

// FromRows builds a profile dataframe from rows.
func FromRows(rows []Row) *dataframe.DataFrame {
	kinds := make([]interface{}, len(rows))
	names := make([]interface{}, len(rows))
	addrs := make([]interface{}, len(rows))
	counts := make([]interface{}, len(rows))
	for i, r := range rows {
		kinds[i] = r.Kind
		names[i] = r.Name
		addrs[i] = r.Address
		counts[i] = r.Count
	}
	return dataframe.NewDataFrame(
		dataframe.NewSeriesString(ColKind, nil, kinds...),
		dataframe.NewSeriesString(ColName, nil, names...),
		dataframe.NewSeriesInt64(ColAddress, nil, addrs...),
		dataframe.NewSeriesInt64(ColCount, nil, counts...),
	)
}

// ToRows reads a profile dataframe back into rows. Missing values become
// zero values.
func ToRows(df *dataframe.DataFrame) ([]Row, error) {
	for _, col := range []string{ColKind, ColName, ColAddress, ColCount} {
		if _, err := df.NameToColumn(col); err != nil {
			return nil, fmt.Errorf("profile column %s: %w", col, err)
		}
	}

	n := df.NRows()
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		vals := df.Row(i, false, dataframe.SeriesName)
		rows = append(rows, Row{
			Kind:    asString(vals[ColKind]),
			Name:    asString(vals[ColName]),
			Address: asInt(vals[ColAddress]),
			Count:   asInt(vals[ColCount]),
		})
	}
	return rows, nil
}

// Top returns the n rows with the highest counts. n <= 0 returns all rows.
func Top(ctx context.Context, df *dataframe.DataFrame, n int) ([]Row, error) {
	sorted := df.Copy()
	sorted.Sort(ctx, []dataframe.SortKey{
		{Key: ColCount, Desc: true},
		{Key: ColAddress},
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := ToRows(sorted)
	if err != nil {
		return nil, err
	}
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows, nil
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asInt(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
