package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
)

// Format is a profile file format.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
	FormatParquet
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json", ".jsonl":
		return FormatJSON, nil
	case ".parquet":
		return FormatParquet, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Export writes df to path in the format named by its extension.
func Export(ctx context.Context, df *dataframe.DataFrame, path string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	if format == FormatParquet {
		fw, err := local.NewLocalFileWriter(path)
		if err != nil {
			return err
		}
		codec := parquet.CompressionCodec_SNAPPY
		if err := exports.ExportToParquet(ctx, fw, df, exports.ParquetExportOptions{
			CompressionType: &codec,
		}); err != nil {
			fw.Close()
			return fmt.Errorf("export parquet: %w", err)
		}
		return fw.Close()
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if format == FormatCSV {
		err = exports.ExportToCSV(ctx, file, df)
	} else {
		err = exports.ExportToJSON(ctx, file, df)
	}
	if err != nil {
		file.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return file.Close()
}

// dictated fixes column types so a reloaded profile matches a built one.
var dictated = map[string]interface{}{
	ColKind:    "",
	ColName:    "",
	ColAddress: int64(0),
	ColCount:   int64(0),
}

// Load reads a profile written by Export.
func Load(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	var df *dataframe.DataFrame
	switch format {
	case FormatParquet:
		fr, err := local.NewLocalFileReader(path)
		if err != nil {
			return nil, err
		}
		defer fr.Close()
		df, err = imports.LoadFromParquet(ctx, fr)
		if err != nil {
			return nil, fmt.Errorf("load parquet: %w", err)
		}

	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		if format == FormatCSV {
			df, err = imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
				DictateDataType: dictated,
			})
		} else {
			df, err = imports.LoadFromJSON(ctx, file, imports.JSONLoadOptions{
				DictateDataType: dictated,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyProfile
	}
	return df, nil
}
