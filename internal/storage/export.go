package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	asyncwriter "github.com/LuCh-Ans/ProductDB/internal/storage/async-writer"
)

const exportBufferSize = 64 << 10

const csvHeader = "ID;Name;Price;BrandId;CategoryId;VolumeWeight;Description"

// ExportCSV writes every live record to a semicolon separated file and
// returns the path written. The extension of path is replaced by .csv
// unless it already is one.
func (e *Engine) ExportCSV(path string) (string, error) {
	if !e.IsOpen() {
		return "", ErrNotOpen
	}

	records, err := e.AllRecords()
	if err != nil {
		return "", err
	}

	path = csvPath(path)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, e.opts.fileMode)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}

	w := asyncwriter.NewAsyncWriterSize(f, exportBufferSize)
	if err := errors.Join(writeCSV(w, records), w.Close()); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %w", ErrIO, path, err)
	}

	e.logger.Info("csv exported", zap.String("dest", path), zap.Int("records", len(records)))
	return path, nil
}

func writeCSV(w io.StringWriter, records []Product) error {
	if _, err := w.WriteString(csvHeader + "\n"); err != nil {
		return err
	}
	for i := range records {
		if _, err := w.WriteString(csvRow(&records[i]) + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func csvRow(p *Product) string {
	return fmt.Sprintf("%d;%s;%.2f;%d;%d;%s;%s",
		p.ID,
		csvText(p.Name),
		p.Price,
		p.BrandID,
		p.CategoryID,
		csvText(p.VolumeWeight),
		csvText(p.Description),
	)
}

// csvText keeps the delimiter out of free text.
func csvText(s string) string {
	return strings.ReplaceAll(s, ";", ",")
}

func csvPath(path string) string {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".csv") {
		return path
	}
	return strings.TrimSuffix(path, ext) + ".csv"
}
