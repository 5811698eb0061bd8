package ingestion

import (
	"context"
	"fmt"
	"slices"

	"github.com/poiesic/kbindex/core"
	"github.com/xuri/excelize/v2"
)

// XLSXSource reads staging sheets from per-connector workbooks.
// The first row of a sheet is the header.
type XLSXSource struct {
	root string
}

// NewXLSXSource creates a source rooted at root.
func NewXLSXSource(root string) *XLSXSource {
	return &XLSXSource{root: root}
}

// Path returns the workbook holding path's connector.
func (s *XLSXSource) Path(path StagingPath) string {
	return connectorFile(s.root, path, ".xlsx")
}

// Fetch returns every data row of the staging sheet as a record.
func (s *XLSXSource) Fetch(ctx context.Context, path StagingPath) ([]core.Record, error) {
	file := s.Path(path)
	f, err := excelize.OpenFile(file)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if !slices.Contains(f.GetSheetList(), path.Staging) {
		return nil, fmt.Errorf("%w: sheet %s in %s", ErrStagingNotFound, path.Staging, file)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := f.GetRows(path.Staging)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", path.Staging, err)
	}
	if len(rows) == 0 {
		return []core.Record{}, nil
	}
	return rowsToRecords(rows[0], rows[1:]), nil
}
