package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/kbindex/core"
)

// Source reads the records of a staging table.
type Source interface {
	Fetch(ctx context.Context, path StagingPath) ([]core.Record, error)
}

// Fetch reads path from src. Any failure is logged as core.ErrIngestion and
// results in an empty, non-nil record set so the build can proceed.
func Fetch(ctx context.Context, src Source, path StagingPath, logger *slog.Logger) []core.Record {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ingestion", "staging", path.String())

	if src == nil {
		logger.Warn("ingestion failed, continuing with no records", "error", fmt.Errorf("%w: %w", core.ErrIngestion, ErrSourceRequired))
		return []core.Record{}
	}

	records, err := src.Fetch(ctx, path)
	if err != nil {
		if !errors.Is(err, core.ErrIngestion) {
			err = fmt.Errorf("%w: %w", core.ErrIngestion, err)
		}
		logger.Warn("ingestion failed, continuing with no records", "error", err)
		return []core.Record{}
	}
	if records == nil {
		records = []core.Record{}
	}
	logger.Info("records fetched", "count", len(records))
	return records
}

// connectorFile returns <root>/<org>/<env>/<connector><ext>.
func connectorFile(root string, path StagingPath, ext string) string {
	return filepath.Join(root, path.Organization, path.Environment, path.Connector+ext)
}

// rowsToRecords pairs each row with header. Short rows are padded with "".
func rowsToRecords(header []string, rows [][]string) []core.Record {
	records := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		r := make(core.Record, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(row) {
				r[col] = row[i]
			} else {
				r[col] = ""
			}
		}
		records = append(records, r)
	}
	return records
}
