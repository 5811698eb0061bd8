package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/kbindex/core"
)

// SQLiteSource reads staging tables from per-connector SQLite files.
type SQLiteSource struct {
	root string
}

// NewSQLiteSource creates a source rooted at root.
func NewSQLiteSource(root string) *SQLiteSource {
	return &SQLiteSource{root: root}
}

// Path returns the database file holding path's connector.
func (s *SQLiteSource) Path(path StagingPath) string {
	return connectorFile(s.root, path, ".db")
}

// Fetch returns every row of the staging table as a record. NULL becomes "".
func (s *SQLiteSource) Fetch(ctx context.Context, path StagingPath) ([]core.Record, error) {
	file := s.Path(path)
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("opening connector database: %w", err)
	}

	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("opening connector database: %w", err)
	}
	defer db.Close()

	var name string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = ?", path.Staging).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s in %s", ErrStagingNotFound, path.Staging, file)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up staging table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(name))
	if err != nil {
		return nil, fmt.Errorf("querying staging table: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var records []core.Record
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r := make(core.Record, len(cols))
		for i, col := range cols {
			r[col] = core.TextValue(values[i])
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return records, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
