package connectors

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is a Connector backed by a local SQLite database.
type SQLite struct {
	name string
	db   *sql.DB
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(name, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite handles a single writer; cap the pool to avoid lock churn.
	db.SetMaxOpenConns(1)
	return &SQLite{name: name, db: db}, nil
}

func (c *SQLite) Name() string { return c.name }

// Query runs a query with named parameters (":key" placeholders) and
// returns the result set as one map per row.
func (c *SQLite) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.name, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec runs a statement that returns no rows (schema setup, seeding).
func (c *SQLite) Exec(ctx context.Context, stmt string, params map[string]any) error {
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}
	_, err := c.db.ExecContext(ctx, stmt, args...)
	return err
}

func (c *SQLite) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *SQLite) Close() error { return c.db.Close() }
