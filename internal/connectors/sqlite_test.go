package connectors

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	c, err := NewSQLite("test", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	if err := c.Exec(ctx, `CREATE TABLE cost_centers (id TEXT PRIMARY KEY, name TEXT, budget REAL)`, nil); err != nil {
		t.Fatal(err)
	}
	seed := []map[string]any{
		{"id": "CC-1001", "name": "IT Operations", "budget": 500000.0},
		{"id": "CC-1002", "name": "Marketing", "budget": 750000.0},
	}
	for _, row := range seed {
		err := c.Exec(ctx, `INSERT INTO cost_centers (id, name, budget) VALUES (:id, :name, :budget)`, row)
		if err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestSQLiteQueryNamedParams(t *testing.T) {
	c := openTestDB(t)

	rows, err := c.Query(context.Background(),
		`SELECT * FROM cost_centers WHERE id = :id`,
		map[string]any{"id": "CC-1002"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0]["name"] != "Marketing" {
		t.Errorf("name = %v", rows[0]["name"])
	}
}

func TestSQLiteQueryAll(t *testing.T) {
	c := openTestDB(t)

	rows, err := c.Query(context.Background(), `SELECT id FROM cost_centers ORDER BY id`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0]["id"] != "CC-1001" {
		t.Errorf("first row = %v", rows[0])
	}
}

func TestSQLiteQueryNoMatch(t *testing.T) {
	c := openTestDB(t)

	rows, err := c.Query(context.Background(),
		`SELECT * FROM cost_centers WHERE id = :id`,
		map[string]any{"id": "CC-9999"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %v", rows)
	}
}

func TestSQLiteBindValueNeverInterpolated(t *testing.T) {
	c := openTestDB(t)

	// A hostile value bound through a named parameter is just data.
	hostile := `x'; DROP TABLE cost_centers; --`
	if _, err := c.Query(context.Background(),
		`SELECT * FROM cost_centers WHERE id = :id`,
		map[string]any{"id": hostile}); err != nil {
		t.Fatal(err)
	}

	rows, err := c.Query(context.Background(), `SELECT * FROM cost_centers`, nil)
	if err != nil {
		t.Fatalf("table gone after hostile bind value: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d", len(rows))
	}
}

func TestSQLitePing(t *testing.T) {
	c := openTestDB(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
