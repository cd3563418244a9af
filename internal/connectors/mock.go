package connectors

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Mock is an in-memory Connector with named tables of rows. It understands
// just enough SQL for query-template tools and tests:
//
//	SELECT * FROM <table> [WHERE <col> = :<param>] [LIMIT <n>]
//
// Anything else returns an error, which keeps tests honest about what the
// mock can answer.
type Mock struct {
	name   string
	mu     sync.RWMutex
	tables map[string][]map[string]any
}

var mockQueryRe = regexp.MustCompile(
	`(?i)^\s*SELECT\s+\*\s+FROM\s+(\w+)` +
		`(?:\s+WHERE\s+(\w+)\s*=\s*:(\w+))?` +
		`(?:\s+LIMIT\s+(\d+))?\s*;?\s*$`)

// NewMock creates a mock connector seeded with the given tables.
func NewMock(name string, tables map[string][]map[string]any) *Mock {
	if tables == nil {
		tables = make(map[string][]map[string]any)
	}
	return &Mock{name: name, tables: tables}
}

func (c *Mock) Name() string { return c.name }

func (c *Mock) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := mockQueryRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("mock connector %s: unsupported query: %s", c.name, query)
	}
	table, col, param, limitStr := m[1], m[2], m[3], m[4]

	c.mu.RLock()
	rows, ok := c.tables[table]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mock connector %s: no such table %q", c.name, table)
	}

	var out []map[string]any
	for _, row := range rows {
		if col != "" {
			want, ok := params[param]
			if !ok {
				return nil, fmt.Errorf("mock connector %s: missing parameter %q", c.name, param)
			}
			if fmt.Sprint(row[col]) != fmt.Sprint(want) {
				continue
			}
		}
		// Copy so callers cannot mutate the seed data.
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}

	if limitStr != "" {
		limit, _ := strconv.Atoi(limitStr)
		if len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

// AddRow appends a row to a table, creating the table if needed.
func (c *Mock) AddRow(table string, row map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[table] = append(c.tables[table], row)
}

func (c *Mock) Ping(ctx context.Context) error { return ctx.Err() }

func (c *Mock) Close() error { return nil }

// Tables returns the table names, for diagnostics.
func (c *Mock) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	return names
}

// SampleTables returns a small reconciliation dataset used by the demo
// config and tests: cost centers with budget/actuals plus raw transactions.
func SampleTables() map[string][]map[string]any {
	return map[string][]map[string]any{
		"cost_centers": {
			{"id": "CC-1001", "name": "IT Operations", "manager": "John Smith", "fiscal_year": 2024, "budget": 500000, "actuals": 425000},
			{"id": "CC-1002", "name": "Marketing", "manager": "Jane Doe", "fiscal_year": 2024, "budget": 750000, "actuals": 620000},
			{"id": "CC-1003", "name": "Sales Operations", "manager": "Bob Johnson", "fiscal_year": 2024, "budget": 1200000, "actuals": 890000},
		},
		"transactions": {
			{"id": "TX-001", "cost_center": "CC-1001", "amount": 12500, "vendor": "Dell"},
			{"id": "TX-002", "cost_center": "CC-1001", "amount": 8300, "vendor": "AWS"},
			{"id": "TX-003", "cost_center": "CC-1002", "amount": 45000, "vendor": "AdWorks"},
		},
	}
}

// String implements fmt.Stringer for log output.
func (c *Mock) String() string {
	return fmt.Sprintf("mock(%s: %s)", c.name, strings.Join(c.Tables(), ","))
}
