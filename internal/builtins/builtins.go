// Package builtins registers the native tool implementations shipped with
// the binary. The locator table is built here once at process start; skill
// declarations bind to entries by key, never by dynamic lookup.
package builtins

import (
	"context"
	"fmt"

	"github.com/skillian-ai/skillian/internal/skills"
)

// Table returns the locator table with every builtin registered.
func Table() skills.Implementations {
	return skills.Implementations{
		"builtin.echo": {Func: echo},
		"builtin.sum":  {Func: sum},

		"financial.list_cost_centers": {Factory: listCostCenters},
		"financial.compare_budget":    {Factory: compareBudget},
	}
}

func echo(_ context.Context, args map[string]any) (any, error) {
	return map[string]any{"echo": args["text"]}, nil
}

func sum(_ context.Context, args map[string]any) (any, error) {
	a, aok := args["a"].(int64)
	b, bok := args["b"].(int64)
	if !aok || !bok {
		return nil, fmt.Errorf("sum requires integer arguments a and b")
	}
	return map[string]any{"sum": a + b}, nil
}

func listCostCenters(conn skills.Connector) skills.ToolFunc {
	return func(ctx context.Context, _ map[string]any) (any, error) {
		rows, err := conn.Query(ctx, "SELECT * FROM cost_centers", nil)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": len(rows), "cost_centers": rows}, nil
	}
}

// compareBudget reports budget vs actuals for one cost center, the core
// reconciliation check.
func compareBudget(conn skills.Connector) skills.ToolFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		rows, err := conn.Query(ctx,
			"SELECT * FROM cost_centers WHERE id = :cost_center_id",
			map[string]any{"cost_center_id": args["cost_center_id"]})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("cost center %v not found", args["cost_center_id"])
		}

		row := rows[0]
		budget := toFloat(row["budget"])
		actuals := toFloat(row["actuals"])
		variance := budget - actuals
		var pct float64
		if budget != 0 {
			pct = variance / budget * 100
		}

		status := "on_track"
		switch {
		case pct < 0:
			status = "over_budget"
		case pct > 20:
			status = "under_utilized"
		}

		return map[string]any{
			"cost_center":  row["id"],
			"name":         row["name"],
			"budget":       budget,
			"actuals":      actuals,
			"variance":     variance,
			"variance_pct": pct,
			"status":       status,
		}, nil
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
