package skills

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
)

// strategy is the closed union of tool execution strategies: a native
// function bound from the locator table, or a parameterized query template
// run through the skill's connector.
type strategy interface {
	invoke(ctx context.Context, args map[string]any) (any, error)
}

type nativeStrategy struct {
	fn ToolFunc
}

func (s *nativeStrategy) invoke(ctx context.Context, args map[string]any) (any, error) {
	return s.fn(ctx, args)
}

// maxQueryRows caps the rows returned to the model from a template query.
const maxQueryRows = 100

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

type queryStrategy struct {
	tool  string
	conn  Connector
	query string   // rewritten with native :name bind markers
	keys  []string // placeholder names, in order of first appearance
}

func (s *queryStrategy) invoke(ctx context.Context, args map[string]any) (any, error) {
	params := make(map[string]any, len(s.keys))
	for _, key := range s.keys {
		val, ok := args[key]
		if !ok || val == nil {
			return nil, &ExecutionError{
				Tool:     s.tool,
				Category: CategoryMissingParameter,
				Err:      fmt.Errorf("query template parameter %q not supplied", key),
			}
		}
		params[key] = val
	}

	rows, err := s.conn.Query(ctx, s.query, params)
	if err != nil {
		return nil, err
	}

	truncated := false
	if len(rows) > maxQueryRows {
		rows = rows[:maxQueryRows]
		truncated = true
	}
	return map[string]any{
		"row_count": len(rows),
		"rows":      rows,
		"truncated": truncated,
	}, nil
}

// compileQueryTemplate rewrites {name} placeholders to the connector's
// native named bind markers and records the required keys. Values are bound
// by the driver at call time; nothing is ever interpolated into the query
// text.
func compileQueryTemplate(tool, template string, conn Connector) (*queryStrategy, error) {
	if conn == nil {
		return nil, &CompileError{Tool: tool, Err: fmt.Errorf("query template requires a connector")}
	}

	seen := make(map[string]bool)
	var keys []string
	query := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		return ":" + key
	})

	return &queryStrategy{tool: tool, conn: conn, query: query, keys: keys}, nil
}

// CompileTool builds one invocable Tool from a declaration, the owning
// skill's connector (may be nil), and the process-wide locator table. Any
// failure is a CompileError naming the tool; the caller fails the whole
// skill so no partial tool sets are produced.
func CompileTool(decl ToolDecl, conn Connector, impls Implementations, logger *slog.Logger) (*Tool, error) {
	if decl.Name == "" {
		return nil, &CompileError{Err: fmt.Errorf("tool declaration missing name")}
	}
	if decl.Description == "" {
		return nil, &CompileError{Tool: decl.Name, Err: fmt.Errorf("missing description")}
	}

	hasImpl := decl.Implementation != ""
	hasQuery := decl.QueryTemplate != ""
	if hasImpl == hasQuery {
		return nil, &CompileError{Tool: decl.Name,
			Err: fmt.Errorf("exactly one of implementation and query_template must be set")}
	}

	schema, err := BuildSchema(decl.Name, decl.Parameters, logger)
	if err != nil {
		return nil, err
	}

	var strat strategy
	if hasImpl {
		strat, err = resolveLocator(decl.Name, decl.Implementation, conn, impls)
	} else {
		strat, err = compileQueryTemplate(decl.Name, decl.QueryTemplate, conn)
	}
	if err != nil {
		return nil, err
	}

	return &Tool{
		Name:        decl.Name,
		Description: decl.Description,
		Schema:      schema,
		strategy:    strat,
	}, nil
}

// resolveLocator binds a locator key to a registered implementation.
// Connector-aware factories get the skill's connector injected here, once,
// so the capability never appears in the tool's argument surface.
func resolveLocator(tool, locator string, conn Connector, impls Implementations) (strategy, error) {
	impl, ok := impls[locator]
	if !ok {
		return nil, &CompileError{Tool: tool, Err: fmt.Errorf("unresolved locator %q", locator)}
	}

	switch {
	case impl.Func != nil && impl.Factory != nil:
		return nil, &CompileError{Tool: tool,
			Err: fmt.Errorf("locator %q registers both a function and a factory", locator)}
	case impl.Func != nil:
		return &nativeStrategy{fn: impl.Func}, nil
	case impl.Factory != nil:
		if conn == nil {
			return nil, &CompileError{Tool: tool,
				Err: fmt.Errorf("locator %q requires a connector but the skill declares none", locator)}
		}
		fn := impl.Factory(conn)
		if fn == nil {
			return nil, &CompileError{Tool: tool,
				Err: fmt.Errorf("locator %q factory returned no function", locator)}
		}
		return &nativeStrategy{fn: fn}, nil
	default:
		return nil, &CompileError{Tool: tool,
			Err: fmt.Errorf("locator %q has no registered implementation", locator)}
	}
}
