package skills

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// fakeConnector records the last query it received and replays canned rows.
type fakeConnector struct {
	lastQuery  string
	lastParams map[string]any
	rows       []map[string]any
	err        error
}

func (c *fakeConnector) Query(_ context.Context, query string, params map[string]any) ([]map[string]any, error) {
	c.lastQuery = query
	c.lastParams = params
	if c.err != nil {
		return nil, c.err
	}
	return c.rows, nil
}

func TestCompileToolNative(t *testing.T) {
	impls := Implementations{
		"test.echo": {Func: func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		}},
	}
	tool, err := CompileTool(ToolDecl{
		Name:           "echo",
		Description:    "echo text back",
		Parameters:     []ParameterSpec{{Name: "text", Type: "string", Required: true}},
		Implementation: "test.echo",
	}, nil, impls, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	out, err := tool.Invoke(context.Background(), map[string]any{"text": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hi" {
		t.Errorf("got %v, want hi", out)
	}
}

func TestCompileToolBothStrategies(t *testing.T) {
	decl := ToolDecl{
		Name:           "confused",
		Description:    "declares both",
		Implementation: "test.echo",
		QueryTemplate:  "SELECT 1",
	}
	_, err := CompileTool(decl, nil, Implementations{}, testLogger())
	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %v", err)
	}

	decl.Implementation = ""
	decl.QueryTemplate = ""
	if _, err := CompileTool(decl, nil, Implementations{}, testLogger()); err == nil {
		t.Error("declaration with neither strategy accepted")
	}
}

func TestCompileToolUnresolvedLocator(t *testing.T) {
	_, err := CompileTool(ToolDecl{
		Name:           "ghost",
		Description:    "points nowhere",
		Implementation: "test.missing",
	}, nil, Implementations{}, testLogger())

	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if cerr.Tool != "ghost" {
		t.Errorf("error names tool %q, want ghost", cerr.Tool)
	}
}

func TestCompileToolFactoryInjection(t *testing.T) {
	conn := &fakeConnector{rows: []map[string]any{{"id": "CC-1"}}}
	impls := Implementations{
		"test.lookup": {Factory: func(c Connector) ToolFunc {
			return func(ctx context.Context, _ map[string]any) (any, error) {
				return c.Query(ctx, "SELECT * FROM t", nil)
			}
		}},
	}

	tool, err := CompileTool(ToolDecl{
		Name:           "lookup",
		Description:    "uses the connector",
		Implementation: "test.lookup",
	}, conn, impls, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	out, err := tool.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	rows, ok := out.([]map[string]any)
	if !ok || len(rows) != 1 {
		t.Errorf("unexpected result %v", out)
	}
}

func TestCompileToolFactoryWithoutConnector(t *testing.T) {
	impls := Implementations{
		"test.lookup": {Factory: func(Connector) ToolFunc {
			return func(context.Context, map[string]any) (any, error) { return nil, nil }
		}},
	}
	_, err := CompileTool(ToolDecl{
		Name:           "lookup",
		Description:    "needs a connector",
		Implementation: "test.lookup",
	}, nil, impls, testLogger())

	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %v", err)
	}
}

func TestQueryTemplateRewriting(t *testing.T) {
	conn := &fakeConnector{rows: []map[string]any{{"id": "CC-1"}}}
	tool, err := CompileTool(ToolDecl{
		Name:        "find",
		Description: "find by id",
		Parameters: []ParameterSpec{
			{Name: "id", Type: "string", Required: true},
		},
		QueryTemplate: "SELECT * FROM cost_centers WHERE id = {id} AND region = {id}",
	}, conn, Implementations{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	out, err := tool.Invoke(context.Background(), map[string]any{"id": "CC-1"})
	if err != nil {
		t.Fatal(err)
	}

	// Placeholders become driver bind markers; the value never appears in
	// the query text.
	want := "SELECT * FROM cost_centers WHERE id = :id AND region = :id"
	if conn.lastQuery != want {
		t.Errorf("query = %q, want %q", conn.lastQuery, want)
	}
	if conn.lastParams["id"] != "CC-1" {
		t.Errorf("params = %v", conn.lastParams)
	}

	result := out.(map[string]any)
	if result["row_count"] != 1 {
		t.Errorf("row_count = %v", result["row_count"])
	}
	if result["truncated"] != false {
		t.Errorf("truncated = %v", result["truncated"])
	}
}

func TestQueryTemplateInjectionValueIsBound(t *testing.T) {
	conn := &fakeConnector{}
	tool, err := CompileTool(ToolDecl{
		Name:          "find",
		Description:   "find by id",
		Parameters:    []ParameterSpec{{Name: "id", Type: "string", Required: true}},
		QueryTemplate: "SELECT * FROM t WHERE id = {id}",
	}, conn, Implementations{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	hostile := "x'; DROP TABLE t; --"
	if _, err := tool.Invoke(context.Background(), map[string]any{"id": hostile}); err != nil {
		t.Fatal(err)
	}
	if conn.lastQuery != "SELECT * FROM t WHERE id = :id" {
		t.Errorf("hostile value leaked into query text: %q", conn.lastQuery)
	}
	if conn.lastParams["id"] != hostile {
		t.Errorf("hostile value not passed as bind parameter: %v", conn.lastParams)
	}
}

func TestQueryTemplateMissingParameter(t *testing.T) {
	conn := &fakeConnector{}
	tool, err := CompileTool(ToolDecl{
		Name:          "find",
		Description:   "find by id",
		Parameters:    []ParameterSpec{{Name: "id", Type: "string"}},
		QueryTemplate: "SELECT * FROM t WHERE id = {id}",
	}, conn, Implementations{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = tool.Invoke(context.Background(), map[string]any{"id": nil})
	var eerr *ExecutionError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	if eerr.Category != CategoryMissingParameter {
		t.Errorf("category = %s, want %s", eerr.Category, CategoryMissingParameter)
	}
}

func TestQueryTemplateWithoutConnector(t *testing.T) {
	_, err := CompileTool(ToolDecl{
		Name:          "find",
		Description:   "find by id",
		QueryTemplate: "SELECT * FROM t",
	}, nil, Implementations{}, testLogger())

	var cerr *CompileError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompileError, got %v", err)
	}
}

func TestQueryTemplateRowCap(t *testing.T) {
	rows := make([]map[string]any, maxQueryRows+20)
	for i := range rows {
		rows[i] = map[string]any{"n": fmt.Sprintf("%d", i)}
	}
	conn := &fakeConnector{rows: rows}

	tool, err := CompileTool(ToolDecl{
		Name:          "all",
		Description:   "fetch everything",
		QueryTemplate: "SELECT * FROM t",
	}, conn, Implementations{}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	out, err := tool.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	result := out.(map[string]any)
	if result["row_count"] != maxQueryRows {
		t.Errorf("row_count = %v, want %d", result["row_count"], maxQueryRows)
	}
	if result["truncated"] != true {
		t.Error("truncated flag not set")
	}
}
