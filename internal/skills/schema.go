package skills

import (
	"fmt"
	"log/slog"
	"math"
)

// paramKind is the closed set of parameter types.
type paramKind int

const (
	kindString paramKind = iota
	kindInteger
	kindNumber
	kindBoolean
	kindArray
	kindObject
)

var kindNames = map[paramKind]string{
	kindString:  "string",
	kindInteger: "integer",
	kindNumber:  "number",
	kindBoolean: "boolean",
	kindArray:   "array",
	kindObject:  "object",
}

// Schema is the structural validator compiled from a tool's parameter list.
// A schema is built once per tool at compile time and reused for every call.
type Schema struct {
	tool   string
	fields []schemaField
}

type schemaField struct {
	spec   ParameterSpec
	kind   paramKind
	nested *Schema // object parameters carry a child schema
}

// BuildSchema compiles an ordered parameter list into a Schema. All failures
// here are compile-time: duplicate names and defaults on required parameters
// are CompileErrors. Unknown type strings fall back to string with a
// diagnostic.
func BuildSchema(tool string, specs []ParameterSpec, logger *slog.Logger) (*Schema, error) {
	s := &Schema{tool: tool, fields: make([]schemaField, 0, len(specs))}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, &CompileError{Tool: tool, Err: fmt.Errorf("parameter with empty name")}
		}
		if seen[spec.Name] {
			return nil, &CompileError{Tool: tool, Err: fmt.Errorf("duplicate parameter %q", spec.Name)}
		}
		seen[spec.Name] = true

		kind, known := parseKind(spec.Type)
		if !known {
			logger.Warn("unknown parameter type, defaulting to string",
				"tool", tool, "parameter", spec.Name, "type", spec.Type)
			kind = kindString
		}

		if spec.Required && spec.Default != nil {
			return nil, &CompileError{Tool: tool,
				Err: fmt.Errorf("required parameter %q must not declare a default", spec.Name)}
		}

		field := schemaField{spec: spec, kind: kind}
		if kind == kindObject && len(spec.Properties) > 0 {
			nested, err := BuildSchema(tool+"."+spec.Name, spec.Properties, logger)
			if err != nil {
				return nil, err
			}
			field.nested = nested
		}
		s.fields = append(s.fields, field)
	}
	return s, nil
}

func parseKind(t string) (paramKind, bool) {
	switch t {
	case "string", "":
		return kindString, true
	case "integer", "int":
		return kindInteger, true
	case "number", "float":
		return kindNumber, true
	case "boolean", "bool":
		return kindBoolean, true
	case "array", "list":
		return kindArray, true
	case "object", "dict":
		return kindObject, true
	}
	return kindString, false
}

// Validate checks args against the schema and returns the resolved argument
// map: declared values type-checked, missing optional parameters filled with
// their default or nil. Mismatches come back as a ValidationError, never a
// panic. Undeclared keys are ignored, matching lenient model output.
func (s *Schema) Validate(args map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(s.fields))
	var issues []string

	for _, f := range s.fields {
		val, present := args[f.spec.Name]
		if !present || val == nil {
			if f.spec.Required {
				issues = append(issues, fmt.Sprintf("missing required parameter %q", f.spec.Name))
				continue
			}
			if f.spec.Default != nil {
				resolved[f.spec.Name] = f.spec.Default
			} else {
				resolved[f.spec.Name] = nil
			}
			continue
		}

		coerced, err := checkValue(f, val)
		if err != nil {
			issues = append(issues, err.Error())
			continue
		}
		resolved[f.spec.Name] = coerced
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Tool: s.tool, Issues: issues}
	}
	return resolved, nil
}

// checkValue type-checks one JSON-decoded value against a field.
func checkValue(f schemaField, val any) (any, error) {
	name := f.spec.Name
	switch f.kind {
	case kindString:
		if s, ok := val.(string); ok {
			return s, nil
		}
	case kindInteger:
		switch v := val.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			// JSON numbers decode as float64; accept integral values only.
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		}
	case kindNumber:
		switch v := val.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case kindBoolean:
		if b, ok := val.(bool); ok {
			return b, nil
		}
	case kindArray:
		if a, ok := val.([]any); ok {
			return a, nil
		}
	case kindObject:
		obj, ok := val.(map[string]any)
		if !ok {
			break
		}
		if f.nested != nil {
			return f.nested.Validate(obj)
		}
		return obj, nil
	}
	return nil, fmt.Errorf("parameter %q: expected %s, got %T", name, kindNames[f.kind], val)
}

// LLMSchema renders the schema as a JSON-schema-shaped map for provider
// tool binding.
func (s *Schema) LLMSchema() map[string]any {
	props := make(map[string]any, len(s.fields))
	var required []string

	for _, f := range s.fields {
		prop := map[string]any{"type": kindNames[f.kind]}
		if f.spec.Description != "" {
			prop["description"] = f.spec.Description
		}
		if f.spec.Default != nil {
			prop["default"] = f.spec.Default
		}
		if f.nested != nil {
			child := f.nested.LLMSchema()
			prop["properties"] = child["properties"]
			if req, ok := child["required"]; ok {
				prop["required"] = req
			}
		}
		props[f.spec.Name] = prop
		if f.spec.Required {
			required = append(required, f.spec.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Parameters returns the number of declared parameters.
func (s *Schema) Parameters() int { return len(s.fields) }
