// Package skills discovers declaratively-defined skills from a directory
// tree, compiles their tool declarations into invocable tools, and indexes
// them in a hot-reloadable registry.
package skills

import (
	"context"
	"sort"
	"time"
)

// Connector is the capability handle a tool may require, supplied by the
// host through the loader's connector table. It is declared locally so this
// package depends only on the query contract (see internal/connectors).
type Connector interface {
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Manifest represents parsed SKILL.md frontmatter metadata.
type Manifest struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Version     string         `yaml:"version"`
	Author      string         `yaml:"author"`
	Domain      string         `yaml:"domain"`
	Tags        []string       `yaml:"tags"`
	Connector   string         `yaml:"connector"`
	License     string         `yaml:"license"`
	Metadata    map[string]any `yaml:"metadata"`
}

// Enabled reports whether the skill should be served. Absent means enabled.
func (m Manifest) Enabled() bool {
	if v, ok := m.Metadata["enabled"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return true
}

// ParameterSpec describes one declared tool parameter. Specs are fixed at
// compile time; the schema builder turns a list of them into a validator.
type ParameterSpec struct {
	Name        string          `yaml:"name" toml:"name"`
	Type        string          `yaml:"type" toml:"type"`
	Description string          `yaml:"description" toml:"description"`
	Required    bool            `yaml:"required" toml:"required"`
	Default     any             `yaml:"default" toml:"default"`
	Properties  []ParameterSpec `yaml:"properties" toml:"properties"`
}

// ToolDecl is one entry in a skill's tool declaration file. Exactly one of
// Implementation and QueryTemplate must be set.
type ToolDecl struct {
	Name           string          `yaml:"name" toml:"name"`
	Description    string          `yaml:"description" toml:"description"`
	Parameters     []ParameterSpec `yaml:"parameters" toml:"parameters"`
	Implementation string          `yaml:"implementation" toml:"implementation"`
	QueryTemplate  string          `yaml:"query_template" toml:"query_template"`
}

// ToolFunc is the native execution contract for tool implementations.
// Arguments arrive already validated and resolved against the tool's schema.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Implementation is one entry in the locator table. Exactly one field must
// be set: Func for plain implementations, Factory for implementations that
// need the skill's connector bound at compile time. The connector is never
// exposed to the model as an argument.
type Implementation struct {
	Func    ToolFunc
	Factory func(conn Connector) ToolFunc
}

// Implementations is the explicit registration table mapping locator keys
// to implementations. It is built once at process start, before loading.
type Implementations map[string]Implementation

// Tool is one compiled, invocable capability exposed to the model.
type Tool struct {
	Name        string
	Description string
	Schema      *Schema
	strategy    strategy
}

// Invoke executes the tool's bound strategy. Callers are expected to have
// validated args through Schema first.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.strategy.invoke(ctx, args)
}

// Skill is a fully loaded skill: manifest, prompt, compiled tools, and
// knowledge references. Immutable once built; replaced wholesale on reload.
type Skill struct {
	Manifest       Manifest
	Prompt         string
	Tools          map[string]*Tool
	KnowledgePaths []string
	Dir            string
	LoadedAt       time.Time
}

// ToolNames returns the skill's tool names in sorted order.
func (s *Skill) ToolNames() []string {
	names := make([]string, 0, len(s.Tools))
	for n := range s.Tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
