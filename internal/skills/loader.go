package skills

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	markerFile     = "SKILL.md"
	toolsYAMLFile  = "tools.yaml"
	toolsTOMLFile  = "tools.toml"
	knowledgeDir   = "knowledge"
	reservedPrefix = "_"
)

// Loader discovers and loads skills from a root directory.
//
// Layout per skill:
//
//	<root>/<name>/SKILL.md     metadata frontmatter + prompt body (required)
//	<root>/<name>/tools.yaml   tool declarations (optional)
//	<root>/<name>/tools.toml   tool declarations, TOML syntax (optional)
//	<root>/<name>/knowledge/   documents for retrieval (optional)
type Loader struct {
	root       string
	connectors map[string]Connector
	impls      Implementations
	logger     *slog.Logger

	mu     sync.Mutex
	loaded map[string]*Skill
	mtimes map[string]time.Time
}

// NewLoader creates a loader. connectors maps capability names (as used by
// SKILL.md "connector" keys) to handles; impls is the locator table.
func NewLoader(root string, connectors map[string]Connector, impls Implementations, logger *slog.Logger) *Loader {
	return &Loader{
		root:       root,
		connectors: connectors,
		impls:      impls,
		logger:     logger.With("component", "skill_loader"),
		loaded:     make(map[string]*Skill),
		mtimes:     make(map[string]time.Time),
	}
}

// Discover returns the sorted names of loadable skill directories: one level
// deep, not reserved-prefixed, containing a SKILL.md, and not marked
// disabled in their manifest.
func (l *Loader) Discover() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read skills dir %s: %w", l.root, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), reservedPrefix) {
			continue
		}
		marker := filepath.Join(l.root, entry.Name(), markerFile)
		if _, err := os.Stat(marker); err != nil {
			continue
		}
		manifest, _, err := parseMarker(marker)
		if err != nil {
			// Malformed markers surface at Load time; discovery stays quiet.
			names = append(names, entry.Name())
			continue
		}
		if !manifest.Enabled() {
			l.logger.Debug("skill disabled, skipping", "skill", entry.Name())
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load parses and compiles a single skill directory. Any tool declaration
// that fails to compile fails the whole skill.
func (l *Loader) Load(name string) (*Skill, error) {
	skill, err := l.build(name, true)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.loaded[name] = skill
	l.mtimes[name] = l.maxMtime(name)
	l.mu.Unlock()

	l.logger.Info("loaded skill",
		"name", skill.Manifest.Name,
		"version", skill.Manifest.Version,
		"tools", len(skill.Tools),
	)
	return skill, nil
}

// LoadAll loads every discovered skill. A single skill's failure is
// recorded as a diagnostic and skipped; the rest continue loading.
func (l *Loader) LoadAll() ([]*Skill, []error) {
	names, err := l.Discover()
	if err != nil {
		return nil, []error{err}
	}

	var skills []*Skill
	var diags []error
	for _, name := range names {
		skill, err := l.Load(name)
		if err != nil {
			l.logger.Warn("failed to load skill", "skill", name, "error", err)
			diags = append(diags, err)
			continue
		}
		skills = append(skills, skill)
	}
	return skills, diags
}

// LoadMetadata parses a skill's manifest and prompt without compiling
// tools. Used by CLI listing, which must not require connectors.
func (l *Loader) LoadMetadata(name string) (*Skill, error) {
	return l.build(name, false)
}

// NeedsReload reports whether any of the skill's declared files changed
// since it was last loaded. Advisory only.
func (l *Loader) NeedsReload(name string) bool {
	l.mu.Lock()
	recorded, ok := l.mtimes[name]
	l.mu.Unlock()
	if !ok {
		return true
	}
	return l.maxMtime(name).After(recorded)
}

// Reload discards cached state and loads the skill fresh. The caller is
// responsible for publishing the result atomically (Registry.Update).
func (l *Loader) Reload(name string) (*Skill, error) {
	l.mu.Lock()
	delete(l.loaded, name)
	delete(l.mtimes, name)
	l.mu.Unlock()
	return l.Load(name)
}

// LoadedNames returns the names of currently cached skills, sorted.
func (l *Loader) LoadedNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.loaded))
	for n := range l.loaded {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (l *Loader) build(name string, compileTools bool) (*Skill, error) {
	dir := filepath.Join(l.root, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, &LoadError{Skill: name, Err: fmt.Errorf("skill directory not found: %s", dir)}
	}

	marker := filepath.Join(dir, markerFile)
	manifest, body, err := parseMarker(marker)
	if err != nil {
		return nil, &LoadError{Skill: name, Err: err}
	}
	if manifest.Name == "" {
		return nil, &LoadError{Skill: name, Err: fmt.Errorf("%s missing required field: name", markerFile)}
	}
	if manifest.Description == "" {
		return nil, &LoadError{Skill: name, Err: fmt.Errorf("%s missing required field: description", markerFile)}
	}
	if manifest.Version == "" {
		manifest.Version = "1.0.0"
	}

	skill := &Skill{
		Manifest: manifest,
		Prompt:   buildPrompt(body),
		Tools:    make(map[string]*Tool),
		Dir:      dir,
		LoadedAt: time.Now(),
	}

	if kd := filepath.Join(dir, knowledgeDir); dirExists(kd) {
		skill.KnowledgePaths = []string{kd}
	}

	if !compileTools {
		return skill, nil
	}

	conn := l.connectors[manifest.Connector]
	if manifest.Connector != "" && conn == nil {
		l.logger.Warn("skill declares unknown connector",
			"skill", name, "connector", manifest.Connector)
	}

	decls, err := readDeclarations(dir)
	if err != nil {
		return nil, &LoadError{Skill: name, Err: err}
	}
	for _, decl := range decls {
		tool, err := CompileTool(decl, conn, l.impls, l.logger)
		if err != nil {
			return nil, &LoadError{Skill: name, Err: err}
		}
		if _, dup := skill.Tools[tool.Name]; dup {
			return nil, &LoadError{Skill: name,
				Err: &CompileError{Tool: tool.Name, Err: errors.New("declared twice in one skill")}}
		}
		skill.Tools[tool.Name] = tool
	}

	return skill, nil
}

// maxMtime returns the newest modification time across the skill's declared
// files. Zero time when nothing exists.
func (l *Loader) maxMtime(name string) time.Time {
	var max time.Time
	for _, f := range []string{markerFile, toolsYAMLFile, toolsTOMLFile} {
		info, err := os.Stat(filepath.Join(l.root, name, f))
		if err != nil {
			continue
		}
		if info.ModTime().After(max) {
			max = info.ModTime()
		}
	}
	return max
}

type declFile struct {
	Tools []ToolDecl `yaml:"tools" toml:"tools"`
}

// readDeclarations collects tool declarations from tools.yaml and
// tools.toml. Either, both, or neither may exist.
func readDeclarations(dir string) ([]ToolDecl, error) {
	var decls []ToolDecl

	yamlPath := filepath.Join(dir, toolsYAMLFile)
	if data, err := os.ReadFile(yamlPath); err == nil {
		var f declFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", toolsYAMLFile, err)
		}
		decls = append(decls, f.Tools...)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	tomlPath := filepath.Join(dir, toolsTOMLFile)
	if data, err := os.ReadFile(tomlPath); err == nil {
		var f declFile
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", toolsTOMLFile, err)
		}
		decls = append(decls, f.Tools...)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return decls, nil
}

// parseMarker splits SKILL.md into YAML frontmatter and markdown body.
func parseMarker(path string) (Manifest, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	content := string(data)
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return Manifest{}, "", fmt.Errorf("no YAML frontmatter in %s", path)
	}
	front, body, ok := strings.Cut(rest, "\n---")
	if !ok {
		return Manifest{}, "", fmt.Errorf("unterminated frontmatter in %s", path)
	}
	body = strings.TrimPrefix(body, "\n")

	var manifest Manifest
	if err := yaml.Unmarshal([]byte(front), &manifest); err != nil {
		return Manifest{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return manifest, body, nil
}

// buildPrompt folds the marker body into the skill's prompt: intro text
// before any section header, then the Instructions, Capabilities, and
// When to Use sections. Other sections are reference material and stay out
// of the prompt.
func buildPrompt(body string) string {
	sections := splitSections(body)

	var parts []string
	if intro := sections["_intro"]; intro != "" {
		parts = append(parts, intro)
	}
	if s := sections["instructions"]; s != "" {
		parts = append(parts, s)
	}
	if s := sections["capabilities"]; s != "" {
		parts = append(parts, "## Capabilities\n"+s)
	}
	if s := sections["when to use"]; s != "" {
		parts = append(parts, "## When to Use\n"+s)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// splitSections parses markdown into "## "-delimited sections keyed by
// lowercased header. Text before the first header lands under "_intro".
func splitSections(body string) map[string]string {
	sections := make(map[string]string)

	current := "_intro"
	var buf []string
	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text != "" {
			sections[current] = text
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(body, "\n") {
		if header, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			current = strings.ToLower(strings.TrimSpace(header))
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return sections
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
