package skills

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry is the process-wide index from skill name to Skill and from tool
// name to owning skill.
//
// Reads go through an immutable snapshot behind an atomic pointer, so every
// turn of every conversation sees either the fully-old or fully-new state,
// never a mix, and never takes a lock. Writers (register, unregister,
// update) clone the snapshot, mutate the clone, and publish it with a
// single pointer swap; a mutex serializes writers only.
type Registry struct {
	writeMu sync.Mutex
	snap    atomic.Pointer[snapshot]
	logger  *slog.Logger
}

type snapshot struct {
	skills map[string]*Skill
	tools  map[string]*ownedTool
}

// ownedTool pairs a compiled tool with its owning skill.
type ownedTool struct {
	Skill *Skill
	Tool  *Tool
}

// NewRegistry creates an empty skill registry.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{logger: logger.With("component", "skill_registry")}
	r.snap.Store(&snapshot{
		skills: make(map[string]*Skill),
		tools:  make(map[string]*ownedTool),
	})
	return r
}

func (s *snapshot) clone() *snapshot {
	next := &snapshot{
		skills: make(map[string]*Skill, len(s.skills)+1),
		tools:  make(map[string]*ownedTool, len(s.tools)+8),
	}
	for k, v := range s.skills {
		next.skills[k] = v
	}
	for k, v := range s.tools {
		next.tools[k] = v
	}
	return next
}

// addSkill indexes a skill into the snapshot, rejecting any tool already
// owned by a different skill. The snapshot is untouched on error.
func (s *snapshot) addSkill(skill *Skill) error {
	name := skill.Manifest.Name
	for toolName := range skill.Tools {
		if owner, ok := s.tools[toolName]; ok && owner.Skill.Manifest.Name != name {
			return fmt.Errorf("tool %q already owned by skill %q", toolName, owner.Skill.Manifest.Name)
		}
	}
	s.skills[name] = skill
	for toolName, tool := range skill.Tools {
		s.tools[toolName] = &ownedTool{Skill: skill, Tool: tool}
	}
	return nil
}

// removeSkill drops a skill and its tool entries from the snapshot.
func (s *snapshot) removeSkill(name string) bool {
	skill, ok := s.skills[name]
	if !ok {
		return false
	}
	for toolName := range skill.Tools {
		if owner, ok := s.tools[toolName]; ok && owner.Skill == skill {
			delete(s.tools, toolName)
		}
	}
	delete(s.skills, name)
	return true
}

// Register adds a new skill. If the skill name is taken, or any tool it
// owns is indexed under a different skill, the whole registration is
// rejected and the index is unchanged.
func (r *Registry) Register(skill *Skill) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	name := skill.Manifest.Name
	cur := r.snap.Load()
	if _, exists := cur.skills[name]; exists {
		return fmt.Errorf("skill %q already registered", name)
	}

	next := cur.clone()
	if err := next.addSkill(skill); err != nil {
		return fmt.Errorf("register skill %q: %w", name, err)
	}
	r.snap.Store(next)

	r.logger.Info("skill registered", "name", name, "tools", len(skill.Tools))
	return nil
}

// Unregister removes a skill and all its tool-index entries, reporting
// whether anything was removed.
func (r *Registry) Unregister(name string) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.snap.Load()
	if _, ok := cur.skills[name]; !ok {
		return false
	}

	next := cur.clone()
	next.removeSkill(name)
	r.snap.Store(next)

	r.logger.Info("skill unregistered", "name", name)
	return true
}

// Update atomically replaces a skill. Observers see either the old skill
// with all its tools or the new one with all of its tools; never the skill
// absent, never a partial tool set. Registering an unknown name is allowed,
// which makes Update the one publish path hot-reload needs.
func (r *Registry) Update(skill *Skill) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	name := skill.Manifest.Name
	next := r.snap.Load().clone()
	next.removeSkill(name)
	if err := next.addSkill(skill); err != nil {
		return fmt.Errorf("update skill %q: %w", name, err)
	}
	r.snap.Store(next)

	r.logger.Info("skill updated", "name", name, "tools", len(skill.Tools))
	return nil
}

// GetTool looks up a tool and its owning skill by tool name.
func (r *Registry) GetTool(name string) (*Tool, *Skill, error) {
	snap := r.snap.Load()
	owned, ok := snap.tools[name]
	if !ok {
		return nil, nil, fmt.Errorf("tool %q not found", name)
	}
	return owned.Tool, owned.Skill, nil
}

// GetSkill looks up a skill by name.
func (r *Registry) GetSkill(name string) (*Skill, bool) {
	snap := r.snap.Load()
	skill, ok := snap.skills[name]
	return skill, ok
}

// ListTools returns a consistent point-in-time snapshot of every compiled
// tool, sorted by name.
func (r *Registry) ListTools() []*Tool {
	snap := r.snap.Load()
	tools := make([]*Tool, 0, len(snap.tools))
	for _, owned := range snap.tools {
		tools = append(tools, owned.Tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// ListSkills returns all registered skills sorted by name.
func (r *Registry) ListSkills() []*Skill {
	snap := r.snap.Load()
	skills := make([]*Skill, 0, len(snap.skills))
	for _, s := range snap.skills {
		skills = append(skills, s)
	}
	sort.Slice(skills, func(i, j int) bool {
		return skills[i].Manifest.Name < skills[j].Manifest.Name
	})
	return skills
}

// CombinedPrompt concatenates every skill's prompt under a domain header,
// for inclusion in the system prompt.
func (r *Registry) CombinedPrompt() string {
	var parts []string
	for _, skill := range r.ListSkills() {
		if skill.Prompt == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n%s", skill.Manifest.Name, skill.Prompt))
	}
	return strings.Join(parts, "\n\n")
}

// SkillCount returns the number of registered skills.
func (r *Registry) SkillCount() int {
	return len(r.snap.Load().skills)
}

// ToolCount returns the number of indexed tools.
func (r *Registry) ToolCount() int {
	return len(r.snap.Load().tools)
}
