package skills

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func makeSkill(t *testing.T, name string, toolNames ...string) *Skill {
	t.Helper()
	skill := &Skill{
		Manifest: Manifest{Name: name, Description: name + " skill", Version: "1.0.0"},
		Prompt:   "Prompt for " + name,
		Tools:    make(map[string]*Tool),
		LoadedAt: time.Now(),
	}
	for _, tn := range toolNames {
		tool, err := CompileTool(ToolDecl{
			Name:           tn,
			Description:    tn + " tool",
			Implementation: "test.ident",
		}, nil, Implementations{
			"test.ident": {Func: func(_ context.Context, args map[string]any) (any, error) {
				return args, nil
			}},
		}, testLogger())
		if err != nil {
			t.Fatal(err)
		}
		skill.Tools[tn] = tool
	}
	return skill
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(makeSkill(t, "finance", "list", "compare")); err != nil {
		t.Fatal(err)
	}

	tool, owner, err := r.GetTool("list")
	if err != nil {
		t.Fatal(err)
	}
	if tool.Name != "list" || owner.Manifest.Name != "finance" {
		t.Errorf("lookup returned %q owned by %q", tool.Name, owner.Manifest.Name)
	}

	if _, _, err := r.GetTool("nope"); err == nil {
		t.Error("unknown tool lookup succeeded")
	}
	if r.SkillCount() != 1 || r.ToolCount() != 2 {
		t.Errorf("counts = %d skills, %d tools", r.SkillCount(), r.ToolCount())
	}
}

func TestRegistryDuplicateSkillName(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(makeSkill(t, "finance", "list")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(makeSkill(t, "finance", "other")); err == nil {
		t.Fatal("duplicate skill name accepted")
	}
	if r.ToolCount() != 1 {
		t.Errorf("rejected registration mutated index: %d tools", r.ToolCount())
	}
}

func TestRegistryToolConflict(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(makeSkill(t, "finance", "list", "compare")); err != nil {
		t.Fatal(err)
	}

	err := r.Register(makeSkill(t, "inventory", "list", "count"))
	if err == nil {
		t.Fatal("tool name conflict accepted")
	}
	// The whole registration is rejected: no skill, none of its tools.
	if _, ok := r.GetSkill("inventory"); ok {
		t.Error("conflicting skill partially registered")
	}
	if _, _, err := r.GetTool("count"); err == nil {
		t.Error("non-conflicting tool from rejected skill was indexed")
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(makeSkill(t, "finance", "list")); err != nil {
		t.Fatal(err)
	}

	if !r.Unregister("finance") {
		t.Fatal("unregister reported nothing removed")
	}
	if r.Unregister("finance") {
		t.Error("second unregister reported removal")
	}
	if _, _, err := r.GetTool("list"); err == nil {
		t.Error("tool survived its skill's removal")
	}
}

func TestRegistryUpdateReplacesToolSet(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(makeSkill(t, "finance", "list", "compare")); err != nil {
		t.Fatal(err)
	}

	if err := r.Update(makeSkill(t, "finance", "list", "forecast")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.GetTool("forecast"); err != nil {
		t.Error("new tool missing after update")
	}
	if _, _, err := r.GetTool("compare"); err == nil {
		t.Error("old tool survived update")
	}
	if r.SkillCount() != 1 {
		t.Errorf("skill count = %d", r.SkillCount())
	}
}

func TestRegistryUpdateUnknownSkillRegisters(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Update(makeSkill(t, "fresh", "tool")); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetSkill("fresh"); !ok {
		t.Error("update of unknown skill did not register it")
	}
}

func TestRegistryListOrdering(t *testing.T) {
	r := NewRegistry(testLogger())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(makeSkill(t, name, name+"_tool")); err != nil {
			t.Fatal(err)
		}
	}

	skills := r.ListSkills()
	for i := 1; i < len(skills); i++ {
		if skills[i-1].Manifest.Name > skills[i].Manifest.Name {
			t.Fatalf("skills not sorted: %v", skills)
		}
	}
	tools := r.ListTools()
	for i := 1; i < len(tools); i++ {
		if tools[i-1].Name > tools[i].Name {
			t.Fatalf("tools not sorted")
		}
	}
}

func TestRegistryCombinedPrompt(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(makeSkill(t, "finance")); err != nil {
		t.Fatal(err)
	}
	empty := makeSkill(t, "silent")
	empty.Prompt = ""
	if err := r.Register(empty); err != nil {
		t.Fatal(err)
	}

	prompt := r.CombinedPrompt()
	if !strings.Contains(prompt, "## finance\nPrompt for finance") {
		t.Errorf("prompt = %q", prompt)
	}
	if strings.Contains(prompt, "silent") {
		t.Error("skill with empty prompt included")
	}
}

// Readers racing a writer must always observe a complete skill: the old
// tool set or the new one, never a mix.
func TestRegistryConcurrentReadDuringUpdate(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(makeSkill(t, "finance", "old_a", "old_b")); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_, okA, _ := toolErr(r, "old_a")
				_, okB, _ := toolErr(r, "old_b")
				if okA != okB {
					t.Error("observed a partial tool set")
					return
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		var skill *Skill
		if i%2 == 0 {
			skill = makeSkill(t, "finance", "new_a", "new_b")
		} else {
			skill = makeSkill(t, "finance", "old_a", "old_b")
		}
		if err := r.Update(skill); err != nil {
			t.Fatal(err)
		}
	}
	close(done)
	wg.Wait()
}

func toolErr(r *Registry, name string) (*Tool, bool, error) {
	tool, _, err := r.GetTool(name)
	return tool, err == nil, err
}

func BenchmarkRegistryGetTool(b *testing.B) {
	r := NewRegistry(testLogger())
	skill := &Skill{
		Manifest: Manifest{Name: "bench", Description: "bench"},
		Tools:    make(map[string]*Tool),
	}
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("tool_%d", i)
		skill.Tools[name] = &Tool{Name: name, Description: name}
	}
	if err := r.Register(skill); err != nil {
		b.Fatal(err)
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, _, err := r.GetTool("tool_25"); err != nil {
				b.Fatal(err)
			}
		}
	})
}
