package evolution

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aura/internal/types"
)

func TestProposeDedupesByDescription(t *testing.T) {
	e, err := NewEngine(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	a := e.Propose(types.MutationReflex, "promote greeting pattern", nil)
	b := e.Propose(types.MutationReflex, "Promote Greeting Pattern", nil)
	if a.ID != b.ID {
		t.Errorf("same description should collapse to one mutation: %s vs %s", a.ID, b.ID)
	}

	c := e.Propose(types.MutationPriority, "promote greeting pattern", nil)
	if c.ID == a.ID {
		t.Error("different type should be a distinct mutation")
	}
}

func TestAutoApplyAtThreshold(t *testing.T) {
	var appliedID string
	e, err := NewEngine(t.TempDir(), func(m types.Mutation) { appliedID = m.ID })
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	m := e.Propose(types.MutationReflex, "cache time lookups", nil)
	for i := 0; i < 2; i++ {
		applied, err := e.RecordSuccess(m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if applied {
			t.Fatalf("applied after %d successes, threshold is 3", i+1)
		}
	}

	applied, err := e.RecordSuccess(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !applied {
		t.Fatal("third success should auto-apply")
	}
	if appliedID != m.ID {
		t.Error("onApply callback not invoked")
	}

	got, _ := e.Get(m.ID)
	if got.Status != types.MutationApplied || got.AppliedAt == nil {
		t.Errorf("mutation = %+v, want applied with timestamp", got)
	}
}

func TestLifecycleIsOneWay(t *testing.T) {
	e, err := NewEngine(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	m := e.Propose(types.MutationPriority, "raise music priority", nil)
	if err := e.Reject(m.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.Approve(m.ID); err == nil {
		t.Error("approving a rejected mutation must fail")
	}
	if applied, _ := e.RecordSuccess(m.ID); applied {
		t.Error("rejected mutation must not auto-apply")
	}
}

func TestPrefixLookup(t *testing.T) {
	e, err := NewEngine(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	m := e.Propose(types.MutationReflex, "shorten weather replies", nil)
	if err := e.Approve(m.ID[:8]); err != nil {
		t.Fatalf("prefix approve: %v", err)
	}
	got, ok := e.Get(m.ID[:8])
	if !ok || got.Status != types.MutationApplied {
		t.Errorf("prefix lookup failed: %+v", got)
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := e.Propose(types.MutationSkillSynthesis, "forge unit converter", "units.convert")
	e.Approve(m.ID)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewEngine(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()
	got, ok := reloaded.Get(m.ID)
	if !ok {
		t.Fatal("mutation lost across restart")
	}
	if got.Status != types.MutationApplied || got.Description != "forge unit converter" {
		t.Errorf("reloaded mutation = %+v", got)
	}
}

func TestCorruptStateStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evolution.json")
	os.WriteFile(path, []byte("{nonsense"), 0644)

	e, err := NewEngine(dir, nil)
	if err != nil {
		t.Fatalf("corrupt state should not be fatal: %v", err)
	}
	defer e.Close()
	if len(e.Pending()) != 0 {
		t.Error("fresh engine should be empty")
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Error("corrupt file should be preserved aside")
	}
}

func TestPatternSuccessAppliesAllSharingPattern(t *testing.T) {
	e, err := NewEngine(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	a := e.ProposeForPattern(types.MutationReflex, "promote greeting", "pat-1", nil)
	b := e.ProposeForPattern(types.MutationReflex, "promote farewell", "pat-1", nil)
	c := e.ProposeForPattern(types.MutationReflex, "promote thanks", "pat-2", nil)

	for i := 0; i < 2; i++ {
		if applied := e.RecordPatternSuccess("pat-1"); len(applied) != 0 {
			t.Fatalf("applied early after %d successes", i+1)
		}
	}
	applied := e.RecordPatternSuccess("pat-1")
	if len(applied) != 2 {
		t.Fatalf("applied = %d, want both pattern mutations", len(applied))
	}

	for _, id := range []string{a.ID, b.ID} {
		got, _ := e.Get(id)
		if got.Status != types.MutationApplied {
			t.Errorf("mutation %s = %s, want applied", id[:8], got.Status)
		}
	}
	if other, _ := e.Get(c.ID); other.Status == types.MutationApplied {
		t.Error("unrelated pattern must not apply")
	}
}

func TestArchiveAppliedMovesToHistory(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := e.Propose(types.MutationReflex, "cache greetings", nil)
	e.Approve(m.ID)

	moved := e.ArchiveApplied("I learned to answer greetings instantly.")
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}
	if len(e.Applied()) != 0 {
		t.Error("applied list should be empty after archive")
	}
	if len(e.History()) != 1 {
		t.Error("history should hold the archived mutation")
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewEngine(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer reloaded.Close()
	if reloaded.CrystallizedSummary() != "I learned to answer greetings instantly." {
		t.Errorf("summary lost: %q", reloaded.CrystallizedSummary())
	}
	if len(reloaded.History()) != 1 {
		t.Error("history lost across restart")
	}
}

func TestCheckerAcceptsSafeCode(t *testing.T) {
	c, err := NewChecker()
	if err != nil {
		t.Fatal(err)
	}
	code := `// Upper-cases input.
package main

import "strings"

func RunSkill(input string) (string, error) {
	return strings.ToUpper(input), nil
}
`
	report := c.Check(code)
	if !report.Safe {
		t.Fatalf("safe code rejected: %+v", report.Violations)
	}
	if report.ImportsChecked != 1 {
		t.Errorf("imports checked = %d, want 1", report.ImportsChecked)
	}
}

func TestCheckerRejectsForbiddenImport(t *testing.T) {
	c, err := NewChecker()
	if err != nil {
		t.Fatal(err)
	}
	code := `package main

import "os/exec"

func RunSkill(input string) (string, error) {
	out, err := exec.Command("ls").Output()
	return string(out), err
}
`
	report := c.Check(code)
	if report.Safe {
		t.Fatal("os/exec import must be a violation")
	}
	found := false
	for _, v := range report.Violations {
		if strings.Contains(v.Detail, "os/exec") {
			found = true
		}
	}
	if !found {
		t.Errorf("violations should name os/exec: %+v", report.Violations)
	}
}

func TestCheckerRejectsPanic(t *testing.T) {
	c, err := NewChecker()
	if err != nil {
		t.Fatal(err)
	}
	code := `package main

func RunSkill(input string) (string, error) {
	if input == "" {
		panic("empty")
	}
	return input, nil
}
`
	report := c.Check(code)
	if report.Safe {
		t.Fatal("panic must be a violation")
	}
}

func TestCheckerRejectsUnparseableCode(t *testing.T) {
	c, err := NewChecker()
	if err != nil {
		t.Fatal(err)
	}
	report := c.Check("this is not go")
	if report.Safe {
		t.Fatal("unparseable code must be unsafe")
	}
}

func TestNormalizeSkillFile(t *testing.T) {
	out := normalizeSkillFile("func RunSkill(input string) (string, error) { return input, nil }", "Echoes input")
	if !strings.HasPrefix(out, "// Echoes input\n") {
		t.Errorf("description comment missing: %q", out)
	}
	if !strings.Contains(out, "package main") {
		t.Errorf("package clause missing: %q", out)
	}
}
