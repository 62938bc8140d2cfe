package evolution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"aura/internal/llm"
	"aura/internal/logging"
	"aura/internal/memory"
	"aura/internal/skills"
	"aura/internal/types"
)

var skillNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

const forgeSystemPrompt = `You write small Go skill files for a personal assistant runtime.

Rules:
- The file starts with a one-line // comment describing the skill.
- Package main, exactly one exported function: RunSkill(input string) (string, error).
- Only these imports are allowed: bytes, encoding/base64, encoding/csv, encoding/json, errors, fmt, math, math/rand, regexp, sort, strconv, strings, time, unicode.
- No panics, no goroutines, no global state. Return errors instead.
- The input is a free-form string; parse what you need from it.

Respond with JSON: {"code": "<complete go file>", "description": "<one line>"}`

type forgeResult struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Synthesizer forges new dynamic skills: it asks the model for code,
// validates it against the safety policy, and installs it in skills.d.
type Synthesizer struct {
	llm       types.LLMClient
	checker   *Checker
	loader    *skills.DynamicLoader
	mutations *Engine
	skillsDir string
}

// NewSynthesizer wires the forge pipeline.
func NewSynthesizer(client types.LLMClient, loader *skills.DynamicLoader, mutations *Engine, skillsDir string) (*Synthesizer, error) {
	checker, err := NewChecker()
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		llm:       client,
		checker:   checker,
		loader:    loader,
		mutations: mutations,
		skillsDir: skillsDir,
	}, nil
}

// Forge generates, validates, and installs a skill. The mutation record is
// applied on success so the audit trail shows what changed and when.
func (s *Synthesizer) Forge(ctx context.Context, name, purpose string) (string, error) {
	if !skillNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid skill name %q (lowercase dotted identifiers only)", name)
	}

	timer := logging.StartTimer(logging.CategoryEvolution, "Forge:"+name)
	defer timer.Stop()

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"code":        map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
		},
		"required": []string{"code", "description"},
	}
	raw, err := s.llm.CompleteStructured(ctx, forgeSystemPrompt,
		fmt.Sprintf("Skill name: %s\nPurpose: %s", name, purpose), schema, "")
	if err != nil {
		return "", fmt.Errorf("skill generation failed: %w", err)
	}

	var result forgeResult
	if err := llm.DecodeStructured(raw, &result); err != nil {
		return "", fmt.Errorf("skill generation returned unparseable output: %w", err)
	}
	if strings.TrimSpace(result.Code) == "" {
		return "", fmt.Errorf("skill generation returned empty code")
	}

	code := normalizeSkillFile(result.Code, result.Description)

	if err := s.Validate(code); err != nil {
		return "", err
	}

	path := filepath.Join(s.skillsDir, name+".go")
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("install skill: %w", err)
	}
	if err := s.loader.LoadFile(path); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("skill failed to load: %w", err)
	}

	m := s.mutations.Propose(types.MutationSkillSynthesis,
		fmt.Sprintf("forge skill %s: %s", name, purpose), path)
	if err := s.mutations.Approve(m.ID); err != nil {
		logging.EvolutionWarn("mutation record for %s: %v", name, err)
	}

	logging.Evolution("forged skill %s (%d bytes)", name, len(code))
	return path, nil
}

// Validate runs both the policy checker and the loader's import allowlist
// over candidate code.
func (s *Synthesizer) Validate(code string) error {
	report := s.checker.Check(code)
	if !report.Safe {
		details := make([]string, 0, len(report.Violations))
		for _, v := range report.Violations {
			details = append(details, v.Detail)
		}
		return fmt.Errorf("skill code rejected by safety policy: %s", strings.Join(details, "; "))
	}
	if err := skills.ValidateImports(code); err != nil {
		return fmt.Errorf("skill code rejected: %w", err)
	}
	if !strings.Contains(code, "func RunSkill(") {
		return fmt.Errorf("skill code missing RunSkill entrypoint")
	}
	return nil
}

// normalizeSkillFile ensures the description comment leads the file and a
// package clause exists.
func normalizeSkillFile(code, description string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "//") && description != "" {
		code = "// " + strings.TrimSpace(description) + "\n" + code
	}
	if !strings.Contains(code, "package ") {
		// Insert after the leading comment block.
		lines := strings.Split(code, "\n")
		insert := 0
		for i, line := range lines {
			if !strings.HasPrefix(strings.TrimSpace(line), "//") {
				insert = i
				break
			}
			insert = i + 1
		}
		lines = append(lines[:insert], append([]string{"package main", ""}, lines[insert:]...)...)
		code = strings.Join(lines, "\n")
	}
	return code + "\n"
}

const crystallizePrompt = `You maintain the identity of a personal assistant based on what it has learned.

Given the current identity anchors and recent consolidated insights, decide
whether any anchor value should evolve. Change values only when the insights
clearly support it; identity drifts slowly.

Respond with JSON: {"updates": [{"key": "...", "value": "...", "reason": "..."}]}
An empty updates list is a valid answer.`

type crystallizeResult struct {
	Updates []struct {
		Key    string `json:"key"`
		Value  string `json:"value"`
		Reason string `json:"reason"`
	} `json:"updates"`
}

// CrystallizeIdentity compresses the applied mutation list into a short
// narrative, archives it, then reviews consolidated insights against the
// identity anchors and applies slow, justified drift. Core anchors (name,
// prime directive) never change.
func (s *Synthesizer) CrystallizeIdentity(ctx context.Context, mem *memory.Hierarchical) (int, error) {
	if applied := s.mutations.Applied(); len(applied) > 0 {
		var b strings.Builder
		for _, m := range applied {
			fmt.Fprintf(&b, "- [%s] %s\n", m.Type, m.Description)
		}
		narrative, err := s.llm.CompleteWithSystem(ctx,
			"Compress this list of self-modifications into at most three sentences describing how the assistant has grown. First person, no list.",
			b.String())
		if err != nil {
			logging.EvolutionWarn("crystallize narrative failed: %v", err)
		} else {
			s.mutations.ArchiveApplied(strings.TrimSpace(narrative))
		}
	}

	store := mem.Store()

	anchors, err := store.Anchors()
	if err != nil {
		return 0, fmt.Errorf("load anchors: %w", err)
	}
	insights, err := store.TopInsights("", 20)
	if err != nil {
		return 0, fmt.Errorf("load insights: %w", err)
	}
	if len(insights) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString("CURRENT ANCHORS:\n")
	for _, a := range anchors {
		fmt.Fprintf(&b, "- %s: %s\n", a.Key, a.Value)
	}
	b.WriteString("\nRECENT INSIGHTS:\n")
	for _, in := range insights {
		fmt.Fprintf(&b, "- [%s] %s (reinforced %dx)\n", in.Category, in.Insight, in.SourceCount)
	}

	raw, err := s.llm.CompleteWithSystem(ctx, crystallizePrompt, b.String())
	if err != nil {
		return 0, fmt.Errorf("crystallization failed: %w", err)
	}
	var result crystallizeResult
	if err := llm.DecodeStructured(raw, &result); err != nil {
		return 0, fmt.Errorf("crystallization returned unparseable output: %w", err)
	}

	existing := make(map[string]types.IdentityAnchor, len(anchors))
	for _, a := range anchors {
		existing[a.Key] = a
	}

	immutable := map[string]bool{"name": true, "prime_directive": true}
	applied := 0
	for _, u := range result.Updates {
		if u.Key == "" || u.Value == "" || immutable[u.Key] {
			continue
		}
		cur, known := existing[u.Key]
		if !known {
			cur.Category = "learned"
			cur.Significance = 0.5
		}
		if err := store.UpdateAnchor(u.Key, u.Value, cur.Category, cur.Significance); err != nil {
			logging.EvolutionWarn("anchor %s update failed: %v", u.Key, err)
			continue
		}
		s.mutations.Propose(types.MutationPriority,
			fmt.Sprintf("identity drift %s: %s (%s)", u.Key, u.Value, u.Reason), u.Value)
		applied++
		logging.Evolution("identity anchor %s evolved: %s", u.Key, u.Value)
	}
	return applied, nil
}
