// Package safety implements the capability gate, the action validator and
// the path sandbox. Every skill execution passes through here before it is
// allowed to touch the world.
package safety

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"aura/internal/logging"
	"aura/internal/types"
)

// defaultCapabilities is the built-in grant table. Destructive tiers require
// confirmation regardless of the per-capability flag.
var defaultCapabilities = []types.Capability{
	{Name: "filesystem_read", Tier: types.TierSafe, ReadOnly: true, Enabled: true,
		LinkedSkills: []string{"filesystem.read_file"}},
	{Name: "filesystem_write", Tier: types.TierMedium, RequiresConfirmation: true, Enabled: true,
		LinkedSkills: []string{"filesystem.write_file"}},
	{Name: "shell", Tier: types.TierDestructive, RequiresConfirmation: true, Enabled: true,
		LinkedSkills: []string{"shell.run"}},
	{Name: "internet", Tier: types.TierSafe, ReadOnly: true, Enabled: true,
		LinkedSkills: []string{"web.search", "web.fetch", "research.summarize"}},
	{Name: "media", Tier: types.TierSafe, Enabled: true,
		LinkedSkills: []string{"media.control"}},
	{Name: "system_control", Tier: types.TierMedium, RequiresConfirmation: true, Enabled: true,
		LinkedSkills: []string{"system.open_app"}},
	{Name: "vision", Tier: types.TierSafe, ReadOnly: true, Enabled: true,
		LinkedSkills: []string{"system.screenshot"}},
}

// CapabilityGate maps skills to capabilities and answers whether an execution
// may proceed.
type CapabilityGate struct {
	mu      sync.RWMutex
	byName  map[string]*types.Capability
	bySkill map[string]*types.Capability
}

// NewCapabilityGate builds the gate with the default grant table.
func NewCapabilityGate() *CapabilityGate {
	g := &CapabilityGate{
		byName:  map[string]*types.Capability{},
		bySkill: map[string]*types.Capability{},
	}
	for _, c := range defaultCapabilities {
		cap := c
		g.byName[c.Name] = &cap
		for _, skill := range c.LinkedSkills {
			g.bySkill[skill] = &cap
		}
	}
	return g
}

// LinkSkill attaches a dynamically loaded or synthesized skill to an existing
// capability.
func (g *CapabilityGate) LinkSkill(skillName, capabilityName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cap, ok := g.byName[capabilityName]
	if !ok {
		return fmt.Errorf("unknown capability %q", capabilityName)
	}
	cap.LinkedSkills = append(cap.LinkedSkills, skillName)
	g.bySkill[skillName] = cap
	logging.Safety("linked skill %s to capability %s", skillName, capabilityName)
	return nil
}

// ForSkill returns the capability covering a skill. Unlinked skills get no
// capability and must be treated as destructive by the caller.
func (g *CapabilityGate) ForSkill(skillName string) (types.Capability, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cap, ok := g.bySkill[skillName]
	if !ok {
		return types.Capability{}, false
	}
	return *cap, true
}

// Check decides whether a skill may run. Returns the effective tier and
// whether user confirmation is required first.
func (g *CapabilityGate) Check(skillName string) (tier types.SafetyTier, needsConfirmation bool, err error) {
	cap, ok := g.ForSkill(skillName)
	if !ok {
		// Unknown skills run at the most restrictive tier.
		logging.SafetyWarn("skill %s has no capability, treating as destructive", skillName)
		return types.TierDestructive, true, nil
	}
	if !cap.Enabled {
		return cap.Tier, false, fmt.Errorf("capability %q is disabled", cap.Name)
	}
	needs := cap.RequiresConfirmation || cap.Tier == types.TierDestructive
	return cap.Tier, needs, nil
}

// SetEnabled toggles a capability.
func (g *CapabilityGate) SetEnabled(capabilityName string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cap, ok := g.byName[capabilityName]
	if !ok {
		return fmt.Errorf("unknown capability %q", capabilityName)
	}
	cap.Enabled = enabled
	logging.Safety("capability %s enabled=%v", capabilityName, enabled)
	return nil
}

// List returns all capabilities sorted by name.
func (g *CapabilityGate) List() []types.Capability {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.Capability, 0, len(g.byName))
	for _, cap := range g.byName {
		out = append(out, *cap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TierAtLeast reports whether tier a ranks at or above b in danger.
func TierAtLeast(a, b types.SafetyTier) bool {
	rank := func(t types.SafetyTier) int {
		switch t {
		case types.TierDestructive:
			return 2
		case types.TierMedium:
			return 1
		default:
			return 0
		}
	}
	return rank(a) >= rank(b)
}

// NormalizeSkillName lowers and trims a model-proposed skill name.
func NormalizeSkillName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
