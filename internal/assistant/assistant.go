// Package assistant is the composition root: it wires configuration, the
// model gateway, memory, safety, skills, evolution and the request pipeline
// into one runnable system.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"aura/internal/checkpoint"
	"aura/internal/config"
	"aura/internal/conscious"
	"aura/internal/controller"
	"aura/internal/embedding"
	"aura/internal/evolution"
	"aura/internal/governor"
	"aura/internal/llm"
	"aura/internal/logging"
	"aura/internal/memory"
	"aura/internal/mission"
	"aura/internal/nexus"
	"aura/internal/reflex"
	"aura/internal/safety"
	"aura/internal/skills"
	"aura/internal/types"
	"aura/internal/world"
)

// Assistant owns every subsystem. Construction wires; Start runs; Close tears
// down in reverse order.
type Assistant struct {
	Config      *config.Config
	LLM         types.LLMClient
	Router      *llm.Router
	Embedder    embedding.Engine
	Memory      *memory.Hierarchical
	World       *world.Model
	Governor    *governor.Governor
	Reflexes    *reflex.Layer
	Registry    *skills.Registry
	Loader      *skills.DynamicLoader
	Gate        *safety.CapabilityGate
	Sandbox     *safety.PathSandbox
	Evolution   *evolution.Engine
	Synth       *evolution.Synthesizer
	Checkpoints *checkpoint.Manager
	Controller  *controller.Controller
	Nexus       *nexus.Nexus
	Missions    *mission.Control

	cancel context.CancelFunc
}

// New builds the whole system from configuration. Nothing starts running
// until Start.
func New(cfg *config.Config) (*Assistant, error) {
	if err := logging.Initialize(cfg.Workspace); err != nil {
		return nil, err
	}
	if err := cfg.EnsureStateDir(); err != nil {
		return nil, err
	}
	logging.Boot("wiring %s %s (workspace %s)", cfg.Name, cfg.Version, cfg.Workspace)

	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	models := append([]string{cfg.LLM.Model}, cfg.LLM.Fallbacks...)
	router := llm.NewRouter(client, models)

	embedder, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		// Recall quality drops but nothing breaks.
		logging.BootWarn("embedding engine unavailable (%v), using hash fallback", err)
		embedder = embedding.NewHashEngine(0)
	}

	a := &Assistant{Config: cfg, LLM: client, Router: router, Embedder: embedder}

	a.Memory, err = memory.NewHierarchical(cfg.Memory, embedder, client)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	a.World, err = world.Load(filepath.Join(cfg.StateDir(), "world.json"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("world model: %w", err)
	}
	a.Governor, err = governor.New(cfg.Governor, client)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("governor: %w", err)
	}
	a.Governor.SetWisdomSource(a.Memory.EthicalWisdom)
	a.Reflexes, err = reflex.Load(filepath.Join(cfg.StateDir(), "reflexes.json"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("reflexes: %w", err)
	}

	a.Gate = safety.NewCapabilityGate()
	// Learned safety zones extend the configured workspace roots.
	roots := append(append([]string{}, cfg.Safety.WorkspaceRoots...), a.World.WritableRoots()...)
	a.Sandbox = safety.NewPathSandbox(roots, cfg.Safety.BlockedRoots)

	timeoutMin, timeoutMax := cfg.SkillTimeoutBounds()
	a.Registry = skills.NewRegistry(timeoutMin, timeoutMax)
	if err := skills.RegisterBuiltins(a.Registry, skills.BuiltinDeps{
		Sandbox: a.Sandbox,
		World:   a.World,
		LLM:     client,
	}); err != nil {
		a.Close()
		return nil, fmt.Errorf("builtin skills: %w", err)
	}

	a.Loader, err = skills.NewDynamicLoader(a.Registry, cfg.Skills.DynamicDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("dynamic skills: %w", err)
	}
	if err := a.Loader.LoadAll(); err != nil {
		logging.BootWarn("dynamic skill load: %v", err)
	}
	if cfg.Skills.WatchDynamicDir {
		if err := a.Loader.Watch(); err != nil {
			logging.BootWarn("dynamic skill watch: %v", err)
		}
	}

	a.Evolution, err = evolution.NewEngine(cfg.StateDir(), a.onMutationApplied)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("evolution: %w", err)
	}
	if cfg.Evolution.AllowSynthesis {
		a.Synth, err = evolution.NewSynthesizer(client, a.Loader, a.Evolution, cfg.Evolution.SynthesisDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("synthesizer: %w", err)
		}
	}
	a.Checkpoints, err = checkpoint.NewManager(cfg.StateDir())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("checkpoints: %w", err)
	}

	stack := conscious.NewStack(client, router, a.World, a.Registry)
	a.Controller = controller.New(controller.Deps{
		Config:      cfg,
		Governor:    a.Governor,
		Reflexes:    a.Reflexes,
		Stack:       stack,
		Memory:      a.Memory,
		Registry:    a.Registry,
		Gate:        a.Gate,
		Sandbox:     a.Sandbox,
		Evolution:   a.Evolution,
		Synth:       a.Synth,
		Checkpoints: a.Checkpoints,
		Router:      router,
		LLM:         client,
		World:       a.World,
	})

	a.Nexus = nexus.New(func(ctx context.Context, req *types.Request) string {
		return a.Controller.Handle(ctx, req)
	}, cfg.Nexus.QueueBound, cfg.Nexus.MaxConcurrent)

	if cfg.Mission.Enabled {
		// Background steps respect quiescence; a user request is the only
		// thing that may reach the governor while it sleeps.
		submit := func(req *types.Request) error {
			if a.Governor.State() == governor.StateQuiescent {
				return governor.ErrQuiescent
			}
			return a.Nexus.Submit(req)
		}
		a.Missions, err = mission.New(cfg.Mission, submit)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("missions: %w", err)
		}
	}

	logging.Boot("wired: %d skills, governor %s", len(a.Registry.List()), a.Governor.State())
	return a, nil
}

// Start runs the dispatch loop and mission stepper until Close.
func (a *Assistant) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.Nexus.Start(ctx)
	if a.Missions != nil {
		a.Missions.Run()
	}
}

// Ask processes one request synchronously through the full pipeline.
func (a *Assistant) Ask(ctx context.Context, text string, onEvent types.EventFunc) (string, error) {
	done := make(chan string, 1)
	req := &types.Request{
		ID:       fmt.Sprintf("ask-%d", time.Now().UnixNano()),
		Source:   "cli",
		Text:     text,
		Priority: types.PriorityStandard,
		OnEvent:  onEvent,
		Reply:    func(result string) { done <- result },
	}
	if err := a.Nexus.Submit(req); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		a.Controller.Interrupt()
		return "", ctx.Err()
	case result := <-done:
		return result, nil
	}
}

// onMutationApplied reacts to mutations crossing into applied: reflex
// mutations install their learned pattern or cached reply immediately.
func (a *Assistant) onMutationApplied(m types.Mutation) {
	logging.Evolution("mutation applied: [%s] %s", m.Type, m.Description)
	if m.Type != types.MutationReflex {
		return
	}
	p, ok := decodeReflexValue(m.Value)
	if !ok {
		return
	}
	switch {
	case p.Skill != "":
		a.Reflexes.LearnPattern(p.Input, p.Skill, p.stringParams())
	case p.Response != "":
		a.Reflexes.CachePut(p.Input, p.Response)
	}
}

// reflexPayload is the common shape of a reflex mutation value. A live
// proposal carries a promotion candidate struct; one reloaded from the
// mutation log carries a plain map. A JSON round-trip flattens both.
type reflexPayload struct {
	Input    string                 `json:"input"`
	Skill    string                 `json:"skill"`
	Params   map[string]interface{} `json:"params"`
	Response string                 `json:"response"`
}

func decodeReflexValue(value interface{}) (reflexPayload, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		return reflexPayload{}, false
	}
	var p reflexPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Input == "" {
		return reflexPayload{}, false
	}
	return p, true
}

func (p reflexPayload) stringParams() map[string]string {
	if len(p.Params) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.Params))
	for k, v := range p.Params {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// Close shuts everything down in reverse dependency order. Safe to call on a
// partially constructed assistant.
func (a *Assistant) Close() {
	// Missions stop first so no step is submitted into a draining queue.
	if a.Missions != nil {
		a.Missions.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Nexus != nil {
		a.Nexus.Stop()
	}
	if a.Evolution != nil {
		if err := a.Evolution.Close(); err != nil {
			logging.BootWarn("evolution close: %v", err)
		}
	}
	if a.Loader != nil {
		a.Loader.Close()
	}
	if a.Reflexes != nil {
		a.Reflexes.Close()
	}
	if a.World != nil {
		a.World.Close()
	}
	if a.Memory != nil {
		a.Memory.Close()
	}
	logging.Boot("shutdown complete")
	logging.CloseAll()
}
