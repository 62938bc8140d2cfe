package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aura/internal/conscious"
	"aura/internal/logging"
	"aura/internal/types"
)

// command dispatches a slash command. These bypass the consciousness stack
// entirely; they are operator controls, not conversation.
func (c *Controller) command(ctx context.Context, session, text string) string {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/status":
		return c.cmdStatus()
	case "/scorecard":
		return c.cmdScorecard()
	case "/model":
		return c.cmdModel(args)
	case "/evolve":
		return c.cmdEvolve()
	case "/approve":
		return c.cmdApprove(args)
	case "/reject":
		return c.cmdReject(args)
	case "/forge":
		return c.cmdForge(ctx, args)
	case "/crystallize":
		return c.cmdCrystallize(ctx)
	case "/dream":
		return c.cmdDream(ctx)
	case "/scan":
		return c.cmdScan(args)
	case "/save":
		return c.cmdSave(session, args)
	case "/load":
		return c.cmdLoad(session, args)
	case "/restore":
		return c.cmdRestore(args)
	case "/benchmark":
		return c.cmdBenchmark(ctx)
	case "/help":
		return helpText
	default:
		return fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	}
}

const helpText = `Commands:
  /status           system overview (governor, reflexes, skills, affect)
  /scorecard        intelligence scorecard (skill reliability, reflexes, trend)
  /model [name]     show model routing, or pin the active model
  /benchmark        run the fixed prompt suite through the stack and time it
  /evolve           list pending mutations
  /approve <id>     apply a pending mutation
  /reject <id>      reject a pending mutation
  /forge <name> <purpose...>  synthesize a new skill
  /crystallize      compress applied mutations into identity
  /dream            run a consolidation cycle now
  /scan [root]      rescan the environment into the world model
  /save <name>      save this session's trace under a name
  /load <name>      restore a saved session trace
  /restore [name]   roll state back to a checkpoint
  /help             this text`

func (c *Controller) cmdStatus() string {
	var b strings.Builder
	b.WriteString("## Status\n")

	fmt.Fprintf(&b, "Governor: %s\n", c.gov.Describe())

	cached, learned := c.reflexes.Stats()
	fmt.Fprintf(&b, "Reflexes: %d cached, %d learned patterns\n", cached, learned)

	frustration, confidence, urgency := c.signals.Snapshot()
	fmt.Fprintf(&b, "Affect: frustration %.2f, confidence %.2f, urgency %.2f\n", frustration, confidence, urgency)

	names := c.registry.List()
	fmt.Fprintf(&b, "Skills (%d):\n", len(names))
	for _, name := range names {
		if metric, ok := c.registry.Metric(name); ok && metric.Attempts > 0 {
			fmt.Fprintf(&b, "  %-24s %3d runs, %.0f%% ok, %v avg\n",
				name, metric.Attempts, metric.SuccessRate()*100, metric.AvgLatency.Round(time.Millisecond))
		} else {
			fmt.Fprintf(&b, "  %s\n", name)
		}
	}

	if c.evo != nil {
		fmt.Fprintf(&b, "Mutations: %d pending, %d applied, %d archived\n",
			len(c.evo.Pending()), len(c.evo.Applied()), len(c.evo.History()))
	}
	if c.world != nil {
		b.WriteString(c.world.Summary())
	}
	return b.String()
}

// cmdScorecard reports how well the assistant itself is performing: skill
// reliability, reflex coverage, and the deliberation confidence trend. Model
// routing lives under /model.
func (c *Controller) cmdScorecard() string {
	var b strings.Builder
	b.WriteString("## Intelligence scorecard\n")

	names := c.registry.List()
	listed := 0
	for _, name := range names {
		metric, ok := c.registry.Metric(name)
		if !ok || metric.Attempts == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-24s %3d runs, %.0f%% ok, %v avg\n",
			name, metric.Attempts, metric.SuccessRate()*100, metric.AvgLatency.Round(time.Millisecond))
		listed++
	}
	if listed == 0 {
		b.WriteString("  no skill executions yet\n")
	}

	hits, misses := c.reflexes.HitRate()
	if total := hits + misses; total > 0 {
		fmt.Fprintf(&b, "Reflex hit rate: %.0f%% (%d of %d)\n", float64(hits)/float64(total)*100, hits, total)
	} else {
		b.WriteString("Reflex hit rate: no lookups yet\n")
	}

	if trend := c.stack.Patterns().Trend(); trend > 0 {
		fmt.Fprintf(&b, "Deliberation confidence trend: %.2f\n", trend)
	}

	frustration, confidence, urgency := c.signals.Snapshot()
	fmt.Fprintf(&b, "Affect: frustration %.2f, confidence %.2f, urgency %.2f", frustration, confidence, urgency)
	return b.String()
}

func (c *Controller) cmdModel(args []string) string {
	if len(args) > 0 {
		if err := c.router.Use(args[0]); err != nil {
			return fmt.Sprintf("Can't switch: %v", err)
		}
		return "Switched to " + args[0] + "."
	}

	profiles := c.router.Scorecard()
	if len(profiles) == 0 {
		return "No models registered."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active model: %s\n", c.router.Active())
	active := c.router.Active()
	for _, p := range profiles {
		marker := " "
		if p.Name == active {
			marker = "*"
		}
		status := "up"
		if !p.Available {
			status = "down"
		}
		fmt.Fprintf(&b, "%s %-28s trust %.2f, %.1fs avg, %d errors, %s [%s]\n",
			marker, p.Name, p.TrustScore, p.AvgLatency, p.ErrorCount, status,
			strings.Join(p.Capabilities, ","))
	}
	return b.String()
}

func (c *Controller) cmdEvolve() string {
	if c.evo == nil {
		return "Evolution engine is not running."
	}
	pending := c.evo.Pending()
	if len(pending) == 0 {
		return "No pending mutations. I am what I am, for now."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## Pending mutations (%d)\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(&b, "  [%s] %s: %s (%d successes)\n", m.ID[:8], m.Type, m.Description, m.SuccessCount)
	}
	b.WriteString("Use /approve <id> or /reject <id>.")
	return b.String()
}

func (c *Controller) cmdApprove(args []string) string {
	if c.evo == nil || len(args) == 0 {
		return "Usage: /approve <mutation-id>"
	}
	if err := c.evo.Approve(args[0]); err != nil {
		return fmt.Sprintf("Approve failed: %v", err)
	}
	return "Mutation applied."
}

func (c *Controller) cmdReject(args []string) string {
	if c.evo == nil || len(args) == 0 {
		return "Usage: /reject <mutation-id>"
	}
	if err := c.evo.Reject(args[0]); err != nil {
		return fmt.Sprintf("Reject failed: %v", err)
	}
	return "Mutation rejected."
}

func (c *Controller) cmdForge(ctx context.Context, args []string) string {
	if c.synth == nil {
		return "Skill synthesis is not available."
	}
	if len(args) < 2 {
		return "Usage: /forge <skill.name> <what it should do>"
	}
	name := args[0]
	purpose := strings.Join(args[1:], " ")

	if c.checkpoints != nil {
		if _, err := c.checkpoints.Snapshot("pre-forge"); err != nil {
			logging.CheckpointWarn("pre-forge snapshot: %v", err)
		}
	}

	forgeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	path, err := c.synth.Forge(forgeCtx, name, purpose)
	if err != nil {
		return fmt.Sprintf("Forge failed: %v", err)
	}
	return fmt.Sprintf("Forged %s at %s. It is live now.", name, path)
}

func (c *Controller) cmdCrystallize(ctx context.Context) string {
	if c.synth == nil {
		return "Skill synthesis is not available."
	}
	crystalCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	updated, err := c.synth.CrystallizeIdentity(crystalCtx, c.mem)
	if err != nil {
		return fmt.Sprintf("Crystallization failed: %v", err)
	}
	if updated == 0 {
		return "Identity reviewed; nothing has drifted."
	}
	return fmt.Sprintf("Crystallized. %d identity anchors updated.", updated)
}

func (c *Controller) cmdDream(ctx context.Context) string {
	dreamCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := c.mem.Dream(dreamCtx); err != nil {
		return fmt.Sprintf("Dream cycle failed: %v", err)
	}
	return "Dream cycle complete. Episodes consolidated into insights."
}

func (c *Controller) cmdScan(args []string) string {
	if c.world == nil {
		return "World model is not running."
	}
	root := c.cfg.Workspace
	if len(args) > 0 {
		root = args[0]
	}
	n, err := c.world.Scan(root)
	if err != nil {
		return fmt.Sprintf("Scan failed: %v", err)
	}
	return fmt.Sprintf("Scanned %s: %d entries observed.\n%s", root, n, c.world.Summary())
}

func (c *Controller) cmdSave(session string, args []string) string {
	if len(args) == 0 {
		return "Usage: /save <name>"
	}
	if err := c.mem.Store().SaveSession(args[0], session, 200); err != nil {
		return fmt.Sprintf("Save failed: %v", err)
	}
	return fmt.Sprintf("Session saved as %q.", args[0])
}

func (c *Controller) cmdLoad(session string, args []string) string {
	if len(args) == 0 {
		names, err := c.mem.Store().ListSessions()
		if err != nil || len(names) == 0 {
			return "No saved sessions."
		}
		return "Saved sessions: " + strings.Join(names, ", ")
	}
	n, err := c.mem.Store().LoadSession(args[0], session)
	if err != nil {
		return fmt.Sprintf("Load failed: %v", err)
	}
	return fmt.Sprintf("Restored %d messages from %q.", n, args[0])
}

func (c *Controller) cmdRestore(args []string) string {
	if c.checkpoints == nil {
		return "Checkpointing is not enabled."
	}
	name := ""
	if len(args) > 0 {
		name = args[0]
	} else {
		latest, ok := c.checkpoints.Latest()
		if !ok {
			return "No checkpoints exist yet."
		}
		name = latest
	}
	if err := c.checkpoints.Restore(name); err != nil {
		return fmt.Sprintf("Restore failed: %v", err)
	}
	return fmt.Sprintf("Restored checkpoint %s. Restart me to reload state cleanly.", name)
}

// benchmarkPrompts is a fixed suite covering recall, arithmetic, summary,
// structure, and instruction following. Fixed prompts keep runs comparable
// across models and sessions.
var benchmarkPrompts = []string{
	"What is the capital of Japan? Answer in one word.",
	"What is 17 multiplied by 23?",
	"Summarize in one sentence: the quick brown fox jumps over the lazy dog, twice, at dawn.",
	"List three prime numbers greater than 20, comma separated.",
	"Reply with exactly the word READY and nothing else.",
}

// cmdBenchmark runs the fixed prompt suite through the consciousness stack
// and reports per-prompt timing. Prompts run sequentially so the numbers are
// comparable.
func (c *Controller) cmdBenchmark(ctx context.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Benchmark (%s)\n", c.router.Active())

	var total time.Duration
	failures := 0
	for i, prompt := range benchmarkPrompts {
		promptCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		start := time.Now()
		resp, err := c.stack.Process(promptCtx, prompt, types.MemoryContext{}, conscious.Options{
			SessionID: "benchmark",
			TaskType:  "general",
			UseLite:   true,
		})
		cancel()
		elapsed := time.Since(start)
		total += elapsed

		if err != nil {
			failures++
			fmt.Fprintf(&b, "  %d. FAILED after %v: %v\n", i+1, elapsed.Round(time.Millisecond), err)
			continue
		}
		fmt.Fprintf(&b, "  %d. %-12v %s\n", i+1, elapsed.Round(time.Millisecond), truncate(resp.FinalResponse, 60))
	}
	fmt.Fprintf(&b, "Total %v, %d/%d ok.", total.Round(time.Millisecond), len(benchmarkPrompts)-failures, len(benchmarkPrompts))
	return b.String()
}
