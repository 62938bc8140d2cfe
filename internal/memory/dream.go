package memory

import (
	"context"
	"fmt"
	"strings"

	"aura/internal/llm"
	"aura/internal/logging"
	"aura/internal/types"
)

// dreamBatchSize bounds how many recent episodes one cycle digests.
const dreamBatchSize = 20

// dreamMaxInsights bounds how many insights one cycle may produce.
const dreamMaxInsights = 3

// dreamSystemPrompt frames consolidation for the model.
const dreamSystemPrompt = `You are the memory consolidation process of a personal assistant.
Given recent interaction episodes, distill durable general insights.
Rules:
- At most 3 insights per cycle.
- Each insight must generalize beyond a single episode.
- Categories: coding, ethics, workflow, user_pref.
- Output JSON only: {"insights": [{"category": "...", "insight": "..."}]}`

// dreamReply is the consolidation output schema.
type dreamReply struct {
	Insights []struct {
		Category string `json:"category"`
		Insight  string `json:"insight"`
	} `json:"insights"`
}

// Dream runs one consolidation cycle: digest recent episodes into semantic
// insights, then prune decayed episodes. Only one cycle runs at a time;
// overlapping triggers are dropped.
func (h *Hierarchical) Dream(ctx context.Context) error {
	if !h.dreaming.CompareAndSwap(false, true) {
		logging.Dream("cycle already running, skipping")
		return nil
	}
	defer h.dreaming.Store(false)

	timer := logging.StartTimer(logging.CategoryDream, "Dream")
	defer timer.Stop()

	episodes, err := h.store.RecentEpisodes(dreamBatchSize)
	if err != nil {
		return fmt.Errorf("load episodes: %w", err)
	}
	if len(episodes) == 0 {
		logging.Dream("nothing to consolidate")
		return nil
	}
	logging.Dream("consolidating %d episodes", len(episodes))

	insights := 0
	if h.llm != nil {
		insights = h.consolidateWithModel(ctx, episodes)
	}
	if insights == 0 {
		// Model unavailable or unhelpful; fall back to frequency counting so
		// the cycle still produces signal.
		insights = h.consolidateByFrequency(episodes)
	}

	pruned, err := h.store.DecayPrune(h.retentionDays, 3)
	if err != nil {
		logging.DreamError("decay prune failed: %v", err)
	}
	logging.Dream("cycle complete: %d insights, %d episodes pruned", insights, pruned)
	return nil
}

// consolidateWithModel asks the LLM to distill insights from the episode
// batch. Returns the number of insights stored.
func (h *Hierarchical) consolidateWithModel(ctx context.Context, episodes []types.Episode) int {
	var b strings.Builder
	for _, ep := range episodes {
		fmt.Fprintf(&b, "- intent=%q plan=%q outcome=%q confidence=%.2f\n",
			ep.Intent, ep.Plan, truncate(ep.Outcome, 100), ep.Confidence)
	}

	raw, err := h.llm.CompleteWithSystem(ctx, dreamSystemPrompt, b.String())
	if err != nil {
		logging.DreamError("model consolidation failed: %v", err)
		return 0
	}

	var reply dreamReply
	if err := llm.DecodeStructured(raw, &reply); err != nil {
		logging.DreamError("unparseable consolidation reply: %v", err)
		return 0
	}

	stored := 0
	for _, ins := range reply.Insights {
		if stored >= dreamMaxInsights {
			break
		}
		if strings.TrimSpace(ins.Insight) == "" {
			continue
		}
		category := ins.Category
		switch category {
		case "coding", "ethics", "workflow", "user_pref":
		default:
			category = "workflow"
		}
		if err := h.store.UpsertInsight(category, ins.Insight); err != nil {
			logging.DreamError("store insight failed: %v", err)
			continue
		}
		stored++
	}
	return stored
}

// consolidateByFrequency derives insights from repeated intent/plan pairs
// without a model. Crude, but keeps wisdom accumulating offline.
func (h *Hierarchical) consolidateByFrequency(episodes []types.Episode) int {
	counts := map[string]int{}
	sample := map[string]types.Episode{}
	for _, ep := range episodes {
		if ep.Intent == "" || ep.Plan == "" || ep.Confidence < 0.6 {
			continue
		}
		key := ep.Intent + "|" + ep.Plan
		counts[key]++
		sample[key] = ep
	}

	stored := 0
	for key, n := range counts {
		if n < 3 {
			continue
		}
		ep := sample[key]
		insight := fmt.Sprintf("For %q requests the plan %q has repeatedly succeeded", ep.Intent, ep.Plan)
		if err := h.store.UpsertInsight("workflow", insight); err != nil {
			continue
		}
		stored++
	}
	return stored
}
