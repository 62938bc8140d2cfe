// Package types provides shared type definitions used across aura packages.
// This package exists to break import cycles between controller, conscious,
// memory, and evolution. Types in this package should be foundational data
// structures with no complex dependencies.
package types

import (
	"time"
)

// =============================================================================
// REQUEST - Inbound unit of work
// =============================================================================

// Priority orders inbound requests. Lower value = more urgent.
type Priority int

const (
	PriorityUrgent    Priority = 10
	PriorityStandard  Priority = 20
	PriorityProactive Priority = 30
)

// ReplyFunc delivers the final response (or an error string) back to the
// ingress that produced the request.
type ReplyFunc func(result string)

// EventFunc receives progress events while a request is being processed.
// Event types: "thought", "status", "progress", "model", "budget", "nexus_task".
type EventFunc func(eventType string, payload interface{})

// Request is a single unit of inbound work. It is owned by the Nexus until
// dispatch, then by exactly one controller invocation.
type Request struct {
	ID       string
	Source   string // "cli", "http", "chat", "mission"
	UserID   string
	Text     string
	Priority Priority
	Reply    ReplyFunc
	OnEvent  EventFunc
	Enqueued time.Time
}

// =============================================================================
// THOUGHT / ACTION / RESPONSE - Consciousness stack output
// =============================================================================

// Thought is the structured product of the deliberation layer.
type Thought struct {
	IntentSummary      string   `json:"intent_summary"`
	PrimaryStrategy    string   `json:"primary_strategy"`
	Confidence         float64  `json:"confidence"` // [0,1]; 0 forces escalation
	Assumptions        []string `json:"assumptions,omitempty"`
	Constraints        []string `json:"constraints,omitempty"`
	RiskScore          float64  `json:"risk_score"` // [0,1]
	RejectedStrategies []string `json:"rejected_strategies,omitempty"`
}

// ActionCall names a skill plus its parameters. If the skill does not resolve
// in the registry the reflection layer nullifies the action.
type ActionCall struct {
	Skill      string                 `json:"skill"`
	Parameters map[string]interface{} `json:"parameters"`
}

// LiteResponse is the small 3-field structured-output schema used for simple
// requests. Lift converts it to a full Response for downstream consumers.
type LiteResponse struct {
	FinalResponse string      `json:"final_response"`
	Action        *ActionCall `json:"action,omitempty"`
	Confidence    float64     `json:"confidence"`
}

// Lift converts a LiteResponse into a full Response.
func (lr LiteResponse) Lift() *Response {
	return &Response{
		FinalThought: Thought{
			IntentSummary:   "lite response",
			PrimaryStrategy: "direct",
			Confidence:      lr.Confidence,
		},
		Action:        lr.Action,
		FinalResponse: lr.FinalResponse,
	}
}

// Response is the full structured decision emerging from the stack.
// FinalResponse is always populated after reflection, never a placeholder.
type Response struct {
	FinalThought     Thought     `json:"final_thought"`
	Action           *ActionCall `json:"action,omitempty"`
	FinalResponse    string      `json:"final_response"`
	NeedsEscalation  bool        `json:"needs_escalation"`
	Metacognition    string      `json:"internal_metacognition,omitempty"`
	LayerTimings     map[string]time.Duration
	EnsembleOpinions map[string]string
}

// =============================================================================
// MEMORY ENTITIES
// =============================================================================

// Episode records one past interaction. Episodic memory is append-only;
// retrieval reinforces AccessCount.
type Episode struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	TriggerContext string    `json:"trigger_context"`
	Intent         string    `json:"intent"`
	Plan           string    `json:"plan"`
	Action         string    `json:"action"`
	Outcome        string    `json:"outcome"`
	Confidence     float64   `json:"confidence"`
	Embedding      []float32 `json:"embedding,omitempty"`
	AccessCount    int       `json:"access_count"` // >= 1 on insert
	LastAccessed   time.Time `json:"last_accessed"`

	// Similarity is the recall score against the current query. Set during
	// retrieval, never persisted.
	Similarity float64 `json:"-"`
}

// SemanticInsight is a consolidated higher-order summary of a cluster of
// episodes, keyed by a hash of the insight text.
type SemanticInsight struct {
	Key            string    `json:"key"`
	Category       string    `json:"category"` // coding, ethics, workflow, user_pref
	Insight        string    `json:"insight"`
	SourceCount    int       `json:"source_count"` // monotonic
	LastReinforced time.Time `json:"last_reinforced"`
}

// LessonMetadata carries provenance for a lesson.
type LessonMetadata struct {
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Author       string    `json:"author"`
	SourceTask   string    `json:"source_task"`
	Count        int       `json:"count"` // >= 1; duplicates increment
	Reliability  float64   `json:"reliability"`
}

// Lesson is a flat searchable piece of learned knowledge.
type Lesson struct {
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  LessonMetadata `json:"metadata"`
	Failure   bool           `json:"failure,omitempty"` // records something going wrong

	// Similarity is the recall score against the current query. Set during
	// retrieval, never persisted.
	Similarity float64 `json:"-"`
}

// IdentityAnchor is a key-value anchor seeded on first init and mutable only
// via explicit update.
type IdentityAnchor struct {
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	Category     string    `json:"category"` // motivation, ethics, prior, anchor
	Significance float64   `json:"significance"`
	LastUpdated  time.Time `json:"last_updated"`
}

// MemoryContext is the composite returned by the hierarchical memory for
// prompt construction.
type MemoryContext struct {
	WorkingTrace  []Message
	Episodes      []Episode
	Lessons       []Lesson
	Wisdom        []SemanticInsight
	IdentityBlock string
}

// Message is one turn of the working-memory trace.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Metadata  string    `json:"metadata,omitempty"`
}

// =============================================================================
// EVOLUTION ENTITIES
// =============================================================================

// MutationType classifies a proposed self-modification.
type MutationType string

const (
	MutationReflex         MutationType = "reflex"
	MutationPriority       MutationType = "priority"
	MutationSkillSynthesis MutationType = "skill_synthesis"
)

// MutationStatus tracks the one-way lifecycle pending -> applied|rejected.
type MutationStatus string

const (
	MutationPending  MutationStatus = "pending"
	MutationApplied  MutationStatus = "applied"
	MutationRejected MutationStatus = "rejected"
)

// Mutation is a proposed or applied change to the system's own behavior.
type Mutation struct {
	ID           string         `json:"id"`
	Type         MutationType   `json:"type"`
	Description  string         `json:"description"`
	Value        interface{}    `json:"value"`
	PatternID    string         `json:"pattern_id,omitempty"`
	SuccessCount int            `json:"success_count"` // >= 3 auto-applies
	Status       MutationStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	AppliedAt    *time.Time     `json:"applied_at,omitempty"`
}

// =============================================================================
// MISSION ENTITIES
// =============================================================================

// MissionStatus tracks mission lifecycle.
type MissionStatus string

const (
	MissionPending  MissionStatus = "pending"
	MissionActive   MissionStatus = "active"
	MissionComplete MissionStatus = "complete"
)

// Mission is a long-running recurring autonomous goal. Recurring missions
// (RepeatInterval > 0) return to pending on completion.
type Mission struct {
	ID             string        `json:"id"`
	Description    string        `json:"description"`
	Priority       int           `json:"priority"`
	Type           string        `json:"type"`
	Status         MissionStatus `json:"status"`
	RepeatInterval time.Duration `json:"repeat_interval"`
	LastCheck      time.Time     `json:"last_check"`
	Progress       string        `json:"progress"`
}

// =============================================================================
// SAFETY ENTITIES
// =============================================================================

// SafetyTier ranks how dangerous an action class is.
type SafetyTier string

const (
	TierSafe        SafetyTier = "safe"
	TierMedium      SafetyTier = "medium"
	TierDestructive SafetyTier = "destructive"
)

// Capability grants one or more skills the right to run at a safety tier.
type Capability struct {
	Name                 string     `json:"name"`
	Tier                 SafetyTier `json:"safety_tier"`
	ReadOnly             bool       `json:"read_only"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	Enabled              bool       `json:"enabled"`
	LinkedSkills         []string   `json:"linked_skills"`
}

// =============================================================================
// SKILL TELEMETRY
// =============================================================================

// SkillMetric tracks per-skill reliability. AvgLatency is a running mean over
// all attempts.
type SkillMetric struct {
	Attempts   int64         `json:"attempts"`
	Successes  int64         `json:"successes"`
	Failures   int64         `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// SuccessRate returns successes/attempts, or 0 with no attempts.
func (m SkillMetric) SuccessRate() float64 {
	if m.Attempts == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Attempts)
}
