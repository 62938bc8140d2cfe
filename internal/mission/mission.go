// Package mission runs long-lived autonomous goals in the background. Pending
// missions sit on a priority heap; each tick peeks the top and steps it by
// injecting a self-request through the nexus. A recurring top mission still
// inside its repeat interval defers the whole table to the next tick. The
// step reply decides whether the mission is complete, and recurring missions
// return to pending for their next interval.
package mission

import (
	"bufio"
	"container/heap"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aura/internal/config"
	"aura/internal/governor"
	"aura/internal/logging"
	"aura/internal/persist"
	"aura/internal/types"
)

// completeMarker in a step reply finishes the mission. Case-insensitive.
const completeMarker = "MISSION COMPLETE"

// SubmitFunc injects a self-request into the request pipeline.
type SubmitFunc func(req *types.Request) error

// pendingEntry wraps a pending mission with a sequence so equal priorities
// step in insertion order.
type pendingEntry struct {
	m   *types.Mission
	seq uint64
}

// pendingHeap orders by priority (lower value first), then arrival.
type pendingHeap []*pendingEntry

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	if h[i].m.Priority != h[j].m.Priority {
		return h[i].m.Priority < h[j].m.Priority
	}
	return h[i].seq < h[j].seq
}
func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) {
	*h = append(*h, x.(*pendingEntry))
}
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Control owns the mission table and the background stepper. The map holds
// every mission for lookup; the heap holds only pending ones. A mission
// removed while pending leaves a stale heap entry that nextDue discards.
type Control struct {
	mu       sync.Mutex
	missions map[string]*types.Mission
	pending  pendingHeap
	seq      uint64
	path     string
	debounce *persist.Debouncer

	submit        SubmitFunc
	loadThreshold float64
	idleSleep     time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type missionFile struct {
	Missions []*types.Mission `json:"missions"`
	SavedAt  time.Time        `json:"saved_at"`
}

// New loads mission state. A missing file starts empty; a corrupt file is
// moved aside.
func New(cfg config.MissionConfig, submit SubmitFunc) (*Control, error) {
	idle := 15 * time.Second
	if d, err := time.ParseDuration(cfg.IdleSleep); err == nil && d > 0 {
		idle = d
	}
	threshold := cfg.LoadThreshold
	if threshold <= 0 {
		threshold = 0.8
	}

	c := &Control{
		missions:      map[string]*types.Mission{},
		path:          cfg.StatePath,
		submit:        submit,
		loadThreshold: threshold,
		idleSleep:     idle,
		stop:          make(chan struct{}),
	}
	c.debounce = persist.New(c.save, 2*time.Second, 10*time.Second)
	c.debounce.OnError(func(err error) {
		logging.MissionError("debounced save failed: %v", err)
	})

	data, err := os.ReadFile(cfg.StatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read missions %s: %w", cfg.StatePath, err)
	}
	var f missionFile
	if err := json.Unmarshal(data, &f); err != nil {
		aside := cfg.StatePath + ".corrupt"
		os.Rename(cfg.StatePath, aside)
		logging.MissionError("corrupt mission file moved to %s", aside)
		return c, nil
	}
	c.mu.Lock()
	for _, m := range f.Missions {
		// A crash mid-step leaves a mission active; recover it.
		if m.Status == types.MissionActive {
			m.Status = types.MissionPending
		}
		c.missions[m.ID] = m
		if m.Status == types.MissionPending {
			c.pushLocked(m)
		}
	}
	c.mu.Unlock()
	logging.Mission("loaded %d missions", len(c.missions))
	return c, nil
}

// pushLocked places a pending mission on the heap. Caller holds mu.
func (c *Control) pushLocked(m *types.Mission) {
	c.seq++
	heap.Push(&c.pending, &pendingEntry{m: m, seq: c.seq})
}

// Add registers a new mission. repeat > 0 makes it recurring.
func (c *Control) Add(description string, priority int, repeat time.Duration) *types.Mission {
	m := &types.Mission{
		ID:             uuid.NewString(),
		Description:    description,
		Priority:       priority,
		Type:           "user",
		Status:         types.MissionPending,
		RepeatInterval: repeat,
	}
	c.mu.Lock()
	c.missions[m.ID] = m
	c.pushLocked(m)
	c.mu.Unlock()
	c.debounce.MarkDirty()
	logging.Mission("added mission %s: %s", m.ID[:8], description)
	return m
}

// Remove deletes a mission.
func (c *Control) Remove(id string) bool {
	c.mu.Lock()
	_, ok := c.missions[id]
	delete(c.missions, id)
	c.mu.Unlock()
	if ok {
		c.debounce.MarkDirty()
	}
	return ok
}

// List returns all missions sorted by priority then description.
func (c *Control) List() []types.Mission {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Mission, 0, len(c.missions))
	for _, m := range c.missions {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Description < out[j].Description
	})
	return out
}

// Run steps missions until Stop. Steps are skipped while the host is busy so
// background work never competes with the user.
func (c *Control) Run() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logging.Mission("mission loop up (idle=%v, load threshold=%.2f)", c.idleSleep, c.loadThreshold)
		for {
			select {
			case <-c.stop:
				return
			case <-time.After(c.idleSleep):
			}
			if load, ok := systemLoad(); ok && load > c.loadThreshold {
				logging.MissionDebug("load %.2f above %.2f, skipping step", load, c.loadThreshold)
				continue
			}
			c.stepNext()
		}
	}()
}

// Stop halts the loop and flushes state.
func (c *Control) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
	if err := c.debounce.Flush(); err != nil {
		logging.MissionError("final flush: %v", err)
	}
	c.debounce.Stop()
}

// stepNext runs one step of the most deserving due mission.
func (c *Control) stepNext() {
	m := c.nextDue()
	if m == nil {
		return
	}

	id := m.ID
	prompt := c.stepPrompt(*m)
	req := &types.Request{
		ID:       uuid.NewString(),
		Source:   "mission",
		Text:     prompt,
		Priority: types.PriorityProactive,
		Reply: func(result string) {
			c.completeStep(id, result)
		},
	}
	if err := c.submit(req); err != nil {
		// Queue pressure or a quiescent governor: put it back for the
		// next tick.
		if errors.Is(err, governor.ErrQuiescent) {
			logging.MissionDebug("system quiescent, step for %s deferred", id[:8])
		} else {
			logging.MissionWarn("step submit for %s: %v", id[:8], err)
		}
		c.mu.Lock()
		if cur, ok := c.missions[id]; ok && cur.Status == types.MissionActive {
			cur.Status = types.MissionPending
			c.pushLocked(cur)
		}
		c.mu.Unlock()
	}
}

// nextDue peeks the top of the pending heap. An undue recurring top defers
// the whole table until the next tick; a due top is popped and marked active.
// Entries whose mission was removed are discarded on the way.
func (c *Control) nextDue() *types.Mission {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for len(c.pending) > 0 {
		top := c.pending[0]
		if _, ok := c.missions[top.m.ID]; !ok || top.m.Status != types.MissionPending {
			heap.Pop(&c.pending)
			continue
		}
		if top.m.RepeatInterval > 0 && now.Sub(top.m.LastCheck) < top.m.RepeatInterval {
			return nil
		}
		heap.Pop(&c.pending)
		top.m.Status = types.MissionActive
		top.m.LastCheck = now
		c.debounce.MarkDirty()
		snapshot := *top.m
		return &snapshot
	}
	return nil
}

func (c *Control) stepPrompt(m types.Mission) string {
	var b strings.Builder
	b.WriteString("Background mission step. Goal: ")
	b.WriteString(m.Description)
	if m.Progress != "" {
		b.WriteString("\nProgress so far: ")
		b.WriteString(m.Progress)
	}
	b.WriteString("\nAdvance the goal by one concrete step. If the goal is fully achieved, include the phrase MISSION COMPLETE in your reply.")
	return b.String()
}

// completeStep records a step result and advances the lifecycle.
func (c *Control) completeStep(id, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.missions[id]
	if !ok {
		return
	}
	m.Progress = truncate(result, 400)
	m.LastCheck = time.Now()

	if strings.Contains(strings.ToUpper(result), completeMarker) {
		if m.RepeatInterval > 0 {
			m.Status = types.MissionPending
			m.Progress = ""
			c.pushLocked(m)
			logging.Mission("recurring mission %s completed, rearmed for %v", id[:8], m.RepeatInterval)
		} else {
			m.Status = types.MissionComplete
			logging.Mission("mission %s complete", id[:8])
		}
	} else {
		m.Status = types.MissionPending
		c.pushLocked(m)
	}
	c.debounce.MarkDirty()
}

func (c *Control) save() error {
	c.mu.Lock()
	f := missionFile{SavedAt: time.Now().UTC()}
	for _, m := range c.missions {
		cp := *m
		f.Missions = append(f.Missions, &cp)
	}
	c.mu.Unlock()

	sort.Slice(f.Missions, func(i, j int) bool { return f.Missions[i].ID < f.Missions[j].ID })
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// systemLoad returns the 1-minute load average normalized by CPU count.
// Only meaningful on Linux; elsewhere the check is skipped.
func systemLoad() (float64, bool) {
	f, err := os.Open("/proc/loadavg")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0, false
	}
	load, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return load / float64(runtime.NumCPU()), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
