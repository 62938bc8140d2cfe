package mission

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"aura/internal/config"
	"aura/internal/governor"
	"aura/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T) config.MissionConfig {
	t.Helper()
	return config.MissionConfig{
		StatePath:     filepath.Join(t.TempDir(), "missions.json"),
		LoadThreshold: 0.8,
		IdleSleep:     "10ms",
	}
}

func newControl(t *testing.T, cfg config.MissionConfig, submit SubmitFunc) *Control {
	t.Helper()
	c, err := New(cfg, submit)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestStepPicksHighestPriorityPending(t *testing.T) {
	var stepped []string
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		stepped = append(stepped, req.Text)
		req.Reply("still working on it")
		return nil
	})

	c.Add("organize downloads folder", 5, 0)
	c.Add("watch for security advisories", 1, 0)

	c.stepNext()
	require.Len(t, stepped, 1)
	assert.Contains(t, stepped[0], "security advisories")

	// The reply returned it to pending, so the same mission leads again.
	c.stepNext()
	require.Len(t, stepped, 2)
	assert.Contains(t, stepped[1], "security advisories")
}

func TestCompleteMarkerFinishesMission(t *testing.T) {
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		req.Reply("Checked everything. mission complete, nothing left to do.")
		return nil
	})
	m := c.Add("one-off cleanup", 1, 0)

	c.stepNext()

	got := c.List()
	require.Len(t, got, 1)
	assert.Equal(t, m.ID, got[0].ID)
	// The marker match is case-insensitive.
	assert.Equal(t, types.MissionComplete, got[0].Status)
}

func TestRecurringMissionRearms(t *testing.T) {
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		req.Reply("All clear. MISSION COMPLETE.")
		return nil
	})
	c.Add("hourly inbox sweep", 1, time.Hour)

	c.stepNext()

	got := c.List()[0]
	assert.Equal(t, types.MissionPending, got.Status, "recurring mission returns to pending")
	assert.Empty(t, got.Progress, "progress resets on completion")

	// Inside the repeat interval nothing is due.
	assert.Nil(t, c.nextDue())
}

func TestProgressCarriesIntoNextPrompt(t *testing.T) {
	replies := []string{"checked 3 of 10 feeds", "done"}
	var prompts []string
	i := 0
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		prompts = append(prompts, req.Text)
		req.Reply(replies[i])
		i++
		return nil
	})
	c.Add("review news feeds", 1, 0)

	c.stepNext()
	c.stepNext()

	require.Len(t, prompts, 2)
	assert.False(t, strings.Contains(prompts[0], "Progress so far"), "first step has no progress section")
	assert.Contains(t, prompts[1], "checked 3 of 10 feeds")
}

func TestSubmitFailureReturnsMissionToPending(t *testing.T) {
	fail := true
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		if fail {
			return assert.AnError
		}
		req.Reply("ok")
		return nil
	})
	c.Add("retry me", 1, 0)

	c.stepNext()
	require.Equal(t, types.MissionPending, c.List()[0].Status)

	fail = false
	c.stepNext()
	assert.Equal(t, types.MissionPending, c.List()[0].Status)
}

func TestQuiescentSubmitDefersWithoutProgress(t *testing.T) {
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		return governor.ErrQuiescent
	})
	c.Add("nightly digest", 1, 0)

	c.stepNext()

	got := c.List()[0]
	assert.Equal(t, types.MissionPending, got.Status, "deferred mission stays pending")
	assert.Empty(t, got.Progress, "a deferred step must not record progress")
}

func TestUndueTopDefersTable(t *testing.T) {
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		req.Reply("MISSION COMPLETE")
		return nil
	})
	c.Add("hourly sweep", 1, time.Hour)
	c.stepNext() // completes and rearms with a fresh last-check

	c.Add("one-off errand", 5, 0)

	// The top of the heap is the hourly mission and it is not due yet, so
	// nothing steps this tick, not even the due one-off below it.
	assert.Nil(t, c.nextDue())
}

func TestRemovedMissionNeverSteps(t *testing.T) {
	var stepped []string
	c := newControl(t, testConfig(t), func(req *types.Request) error {
		stepped = append(stepped, req.Text)
		req.Reply("ok")
		return nil
	})
	doomed := c.Add("urgent but doomed", 1, 0)
	c.Add("runner-up", 5, 0)
	require.True(t, c.Remove(doomed.ID))

	c.stepNext()

	require.Len(t, stepped, 1)
	assert.Contains(t, stepped[0], "runner-up")
}

func TestPersistenceRoundtrip(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg, func(req *types.Request) error { return nil })
	require.NoError(t, err)
	c.Add("survive restarts", 2, time.Hour)
	before := c.List()
	c.Stop()

	again, err := New(cfg, func(req *types.Request) error { return nil })
	require.NoError(t, err)
	defer again.Stop()

	diff := cmp.Diff(before, again.List(), cmpopts.EquateApproxTime(time.Second))
	assert.Empty(t, diff, "reloaded missions should match saved state")
}

func TestActiveMissionRecoversOnLoad(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg, func(req *types.Request) error {
		// Never reply: simulates a crash mid-step.
		return nil
	})
	require.NoError(t, err)
	c.Add("interrupted work", 1, 0)
	c.stepNext()
	require.Equal(t, types.MissionActive, c.List()[0].Status)
	c.Stop()

	again, err := New(cfg, func(req *types.Request) error { return nil })
	require.NoError(t, err)
	defer again.Stop()
	assert.Equal(t, types.MissionPending, again.List()[0].Status, "active missions recover to pending")
}

func TestRemove(t *testing.T) {
	c := newControl(t, testConfig(t), func(req *types.Request) error { return nil })
	m := c.Add("temp", 1, 0)
	assert.True(t, c.Remove(m.ID))
	assert.False(t, c.Remove("nope"))
	assert.Empty(t, c.List())
}
