package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignsim/alignsim/internal/db"
)

func newArchive(t *testing.T) *SQLArchive {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewSQLArchive(conn)
}

func TestSQLArchive_RoundTrip(t *testing.T) {
	archive := newArchive(t)
	ctx := context.Background()

	state := sampleRunState()
	state.CreatedAt = time.Now().UTC().Truncate(time.Second)
	finished := state.CreatedAt.Add(time.Minute)
	state.FinishedAt = &finished

	require.NoError(t, archive.ArchiveRun(ctx, state))

	loaded, err := archive.LoadRun(ctx, state.RunID)
	require.NoError(t, err)

	assert.Equal(t, state.RunID, loaded.RunID)
	assert.Equal(t, StatusFinished, loaded.Status)
	assert.Equal(t, "tighten the plan", loaded.Config.ImprovementGoal)
	require.NotNil(t, loaded.Config.PlanID)
	assert.Equal(t, int64(12), *loaded.Config.PlanID)

	require.Len(t, loaded.Turns, 1)
	turn := loaded.Turns[0]
	assert.Equal(t, 1, turn.Index)
	assert.Equal(t, "Please add a labeling task.", turn.User.Message)
	require.NotNil(t, turn.User.DesiredAction)
	assert.Equal(t, ActionCreateTask, turn.User.DesiredAction.Name)
	require.Len(t, turn.Assistant.Actions, 2)
	require.NotNil(t, turn.Judge)
	assert.Equal(t, Misaligned, turn.Judge.Alignment)

	require.Len(t, loaded.AlignmentIssues, 1)
	assert.Equal(t, 1, loaded.AlignmentIssues[0].TurnIndex)
	require.NotNil(t, loaded.FinishedAt)
}

func TestSQLArchive_UpsertOverwrites(t *testing.T) {
	archive := newArchive(t)
	ctx := context.Background()

	state := sampleRunState()
	state.CreatedAt = time.Now().UTC()
	state.Status = StatusRunning
	require.NoError(t, archive.ArchiveRun(ctx, state))

	state.Status = StatusError
	state.Error = "late failure"
	require.NoError(t, archive.ArchiveRun(ctx, state))

	loaded, err := archive.LoadRun(ctx, state.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, loaded.Status)
	assert.Equal(t, "late failure", loaded.Error)

	runs, err := archive.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1, "archive keeps one row per run")
	assert.Empty(t, runs[0].Turns, "listing omits turn payloads")
}

func TestSQLArchive_LoadUnknown(t *testing.T) {
	archive := newArchive(t)

	_, err := archive.LoadRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}
