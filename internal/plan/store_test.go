package plan_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignsim/alignsim/internal/db"
	"github.com/alignsim/alignsim/internal/plan"
)

func newStore(t *testing.T) *plan.Store {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return plan.NewStore(conn)
}

func seedPlan(t *testing.T, store *plan.Store) int64 {
	t.Helper()
	id, err := store.CreatePlan(context.Background(), "Ship release", "Release 1.0 checklist")
	require.NoError(t, err)
	return id
}

func TestStore_CreateAndListPlans(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	id := seedPlan(t, store)
	_, err := store.CreateTask(ctx, id, nil, "Write changelog", "Summarize changes")
	require.NoError(t, err)

	plans, err := store.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "Ship release", plans[0].Title)
	assert.Equal(t, 1, plans[0].TaskCount)
}

func TestStore_CreatePlanRequiresTitle(t *testing.T) {
	store := newStore(t)

	_, err := store.CreatePlan(context.Background(), "   ", "")
	require.Error(t, err)
}

func TestStore_TreeOrdering(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	a, err := store.CreateTask(ctx, planID, nil, "Alpha", "")
	require.NoError(t, err)
	b, err := store.CreateTask(ctx, planID, nil, "Beta", "")
	require.NoError(t, err)
	a1, err := store.CreateTask(ctx, planID, &a, "Alpha child", "")
	require.NoError(t, err)

	tree, err := store.Tree(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, tree.RootIDs())
	assert.Equal(t, []int64{a1}, tree.ChildrenIDs(&a))
}

func TestStore_TreeUnknownPlan(t *testing.T) {
	store := newStore(t)

	_, err := store.Tree(context.Background(), 999)
	require.ErrorIs(t, err, plan.ErrPlanNotFound)
}

func TestStore_UpdateTask(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	id, err := store.CreateTask(ctx, planID, nil, "Draft", "first pass")
	require.NoError(t, err)

	name := "Draft v2"
	instr := "second pass"
	require.NoError(t, store.UpdateTask(ctx, id, plan.TaskUpdate{Name: &name, Instruction: &instr}))

	tree, err := store.Tree(ctx, planID)
	require.NoError(t, err)
	node := tree.Nodes[id]
	assert.Equal(t, "Draft v2", node.Name)
	assert.Equal(t, "second pass", node.Instruction)

	require.ErrorIs(t, store.UpdateTask(ctx, 12345, plan.TaskUpdate{Name: &name}), plan.ErrTaskNotFound)
}

func TestStore_MoveTask(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	a, err := store.CreateTask(ctx, planID, nil, "Alpha", "")
	require.NoError(t, err)
	b, err := store.CreateTask(ctx, planID, nil, "Beta", "")
	require.NoError(t, err)

	require.NoError(t, store.MoveTask(ctx, b, &a, 0))

	tree, err := store.Tree(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, tree.RootIDs())
	assert.Equal(t, []int64{b}, tree.ChildrenIDs(&a))

	require.Error(t, store.MoveTask(ctx, a, &a, 0))
}

func TestStore_DeleteTaskCascades(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	a, err := store.CreateTask(ctx, planID, nil, "Alpha", "")
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, planID, &a, "Alpha child", "")
	require.NoError(t, err)

	require.NoError(t, store.DeleteTask(ctx, a))

	tree, err := store.Tree(ctx, planID)
	require.NoError(t, err)
	assert.True(t, tree.IsEmpty())
}

func TestTree_Outline(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	a, err := store.CreateTask(ctx, planID, nil, "Collect samples", "Gather 20 field samples from the north site")
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, planID, &a, "Label samples", "")
	require.NoError(t, err)

	tree, err := store.Tree(ctx, planID)
	require.NoError(t, err)

	outline := tree.Outline(4, 80)
	assert.Contains(t, outline, "Ship release")
	assert.Contains(t, outline, "- [1] Collect samples")
	assert.Contains(t, outline, "  - [2] Label samples")
	assert.Contains(t, outline, "Gather 20 field samples")
}

func TestTree_OutlineTruncation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	for i := 0; i < 5; i++ {
		_, err := store.CreateTask(ctx, planID, nil, "Task", "")
		require.NoError(t, err)
	}

	tree, err := store.Tree(ctx, planID)
	require.NoError(t, err)

	outline := tree.Outline(4, 3)
	assert.Contains(t, outline, "truncated after 3 nodes")
}

func TestTree_FindChild(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	a, err := store.CreateTask(ctx, planID, nil, "Collect Samples", "")
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, planID, &a, "Nested", "")
	require.NoError(t, err)

	tree, err := store.Tree(ctx, planID)
	require.NoError(t, err)

	found := tree.FindChild(nil, "  collect samples ")
	require.NotNil(t, found)
	assert.Equal(t, a, found.ID)

	assert.Nil(t, tree.FindChild(nil, "nested"))
	assert.Nil(t, tree.FindChild(nil, ""))
}

func TestSession_BindRefreshDetach(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	sess := plan.NewSession(store)
	assert.False(t, sess.Bound())
	assert.Equal(t, "(no plan bound)", sess.Outline(ctx, 4, 80))

	_, err := sess.Refresh(ctx)
	require.ErrorIs(t, err, plan.ErrNotBound)

	require.NoError(t, sess.Bind(ctx, planID))
	require.True(t, sess.Bound())

	_, err = store.CreateTask(ctx, planID, nil, "Late task", "")
	require.NoError(t, err)

	tree, err := sess.CurrentTree(ctx)
	require.NoError(t, err)
	assert.True(t, tree.IsEmpty(), "cached tree predates the new task")

	tree, err = sess.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tree.NodeCount())

	sess.Detach()
	assert.False(t, sess.Bound())
	assert.Nil(t, sess.PlanID())
}

func TestSession_Clone(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	planID := seedPlan(t, store)

	sess := plan.NewSession(store)
	require.NoError(t, sess.Bind(ctx, planID))

	clone := sess.Clone()
	require.NotNil(t, clone.PlanID())
	assert.Equal(t, planID, *clone.PlanID())

	clone.Detach()
	assert.True(t, sess.Bound(), "detaching the clone must not affect the source")
}
