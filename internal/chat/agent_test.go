package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alignsim/alignsim/internal/db"
	"github.com/alignsim/alignsim/internal/llm"
	"github.com/alignsim/alignsim/internal/plan"
	"github.com/alignsim/alignsim/internal/sim"
)

type scriptedClient struct {
	responses []string
	prompts   []string
}

func (c *scriptedClient) Send(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	i := len(c.prompts)
	c.prompts = append(c.prompts, prompt)
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", fmt.Errorf("no scripted response for call %d", i+1)
}

func newStore(t *testing.T) *plan.Store {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return plan.NewStore(conn)
}

func boundSession(t *testing.T, store *plan.Store) (*plan.Session, int64) {
	t.Helper()
	planID, err := store.CreatePlan(context.Background(), "Field study", "")
	require.NoError(t, err)
	session := plan.NewSession(store)
	require.NoError(t, session.Bind(context.Background(), planID))
	return session, planID
}

func TestAgent_CreateTask(t *testing.T) {
	store := newStore(t)
	session, planID := boundSession(t, store)
	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": "Added the task."},
		  "actions": [{"kind": "task_operation", "name": "create_task",
		               "parameters": {"name": "Label samples", "instruction": "Label all 20 samples"}}]}`,
	}}
	agent := New(session, client, "test-model", nil)

	result, err := agent.Handle(context.Background(), "please add a labeling task")
	require.NoError(t, err)

	assert.Equal(t, "Added the task.", result.Reply)
	require.Len(t, result.Steps, 1)
	assert.True(t, result.Steps[0].Success)
	assert.Contains(t, result.Steps[0].Message, "created task")

	tree, err := store.Tree(context.Background(), planID)
	require.NoError(t, err)
	require.Equal(t, 1, tree.NodeCount())
	for _, node := range tree.Nodes {
		assert.Equal(t, "Label samples", node.Name)
		assert.Equal(t, "Label all 20 samples", node.Instruction)
	}
}

func TestAgent_ActionOrdering(t *testing.T) {
	store := newStore(t)
	session, _ := boundSession(t, store)
	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": "Done."},
		  "actions": [
		    {"kind": "task_operation", "name": "create_task", "parameters": {"name": "Second"}, "order": 2},
		    {"kind": "task_operation", "name": "create_task", "parameters": {"name": "First"}, "order": 1}
		  ]}`,
	}}
	agent := New(session, client, "test-model", nil)

	result, err := agent.Handle(context.Background(), "add two tasks")
	require.NoError(t, err)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "First", result.Steps[0].Action.StringParam("name"))
	assert.Equal(t, "Second", result.Steps[1].Action.StringParam("name"))
}

func TestAgent_FailedStepDoesNotFailCall(t *testing.T) {
	store := newStore(t)
	session, _ := boundSession(t, store)
	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": "Tried."},
		  "actions": [
		    {"kind": "task_operation", "name": "delete_task", "parameters": {"task_id": 999}},
		    {"kind": "task_operation", "name": "create_task", "parameters": {"name": "Recovery"}}
		  ]}`,
	}}
	agent := New(session, client, "test-model", nil)

	result, err := agent.Handle(context.Background(), "delete and create")
	require.NoError(t, err)
	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].Success)
	assert.Contains(t, result.Steps[0].Message, "task not found")
	assert.True(t, result.Steps[1].Success)
}

func TestAgent_InvalidActionRecordedAsFailure(t *testing.T) {
	store := newStore(t)
	session, _ := boundSession(t, store)
	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": "Hmm."},
		  "actions": [{"kind": "mystery_operation", "name": "noop", "parameters": {}}]}`,
	}}
	agent := New(session, client, "test-model", nil)

	result, err := agent.Handle(context.Background(), "do something odd")
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Success)
	assert.Contains(t, result.Steps[0].Message, "invalid action")
}

func TestAgent_NonJSONResponse(t *testing.T) {
	store := newStore(t)
	session, _ := boundSession(t, store)
	client := &scriptedClient{responses: []string{"Sure, I created the task for you!"}}
	agent := New(session, client, "test-model", nil)

	_, err := agent.Handle(context.Background(), "add a task")
	require.ErrorIs(t, err, sim.ErrMalformedResponse)
}

func TestAgent_CreatePlanBindsSession(t *testing.T) {
	store := newStore(t)
	session := plan.NewSession(store)
	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": "Created."},
		  "actions": [{"kind": "plan_operation", "name": "create_plan",
		               "parameters": {"title": "New plan", "description": "fresh"}}]}`,
	}}
	agent := New(session, client, "test-model", nil)

	result, err := agent.Handle(context.Background(), "make a plan")
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	require.True(t, result.Steps[0].Success)
	assert.True(t, session.Bound())
}

func TestAgent_TaskActionRequiresBoundPlan(t *testing.T) {
	store := newStore(t)
	session := plan.NewSession(store)
	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": "Trying."},
		  "actions": [{"kind": "task_operation", "name": "create_task", "parameters": {"name": "Orphan"}}]}`,
	}}
	agent := New(session, client, "test-model", nil)

	result, err := agent.Handle(context.Background(), "add a task")
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Success)
	assert.Contains(t, result.Steps[0].Message, "no plan bound")
}

func TestAgent_QueryStatus(t *testing.T) {
	store := newStore(t)
	session, planID := boundSession(t, store)
	ctx := context.Background()
	_, err := store.CreateTask(ctx, planID, nil, "Alpha", "")
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, planID, nil, "Beta", "")
	require.NoError(t, err)
	_, err = session.Refresh(ctx)
	require.NoError(t, err)

	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": ""},
		  "actions": [{"kind": "task_operation", "name": "query_status", "parameters": {}}]}`,
	}}
	agent := New(session, client, "test-model", nil)

	result, err := agent.Handle(ctx, "how is the plan going?")
	require.NoError(t, err)
	require.Len(t, result.Steps, 1)
	assert.Contains(t, result.Steps[0].Message, "2 tasks")
	assert.Contains(t, result.Steps[0].Message, "2 pending")
	assert.Contains(t, result.Reply, "query_status done", "blank reply falls back to a step summary")
}

func TestAgent_HistoryInPrompt(t *testing.T) {
	store := newStore(t)
	session, _ := boundSession(t, store)
	client := &scriptedClient{responses: []string{
		`{"llm_reply": {"message": "ok"}, "actions": []}`,
	}}
	history := []sim.ChatMessage{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	agent := New(session, client, "test-model", history)

	_, err := agent.Handle(context.Background(), "follow-up")
	require.NoError(t, err)
	assert.Contains(t, client.prompts[0], "user: earlier question")
	assert.Contains(t, client.prompts[0], "assistant: earlier answer")
	assert.Contains(t, client.prompts[0], "follow-up")
}
