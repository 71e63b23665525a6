package sim

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alignsim/alignsim/internal/db"
	"github.com/alignsim/alignsim/internal/llm"
	"github.com/alignsim/alignsim/internal/plan"
)

// scriptedClient replays canned responses in order.
type scriptedClient struct {
	responses []string
	errs      []error
	prompts   []string
}

func (c *scriptedClient) Send(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	i := len(c.prompts)
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", fmt.Errorf("no scripted response for call %d", i+1)
}

func newPlanStore(t *testing.T) *plan.Store {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return plan.NewStore(conn)
}

// seedSessionWithChild creates a plan holding a parent task with one child
// named childName and returns a bound session plus the relevant ids.
func seedSessionWithChild(t *testing.T, childName string) (*plan.Session, int64, int64) {
	t.Helper()
	ctx := context.Background()
	store := newPlanStore(t)

	planID, err := store.CreatePlan(ctx, "Field study", "")
	require.NoError(t, err)
	parentID, err := store.CreateTask(ctx, planID, nil, "Prepare expedition", "")
	require.NoError(t, err)
	childID, err := store.CreateTask(ctx, planID, &parentID, childName, "")
	require.NoError(t, err)

	session := plan.NewSession(store)
	require.NoError(t, session.Bind(ctx, planID))
	return session, parentID, childID
}
