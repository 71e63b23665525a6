package plan

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotBound is returned by session operations that require a bound plan.
var ErrNotBound = errors.New("no plan bound to session")

// Session is a cursor over one plan: it remembers which plan is bound and
// caches the last loaded tree. A session is not safe for concurrent use;
// callers that need isolation take a Clone.
type Session struct {
	repo   Repository
	planID *int64
	tree   *Tree
}

// NewSession creates an unbound session over the repository.
func NewSession(repo Repository) *Session {
	return &Session{repo: repo}
}

// Repo exposes the underlying repository for direct mutations.
func (s *Session) Repo() Repository { return s.repo }

// PlanID returns the bound plan id, or nil when unbound.
func (s *Session) PlanID() *int64 {
	if s.planID == nil {
		return nil
	}
	v := *s.planID
	return &v
}

// Bound reports whether a plan is currently bound.
func (s *Session) Bound() bool { return s.planID != nil }

// Bind attaches the session to a plan and loads its tree.
func (s *Session) Bind(ctx context.Context, planID int64) error {
	tree, err := s.repo.Tree(ctx, planID)
	if err != nil {
		return fmt.Errorf("bind plan %d: %w", planID, err)
	}
	s.planID = &planID
	s.tree = tree
	return nil
}

// Detach unbinds the session and drops the cached tree.
func (s *Session) Detach() {
	s.planID = nil
	s.tree = nil
}

// Refresh reloads the bound plan's tree from storage.
func (s *Session) Refresh(ctx context.Context) (*Tree, error) {
	if s.planID == nil {
		return nil, ErrNotBound
	}
	tree, err := s.repo.Tree(ctx, *s.planID)
	if err != nil {
		return nil, fmt.Errorf("refresh plan %d: %w", *s.planID, err)
	}
	s.tree = tree
	return tree, nil
}

// CurrentTree returns the cached tree, loading it on first use.
func (s *Session) CurrentTree(ctx context.Context) (*Tree, error) {
	if s.planID == nil {
		return nil, ErrNotBound
	}
	if s.tree == nil {
		return s.Refresh(ctx)
	}
	return s.tree, nil
}

// Outline renders the bound plan's outline, or a placeholder when unbound.
func (s *Session) Outline(ctx context.Context, maxDepth, maxNodes int) string {
	if s.planID == nil {
		return "(no plan bound)"
	}
	tree, err := s.CurrentTree(ctx)
	if err != nil {
		return fmt.Sprintf("(plan %d unavailable)", *s.planID)
	}
	return tree.Outline(maxDepth, maxNodes)
}

// Clone returns an independent session bound to the same plan. The clone
// shares the repository but keeps its own tree cache.
func (s *Session) Clone() *Session {
	clone := &Session{repo: s.repo}
	if s.planID != nil {
		v := *s.planID
		clone.planID = &v
	}
	return clone
}
