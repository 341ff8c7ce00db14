// Package moderation derives per-actor visibility from the append-only
// moderation log.
package moderation

import (
	"maps"
	"slices"

	"github.com/vedran77/pulse-inbox/internal/domain"
)

// Set is a set of object ids.
type Set map[string]struct{}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members sorted.
func (s Set) IDs() []string {
	if len(s) == 0 {
		return []string{}
	}
	return slices.Sorted(maps.Keys(s))
}

// HiddenSet returns the objects whose newest action is a hide. actions must be
// ordered newest-first; the first row seen for an object decides its state and
// later rows for it are ignored. A nil objectIDs considers every object in the
// log.
func HiddenSet(actions []domain.ModerationAction, objectIDs []string) Set {
	var wanted Set
	if objectIDs != nil {
		wanted = make(Set, len(objectIDs))
		for _, id := range objectIDs {
			wanted[id] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(actions))
	hidden := make(Set)
	for _, a := range actions {
		if wanted != nil && !wanted.Has(a.ObjectID) {
			continue
		}
		if _, ok := seen[a.ObjectID]; ok {
			continue
		}
		seen[a.ObjectID] = struct{}{}
		if a.ActionType == domain.ActionHide {
			hidden[a.ObjectID] = struct{}{}
		}
	}
	return hidden
}

type frame struct {
	node    *domain.CommentNode
	covered bool
}

// ExpandToDescendants walks every root depth-first and returns all nodes that
// are hidden explicitly or sit below a hidden ancestor. Coverage only flows
// downward. The tree is walked on every call, so replies added after a hide are
// covered too.
func ExpandToDescendants(roots []*domain.CommentNode, hidden Set) Set {
	out := make(Set, len(hidden))
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		if roots[i] != nil {
			stack = append(stack, frame{node: roots[i]})
		}
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		covered := f.covered || hidden.Has(f.node.ID)
		if covered {
			out[f.node.ID] = struct{}{}
		}
		for i := len(f.node.Replies) - 1; i >= 0; i-- {
			if child := f.node.Replies[i]; child != nil {
				stack = append(stack, frame{node: child, covered: covered})
			}
		}
	}
	return out
}

// TreeIDs lists every node id in the forest.
func TreeIDs(roots []*domain.CommentNode) []string {
	var ids []string
	stack := append([]*domain.CommentNode(nil), roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		ids = append(ids, n.ID)
		stack = append(stack, n.Replies...)
	}
	return ids
}
