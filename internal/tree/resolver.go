// Package tree traverses and mutates the content parent/child forest.
package tree

import (
	"context"
	"fmt"

	"loom/api/internal/store"
)

// ContentSource is the slice of the store the resolver needs.
type ContentSource interface {
	GetContent(ctx context.Context, id string) (store.Content, error)
	DeleteContentRows(ctx context.Context, ids []string) error
	AppendChild(ctx context.Context, parentID, childID string) error
}

type Resolver struct {
	contents ContentSource
}

func NewResolver(contents ContentSource) *Resolver {
	return &Resolver{contents: contents}
}

// CascadeResult describes one completed cascading delete: every removed
// content id plus the deduplicated author and group ids whose arrays still
// reference them and need cleanup.
type CascadeResult struct {
	RemovedIDs []string
	AuthorIDs  []string
	GroupIDs   []string
}

// CollectDescendants walks the subtree rooted at rootID breadth-first and
// returns its nodes in visit order, root first. Traversal uses an explicit
// queue, so depth is a loop count rather than call-stack depth and a reply
// chain of any length terminates.
//
// A children pointer to a missing row, or a node reachable twice (the forest
// has a cycle or a shared child), is reported as an InvariantViolation rather
// than silently skipped. A missing root is a NotFound.
func (r *Resolver) CollectDescendants(ctx context.Context, rootID string) ([]store.Content, error) {
	root, err := r.contents.GetContent(ctx, rootID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{rootID: true}
	queue := []store.Content{root}
	nodes := make([]store.Content, 0, 1)

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		nodes = append(nodes, node)

		for _, childID := range node.ChildIDs {
			if visited[childID] {
				return nil, &store.InvariantViolationError{
					Detail: fmt.Sprintf("content %s reachable twice under %s; parent/child graph is not a forest", childID, rootID),
				}
			}
			visited[childID] = true

			child, err := r.contents.GetContent(ctx, childID)
			if store.IsNotFound(err) {
				return nil, &store.InvariantViolationError{
					Detail: fmt.Sprintf("children of content %s reference missing content %s", node.ID, childID),
				}
			}
			if err != nil {
				return nil, err
			}
			queue = append(queue, child)
		}
	}
	return nodes, nil
}

// CascadingDelete removes the content rooted at rootID together with its
// entire transitive subtree. The full descendant set, root included, is
// enumerated before any row is deleted: deleting first would sever the
// children pointers needed to find the rest of the subtree.
//
// Cleanup of the author and group arrays referencing the removed ids is the
// caller's job, driven by the returned CascadeResult.
func (r *Resolver) CascadingDelete(ctx context.Context, rootID string) (CascadeResult, error) {
	nodes, err := r.CollectDescendants(ctx, rootID)
	if err != nil {
		return CascadeResult{}, err
	}

	result := CascadeResult{RemovedIDs: make([]string, 0, len(nodes))}
	seenAuthors := map[string]bool{}
	seenGroups := map[string]bool{}
	for _, node := range nodes {
		result.RemovedIDs = append(result.RemovedIDs, node.ID)
		if node.AuthorID != "" && !seenAuthors[node.AuthorID] {
			seenAuthors[node.AuthorID] = true
			result.AuthorIDs = append(result.AuthorIDs, node.AuthorID)
		}
		if node.GroupID != "" && !seenGroups[node.GroupID] {
			seenGroups[node.GroupID] = true
			result.GroupIDs = append(result.GroupIDs, node.GroupID)
		}
	}

	if err := r.contents.DeleteContentRows(ctx, result.RemovedIDs); err != nil {
		return CascadeResult{}, err
	}
	return result, nil
}

// AttachChild appends childID to the parent's children list.
func (r *Resolver) AttachChild(ctx context.Context, parentID, childID string) error {
	return r.contents.AppendChild(ctx, parentID, childID)
}
