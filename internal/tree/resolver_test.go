package tree

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"loom/api/internal/store"
)

type fakeContents struct {
	nodes   map[string]store.Content
	deleted [][]string
}

func newFakeContents(nodes ...store.Content) *fakeContents {
	f := &fakeContents{nodes: map[string]store.Content{}}
	for _, node := range nodes {
		f.nodes[node.ID] = node
	}
	return f
}

func (f *fakeContents) GetContent(_ context.Context, id string) (store.Content, error) {
	node, ok := f.nodes[id]
	if !ok {
		return store.Content{}, &store.NotFoundError{Kind: "content", ID: id}
	}
	return node, nil
}

func (f *fakeContents) DeleteContentRows(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids)
	for _, id := range ids {
		delete(f.nodes, id)
	}
	return nil
}

func (f *fakeContents) AppendChild(_ context.Context, parentID, childID string) error {
	node, ok := f.nodes[parentID]
	if !ok {
		return &store.NotFoundError{Kind: "content", ID: parentID}
	}
	node.ChildIDs = append(node.ChildIDs, childID)
	f.nodes[parentID] = node
	return nil
}

func TestCollectDescendantsReturnsSubtreeRootFirst(t *testing.T) {
	contents := newFakeContents(
		store.Content{ID: "p", AuthorID: "alice", ChildIDs: []string{"r1", "r2"}},
		store.Content{ID: "r1", AuthorID: "bob", ParentID: "p", ChildIDs: []string{"r3"}},
		store.Content{ID: "r2", AuthorID: "carol", ParentID: "p"},
		store.Content{ID: "r3", AuthorID: "alice", ParentID: "r1"},
		store.Content{ID: "other", AuthorID: "dave"},
	)
	resolver := NewResolver(contents)

	nodes, err := resolver.CollectDescendants(context.Background(), "p")
	if err != nil {
		t.Fatalf("collect descendants: %v", err)
	}

	got := make([]string, 0, len(nodes))
	for _, node := range nodes {
		got = append(got, node.ID)
	}
	want := []string{"p", "r1", "r2", "r3"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestCollectDescendantsSurvivesDeepChains(t *testing.T) {
	const depth = 50000
	nodes := make([]store.Content, 0, depth)
	for i := 0; i < depth; i++ {
		node := store.Content{ID: fmt.Sprintf("n%d", i)}
		if i > 0 {
			node.ParentID = fmt.Sprintf("n%d", i-1)
		}
		if i < depth-1 {
			node.ChildIDs = []string{fmt.Sprintf("n%d", i+1)}
		}
		nodes = append(nodes, node)
	}
	resolver := NewResolver(newFakeContents(nodes...))

	collected, err := resolver.CollectDescendants(context.Background(), "n0")
	if err != nil {
		t.Fatalf("collect descendants: %v", err)
	}
	if len(collected) != depth {
		t.Fatalf("expected %d nodes, got %d", depth, len(collected))
	}
}

func TestCollectDescendantsMissingRootIsNotFound(t *testing.T) {
	resolver := NewResolver(newFakeContents())
	_, err := resolver.CollectDescendants(context.Background(), "ghost")
	if !store.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCollectDescendantsMissingChildIsInvariantViolation(t *testing.T) {
	contents := newFakeContents(
		store.Content{ID: "p", ChildIDs: []string{"gone"}},
	)
	resolver := NewResolver(contents)

	_, err := resolver.CollectDescendants(context.Background(), "p")
	var violation *store.InvariantViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
}

func TestCollectDescendantsCycleIsInvariantViolation(t *testing.T) {
	contents := newFakeContents(
		store.Content{ID: "a", ChildIDs: []string{"b"}},
		store.Content{ID: "b", ChildIDs: []string{"a"}},
	)
	resolver := NewResolver(contents)

	_, err := resolver.CollectDescendants(context.Background(), "a")
	var violation *store.InvariantViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
}

func TestCascadingDeleteEnumeratesBeforeDeleting(t *testing.T) {
	contents := newFakeContents(
		store.Content{ID: "p", AuthorID: "alice", GroupID: "g1", ChildIDs: []string{"r1"}},
		store.Content{ID: "r1", AuthorID: "bob", ParentID: "p", ChildIDs: []string{"r2"}},
		store.Content{ID: "r2", AuthorID: "carol", ParentID: "r1"},
		store.Content{ID: "keep", AuthorID: "alice"},
	)
	resolver := NewResolver(contents)

	result, err := resolver.CascadingDelete(context.Background(), "p")
	if err != nil {
		t.Fatalf("cascading delete: %v", err)
	}

	if len(result.RemovedIDs) != 3 {
		t.Fatalf("expected 3 removed ids, got %v", result.RemovedIDs)
	}
	if len(contents.deleted) != 1 {
		t.Fatalf("expected a single delete batch after full enumeration, got %d", len(contents.deleted))
	}
	if _, ok := contents.nodes["keep"]; !ok {
		t.Fatal("unrelated content must survive the cascade")
	}

	wantAuthors := map[string]bool{"alice": true, "bob": true, "carol": true}
	for _, author := range result.AuthorIDs {
		if !wantAuthors[author] {
			t.Fatalf("unexpected author %s", author)
		}
		delete(wantAuthors, author)
	}
	if len(wantAuthors) != 0 {
		t.Fatalf("missing authors: %v", wantAuthors)
	}
	if len(result.GroupIDs) != 1 || result.GroupIDs[0] != "g1" {
		t.Fatalf("expected group g1, got %v", result.GroupIDs)
	}
}

func TestCascadingDeleteDeduplicatesAuthors(t *testing.T) {
	contents := newFakeContents(
		store.Content{ID: "p", AuthorID: "alice", ChildIDs: []string{"r1", "r2"}},
		store.Content{ID: "r1", AuthorID: "alice", ParentID: "p"},
		store.Content{ID: "r2", AuthorID: "alice", ParentID: "p"},
	)
	resolver := NewResolver(contents)

	result, err := resolver.CascadingDelete(context.Background(), "p")
	if err != nil {
		t.Fatalf("cascading delete: %v", err)
	}
	if len(result.AuthorIDs) != 1 || result.AuthorIDs[0] != "alice" {
		t.Fatalf("expected deduplicated authors [alice], got %v", result.AuthorIDs)
	}
}

func TestAttachChildMissingParent(t *testing.T) {
	resolver := NewResolver(newFakeContents())
	err := resolver.AttachChild(context.Background(), "ghost", "child")
	if !store.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
