// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/entityvault/services/repository/authz"
	"github.com/AleutianAI/entityvault/services/repository/concurrency"
	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/registry"
	storage "github.com/AleutianAI/entityvault/services/repository/storage/badger"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

var (
	alice = &model.UserInfo{PrincipalID: "alice", Groups: []string{"alice"}}
	bob   = &model.UserInfo{PrincipalID: "bob", Groups: []string{"bob"}}
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	s, err := store.New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		_ = db.Close()
	})
	reg := registry.NewRegistry()
	return New(s, authz.NewGuard(s), concurrency.NewController(), registry.NewValidator(reg), nil)
}

func createRoot(t *testing.T, m *Manager, user *model.UserInfo) *model.Node {
	t.Helper()
	n := &model.Node{Name: "root", Kind: model.KindProject}
	id, err := m.CreateNewNode(context.Background(), n, user)
	require.NoError(t, err)
	require.Equal(t, id, n.ID)
	return n
}

func createChild(t *testing.T, m *Manager, user *model.UserInfo, parentID string, kind model.EntityKind) *model.Node {
	t.Helper()
	n := &model.Node{Name: "child-" + string(kind), Kind: kind, ParentID: &parentID}
	_, err := m.CreateNewNode(context.Background(), n, user)
	require.NoError(t, err)
	return n
}

func TestCreateRootGetsGrantAllACL(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	require.Equal(t, model.ETagInitial, root.ETag)
	require.Equal(t, model.FirstRevisionNumber, root.CurrentRevision)
	require.Equal(t, root.ID, root.BenefactorID)
	require.Equal(t, "alice", root.CreatedBy)
	require.Equal(t, "alice", root.ModifiedBy)

	acl, err := m.GetACL(ctx, alice, root.ID)
	require.NoError(t, err)
	require.NotEmpty(t, acl.ID)
	for _, at := range model.AllAccessTypes {
		require.True(t, acl.Grants(alice, at), "creator should hold %s", at)
	}

	// Non-root creation never auto-creates an ACL.
	child := createChild(t, m, alice, root.ID, model.KindDataset)
	require.Equal(t, root.ID, child.BenefactorID)
	_, err = m.GetACL(ctx, alice, child.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	cases := []struct {
		name string
		node *model.Node
		user *model.UserInfo
	}{
		{"nil node", nil, alice},
		{"missing name", &model.Node{Kind: model.KindProject}, alice},
		{"missing kind", &model.Node{Name: "x"}, alice},
		{"unknown kind", &model.Node{Name: "x", Kind: "spaceship"}, alice},
		{"nil user", &model.Node{Name: "x", Kind: model.KindProject}, nil},
		{"anonymous user", &model.Node{Name: "x", Kind: model.KindProject}, &model.UserInfo{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.CreateNewNode(ctx, tc.node, tc.user)
			require.ErrorIs(t, err, model.ErrInvalidModel)
		})
	}
}

func TestCreateChildAuthorization(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	// bob holds no grants on the root ACL.
	n := &model.Node{Name: "intruder", Kind: model.KindDataset, ParentID: &root.ID}
	_, err := m.CreateNewNode(ctx, n, bob)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	// The kind schema forbids a location directly under a project, even
	// for the owner.
	n = &model.Node{Name: "loc", Kind: model.KindLocation, ParentID: &root.ID}
	_, err = m.CreateNewNode(ctx, n, alice)
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestGetDistinguishesUnauthorizedFromMissing(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	_, err := m.Get(ctx, bob, root.ID)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = m.Get(ctx, alice, "424242")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateAdvancesTokenByOne(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	root.Name = "renamed"
	updated, err := m.Update(ctx, alice, root, nil)
	require.NoError(t, err)
	require.Equal(t, "1", updated.ETag)
	require.Equal(t, "renamed", updated.Name)
	// A node-only update does not append a revision.
	require.Equal(t, model.FirstRevisionNumber, updated.CurrentRevision)

	updated.Name = "renamed again"
	updated, err = m.Update(ctx, alice, updated, nil)
	require.NoError(t, err)
	require.Equal(t, "2", updated.ETag)

	got, err := m.Get(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Equal(t, "2", got.ETag)
	require.Equal(t, "renamed again", got.Name)
}

func TestUpdateStaleTokenConflicts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	stale := *root
	stale.ETag = "7"
	_, err := m.Update(ctx, alice, &stale, nil)
	require.ErrorIs(t, err, model.ErrConflictingUpdate)

	// The stored node is untouched.
	got, err := m.Get(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Equal(t, model.ETagInitial, got.ETag)
}

func TestUpdatePreservesImmutableFields(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)
	child := createChild(t, m, alice, root.ID, model.KindDataset)

	tampered := *child
	tampered.Kind = model.KindFolder
	tampered.ParentID = nil
	tampered.BenefactorID = "999"
	tampered.CreatedBy = "mallory"

	updated, err := m.Update(ctx, alice, &tampered, nil)
	require.NoError(t, err)
	require.Equal(t, model.KindDataset, updated.Kind)
	require.NotNil(t, updated.ParentID)
	require.Equal(t, root.ID, *updated.ParentID)
	require.Equal(t, root.ID, updated.BenefactorID)
	require.Equal(t, "alice", updated.CreatedBy)
}

func TestUpdateWithAnnotationsSharesToken(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	annos := model.NewAnnotations()
	annos.ETag = root.ETag
	annos.AddString("species", "gopher")

	updated, err := m.Update(ctx, alice, root, annos)
	require.NoError(t, err)
	require.Equal(t, "1", updated.ETag)
	require.Equal(t, "1", annos.ETag, "coupled annotations adopt the advanced token")
	require.Equal(t, int64(2), updated.CurrentRevision, "annotation update appends a revision")

	got, err := m.GetAnnotations(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"gopher"}, got.Strings["species"])
	require.Equal(t, "1", got.ETag)

	revs, err := m.GetRevisions(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	require.Equal(t, int64(2), revs[1].RevisionNumber)
	require.NotEmpty(t, revs[1].Annotations)
}

func TestUpdateRejectsMismatchedAnnotationToken(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	annos := model.NewAnnotations()
	annos.ETag = "5"
	annos.AddString("species", "gopher")

	_, err := m.Update(ctx, alice, root, annos)
	require.ErrorIs(t, err, model.ErrInvalidModel)
}

func TestUpdateFailureLeavesCallerUntouched(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)
	other := createChild(t, m, alice, root.ID, model.KindDataset)

	// Pin age to long so a string value later is a type conflict that
	// surfaces mid-transaction, after the node would have been staged.
	pin := model.NewAnnotations()
	pin.ETag = other.ETag
	pin.AddLong("age", 3)
	_, err := m.UpdateAnnotations(ctx, alice, other.ID, pin)
	require.NoError(t, err)

	target := createChild(t, m, alice, root.ID, model.KindDataset)
	annos := model.NewAnnotations()
	annos.ETag = target.ETag
	annos.AddString("age", "three")

	_, err = m.Update(ctx, alice, target, annos)
	require.ErrorIs(t, err, model.ErrInvalidModel)

	// The transaction rolled back, so the caller's structs must still
	// describe the stored state.
	require.Equal(t, model.ETagInitial, target.ETag)
	require.Equal(t, model.FirstRevisionNumber, target.CurrentRevision)
	require.Equal(t, "alice", target.ModifiedBy)
	require.Equal(t, model.ETagInitial, annos.ETag)
	require.Empty(t, annos.OwnerID)

	stored, err := m.Get(ctx, alice, target.ID)
	require.NoError(t, err)
	require.Equal(t, model.ETagInitial, stored.ETag)

	// A corrected retry with the unchanged token succeeds.
	fixed := model.NewAnnotations()
	fixed.ETag = target.ETag
	fixed.AddLong("age", 4)
	updated, err := m.Update(ctx, alice, target, fixed)
	require.NoError(t, err)
	require.Equal(t, "1", updated.ETag)
}

func TestUpdateAnnotationsFailureLeavesSetUntouched(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)
	other := createChild(t, m, alice, root.ID, model.KindDataset)

	pin := model.NewAnnotations()
	pin.ETag = other.ETag
	pin.AddLong("age", 3)
	_, err := m.UpdateAnnotations(ctx, alice, other.ID, pin)
	require.NoError(t, err)

	target := createChild(t, m, alice, root.ID, model.KindDataset)
	annos := model.NewAnnotations()
	annos.ETag = target.ETag
	annos.AddString("age", "three")

	_, err = m.UpdateAnnotations(ctx, alice, target.ID, annos)
	require.ErrorIs(t, err, model.ErrInvalidModel)
	require.Equal(t, model.ETagInitial, annos.ETag)
	require.Empty(t, annos.OwnerID)
}

func TestUpdateAnnotationsAdvancesNodeToken(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	annos := model.NewAnnotations()
	annos.ETag = root.ETag
	annos.AddLong("age", 3)

	updated, err := m.UpdateAnnotations(ctx, alice, root.ID, annos)
	require.NoError(t, err)
	require.Equal(t, "1", updated.ETag)

	// A metadata-only update still advances the node token and appends
	// a revision.
	got, err := m.Get(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Equal(t, "1", got.ETag)
	require.Equal(t, int64(2), got.CurrentRevision)
}

func TestAnnotationTypePinningAcrossNodes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)
	other := createChild(t, m, alice, root.ID, model.KindDataset)

	first := model.NewAnnotations()
	first.ETag = root.ETag
	first.AddLong("age", 3)
	_, err := m.UpdateAnnotations(ctx, alice, root.ID, first)
	require.NoError(t, err)

	// The registry is global: the same name with a different type is
	// rejected on any node.
	conflict := model.NewAnnotations()
	conflict.ETag = other.ETag
	conflict.AddString("age", "three")
	_, err = m.UpdateAnnotations(ctx, alice, other.ID, conflict)
	require.ErrorIs(t, err, model.ErrInvalidModel)

	// Re-using the pinned type is fine.
	same := model.NewAnnotations()
	same.ETag = other.ETag
	same.AddLong("age", 4)
	_, err = m.UpdateAnnotations(ctx, alice, other.ID, same)
	require.NoError(t, err)
}

func TestConcurrentStaleUpdatesOneWins(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	writer := func(name string) error {
		n := *root
		n.Name = name
		_, err := m.Update(ctx, alice, &n, nil)
		return err
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, name := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- writer(name)
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrConflictingUpdate):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, conflicts)

	got, err := m.Get(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Equal(t, "1", got.ETag)
}

func TestDeleteCascadesToDescendants(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)
	child := createChild(t, m, alice, root.ID, model.KindDataset)
	grandchild := createChild(t, m, alice, child.ID, model.KindLayer)

	require.ErrorIs(t, m.Delete(ctx, bob, child.ID), model.ErrUnauthorized)

	require.NoError(t, m.Delete(ctx, alice, child.ID))
	_, err := m.Get(ctx, alice, child.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
	_, err = m.Get(ctx, alice, grandchild.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	children, err := m.GetChildren(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Empty(t, children)
}

func TestGetNodeType(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	root := createRoot(t, m, alice)

	kind, err := m.GetNodeType(ctx, alice, root.ID)
	require.NoError(t, err)
	require.Equal(t, model.KindProject, kind)
}
