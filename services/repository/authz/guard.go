// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package authz resolves and evaluates access-control lists with
// benefactor inheritance.
//
// Every node is governed by exactly one ACL: its own when it owns one,
// otherwise the ACL of the nearest ancestor that does. Root nodes
// always own an ACL, so resolution always terminates. Denial is a
// boolean outcome here, not an error; callers turn false into
// ErrUnauthorized at their boundary.
package authz

import (
	"context"

	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

// Guard evaluates access for callers against the ACL table.
//
// Thread Safety: stateless; safe for concurrent use.
type Guard struct {
	store *store.Store
}

// NewGuard constructs a guard over the given store.
func NewGuard(s *store.Store) *Guard {
	return &Guard{store: s}
}

// ResolveBenefactor walks the parent chain from resourceID to the
// nearest node that owns an ACL and returns its id.
func (g *Guard) ResolveBenefactor(tx *store.Tx, resourceID string) (string, error) {
	id := resourceID
	for {
		owns, err := tx.HasACL(id)
		if err != nil {
			return "", err
		}
		if owns {
			return id, nil
		}
		n, err := tx.GetNode(id)
		if err != nil {
			return "", err
		}
		if n.ParentID == nil {
			// A root without an ACL violates the creation invariant.
			return "", model.StorageErr("resolve benefactor",
				model.InvalidModelf("root node %s owns no ACL", id))
		}
		id = *n.ParentID
	}
}

// CanAccessTx evaluates accessType for user on resourceID inside an
// existing transaction.
func (g *Guard) CanAccessTx(tx *store.Tx, user *model.UserInfo, resourceID string, accessType model.AccessType) (bool, error) {
	benefactor, err := g.ResolveBenefactor(tx, resourceID)
	if err != nil {
		return false, err
	}
	acl, err := tx.GetACL(benefactor)
	if err != nil {
		return false, err
	}
	return acl.Grants(user, accessType), nil
}

// CanAccess reports whether one of the user's groups holds accessType
// on the ACL governing resourceID.
func (g *Guard) CanAccess(ctx context.Context, user *model.UserInfo, resourceID string, accessType model.AccessType) (bool, error) {
	var allowed bool
	err := g.store.View(ctx, func(tx *store.Tx) error {
		var err error
		allowed, err = g.CanAccessTx(tx, user, resourceID, accessType)
		return err
	})
	return allowed, err
}

// CanCreate reports whether user may create a child of childKind under
// parent: the parent's kind schema must allow the child kind, and the
// parent's governing ACL must grant CREATE to one of the user's groups.
//
// The kind capability set is configuration (the per-kind schema), not
// an ACL decision; it is checked first so configuration failures do not
// depend on grants.
func (g *Guard) CanCreate(ctx context.Context, user *model.UserInfo, parent *model.Node, childKind model.EntityKind) (bool, error) {
	schema, err := model.SchemaFor(parent.Kind)
	if err != nil {
		return false, err
	}
	if !schema.AllowsChild(childKind) {
		return false, nil
	}
	return g.CanAccess(ctx, user, parent.ID, model.AccessCreate)
}
