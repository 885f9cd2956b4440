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
	"strconv"

	"github.com/google/uuid"

	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

// GetACL fetches the ACL owned by a node the user can READ. A node that
// inherits its grants owns no ACL; asking for one is NotFound.
func (m *Manager) GetACL(ctx context.Context, user *model.UserInfo, resourceID string) (*model.AccessControlList, error) {
	if err := m.validateUser(user); err != nil {
		return nil, err
	}
	allowed, err := m.guard.CanAccess(ctx, user, resourceID, model.AccessRead)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, model.Unauthorizedf("%s lacks read access to the requested object", user.PrincipalID)
	}
	return m.store.GetACL(ctx, resourceID)
}

// CreateACL breaks ACL inheritance for a node: the node becomes its own
// benefactor and every descendant that inherited from the old
// benefactor is repointed, stopping at subtrees that own their own ACL.
//
// Requires CHANGE_PERMISSIONS on the node's current governing ACL. The
// node must not already own an ACL.
func (m *Manager) CreateACL(ctx context.Context, user *model.UserInfo, acl *model.AccessControlList) (*model.AccessControlList, error) {
	if err := m.validateACL(user, acl); err != nil {
		return nil, opFailed("create_acl", err)
	}
	allowed, err := m.guard.CanAccess(ctx, user, acl.ResourceID, model.AccessChangePermissions)
	if err != nil {
		return nil, opFailed("create_acl", err)
	}
	if !allowed {
		return nil, opFailed("create_acl", model.Unauthorizedf(
			"%s cannot change permissions on the requested object", user.PrincipalID))
	}

	err = m.ctrl.WithNodeLock(acl.ResourceID, func() error {
		return m.store.Update(ctx, func(tx *store.Tx) error {
			owns, err := tx.HasACL(acl.ResourceID)
			if err != nil {
				return err
			}
			if owns {
				return model.InvalidModelf("resource %s already owns an ACL", acl.ResourceID)
			}
			acl.ID = uuid.NewString()
			acl.CreatedBy = user.PrincipalID
			acl.CreatedOn = m.clock()
			acl.ETag = model.ETagInitial
			if err := tx.PutACL(acl); err != nil {
				return err
			}
			return repointSubtree(tx, acl.ResourceID, acl.ResourceID)
		})
	})
	if err != nil {
		return nil, opFailed("create_acl", err)
	}

	m.logger.Debug("created acl", "user", user.PrincipalID, "resource", acl.ResourceID)
	opsTotal.WithLabelValues("create_acl", "ok").Inc()
	return acl, nil
}

// UpdateACL replaces the grants of an existing ACL under the optimistic
// locking protocol on the ACL's own version token. Identity and
// creation data are immutable.
func (m *Manager) UpdateACL(ctx context.Context, user *model.UserInfo, acl *model.AccessControlList) (*model.AccessControlList, error) {
	if err := m.validateACL(user, acl); err != nil {
		return nil, opFailed("update_acl", err)
	}
	allowed, err := m.guard.CanAccess(ctx, user, acl.ResourceID, model.AccessChangePermissions)
	if err != nil {
		return nil, opFailed("update_acl", err)
	}
	if !allowed {
		return nil, opFailed("update_acl", model.Unauthorizedf(
			"%s cannot change permissions on the requested object", user.PrincipalID))
	}

	err = m.ctrl.WithNodeLock(acl.ResourceID, func() error {
		return m.store.Update(ctx, func(tx *store.Tx) error {
			current, err := tx.GetACL(acl.ResourceID)
			if err != nil {
				return err
			}
			next, err := advanceETag(current.ETag, acl.ETag)
			if err != nil {
				return err
			}
			acl.ID = current.ID
			acl.CreatedBy = current.CreatedBy
			acl.CreatedOn = current.CreatedOn
			acl.ETag = next
			return tx.PutACL(acl)
		})
	})
	if err != nil {
		return nil, opFailed("update_acl", err)
	}

	m.logger.Debug("updated acl", "user", user.PrincipalID, "resource", acl.ResourceID, "eTag", acl.ETag)
	opsTotal.WithLabelValues("update_acl", "ok").Inc()
	return acl, nil
}

// DeleteACL restores ACL inheritance for a non-root node: its ACL is
// removed and the node plus every descendant it governed is repointed
// to the nearest ancestor ACL owner.
//
// Root ACLs cannot be deleted; a root must always govern itself.
func (m *Manager) DeleteACL(ctx context.Context, user *model.UserInfo, resourceID string) error {
	if err := m.validateUser(user); err != nil {
		return opFailed("delete_acl", err)
	}
	if resourceID == "" {
		return opFailed("delete_acl", model.InvalidModelf("resource id cannot be empty"))
	}
	allowed, err := m.guard.CanAccess(ctx, user, resourceID, model.AccessChangePermissions)
	if err != nil {
		return opFailed("delete_acl", err)
	}
	if !allowed {
		return opFailed("delete_acl", model.Unauthorizedf(
			"%s cannot change permissions on the requested object", user.PrincipalID))
	}

	err = m.ctrl.WithNodeLock(resourceID, func() error {
		return m.store.Update(ctx, func(tx *store.Tx) error {
			n, err := tx.GetNode(resourceID)
			if err != nil {
				return err
			}
			if n.ParentID == nil {
				return model.InvalidModelf("cannot delete the ACL of a root node")
			}
			owns, err := tx.HasACL(resourceID)
			if err != nil {
				return err
			}
			if !owns {
				return model.ErrNotFound
			}
			if err := tx.DeleteACL(resourceID); err != nil {
				return err
			}
			parent, err := tx.GetNode(*n.ParentID)
			if err != nil {
				return err
			}
			return repointSubtree(tx, resourceID, parent.BenefactorID)
		})
	})
	if err != nil {
		return opFailed("delete_acl", err)
	}

	m.logger.Debug("deleted acl", "user", user.PrincipalID, "resource", resourceID)
	opsTotal.WithLabelValues("delete_acl", "ok").Inc()
	return nil
}

func (m *Manager) validateACL(user *model.UserInfo, acl *model.AccessControlList) error {
	if err := m.validateUser(user); err != nil {
		return err
	}
	if acl == nil {
		return model.InvalidModelf("acl cannot be nil")
	}
	if err := m.validate.Struct(acl); err != nil {
		return model.InvalidModelf("acl is missing required fields: %v", err)
	}
	if len(acl.Access) == 0 {
		return model.InvalidModelf("acl must grant at least one access")
	}
	return nil
}

// advanceETag compares a supplied version token against the stored one
// and returns the advanced token. A mismatch is a conflicting update.
func advanceETag(stored, supplied string) (string, error) {
	if supplied == "" {
		return "", model.InvalidModelf("eTag cannot be empty")
	}
	suppliedVal, err := strconv.ParseInt(supplied, 10, 64)
	if err != nil {
		return "", model.InvalidModelf("malformed eTag %q", supplied)
	}
	storedVal, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		return "", model.StorageErr("parse stored eTag", err)
	}
	if suppliedVal != storedVal {
		return "", model.ErrConflictingUpdate
	}
	return model.FormatETag(storedVal + 1), nil
}

// repointSubtree rewrites the benefactor pointer of rootID and of every
// descendant it governs. Subtrees rooted at a node owning its own ACL
// are governed by that ACL and are left untouched.
func repointSubtree(tx *store.Tx, rootID, benefactorID string) error {
	n, err := tx.GetNode(rootID)
	if err != nil {
		return err
	}
	n.BenefactorID = benefactorID
	if err := tx.PutNode(n); err != nil {
		return err
	}
	children, err := tx.Children(rootID)
	if err != nil {
		return err
	}
	for _, child := range children {
		owns, err := tx.HasACL(child)
		if err != nil {
			return err
		}
		if owns {
			continue
		}
		if err := repointSubtree(tx, child, benefactorID); err != nil {
			return err
		}
	}
	return nil
}
