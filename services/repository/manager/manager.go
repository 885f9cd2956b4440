// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manager orchestrates the node lifecycle.
//
// The manager is state-free: it composes the authorization guard, the
// concurrency controller, the annotation validator and the store in a
// fixed order for every operation. Validation and authorization always
// run before the first mutating storage call, so a rejected request
// never leaves partial state behind; every multi-step mutation (node,
// revision, annotations, possible ACL) is one transaction.
package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/entityvault/services/repository/authz"
	"github.com/AleutianAI/entityvault/services/repository/concurrency"
	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/registry"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

var managerTracer = otel.Tracer("entityvault.repository.manager")

// Manager owns the observable business rules of the node lifecycle.
//
// Thread Safety: safe for concurrent use. Writers for the same node are
// serialized by the concurrency controller.
type Manager struct {
	store    *store.Store
	guard    *authz.Guard
	ctrl     *concurrency.Controller
	annos    *registry.Validator
	validate *validator.Validate
	logger   *slog.Logger
	clock    func() time.Time
}

// New constructs a manager over its collaborators.
func New(s *store.Store, g *authz.Guard, c *concurrency.Controller, v *registry.Validator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    s,
		guard:    g,
		ctrl:     c,
		annos:    v,
		validate: validator.New(),
		logger:   logger,
		clock:    time.Now,
	}
}

// validateNode applies the structural requirements every node must
// meet before it touches storage.
func (m *Manager) validateNode(n *model.Node) error {
	if n == nil {
		return model.InvalidModelf("node cannot be nil")
	}
	if err := m.validate.Struct(n); err != nil {
		return model.InvalidModelf("node is missing required fields: %v", err)
	}
	if !model.ValidKind(n.Kind) {
		return model.InvalidModelf("unknown entity kind %q", n.Kind)
	}
	return nil
}

func (m *Manager) validateUser(user *model.UserInfo) error {
	if user == nil {
		return model.InvalidModelf("user info cannot be nil")
	}
	if err := m.validate.Struct(user); err != nil {
		return model.InvalidModelf("user info is missing required fields: %v", err)
	}
	return nil
}

// stampCreationData fills createdBy/createdOn when absent and always
// overwrites the modification stamp.
func (m *Manager) stampCreationData(n *model.Node, user *model.UserInfo) {
	now := m.clock()
	if n.CreatedBy == "" {
		n.CreatedBy = user.PrincipalID
	}
	if n.CreatedOn.IsZero() {
		n.CreatedOn = now
	}
	n.ModifiedBy = user.PrincipalID
	n.ModifiedOn = now
}

// CreateNewNode validates and persists a new node for a user.
//
// Root nodes (nil parent) get a freshly synthesized ACL granting the
// creator every access type, persisted in the same transaction as the
// node. Non-root creation requires CREATE on the parent's governing
// ACL and a parent kind whose schema allows the child kind; no ACL is
// ever auto-created for a non-root node.
func (m *Manager) CreateNewNode(ctx context.Context, n *model.Node, user *model.UserInfo) (string, error) {
	ctx, span := managerTracer.Start(ctx, "manager.CreateNewNode")
	defer span.End()

	if err := m.validateNode(n); err != nil {
		return "", opFailed("create", err)
	}
	if err := m.validateUser(user); err != nil {
		return "", opFailed("create", err)
	}
	m.stampCreationData(n, user)

	if n.ParentID != nil {
		parent, err := m.store.GetNode(ctx, *n.ParentID)
		if err != nil {
			return "", opFailed("create", err)
		}
		allowed, err := m.guard.CanCreate(ctx, user, parent, n.Kind)
		if err != nil {
			return "", opFailed("create", err)
		}
		if !allowed {
			return "", opFailed("create", model.Unauthorizedf(
				"%s is not allowed to create items of kind %s under %s",
				user.PrincipalID, n.Kind, parent.ID))
		}
	}

	id, err := m.store.NextID()
	if err != nil {
		return "", opFailed("create", err)
	}
	err = m.store.Update(ctx, func(tx *store.Tx) error {
		if err := tx.CreateNode(n, id); err != nil {
			return err
		}
		if n.ParentID == nil {
			acl := model.NewGrantAllACL(id, user, m.clock())
			acl.ID = uuid.NewString()
			acl.ETag = model.ETagInitial
			return tx.PutACL(acl)
		}
		return nil
	})
	if err != nil {
		return "", opFailed("create", err)
	}

	span.SetAttributes(attribute.String("node.id", id))
	m.logger.Debug("created node", "user", user.PrincipalID, "id", id, "kind", n.Kind)
	opsTotal.WithLabelValues("create", "ok").Inc()
	return id, nil
}

// Get fetches a node the user can READ.
func (m *Manager) Get(ctx context.Context, user *model.UserInfo, id string) (*model.Node, error) {
	if err := m.validateUser(user); err != nil {
		return nil, err
	}
	allowed, err := m.guard.CanAccess(ctx, user, id, model.AccessRead)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, model.Unauthorizedf("%s lacks read access to the requested object", user.PrincipalID)
	}
	return m.store.GetNode(ctx, id)
}

// GetNodeType fetches the entity kind of a node the user can READ.
func (m *Manager) GetNodeType(ctx context.Context, user *model.UserInfo, id string) (model.EntityKind, error) {
	n, err := m.Get(ctx, user, id)
	if err != nil {
		return "", err
	}
	return n.Kind, nil
}

// GetChildren fetches the direct children of a node the user can READ.
func (m *Manager) GetChildren(ctx context.Context, user *model.UserInfo, parentID string) ([]*model.Node, error) {
	if err := m.validateUser(user); err != nil {
		return nil, err
	}
	allowed, err := m.guard.CanAccess(ctx, user, parentID, model.AccessRead)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, model.Unauthorizedf("%s lacks read access to the requested object", user.PrincipalID)
	}
	return m.store.GetChildren(ctx, parentID)
}

// Update applies a node update, optionally coupled with an annotation
// update, under the optimistic locking protocol.
//
// When annotations ride along they must carry the same version token as
// the node; both adopt the advanced token and are written in the same
// transaction. An annotation-carrying update appends a new revision
// snapshot and moves the head revision number forward.
func (m *Manager) Update(ctx context.Context, user *model.UserInfo, n *model.Node, annos *model.Annotations) (*model.Node, error) {
	ctx, span := managerTracer.Start(ctx, "manager.Update")
	defer span.End()

	if err := m.validateNode(n); err != nil {
		return nil, opFailed("update", err)
	}
	if err := m.validateUser(user); err != nil {
		return nil, opFailed("update", err)
	}
	if n.ID == "" {
		return nil, opFailed("update", model.InvalidModelf("node id cannot be empty"))
	}

	allowed, err := m.guard.CanAccess(ctx, user, n.ID, model.AccessUpdate)
	if err != nil {
		return nil, opFailed("update", err)
	}
	if !allowed {
		return nil, opFailed("update", model.Unauthorizedf(
			"%s lacks change access to the requested object", user.PrincipalID))
	}

	if annos != nil && annos.ETag != n.ETag {
		return nil, opFailed("update", model.InvalidModelf(
			"the passed node and annotations do not have the same eTag"))
	}

	// All changes are staged onto copies; the caller's structs are only
	// written once the transaction has committed, so a rolled-back
	// update never leaves them inconsistent with the store.
	var committedNode model.Node
	var committedAnnos model.Annotations
	err = m.ctrl.WithNodeLock(n.ID, func() error {
		return m.store.Update(ctx, func(tx *store.Tx) error {
			next, err := m.ctrl.LockAndAdvance(tx, n.ID, n.ETag)
			if err != nil {
				return err
			}

			current, err := tx.GetNode(n.ID)
			if err != nil {
				return err
			}
			staged := *n
			// Creation data, lineage and benefactor are immutable
			// through this operation.
			staged.Kind = current.Kind
			staged.ParentID = current.ParentID
			staged.BenefactorID = current.BenefactorID
			staged.CreatedBy = current.CreatedBy
			staged.CreatedOn = current.CreatedOn
			staged.CurrentRevision = current.CurrentRevision

			staged.ETag = next
			staged.ModifiedBy = user.PrincipalID
			staged.ModifiedOn = m.clock()

			if annos != nil {
				stagedAnnos := *annos
				stagedAnnos.OwnerID = staged.ID
				stagedAnnos.ETag = next
				if err := m.annos.Validate(tx, &stagedAnnos); err != nil {
					return err
				}
				if err := tx.PutAnnotations(staged.ID, &stagedAnnos); err != nil {
					return err
				}
				rev, err := snapshotRevision(&staged, &stagedAnnos)
				if err != nil {
					return err
				}
				staged.CurrentRevision = rev.RevisionNumber
				if err := tx.PutRevision(rev); err != nil {
					return err
				}
				committedAnnos = stagedAnnos
			}
			committedNode = staged
			return tx.PutNode(&staged)
		})
	})
	if err != nil {
		return nil, opFailed("update", err)
	}

	*n = committedNode
	if annos != nil {
		*annos = committedAnnos
	}
	m.logger.Debug("updated node", "user", user.PrincipalID, "id", n.ID, "eTag", n.ETag)
	opsTotal.WithLabelValues("update", "ok").Inc()
	return n, nil
}

// Delete removes a node the user holds DELETE on, cascading to
// everything the node owns.
func (m *Manager) Delete(ctx context.Context, user *model.UserInfo, id string) error {
	ctx, span := managerTracer.Start(ctx, "manager.Delete")
	defer span.End()

	if err := m.validateUser(user); err != nil {
		return opFailed("delete", err)
	}
	allowed, err := m.guard.CanAccess(ctx, user, id, model.AccessDelete)
	if err != nil {
		return opFailed("delete", err)
	}
	if !allowed {
		return opFailed("delete", model.Unauthorizedf(
			"%s lacks delete access to the requested object", user.PrincipalID))
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return opFailed("delete", err)
	}

	m.logger.Debug("deleted node", "user", user.PrincipalID, "id", id)
	opsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}

// GetAnnotations fetches the annotation set of a node the user can READ.
func (m *Manager) GetAnnotations(ctx context.Context, user *model.UserInfo, id string) (*model.Annotations, error) {
	if err := m.validateUser(user); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, model.InvalidModelf("node id cannot be empty")
	}
	allowed, err := m.guard.CanAccess(ctx, user, id, model.AccessRead)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, model.Unauthorizedf("%s lacks read access to the requested object", user.PrincipalID)
	}
	return m.store.GetAnnotations(ctx, id)
}

// UpdateAnnotations replaces a node's annotation set under the
// optimistic locking protocol. Metadata-only updates still advance the
// node's version token and append a revision snapshot; the set adopts
// the node's new token rather than computing its own.
func (m *Manager) UpdateAnnotations(ctx context.Context, user *model.UserInfo, id string, annos *model.Annotations) (*model.Annotations, error) {
	ctx, span := managerTracer.Start(ctx, "manager.UpdateAnnotations")
	defer span.End()

	if annos == nil {
		return nil, opFailed("update_annotations", model.InvalidModelf("annotations cannot be nil"))
	}
	if id == "" {
		return nil, opFailed("update_annotations", model.InvalidModelf("node id cannot be empty"))
	}
	if err := m.validateUser(user); err != nil {
		return nil, opFailed("update_annotations", err)
	}

	allowed, err := m.guard.CanAccess(ctx, user, id, model.AccessUpdate)
	if err != nil {
		return nil, opFailed("update_annotations", err)
	}
	if !allowed {
		return nil, opFailed("update_annotations", model.Unauthorizedf(
			"%s lacks change access to the requested object", user.PrincipalID))
	}

	// Staged onto a copy for the same reason as Update: the caller's
	// set only adopts the new token once the transaction commits.
	var committed model.Annotations
	err = m.ctrl.WithNodeLock(id, func() error {
		return m.store.Update(ctx, func(tx *store.Tx) error {
			next, err := m.ctrl.LockAndAdvance(tx, id, annos.ETag)
			if err != nil {
				return err
			}
			staged := *annos
			staged.OwnerID = id
			staged.ETag = next
			if err := m.annos.Validate(tx, &staged); err != nil {
				return err
			}
			if err := tx.PutAnnotations(id, &staged); err != nil {
				return err
			}

			n, err := tx.GetNode(id)
			if err != nil {
				return err
			}
			n.ETag = next
			n.ModifiedBy = user.PrincipalID
			n.ModifiedOn = m.clock()
			rev, err := snapshotRevision(n, &staged)
			if err != nil {
				return err
			}
			n.CurrentRevision = rev.RevisionNumber
			if err := tx.PutRevision(rev); err != nil {
				return err
			}
			committed = staged
			return tx.PutNode(n)
		})
	})
	if err != nil {
		return nil, opFailed("update_annotations", err)
	}

	*annos = committed
	m.logger.Debug("updated annotations", "user", user.PrincipalID, "id", id, "eTag", annos.ETag)
	opsTotal.WithLabelValues("update_annotations", "ok").Inc()
	return annos, nil
}

// HasAccess is a thin pass-through to the authorization guard, exposed
// for external policy checks.
func (m *Manager) HasAccess(ctx context.Context, n *model.Node, accessType model.AccessType, user *model.UserInfo) (bool, error) {
	return m.guard.CanAccess(ctx, user, n.ID, accessType)
}

// GetRevisions fetches the full revision history of a node the user
// can READ, oldest first.
func (m *Manager) GetRevisions(ctx context.Context, user *model.UserInfo, id string) ([]model.Revision, error) {
	if err := m.validateUser(user); err != nil {
		return nil, err
	}
	allowed, err := m.guard.CanAccess(ctx, user, id, model.AccessRead)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, model.Unauthorizedf("%s lacks read access to the requested object", user.PrincipalID)
	}
	return m.store.GetRevisions(ctx, id)
}
