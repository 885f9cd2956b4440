// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the domain types for the entity repository:
// nodes, revisions, annotations, access-control lists, user identity,
// and the shared error taxonomy all repository layers speak.
//
// The model is deliberately storage-agnostic. Persistence lives in the
// store package; orchestration lives in the manager package. Types here
// carry only data plus the invariants that belong to the data itself
// (version-token formatting, grant-all ACL construction, entity-kind
// schemas).
package model

import (
	"strconv"
	"time"
)

// ETagInitial is the version token assigned to a freshly created node.
// Tokens are monotonically increasing integers rendered as decimal
// strings; every successful mutation advances the token by exactly one.
const ETagInitial = "0"

// FirstRevisionNumber is the revision number of the snapshot written at
// node creation. Revision numbers are monotonic per node.
const FirstRevisionNumber int64 = 1

// Node is a versioned, typed, hierarchically parented stored entity.
//
// A nil ParentID marks a root node. BenefactorID names the node whose
// ACL governs this node: the node itself when it owns an ACL, otherwise
// the nearest ancestor that does. Root nodes always own an ACL, so the
// benefactor chain always terminates.
type Node struct {
	ID          string     `json:"id"`
	Name        string     `json:"name" validate:"required"`
	Kind        EntityKind `json:"kind" validate:"required"`
	ParentID    *string    `json:"parentId,omitempty"`
	Description string     `json:"description,omitempty"`

	CreatedBy  string    `json:"createdBy"`
	CreatedOn  time.Time `json:"createdOn"`
	ModifiedBy string    `json:"modifiedBy"`
	ModifiedOn time.Time `json:"modifiedOn"`

	// ETag is the optimistic-concurrency version token. Callers must
	// echo the token they read; a mismatch on update is a conflict.
	ETag string `json:"eTag"`

	// BenefactorID is maintained by the store and the ACL management
	// operations. It is derived state: always resolvable by walking
	// parent links to the nearest ACL owner.
	BenefactorID string `json:"benefactorId"`

	// CurrentRevision is the revision number of the head snapshot.
	CurrentRevision int64 `json:"currentRevisionNumber"`
}

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// ETagValue parses the node's version token as an integer.
func (n *Node) ETagValue() (int64, error) {
	return strconv.ParseInt(n.ETag, 10, 64)
}

// FormatETag renders an integer version token in wire form.
func FormatETag(v int64) string {
	return strconv.FormatInt(v, 10)
}

// Revision is an immutable historical snapshot of a node's annotations
// and reference groups at a given version. Revisions are append-only
// and owned exclusively by their node; deleting the node cascades to
// its revisions.
type Revision struct {
	OwnerNodeID    string    `json:"ownerNodeId"`
	RevisionNumber int64     `json:"revisionNumber"`
	Label          string    `json:"label,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	Annotations    []byte    `json:"annotations,omitempty"`
	References     []byte    `json:"references,omitempty"`
	ModifiedBy     string    `json:"modifiedBy"`
	ModifiedOn     time.Time `json:"modifiedOn"`
}

// UserInfo is the authenticated caller identity consumed by the
// repository core. It is produced by the (external) session layer and
// trusted as-is: the core never issues or verifies credentials.
type UserInfo struct {
	// PrincipalID identifies the individual user.
	PrincipalID string `json:"principalId" validate:"required"`

	// Groups are the principal ids ACL evaluation matches against.
	// The caller's individual principal is expected to appear here as
	// well (every user belongs to their own singleton group).
	Groups []string `json:"groups"`
}

// InGroup reports whether the user carries the given group principal.
func (u *UserInfo) InGroup(principalID string) bool {
	for _, g := range u.Groups {
		if g == principalID {
			return true
		}
	}
	return false
}
