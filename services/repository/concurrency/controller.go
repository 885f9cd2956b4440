// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package concurrency implements the optimistic locking protocol that
// turns the version token into a lost-update guard.
//
// The protocol is read-compare-increment: inside the transaction that
// will perform the write, read the node's current token under an
// exclusive per-node hold, compare it to the token the caller supplied,
// and on match hand back current+1 for the caller to persist in the
// same transaction. A mismatch is a conflict the caller resolves by
// re-fetching; it is never retried here.
//
// The exclusive hold makes a second writer targeting the same node
// block until the first transaction finishes, so it reads a committed
// token rather than racing on a stale one. Writers on different nodes
// do not contend.
package concurrency

import (
	"strconv"
	"sync"

	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

// Controller coordinates per-node write serialization and version
// token advancement.
//
// Thread Safety: safe for concurrent use.
type Controller struct {
	mu    sync.Mutex
	locks map[string]*nodeLock
}

type nodeLock struct {
	mu   sync.Mutex
	refs int
}

// NewController constructs a controller.
func NewController() *Controller {
	return &Controller{locks: make(map[string]*nodeLock)}
}

// WithNodeLock runs fn while holding the exclusive write hold for
// nodeID. A concurrent caller for the same node blocks until fn and its
// enclosing transaction finish; callers for other nodes proceed freely.
//
// fn must open, perform and commit the node's transaction entirely
// within the held scope, otherwise the hold guarantees nothing.
func (c *Controller) WithNodeLock(nodeID string, fn func() error) error {
	l := c.acquire(nodeID)
	l.mu.Lock()
	defer func() {
		l.mu.Unlock()
		c.release(nodeID)
	}()
	return fn()
}

func (c *Controller) acquire(nodeID string) *nodeLock {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[nodeID]
	if !ok {
		l = &nodeLock{}
		c.locks[nodeID] = l
	}
	l.refs++
	return l
}

func (c *Controller) release(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[nodeID]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(c.locks, nodeID)
	}
}

// LockAndAdvance validates suppliedToken against the node's current
// version token and returns the next token to persist.
//
// Must be invoked exactly once per logical mutation, inside the
// transaction that performs the write, while WithNodeLock holds the
// node. Any coupled sub-resource written in the same transaction must
// adopt the returned token rather than compute its own.
//
// # Outputs
//
//   - string: the next token (current+1) on success.
//   - error: ErrInvalidModel for a missing or malformed token,
//     ErrNotFound when the node does not exist, ErrConflictingUpdate
//     when the supplied token is stale.
func (c *Controller) LockAndAdvance(tx *store.Tx, nodeID, suppliedToken string) (string, error) {
	if nodeID == "" {
		return "", model.InvalidModelf("must have a non-empty id to update a node")
	}
	if suppliedToken == "" {
		return "", model.InvalidModelf("must have a non-empty eTag to update a node")
	}
	supplied, err := strconv.ParseInt(suppliedToken, 10, 64)
	if err != nil {
		return "", model.InvalidModelf("malformed eTag %q", suppliedToken)
	}

	n, err := tx.GetNode(nodeID)
	if err != nil {
		return "", err
	}
	current, err := n.ETagValue()
	if err != nil {
		return "", model.StorageErr("parse stored eTag", err)
	}
	if supplied != current {
		return "", model.ErrConflictingUpdate
	}
	return model.FormatETag(current + 1), nil
}
