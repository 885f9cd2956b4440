// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the durable node store over the embedded
// BadgerDB engine.
//
// The logical layout mirrors the relational design it stands in for:
// one table for node rows, one append-only table for revisions, one
// table per annotation type keyed by (owner id, attribute name), one
// ACL table, and one attribute-to-type registry table. Every mutating
// logical operation runs inside a single transaction obtained through
// Update; partial writes never survive a failure.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/entityvault/services/repository/model"
	storage "github.com/AleutianAI/entityvault/services/repository/storage/badger"
)

// ErrStopScan stops a ScanNodes walk early without surfacing an error.
var ErrStopScan = errors.New("stop scan")

// idBandwidth is the lease size for the node id sequence. Ids may have
// gaps across restarts; they are opaque to callers.
const idBandwidth = 128

// commitRetries bounds how often Update re-runs its callback after a
// commit-time conflict before giving up.
const commitRetries = 3

// Store is the durable storage of nodes, revisions, typed annotation
// rows, ACLs and registry rows.
//
// Thread Safety: safe for concurrent use. Writers targeting the same
// node are serialized above this layer by the concurrency controller.
type Store struct {
	db     *storage.DB
	ids    *badgerdb.Sequence
	logger *slog.Logger
}

// New opens a Store over the given engine.
func New(db *storage.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seq, err := db.Sequence(nodeSequenceKey, idBandwidth)
	if err != nil {
		return nil, model.StorageErr("open id sequence", err)
	}
	return &Store{db: db, ids: seq, logger: logger}, nil
}

// Close releases the id sequence lease. The engine itself is owned by
// the caller that opened it.
func (s *Store) Close() error {
	if err := s.ids.Release(); err != nil {
		return model.StorageErr("release id sequence", err)
	}
	return nil
}

// NextID allocates a fresh node id. Ids are store-assigned, opaque
// decimal strings.
func (s *Store) NextID() (string, error) {
	v, err := s.ids.Next()
	if err != nil {
		return "", model.StorageErr("allocate id", err)
	}
	// Sequence starts at 0; published ids start at 1.
	return strconv.FormatUint(v+1, 10), nil
}

// Update runs fn inside one read-write transaction. fn returning nil
// commits; any error discards every write fn performed.
//
// A commit-time conflict re-runs fn on a fresh snapshot, a bounded
// number of times. Writers targeting the same node are serialized above
// this layer, so a conflict means an overlapping transaction committed
// a shared row first — the registry's first-use race is the canonical
// case — and every domain check inside fn applies again against the
// now-committed state.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	var err error
	for attempt := 0; attempt <= commitRetries; attempt++ {
		err = s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
			return fn(&Tx{txn: txn})
		})
		// Domain errors raised by fn pass through unchanged.
		if err == nil || !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return model.StorageErr("commit", err)
}

// View runs fn inside one read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

// GetNode fetches one node by id.
func (s *Store) GetNode(ctx context.Context, id string) (*model.Node, error) {
	var n *model.Node
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.GetNode(id)
		return err
	})
	return n, err
}

// GetAnnotations fetches the annotation set of a node.
func (s *Store) GetAnnotations(ctx context.Context, id string) (*model.Annotations, error) {
	var a *model.Annotations
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		a, err = tx.GetAnnotations(id)
		return err
	})
	return a, err
}

// GetChildren fetches the direct children of a node.
func (s *Store) GetChildren(ctx context.Context, parentID string) ([]*model.Node, error) {
	var out []*model.Node
	err := s.View(ctx, func(tx *Tx) error {
		ids, err := tx.Children(parentID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := tx.GetNode(id)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// GetACL fetches the ACL owned by a node.
func (s *Store) GetACL(ctx context.Context, resourceID string) (*model.AccessControlList, error) {
	var acl *model.AccessControlList
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		acl, err = tx.GetACL(resourceID)
		return err
	})
	return acl, err
}

// GetRevisions fetches the full revision history of a node, oldest
// first.
func (s *Store) GetRevisions(ctx context.Context, nodeID string) ([]model.Revision, error) {
	var revs []model.Revision
	err := s.View(ctx, func(tx *Tx) error {
		if _, err := tx.GetNode(nodeID); err != nil {
			return err
		}
		var err error
		revs, err = tx.Revisions(nodeID)
		return err
	})
	return revs, err
}

// CreateNew persists a freshly validated node together with its empty
// annotation set, its first revision, and its children-index entry, all
// in one transaction. The store assigns the id, the initial version
// token and the benefactor pointer; the caller owns stamping createdBy
// and the timestamps beforehand.
func (s *Store) CreateNew(ctx context.Context, n *model.Node) (string, error) {
	id, err := s.NextID()
	if err != nil {
		return "", err
	}
	err = s.Update(ctx, func(tx *Tx) error {
		return tx.CreateNode(n, id)
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("created node", "id", id, "kind", n.Kind, "parent", n.ParentID)
	return id, nil
}

// Delete removes a node and everything it owns, cascading to
// descendants, in one transaction.
func (s *Store) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.Update(ctx, func(tx *Tx) error {
		return tx.DeleteNodeCascade(id)
	})
	if err != nil {
		return err
	}
	s.logger.Debug("deleted node", "id", id, "took", time.Since(start))
	return nil
}
