// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"encoding/json"
	"errors"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

// Tx exposes the logical tables of the repository over one Badger
// transaction. All reads and writes performed through the same Tx are
// atomic: they commit together or not at all.
//
// Tx is not safe for concurrent use; it belongs to a single operation.
type Tx struct {
	txn *badgerdb.Txn
}

// AttrRow is one row of a per-type annotation table: the values of one
// attribute on one owner. Exactly one bucket is populated, matching the
// attribute's registered type. Dates are persisted as epoch millis.
type AttrRow struct {
	Type    model.AnnotationType `json:"type"`
	Strings []string             `json:"s,omitempty"`
	Longs   []int64              `json:"l,omitempty"`
	Doubles []float64            `json:"d,omitempty"`
	Dates   []int64              `json:"t,omitempty"`
	Blobs   [][]byte             `json:"b,omitempty"`
}

func (tx *Tx) getJSON(key []byte, out any) error {
	item, err := tx.txn.Get(key)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return model.ErrNotFound
		}
		return model.StorageErr("get", err)
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	}); err != nil {
		return model.StorageErr("decode", err)
	}
	return nil
}

func (tx *Tx) setJSON(key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return model.StorageErr("encode", err)
	}
	if err := tx.txn.Set(key, buf); err != nil {
		return model.StorageErr("set", err)
	}
	return nil
}

// GetNode fetches one node row.
func (tx *Tx) GetNode(id string) (*model.Node, error) {
	var n model.Node
	if err := tx.getJSON(nodeKey(id), &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// PutNode writes one node row.
func (tx *Tx) PutNode(n *model.Node) error {
	return tx.setJSON(nodeKey(n.ID), n)
}

// AddChild records child under parent in the children index.
func (tx *Tx) AddChild(parentID, childID string) error {
	if err := tx.txn.Set(childKey(parentID, childID), nil); err != nil {
		return model.StorageErr("index child", err)
	}
	return nil
}

// Children lists the ids of the direct children of parentID.
func (tx *Tx) Children(parentID string) ([]string, error) {
	prefix := childPrefix(parentID)
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		ids = append(ids, string(key[len(prefix):]))
	}
	return ids, nil
}

// PutRevision appends one immutable revision row.
func (tx *Tx) PutRevision(rev *model.Revision) error {
	return tx.setJSON(revisionKey(rev.OwnerNodeID, rev.RevisionNumber), rev)
}

// GetRevision fetches one revision row.
func (tx *Tx) GetRevision(nodeID string, rev int64) (*model.Revision, error) {
	var r model.Revision
	if err := tx.getJSON(revisionKey(nodeID, rev), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Revisions lists every revision of a node in ascending order.
func (tx *Tx) Revisions(nodeID string) ([]model.Revision, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = revisionPrefix(nodeID)

	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var revs []model.Revision
	for it.Rewind(); it.Valid(); it.Next() {
		var r model.Revision
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
		if err != nil {
			return nil, model.StorageErr("decode revision", err)
		}
		revs = append(revs, r)
	}
	return revs, nil
}

// GetAnnotations fetches the full annotation set of a node. The set is
// written at node creation, so absence means the node does not exist.
func (tx *Tx) GetAnnotations(nodeID string) (*model.Annotations, error) {
	a := model.NewAnnotations()
	if err := tx.getJSON(annotationsKey(nodeID), a); err != nil {
		return nil, err
	}
	a.OwnerID = nodeID
	return a, nil
}

// PutAnnotations replaces the annotation set of a node, keeping the
// per-type attribute tables in lockstep: rows for attributes dropped
// from the set are removed, rows for present attributes rewritten.
func (tx *Tx) PutAnnotations(nodeID string, a *model.Annotations) error {
	if err := tx.clearAttrRows(nodeID); err != nil {
		return err
	}
	for name, vals := range a.Strings {
		row := &AttrRow{Type: model.AnnotationString, Strings: vals}
		if err := tx.setJSON(attrKey(model.AnnotationString, name, nodeID), row); err != nil {
			return err
		}
	}
	for name, vals := range a.Longs {
		row := &AttrRow{Type: model.AnnotationLong, Longs: vals}
		if err := tx.setJSON(attrKey(model.AnnotationLong, name, nodeID), row); err != nil {
			return err
		}
	}
	for name, vals := range a.Doubles {
		row := &AttrRow{Type: model.AnnotationDouble, Doubles: vals}
		if err := tx.setJSON(attrKey(model.AnnotationDouble, name, nodeID), row); err != nil {
			return err
		}
	}
	for name, vals := range a.Dates {
		row := &AttrRow{Type: model.AnnotationDate, Dates: toEpochMillis(vals)}
		if err := tx.setJSON(attrKey(model.AnnotationDate, name, nodeID), row); err != nil {
			return err
		}
	}
	for name, vals := range a.Blobs {
		row := &AttrRow{Type: model.AnnotationBlob, Blobs: vals}
		if err := tx.setJSON(attrKey(model.AnnotationBlob, name, nodeID), row); err != nil {
			return err
		}
	}
	return tx.setJSON(annotationsKey(nodeID), a)
}

// clearAttrRows removes every per-type attribute row owned by nodeID,
// using the stored annotation set as the row inventory.
func (tx *Tx) clearAttrRows(nodeID string) error {
	old := model.NewAnnotations()
	err := tx.getJSON(annotationsKey(nodeID), old)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	del := func(t model.AnnotationType, name string) error {
		if err := tx.txn.Delete(attrKey(t, name, nodeID)); err != nil {
			return model.StorageErr("delete attribute row", err)
		}
		return nil
	}
	for name := range old.Strings {
		if err := del(model.AnnotationString, name); err != nil {
			return err
		}
	}
	for name := range old.Longs {
		if err := del(model.AnnotationLong, name); err != nil {
			return err
		}
	}
	for name := range old.Doubles {
		if err := del(model.AnnotationDouble, name); err != nil {
			return err
		}
	}
	for name := range old.Dates {
		if err := del(model.AnnotationDate, name); err != nil {
			return err
		}
	}
	for name := range old.Blobs {
		if err := del(model.AnnotationBlob, name); err != nil {
			return err
		}
	}
	return nil
}

// GetAttrRow fetches one per-type annotation row, or nil when the owner
// does not carry the attribute.
func (tx *Tx) GetAttrRow(t model.AnnotationType, name, ownerID string) (*AttrRow, error) {
	var row AttrRow
	err := tx.getJSON(attrKey(t, name, ownerID), &row)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetACL fetches the ACL owned by resourceID.
func (tx *Tx) GetACL(resourceID string) (*model.AccessControlList, error) {
	var acl model.AccessControlList
	if err := tx.getJSON(aclKey(resourceID), &acl); err != nil {
		return nil, err
	}
	return &acl, nil
}

// PutACL writes the ACL owned by its resource id.
func (tx *Tx) PutACL(acl *model.AccessControlList) error {
	return tx.setJSON(aclKey(acl.ResourceID), acl)
}

// DeleteACL removes the ACL owned by resourceID.
func (tx *Tx) DeleteACL(resourceID string) error {
	if err := tx.txn.Delete(aclKey(resourceID)); err != nil {
		return model.StorageErr("delete acl", err)
	}
	return nil
}

// HasACL reports whether resourceID owns an ACL.
func (tx *Tx) HasACL(resourceID string) (bool, error) {
	_, err := tx.txn.Get(aclKey(resourceID))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, model.StorageErr("get acl", err)
	}
	return true, nil
}

// GetRegistryType looks up the registered type for an attribute name.
func (tx *Tx) GetRegistryType(name string) (model.AnnotationType, bool, error) {
	item, err := tx.txn.Get(registryKey(name))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, model.StorageErr("get registry row", err)
	}
	var t model.AnnotationType
	err = item.Value(func(val []byte) error {
		t = model.AnnotationType(val)
		return nil
	})
	if err != nil {
		return "", false, model.StorageErr("read registry row", err)
	}
	return t, true, nil
}

// PutRegistryType persists an attribute name to type binding.
func (tx *Tx) PutRegistryType(name string, t model.AnnotationType) error {
	if err := tx.txn.Set(registryKey(name), []byte(t)); err != nil {
		return model.StorageErr("set registry row", err)
	}
	return nil
}

// ScanNodes walks every node row. fn returning a non-nil error stops
// the walk; ErrStopScan stops it without surfacing an error.
func (tx *Tx) ScanNodes(fn func(*model.Node) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(prefixNode)

	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var n model.Node
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &n)
		})
		if err != nil {
			return model.StorageErr("decode node", err)
		}
		if err := fn(&n); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// CreateNode persists a fresh node row under the given store-assigned
// id, together with its empty annotation set, its first revision, and
// its children-index entry. The caller owns stamping audit fields
// beforehand and supplying an id from the store's sequence.
func (tx *Tx) CreateNode(n *model.Node, id string) error {
	n.ID = id
	n.ETag = model.ETagInitial
	n.CurrentRevision = model.FirstRevisionNumber

	if n.ParentID == nil {
		// Roots govern themselves; the manager persists the grant-all
		// ACL in this same transaction.
		n.BenefactorID = id
	} else {
		parent, err := tx.GetNode(*n.ParentID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.InvalidModelf("parent %s does not exist", *n.ParentID)
			}
			return err
		}
		n.BenefactorID = parent.BenefactorID
		if err := tx.AddChild(parent.ID, id); err != nil {
			return err
		}
	}

	if err := tx.PutNode(n); err != nil {
		return err
	}

	annos := model.NewAnnotations()
	annos.OwnerID = id
	annos.ETag = n.ETag
	if err := tx.PutAnnotations(id, annos); err != nil {
		return err
	}

	return tx.PutRevision(&model.Revision{
		OwnerNodeID:    id,
		RevisionNumber: model.FirstRevisionNumber,
		ModifiedBy:     n.ModifiedBy,
		ModifiedOn:     n.ModifiedOn,
	})
}

// DeleteNodeCascade removes a node together with everything it owns:
// revisions, annotation set and attribute rows, its ACL (if any), its
// children index, its entry in the parent's index, and recursively its
// descendant nodes.
func (tx *Tx) DeleteNodeCascade(id string) error {
	n, err := tx.GetNode(id)
	if err != nil {
		return err
	}

	children, err := tx.Children(id)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := tx.DeleteNodeCascade(child); err != nil {
			return err
		}
	}

	if err := tx.clearAttrRows(id); err != nil {
		return err
	}
	if err := tx.txn.Delete(annotationsKey(id)); err != nil {
		return model.StorageErr("delete annotations", err)
	}
	if err := tx.deletePrefix(revisionPrefix(id)); err != nil {
		return err
	}
	if err := tx.DeleteACL(id); err != nil {
		return err
	}
	if n.ParentID != nil {
		if err := tx.txn.Delete(childKey(*n.ParentID, id)); err != nil {
			return model.StorageErr("unindex child", err)
		}
	}
	if err := tx.txn.Delete(nodeKey(id)); err != nil {
		return model.StorageErr("delete node", err)
	}
	return nil
}

func (tx *Tx) deletePrefix(prefix []byte) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := tx.txn.NewIterator(opts)
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := tx.txn.Delete(key); err != nil {
			return model.StorageErr("delete prefix row", err)
		}
	}
	return nil
}

func toEpochMillis(vals []time.Time) []int64 {
	out := make([]int64, len(vals))
	for i, v := range vals {
		out[i] = v.UnixMilli()
	}
	return out
}
