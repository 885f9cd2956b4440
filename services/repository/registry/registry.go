// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry implements the global annotation type registry and
// the annotation validator that feeds it.
//
// The registry pins every annotation attribute name to exactly one
// semantic type for the lifetime of the corpus. The binding is created
// on first use anywhere in the system, is append-only, and is never
// scoped per node or per entity kind. The registry is an explicitly
// constructed, injected component; it holds no process-wide statics.
package registry

import (
	"sync"

	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

// Registry is the attribute-name to annotation-type table.
//
// Thread Safety: safe for concurrent use. Concurrent first registration
// of the same name resolves to first-writer-wins: the loser's commit
// conflicts at the engine level and the store re-runs its transaction,
// which then observes the name as already registered.
type Registry struct {
	// mu serializes in-process registration, narrowing the window for
	// engine-level commit conflicts. Cross-transaction races are
	// resolved by the store's commit retry.
	mu sync.Mutex
}

// NewRegistry constructs a registry. Bindings live in the store's
// registry table; the component itself is stateless apart from its
// registration lock.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddNewType binds name to t inside the caller's transaction.
//
// Idempotent: an unseen name is persisted; a name already bound to the
// same type is a no-op; a name bound to a different type fails with
// ErrInvalidModel. The write commits or rolls back with the rest of the
// caller's transaction.
func (r *Registry) AddNewType(tx *store.Tx, name string, t model.AnnotationType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok, err := tx.GetRegistryType(name)
	if err != nil {
		return err
	}
	if ok {
		if existing == t {
			return nil
		}
		return model.InvalidModelf(
			"the attribute name %q is already bound to type %s and cannot be used as %s",
			name, existing, t)
	}
	return tx.PutRegistryType(name, t)
}

// TypeOf looks up the registered type for an attribute name.
func (r *Registry) TypeOf(tx *store.Tx, name string) (model.AnnotationType, bool, error) {
	return tx.GetRegistryType(name)
}
