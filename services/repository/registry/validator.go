// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

// Validator validates an annotation set against the type registry,
// registering unseen attribute names as a side effect. It checks type
// membership only; value-level semantics are the caller's business.
type Validator struct {
	registry *Registry
}

// NewValidator constructs a validator over the given registry.
func NewValidator(r *Registry) *Validator {
	return &Validator{registry: r}
}

// Validate walks every attribute of every typed bucket and binds its
// name in the registry. A nil or empty etag is rejected up front: the
// set must carry the owning node's version token to be updatable.
//
// Side effect: grows the global registry inside the caller's
// transaction. An attribute already bound to a different type fails
// with ErrInvalidModel and rolls the transaction back.
func (v *Validator) Validate(tx *store.Tx, a *model.Annotations) error {
	if a == nil {
		return model.InvalidModelf("annotations cannot be nil")
	}
	if a.ETag == "" {
		return model.InvalidModelf("cannot update annotations without an etag")
	}
	for name := range a.Strings {
		if err := v.registry.AddNewType(tx, name, model.AnnotationString); err != nil {
			return err
		}
	}
	for name := range a.Longs {
		if err := v.registry.AddNewType(tx, name, model.AnnotationLong); err != nil {
			return err
		}
	}
	for name := range a.Doubles {
		if err := v.registry.AddNewType(tx, name, model.AnnotationDouble); err != nil {
			return err
		}
	}
	for name := range a.Dates {
		if err := v.registry.AddNewType(tx, name, model.AnnotationDate); err != nil {
			return err
		}
	}
	for name := range a.Blobs {
		if err := v.registry.AddNewType(tx, name, model.AnnotationBlob); err != nil {
			return err
		}
	}
	return nil
}
