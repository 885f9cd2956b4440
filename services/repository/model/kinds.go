// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import "fmt"

// EntityKind is the closed set of entity kinds a node can have.
//
// Kinds are a flat sum type: every kind shares the Node primary fields
// and differs only in its schema (which extra fields ride as typed
// annotations) and in which child kinds may be created beneath it.
type EntityKind string

const (
	KindProject  EntityKind = "project"
	KindDataset  EntityKind = "dataset"
	KindLayer    EntityKind = "layer"
	KindLocation EntityKind = "location"
	KindFolder   EntityKind = "folder"
	KindAnalysis EntityKind = "analysis"
	KindStep     EntityKind = "step"
	KindPreview  EntityKind = "preview"
)

// KindSchema describes one entity kind: the node-column fields callers
// may address directly, and the kinds creatable as its children.
// Fields not listed as primary are stored as typed annotations.
type KindSchema struct {
	Kind EntityKind

	// AnnotationFields are well-known per-kind fields persisted in the
	// typed annotation tables rather than on the node row.
	AnnotationFields []string

	// ChildKinds is the capability set for CanCreate checks: which
	// kinds may be created with a node of this kind as parent.
	ChildKinds []EntityKind
}

// AllowsChild reports whether the schema permits creating a child of
// the given kind.
func (s *KindSchema) AllowsChild(k EntityKind) bool {
	for _, c := range s.ChildKinds {
		if c == k {
			return true
		}
	}
	return false
}

// kindSchemas is configuration, not algorithm: the per-kind field
// split and parent/child capabilities observed by CanCreate.
var kindSchemas = map[EntityKind]*KindSchema{
	KindProject: {
		Kind:       KindProject,
		ChildKinds: []EntityKind{KindProject, KindDataset, KindFolder, KindAnalysis},
	},
	KindDataset: {
		Kind:             KindDataset,
		AnnotationFields: []string{"status", "species", "tissueType", "releaseDate"},
		ChildKinds:       []EntityKind{KindLayer, KindFolder},
	},
	KindLayer: {
		Kind:             KindLayer,
		AnnotationFields: []string{"platform", "processingFacility", "qcBy", "qcDate"},
		ChildKinds:       []EntityKind{KindLocation, KindPreview},
	},
	KindLocation: {
		Kind:             KindLocation,
		AnnotationFields: []string{"path", "md5sum", "contentType"},
	},
	KindFolder: {
		Kind:       KindFolder,
		ChildKinds: []EntityKind{KindFolder, KindDataset, KindAnalysis},
	},
	KindAnalysis: {
		Kind:       KindAnalysis,
		ChildKinds: []EntityKind{KindStep},
	},
	KindStep: {
		Kind:             KindStep,
		AnnotationFields: []string{"commandLine", "startDate", "endDate"},
	},
	KindPreview: {
		Kind:             KindPreview,
		AnnotationFields: []string{"previewBlob", "headers"},
	},
}

// SchemaFor returns the schema for a kind, or an error for a kind
// outside the closed set.
func SchemaFor(k EntityKind) (*KindSchema, error) {
	s, ok := kindSchemas[k]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity kind %q", ErrInvalidModel, k)
	}
	return s, nil
}

// ValidKind reports whether k belongs to the closed kind set.
func ValidKind(k EntityKind) bool {
	_, ok := kindSchemas[k]
	return ok
}

// NodePrimaryFields are the structural columns addressable in queries
// without touching the annotation tables. Any other field name in a
// query resolves through the annotation type registry.
var NodePrimaryFields = map[string]bool{
	"id":                    true,
	"name":                  true,
	"description":           true,
	"nodeType":              true,
	"parentId":              true,
	"benefactorId":          true,
	"createdBy":             true,
	"createdOn":             true,
	"modifiedBy":            true,
	"modifiedOn":            true,
	"eTag":                  true,
	"currentRevisionNumber": true,
}
