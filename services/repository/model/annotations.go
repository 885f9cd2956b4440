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

import "time"

// AnnotationType is the semantic type of an annotation attribute.
// An attribute name is bound to exactly one type for the lifetime of
// the whole corpus, not per node; the registry package enforces that.
type AnnotationType string

const (
	AnnotationString AnnotationType = "string"
	AnnotationLong   AnnotationType = "long"
	AnnotationDouble AnnotationType = "double"
	AnnotationDate   AnnotationType = "date"
	AnnotationBlob   AnnotationType = "blob"
)

// Annotations is the dynamically typed metadata set attached to a node.
//
// Each bucket maps attribute name to one or more values of that
// bucket's type. The ETag must equal the owning node's version token at
// the moment of update; node and annotations are always written in the
// same transaction with the same token.
type Annotations struct {
	OwnerID string `json:"id,omitempty"`
	ETag    string `json:"etag"`

	Strings map[string][]string    `json:"stringAnnotations,omitempty"`
	Longs   map[string][]int64     `json:"longAnnotations,omitempty"`
	Doubles map[string][]float64   `json:"doubleAnnotations,omitempty"`
	Dates   map[string][]time.Time `json:"dateAnnotations,omitempty"`
	Blobs   map[string][][]byte    `json:"blobAnnotations,omitempty"`
}

// NewAnnotations returns an empty set with all buckets allocated.
func NewAnnotations() *Annotations {
	return &Annotations{
		Strings: make(map[string][]string),
		Longs:   make(map[string][]int64),
		Doubles: make(map[string][]float64),
		Dates:   make(map[string][]time.Time),
		Blobs:   make(map[string][][]byte),
	}
}

// AddString appends a value to a string attribute.
func (a *Annotations) AddString(name, value string) {
	if a.Strings == nil {
		a.Strings = make(map[string][]string)
	}
	a.Strings[name] = append(a.Strings[name], value)
}

// AddLong appends a value to a long attribute.
func (a *Annotations) AddLong(name string, value int64) {
	if a.Longs == nil {
		a.Longs = make(map[string][]int64)
	}
	a.Longs[name] = append(a.Longs[name], value)
}

// AddDouble appends a value to a double attribute.
func (a *Annotations) AddDouble(name string, value float64) {
	if a.Doubles == nil {
		a.Doubles = make(map[string][]float64)
	}
	a.Doubles[name] = append(a.Doubles[name], value)
}

// AddDate appends a value to a date attribute.
func (a *Annotations) AddDate(name string, value time.Time) {
	if a.Dates == nil {
		a.Dates = make(map[string][]time.Time)
	}
	a.Dates[name] = append(a.Dates[name], value)
}

// AddBlob appends a value to a blob attribute.
func (a *Annotations) AddBlob(name string, value []byte) {
	if a.Blobs == nil {
		a.Blobs = make(map[string][][]byte)
	}
	a.Blobs[name] = append(a.Blobs[name], value)
}

// IsEmpty reports whether no bucket holds any attribute.
func (a *Annotations) IsEmpty() bool {
	return len(a.Strings) == 0 && len(a.Longs) == 0 &&
		len(a.Doubles) == 0 && len(a.Dates) == 0 && len(a.Blobs) == 0
}

// TypeOf reports which bucket holds the named attribute in this set,
// or false when the set does not carry it. Note this inspects one set
// only; the global name-to-type binding lives in the registry.
func (a *Annotations) TypeOf(name string) (AnnotationType, bool) {
	if _, ok := a.Strings[name]; ok {
		return AnnotationString, true
	}
	if _, ok := a.Longs[name]; ok {
		return AnnotationLong, true
	}
	if _, ok := a.Doubles[name]; ok {
		return AnnotationDouble, true
	}
	if _, ok := a.Dates[name]; ok {
		return AnnotationDate, true
	}
	if _, ok := a.Blobs[name]; ok {
		return AnnotationBlob, true
	}
	return "", false
}
