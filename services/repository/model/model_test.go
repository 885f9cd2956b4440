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

import (
	"testing"
	"time"
)

func TestETagRoundTrip(t *testing.T) {
	n := &Node{ETag: ETagInitial}
	v, err := n.ETagValue()
	if err != nil {
		t.Fatalf("ETagValue: %v", err)
	}
	if v != 0 {
		t.Errorf("initial token = %d, want 0", v)
	}
	if got := FormatETag(v + 1); got != "1" {
		t.Errorf("FormatETag = %q, want %q", got, "1")
	}
}

func TestETagValueMalformed(t *testing.T) {
	n := &Node{ETag: "not-a-number"}
	if _, err := n.ETagValue(); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestIsRoot(t *testing.T) {
	root := &Node{}
	if !root.IsRoot() {
		t.Error("node without parent should be root")
	}
	parent := "1"
	child := &Node{ParentID: &parent}
	if child.IsRoot() {
		t.Error("node with parent should not be root")
	}
}

func TestUserInGroup(t *testing.T) {
	u := &UserInfo{PrincipalID: "alice", Groups: []string{"alice", "team-a"}}
	if !u.InGroup("team-a") {
		t.Error("expected membership in team-a")
	}
	if u.InGroup("team-b") {
		t.Error("unexpected membership in team-b")
	}
}

func TestGrantAllACL(t *testing.T) {
	u := &UserInfo{PrincipalID: "alice", Groups: []string{"alice"}}
	acl := NewGrantAllACL("42", u, time.Now())

	if acl.ResourceID != "42" {
		t.Errorf("ResourceID = %q, want %q", acl.ResourceID, "42")
	}
	for _, at := range AllAccessTypes {
		if !acl.Grants(u, at) {
			t.Errorf("creator should hold %s", at)
		}
	}
	other := &UserInfo{PrincipalID: "bob", Groups: []string{"bob"}}
	if acl.Grants(other, AccessRead) {
		t.Error("other principals should hold nothing")
	}
}

func TestACLGrantsViaGroup(t *testing.T) {
	acl := &AccessControlList{
		ResourceID: "1",
		Access: []ResourceAccess{
			{PrincipalID: "team-a", AccessTypes: []AccessType{AccessRead}},
		},
	}
	member := &UserInfo{PrincipalID: "bob", Groups: []string{"bob", "team-a"}}
	if !acl.Grants(member, AccessRead) {
		t.Error("group member should hold READ")
	}
	if acl.Grants(member, AccessDelete) {
		t.Error("group member should not hold DELETE")
	}
}

func TestKindSchemaChildren(t *testing.T) {
	schema, err := SchemaFor(KindProject)
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	if !schema.AllowsChild(KindDataset) {
		t.Error("project should allow dataset children")
	}
	if schema.AllowsChild(KindLocation) {
		t.Error("project should not allow location children")
	}
}

func TestValidKind(t *testing.T) {
	if !ValidKind(KindFolder) {
		t.Error("folder should be a valid kind")
	}
	if ValidKind("spaceship") {
		t.Error("unknown kind should be invalid")
	}
}

func TestAnnotationsTypeOf(t *testing.T) {
	a := NewAnnotations()
	a.AddString("species", "gopher")
	a.AddLong("age", 3)
	a.AddDate("born", time.Now())

	cases := []struct {
		name string
		want AnnotationType
	}{
		{"species", AnnotationString},
		{"age", AnnotationLong},
		{"born", AnnotationDate},
	}
	for _, tc := range cases {
		got, ok := a.TypeOf(tc.name)
		if !ok || got != tc.want {
			t.Errorf("TypeOf(%s) = %v, %v; want %v", tc.name, got, ok, tc.want)
		}
	}
	if _, ok := a.TypeOf("missing"); ok {
		t.Error("missing attribute should report no type")
	}
}

func TestAnnotationsIsEmpty(t *testing.T) {
	a := NewAnnotations()
	if !a.IsEmpty() {
		t.Error("fresh set should be empty")
	}
	a.AddDouble("score", 1.5)
	if a.IsEmpty() {
		t.Error("set with values should not be empty")
	}
}
