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

// AccessType enumerates the permissions an ACL can grant.
type AccessType string

const (
	AccessRead              AccessType = "READ"
	AccessCreate            AccessType = "CREATE"
	AccessUpdate            AccessType = "UPDATE"
	AccessDelete            AccessType = "DELETE"
	AccessChangePermissions AccessType = "CHANGE_PERMISSIONS"
)

// AllAccessTypes lists every grantable access type.
var AllAccessTypes = []AccessType{
	AccessRead,
	AccessCreate,
	AccessUpdate,
	AccessDelete,
	AccessChangePermissions,
}

// ResourceAccess grants a set of access types to one principal
// (an individual or a group) on the owning ACL's resource.
type ResourceAccess struct {
	PrincipalID string       `json:"principalId" validate:"required"`
	AccessTypes []AccessType `json:"accessTypes" validate:"required,min=1"`
}

// Grants reports whether this entry grants the given access type.
func (ra *ResourceAccess) Grants(t AccessType) bool {
	for _, a := range ra.AccessTypes {
		if a == t {
			return true
		}
	}
	return false
}

// AccessControlList is the set of grants owned by exactly one node,
// the benefactor of every node it governs.
//
// Root nodes receive an ACL automatically at creation. Non-root nodes
// own one only while inheritance is explicitly broken; deleting it
// restores inheritance from the nearest ancestor ACL owner.
type AccessControlList struct {
	ID         string           `json:"id"`
	ResourceID string           `json:"resourceId" validate:"required"`
	CreatedBy  string           `json:"createdBy"`
	CreatedOn  time.Time        `json:"createdOn"`
	ETag       string           `json:"etag"`
	Access     []ResourceAccess `json:"resourceAccess"`
}

// Grants reports whether any of the caller's groups is granted the
// given access type by this list.
func (acl *AccessControlList) Grants(user *UserInfo, t AccessType) bool {
	for i := range acl.Access {
		if !acl.Access[i].Grants(t) {
			continue
		}
		if user.InGroup(acl.Access[i].PrincipalID) {
			return true
		}
	}
	return false
}

// NewGrantAllACL builds the ACL synthesized for a freshly created root
// node: the creator's principal receives every access type.
func NewGrantAllACL(resourceID string, user *UserInfo, now time.Time) *AccessControlList {
	return &AccessControlList{
		ResourceID: resourceID,
		CreatedBy:  user.PrincipalID,
		CreatedOn:  now,
		Access: []ResourceAccess{
			{
				PrincipalID: user.PrincipalID,
				AccessTypes: append([]AccessType(nil), AllAccessTypes...),
			},
		},
	}
}
