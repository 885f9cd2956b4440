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
	"fmt"
	"strings"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

// Key schema. The logical tables of the repository map to keyspace
// prefixes; within a prefix, segments are slash-separated.
//
//	node/<id>                      node row
//	child/<parentID>/<childID>     children index (empty value)
//	rev/<nodeID>/<rev%016x>        revision rows, ordered per node
//	annos/<nodeID>                 full annotation set for point reads
//	attr/<type>/<name>/<ownerID>   per-type annotation rows for scans
//	acl/<resourceID>               access-control list row
//	regtype/<name>                 attribute name -> type registry row
const (
	prefixNode     = "node/"
	prefixChild    = "child/"
	prefixRevision = "rev/"
	prefixAnnos    = "annos/"
	prefixAttr     = "attr/"
	prefixACL      = "acl/"
	prefixRegistry = "regtype/"

	// nodeSequenceKey names the Badger sequence that allocates node ids.
	nodeSequenceKey = "seq/node"
)

func nodeKey(id string) []byte {
	return []byte(prefixNode + id)
}

func childKey(parentID, childID string) []byte {
	return []byte(prefixChild + parentID + "/" + childID)
}

func childPrefix(parentID string) []byte {
	return []byte(prefixChild + parentID + "/")
}

func revisionKey(nodeID string, rev int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%016x", prefixRevision, nodeID, rev))
}

func revisionPrefix(nodeID string) []byte {
	return []byte(prefixRevision + nodeID + "/")
}

func annotationsKey(nodeID string) []byte {
	return []byte(prefixAnnos + nodeID)
}

func attrKey(t model.AnnotationType, name, ownerID string) []byte {
	return []byte(prefixAttr + string(t) + "/" + name + "/" + ownerID)
}

func attrPrefix(t model.AnnotationType, name string) []byte {
	return []byte(prefixAttr + string(t) + "/" + name + "/")
}

// attrKeyOwner extracts the owner id from an attr table key.
func attrKeyOwner(key []byte) string {
	s := string(key)
	i := strings.LastIndexByte(s, '/')
	if i < 0 {
		return ""
	}
	return s[i+1:]
}

func aclKey(resourceID string) []byte {
	return []byte(prefixACL + resourceID)
}

func registryKey(name string) []byte {
	return []byte(prefixRegistry + name)
}
