// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"encoding/json"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

// snapshotRevision builds the next immutable revision of a node from
// the annotation set being written. The node's head revision number is
// not advanced here; the caller adopts rev.RevisionNumber on success.
func snapshotRevision(n *model.Node, annos *model.Annotations) (*model.Revision, error) {
	buf, err := json.Marshal(annos)
	if err != nil {
		return nil, model.StorageErr("encode revision snapshot", err)
	}
	return &model.Revision{
		OwnerNodeID:    n.ID,
		RevisionNumber: n.CurrentRevision + 1,
		Annotations:    buf,
		ModifiedBy:     n.ModifiedBy,
		ModifiedOn:     n.ModifiedOn,
	}, nil
}
