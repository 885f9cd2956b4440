// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

func runACLGet(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	acl, err := svc.GetACL(cmd.Context(), user, args[0])
	if err != nil {
		return err
	}
	return printJSON(acl)
}

func runACLCreate(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	access, err := parseGrants()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	acl, err := svc.CreateACL(cmd.Context(), user, &model.AccessControlList{
		ResourceID: args[0],
		Access:     access,
	})
	if err != nil {
		return err
	}
	return printJSON(acl)
}

func runACLUpdate(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	if nodeETag == "" {
		return fmt.Errorf("--etag is required")
	}
	access, err := parseGrants()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	acl, err := svc.UpdateACL(cmd.Context(), user, &model.AccessControlList{
		ResourceID: args[0],
		ETag:       nodeETag,
		Access:     access,
	})
	if err != nil {
		return err
	}
	return printJSON(acl)
}

func runACLDelete(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.DeleteACL(cmd.Context(), user, args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted acl on %s\n", args[0])
	return nil
}

// parseGrants turns repeated --grant principal=TYPE,TYPE flags into
// resource access entries.
func parseGrants() ([]model.ResourceAccess, error) {
	if len(aclGrants) == 0 {
		return nil, fmt.Errorf("at least one --grant is required")
	}
	var access []model.ResourceAccess
	for _, arg := range aclGrants {
		principal, typeList, err := parseKeyValue(arg)
		if err != nil {
			return nil, err
		}
		var types []model.AccessType
		for _, raw := range strings.Split(typeList, ",") {
			t := model.AccessType(strings.ToUpper(strings.TrimSpace(raw)))
			switch t {
			case model.AccessRead, model.AccessCreate, model.AccessUpdate,
				model.AccessDelete, model.AccessChangePermissions:
				types = append(types, t)
			default:
				return nil, fmt.Errorf("unknown access type %q", raw)
			}
		}
		access = append(access, model.ResourceAccess{
			PrincipalID: principal,
			AccessTypes: types,
		})
	}
	return access, nil
}
