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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

func runNodeCreate(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	n := &model.Node{
		Name:        nodeName,
		Kind:        model.EntityKind(nodeKind),
		Description: nodeDescription,
	}
	if nodeParent != "" {
		n.ParentID = &nodeParent
	}
	id, err := svc.CreateNode(cmd.Context(), n, user)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runNodeGet(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.GetNode(cmd.Context(), user, args[0])
	if err != nil {
		return err
	}
	return printJSON(n)
}

func runNodeChildren(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	children, err := svc.GetChildren(cmd.Context(), user, args[0])
	if err != nil {
		return err
	}
	return printJSON(children)
}

func runNodeUpdate(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	if nodeETag == "" {
		return fmt.Errorf("--etag is required")
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	current, err := svc.GetNode(cmd.Context(), user, args[0])
	if err != nil {
		return err
	}
	if nodeName != "" {
		current.Name = nodeName
	}
	if nodeDescription != "" {
		current.Description = nodeDescription
	}
	current.ETag = nodeETag

	updated, err := svc.UpdateNode(cmd.Context(), user, current, nil)
	if err != nil {
		return err
	}
	return printJSON(updated)
}

func runNodeDelete(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.DeleteNode(cmd.Context(), user, args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func runNodeRevisions(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	revs, err := svc.GetRevisions(cmd.Context(), user, args[0])
	if err != nil {
		return err
	}
	return printJSON(revs)
}
