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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/entityvault/pkg/logging"
	"github.com/AleutianAI/entityvault/services/repository/config"
)

// --- Global Command Variables ---
var (
	configPath string
	userID     string
	userGroups []string

	nodeName        string
	nodeKind        string
	nodeParent      string
	nodeDescription string
	nodeETag        string

	annoStrings []string
	annoLongs   []string
	annoDoubles []string
	annoDates   []string

	aclGrants []string

	loadWorkers int
	serveAddr   string

	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "entityvault",
		Short: "A cli to manage a versioned entity repository",
		Long: `entityvault manages a multi-tenant tree of versioned, annotated
				entities with ACL-based authorization and a small query language.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return err
			}
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(config.Global.Logging.Level),
				LogDir:  config.Global.Logging.Dir,
				Service: "entityvault",
				JSON:    config.Global.Logging.JSON,
				Quiet:   config.Global.Logging.Quiet,
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	// --- Nodes ---
	nodeCmd = &cobra.Command{
		Use:   "node",
		Short: "Create, inspect, update and delete nodes",
	}
	nodeCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a node (a root node when --parent is omitted)",
		RunE:  runNodeCreate, // Defined in cmd_node.go
	}
	nodeGetCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch one node",
		Args:  cobra.ExactArgs(1),
		RunE:  runNodeGet, // Defined in cmd_node.go
	}
	nodeChildrenCmd = &cobra.Command{
		Use:   "children [id]",
		Short: "List the direct children of a node",
		Args:  cobra.ExactArgs(1),
		RunE:  runNodeChildren, // Defined in cmd_node.go
	}
	nodeUpdateCmd = &cobra.Command{
		Use:   "update [id]",
		Short: "Update a node's name or description",
		Args:  cobra.ExactArgs(1),
		RunE:  runNodeUpdate, // Defined in cmd_node.go
	}
	nodeDeleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a node and everything beneath it",
		Args:  cobra.ExactArgs(1),
		RunE:  runNodeDelete, // Defined in cmd_node.go
	}
	nodeRevisionsCmd = &cobra.Command{
		Use:   "revisions [id]",
		Short: "List a node's revision history",
		Args:  cobra.ExactArgs(1),
		RunE:  runNodeRevisions, // Defined in cmd_node.go
	}

	// --- Annotations ---
	annotationsCmd = &cobra.Command{
		Use:   "annotations",
		Short: "Inspect and replace node annotations",
	}
	annotationsGetCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch the annotation set of a node",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnnotationsGet, // Defined in cmd_annotations.go
	}
	annotationsSetCmd = &cobra.Command{
		Use:   "set [id]",
		Short: "Replace the annotation set of a node",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnnotationsSet, // Defined in cmd_annotations.go
	}

	// --- ACLs ---
	aclCmd = &cobra.Command{
		Use:   "acl",
		Short: "Inspect and manage access control lists",
	}
	aclGetCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch the ACL owned by a node",
		Args:  cobra.ExactArgs(1),
		RunE:  runACLGet, // Defined in cmd_acl.go
	}
	aclCreateCmd = &cobra.Command{
		Use:   "create [id]",
		Short: "Break inheritance: give a node its own ACL",
		Args:  cobra.ExactArgs(1),
		RunE:  runACLCreate, // Defined in cmd_acl.go
	}
	aclUpdateCmd = &cobra.Command{
		Use:   "update [id]",
		Short: "Replace the grants of a node's ACL",
		Args:  cobra.ExactArgs(1),
		RunE:  runACLUpdate, // Defined in cmd_acl.go
	}
	aclDeleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a node's ACL, restoring inheritance",
		Args:  cobra.ExactArgs(1),
		RunE:  runACLDelete, // Defined in cmd_acl.go
	}

	// --- Query / Load ---
	queryCmd = &cobra.Command{
		Use:   "query [statement]",
		Short: "Run a query statement against the repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery, // Defined in cmd_query.go
	}
	loadCmd = &cobra.Command{
		Use:   "load [json file]",
		Short: "Bulk-load nodes from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runLoad, // Defined in cmd_query.go
	}

	// --- Serve ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Keep the repository open and expose Prometheus metrics",
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "Acting principal id")
	rootCmd.PersistentFlags().StringSliceVar(&userGroups, "groups", nil, "Additional group principal ids")

	nodeCreateCmd.Flags().StringVar(&nodeName, "name", "", "Node name (required)")
	nodeCreateCmd.Flags().StringVar(&nodeKind, "kind", "", "Entity kind (required)")
	nodeCreateCmd.Flags().StringVar(&nodeParent, "parent", "", "Parent node id")
	nodeCreateCmd.Flags().StringVar(&nodeDescription, "description", "", "Node description")

	nodeUpdateCmd.Flags().StringVar(&nodeName, "name", "", "New node name")
	nodeUpdateCmd.Flags().StringVar(&nodeDescription, "description", "", "New node description")
	nodeUpdateCmd.Flags().StringVar(&nodeETag, "etag", "", "Version token from the last read (required)")

	annotationsSetCmd.Flags().StringVar(&nodeETag, "etag", "", "Version token from the last read (required)")
	annotationsSetCmd.Flags().StringArrayVar(&annoStrings, "string", nil, "String annotation key=value (repeatable)")
	annotationsSetCmd.Flags().StringArrayVar(&annoLongs, "long", nil, "Long annotation key=value (repeatable)")
	annotationsSetCmd.Flags().StringArrayVar(&annoDoubles, "double", nil, "Double annotation key=value (repeatable)")
	annotationsSetCmd.Flags().StringArrayVar(&annoDates, "date", nil, "Date annotation key=RFC3339 (repeatable)")

	aclCreateCmd.Flags().StringArrayVar(&aclGrants, "grant", nil, "Grant principal=TYPE,TYPE (repeatable)")
	aclUpdateCmd.Flags().StringArrayVar(&aclGrants, "grant", nil, "Grant principal=TYPE,TYPE (repeatable)")
	aclUpdateCmd.Flags().StringVar(&nodeETag, "etag", "", "ACL version token from the last read (required)")

	loadCmd.Flags().IntVar(&loadWorkers, "workers", 4, "Concurrent load workers")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9090", "Metrics listen address")

	nodeCmd.AddCommand(nodeCreateCmd, nodeGetCmd, nodeChildrenCmd, nodeUpdateCmd, nodeDeleteCmd, nodeRevisionsCmd)
	annotationsCmd.AddCommand(annotationsGetCmd, annotationsSetCmd)
	aclCmd.AddCommand(aclGetCmd, aclCreateCmd, aclUpdateCmd, aclDeleteCmd)
	rootCmd.AddCommand(nodeCmd, annotationsCmd, aclCmd, queryCmd, loadCmd, serveCmd)
}
