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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

func runQuery(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := svc.ExecuteQuery(cmd.Context(), args[0], user)
	if err != nil {
		return err
	}
	return printJSON(results)
}

// loadEntry is one record of a bulk-load file.
type loadEntry struct {
	Name        string             `json:"name"`
	Kind        string             `json:"kind"`
	Parent      string             `json:"parent,omitempty"`
	Description string             `json:"description,omitempty"`
	Strings     map[string]string  `json:"strings,omitempty"`
	Longs       map[string]int64   `json:"longs,omitempty"`
	Doubles     map[string]float64 `json:"doubles,omitempty"`
	Dates       map[string]string  `json:"dates,omitempty"`
}

func runLoad(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read load file: %w", err)
	}
	var entries []loadEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse load file: %w", err)
	}

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(loadWorkers)
	for _, entry := range entries {
		g.Go(func() error {
			n := &model.Node{
				Name:        entry.Name,
				Kind:        model.EntityKind(entry.Kind),
				Description: entry.Description,
			}
			if entry.Parent != "" {
				parent := entry.Parent
				n.ParentID = &parent
			}
			id, err := svc.CreateNode(ctx, n, user)
			if err != nil {
				return fmt.Errorf("create %q: %w", entry.Name, err)
			}

			annos, err := entryAnnotations(entry)
			if err != nil {
				return fmt.Errorf("annotations for %q: %w", entry.Name, err)
			}
			if annos == nil {
				return nil
			}
			annos.ETag = model.ETagInitial
			if _, err := svc.UpdateAnnotations(ctx, user, id, annos); err != nil {
				return fmt.Errorf("annotate %q: %w", entry.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("loaded %d nodes in %s\n", len(entries), time.Since(start))
	return nil
}

func entryAnnotations(entry loadEntry) (*model.Annotations, error) {
	if len(entry.Strings) == 0 && len(entry.Longs) == 0 &&
		len(entry.Doubles) == 0 && len(entry.Dates) == 0 {
		return nil, nil
	}
	annos := model.NewAnnotations()
	for key, value := range entry.Strings {
		annos.AddString(key, value)
	}
	for key, value := range entry.Longs {
		annos.AddLong(key, value)
	}
	for key, value := range entry.Doubles {
		annos.AddDouble(key, value)
	}
	for key, value := range entry.Dates {
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("date %s: %w", key, err)
		}
		annos.AddDate(key, t)
	}
	return annos, nil
}
