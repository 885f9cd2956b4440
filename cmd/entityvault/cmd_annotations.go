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
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

func runAnnotationsGet(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	annos, err := svc.GetAnnotations(cmd.Context(), user, args[0])
	if err != nil {
		return err
	}
	return printJSON(annos)
}

func runAnnotationsSet(cmd *cobra.Command, args []string) error {
	user, err := currentUser()
	if err != nil {
		return err
	}
	if nodeETag == "" {
		return fmt.Errorf("--etag is required")
	}
	annos, err := buildAnnotations()
	if err != nil {
		return err
	}
	annos.ETag = nodeETag

	svc, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	updated, err := svc.UpdateAnnotations(cmd.Context(), user, args[0], annos)
	if err != nil {
		return err
	}
	return printJSON(updated)
}

// buildAnnotations assembles an annotation set from the repeatable
// typed key=value flags.
func buildAnnotations() (*model.Annotations, error) {
	annos := model.NewAnnotations()
	for _, arg := range annoStrings {
		key, value, err := parseKeyValue(arg)
		if err != nil {
			return nil, err
		}
		annos.AddString(key, value)
	}
	for _, arg := range annoLongs {
		key, value, err := parseKeyValue(arg)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--long %s: %w", key, err)
		}
		annos.AddLong(key, v)
	}
	for _, arg := range annoDoubles {
		key, value, err := parseKeyValue(arg)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("--double %s: %w", key, err)
		}
		annos.AddDouble(key, v)
	}
	for _, arg := range annoDates {
		key, value, err := parseKeyValue(arg)
		if err != nil {
			return nil, err
		}
		v, err := strfmt.ParseDateTime(value)
		if err != nil {
			return nil, fmt.Errorf("--date %s: %w", key, err)
		}
		annos.AddDate(key, time.Time(v))
	}
	return annos, nil
}
