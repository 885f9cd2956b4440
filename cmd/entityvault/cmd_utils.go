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
	"strings"

	repository "github.com/AleutianAI/entityvault/services/repository"
	"github.com/AleutianAI/entityvault/services/repository/config"
	"github.com/AleutianAI/entityvault/services/repository/model"
)

// openService opens the repository per the loaded config. The caller
// must invoke the returned cleanup.
func openService() (*repository.Service, func(), error) {
	svc, err := repository.Open(config.Global, logger.Slog())
	if err != nil {
		return nil, nil, fmt.Errorf("open repository: %w", err)
	}
	cleanup := func() {
		if err := svc.Close(); err != nil {
			logger.Slog().Error("close repository", "error", err)
		}
	}
	return svc, cleanup, nil
}

// currentUser builds the acting identity from the --user and --groups
// flags. Every user belongs to their own singleton group.
func currentUser() (*model.UserInfo, error) {
	if userID == "" {
		return nil, fmt.Errorf("--user is required")
	}
	groups := append([]string{userID}, userGroups...)
	return &model.UserInfo{PrincipalID: userID, Groups: groups}, nil
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseKeyValue splits one "key=value" flag argument.
func parseKeyValue(arg string) (string, string, error) {
	key, value, ok := strings.Cut(arg, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", arg)
	}
	return key, value, nil
}
