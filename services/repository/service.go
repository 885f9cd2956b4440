// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repository assembles the versioned entity repository: the
// node lifecycle manager, the annotation type registry, ACL
// authorization with benefactor inheritance, and the query engine,
// all over one embedded store.
package repository

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/entityvault/services/repository/authz"
	"github.com/AleutianAI/entityvault/services/repository/concurrency"
	"github.com/AleutianAI/entityvault/services/repository/config"
	"github.com/AleutianAI/entityvault/services/repository/manager"
	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/query"
	"github.com/AleutianAI/entityvault/services/repository/registry"
	"github.com/AleutianAI/entityvault/services/repository/storage/badger"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

// Service is the public face of the repository. All access control,
// validation and version-token bookkeeping happens behind it; callers
// supply an authenticated UserInfo and plain domain values.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	db       *badger.DB
	store    *store.Store
	manager  *manager.Manager
	executor *query.Executor
	queries  *query.Translator
	logger   *slog.Logger
}

// Open builds a Service from configuration, opening the embedded store.
func Open(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	engineCfg := badger.DefaultConfig()
	engineCfg.Path = cfg.Store.Path
	engineCfg.InMemory = cfg.Store.InMemory
	engineCfg.SyncWrites = cfg.Store.SyncWrites
	engineCfg.Logger = logger

	db, err := badger.Open(engineCfg)
	if err != nil {
		return nil, err
	}
	svc, err := newService(db, cfg.Query.MaxLimit, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return svc, nil
}

// OpenInMemory builds a Service over a throwaway in-memory store.
func OpenInMemory(logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := badger.OpenInMemory()
	if err != nil {
		return nil, err
	}
	svc, err := newService(db, 0, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return svc, nil
}

func newService(db *badger.DB, maxLimit int64, logger *slog.Logger) (*Service, error) {
	st, err := store.New(db, logger)
	if err != nil {
		return nil, err
	}
	reg := registry.NewRegistry()
	guard := authz.NewGuard(st)
	ctrl := concurrency.NewController()
	mgr := manager.New(st, guard, ctrl, registry.NewValidator(reg), logger)

	return &Service{
		db:       db,
		store:    st,
		manager:  mgr,
		executor: query.NewExecutor(st, reg, guard),
		queries:  query.NewTranslator(query.Bounds{MaxLimit: maxLimit}),
		logger:   logger,
	}, nil
}

// Close releases the store and the underlying engine.
func (s *Service) Close() error {
	if err := s.store.Close(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

// CreateNode validates and persists a new node, returning its assigned
// id.
func (s *Service) CreateNode(ctx context.Context, n *model.Node, user *model.UserInfo) (string, error) {
	return s.manager.CreateNewNode(ctx, n, user)
}

// GetNode fetches a node the user can READ.
func (s *Service) GetNode(ctx context.Context, user *model.UserInfo, id string) (*model.Node, error) {
	return s.manager.Get(ctx, user, id)
}

// GetNodeType fetches the entity kind of a node the user can READ.
func (s *Service) GetNodeType(ctx context.Context, user *model.UserInfo, id string) (model.EntityKind, error) {
	return s.manager.GetNodeType(ctx, user, id)
}

// GetChildren fetches the direct children of a node the user can READ.
func (s *Service) GetChildren(ctx context.Context, user *model.UserInfo, parentID string) ([]*model.Node, error) {
	return s.manager.GetChildren(ctx, user, parentID)
}

// UpdateNode applies a node update, optionally with annotations that
// must carry the same version token as the node.
func (s *Service) UpdateNode(ctx context.Context, user *model.UserInfo, n *model.Node, annos *model.Annotations) (*model.Node, error) {
	return s.manager.Update(ctx, user, n, annos)
}

// DeleteNode removes a node and everything it owns, cascading to
// descendants.
func (s *Service) DeleteNode(ctx context.Context, user *model.UserInfo, id string) error {
	return s.manager.Delete(ctx, user, id)
}

// GetAnnotations fetches the annotation set of a node the user can
// READ.
func (s *Service) GetAnnotations(ctx context.Context, user *model.UserInfo, id string) (*model.Annotations, error) {
	return s.manager.GetAnnotations(ctx, user, id)
}

// UpdateAnnotations replaces a node's annotation set under the
// optimistic locking protocol.
func (s *Service) UpdateAnnotations(ctx context.Context, user *model.UserInfo, id string, annos *model.Annotations) (*model.Annotations, error) {
	return s.manager.UpdateAnnotations(ctx, user, id, annos)
}

// GetRevisions fetches a node's revision history, oldest first.
func (s *Service) GetRevisions(ctx context.Context, user *model.UserInfo, id string) ([]model.Revision, error) {
	return s.manager.GetRevisions(ctx, user, id)
}

// HasAccess reports whether the user holds the access type on the ACL
// governing the node.
func (s *Service) HasAccess(ctx context.Context, n *model.Node, accessType model.AccessType, user *model.UserInfo) (bool, error) {
	return s.manager.HasAccess(ctx, n, accessType, user)
}

// GetACL fetches the ACL owned by a node the user can READ.
func (s *Service) GetACL(ctx context.Context, user *model.UserInfo, resourceID string) (*model.AccessControlList, error) {
	return s.manager.GetACL(ctx, user, resourceID)
}

// CreateACL breaks ACL inheritance for a node.
func (s *Service) CreateACL(ctx context.Context, user *model.UserInfo, acl *model.AccessControlList) (*model.AccessControlList, error) {
	return s.manager.CreateACL(ctx, user, acl)
}

// UpdateACL replaces the grants of an existing ACL.
func (s *Service) UpdateACL(ctx context.Context, user *model.UserInfo, acl *model.AccessControlList) (*model.AccessControlList, error) {
	return s.manager.UpdateACL(ctx, user, acl)
}

// DeleteACL restores ACL inheritance for a non-root node.
func (s *Service) DeleteACL(ctx context.Context, user *model.UserInfo, resourceID string) error {
	return s.manager.DeleteACL(ctx, user, resourceID)
}

// ExecuteQuery translates and runs one query string for a user. Rows
// the user cannot READ are filtered out before pagination, so counts
// and pages only ever reflect visible data.
func (s *Service) ExecuteQuery(ctx context.Context, queryString string, user *model.UserInfo) (*query.Results, error) {
	plan, err := s.queries.Translate(queryString)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, plan, user)
}
