// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/entityvault/services/repository/authz"
	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/registry"
	storage "github.com/AleutianAI/entityvault/services/repository/storage/badger"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

type executorFixture struct {
	store    *store.Store
	registry *registry.Registry
	executor *Executor
	alice    *model.UserInfo
	bob      *model.UserInfo
	rootID   string
	datasets []string
}

// newExecutorFixture builds a project root readable by alice with ten
// dataset children. Dataset i carries longKey=i and doubleKey=42*i.
func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	s, err := store.New(db, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		_ = db.Close()
	})

	f := &executorFixture{
		store:    s,
		registry: registry.NewRegistry(),
		alice:    &model.UserInfo{PrincipalID: "alice", Groups: []string{"alice"}},
		bob:      &model.UserInfo{PrincipalID: "bob", Groups: []string{"bob"}},
	}
	f.executor = NewExecutor(s, f.registry, authz.NewGuard(s))

	ctx := context.Background()
	validator := registry.NewValidator(f.registry)

	root := &model.Node{Name: "root", Kind: model.KindProject}
	_, err = s.CreateNew(ctx, root)
	require.NoError(t, err)
	f.rootID = root.ID
	err = s.Update(ctx, func(tx *store.Tx) error {
		return tx.PutACL(model.NewGrantAllACL(root.ID, f.alice, time.Now()))
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		n := &model.Node{
			Name:     fmt.Sprintf("ds-%d", i),
			Kind:     model.KindDataset,
			ParentID: &root.ID,
		}
		_, err = s.CreateNew(ctx, n)
		require.NoError(t, err)
		f.datasets = append(f.datasets, n.ID)

		annos := model.NewAnnotations()
		annos.ETag = model.ETagInitial
		annos.AddLong("longKey", int64(i))
		annos.AddDouble("doubleKey", float64(42*i))
		err = s.Update(ctx, func(tx *store.Tx) error {
			if err := validator.Validate(tx, annos); err != nil {
				return err
			}
			return tx.PutAnnotations(n.ID, annos)
		})
		require.NoError(t, err)
	}
	return f
}

func (f *executorFixture) run(t *testing.T, user *model.UserInfo, q string) *Results {
	t.Helper()
	plan, err := NewTranslator(Bounds{}).Translate(q)
	require.NoError(t, err)
	results, err := f.executor.Execute(context.Background(), plan, user)
	require.NoError(t, err)
	return results
}

func TestExecuteOrderedPage(t *testing.T) {
	f := newExecutorFixture(t)

	results := f.run(t, f.alice,
		`from dataset where doubleKey > 0.0 order by longKey desc limit 8 offset 0`)

	// doubleKey is zero on ds-0, so nine datasets match; the page holds
	// the first eight in descending longKey order.
	require.Equal(t, int64(9), results.TotalCount)
	require.Len(t, results.Rows, 8)
	for i, row := range results.Rows {
		require.Equal(t, []int64{int64(9 - i)}, row["longKey"])
	}
}

func TestExecuteWindowBeyondEnd(t *testing.T) {
	f := newExecutorFixture(t)

	results := f.run(t, f.alice,
		`from dataset where doubleKey > 0.0 limit 8 offset 8`)
	require.Equal(t, int64(9), results.TotalCount)
	require.Len(t, results.Rows, 1)

	results = f.run(t, f.alice,
		`from dataset where doubleKey > 0.0 limit 8 offset 100`)
	require.Equal(t, int64(9), results.TotalCount)
	require.Empty(t, results.Rows)
}

func TestExecuteFiltersUnreadableRows(t *testing.T) {
	f := newExecutorFixture(t)

	results := f.run(t, f.bob, `from dataset`)
	require.Equal(t, int64(0), results.TotalCount)
	require.Empty(t, results.Rows)
}

func TestExecuteUnregisteredAttributeMatchesNothing(t *testing.T) {
	f := newExecutorFixture(t)

	results := f.run(t, f.alice, `from dataset where neverUsed == 1`)
	require.Equal(t, int64(0), results.TotalCount)
	require.Empty(t, results.Rows)
}

func TestExecuteBlobConditionRejected(t *testing.T) {
	f := newExecutorFixture(t)

	annos := model.NewAnnotations()
	annos.ETag = model.ETagInitial
	annos.AddBlob("payload", []byte{1, 2, 3})
	validator := registry.NewValidator(f.registry)
	err := f.store.Update(context.Background(), func(tx *store.Tx) error {
		if err := validator.Validate(tx, annos); err != nil {
			return err
		}
		return tx.PutAnnotations(f.datasets[0], annos)
	})
	require.NoError(t, err)

	plan, err := NewTranslator(Bounds{}).Translate(`from dataset where payload == 1`)
	require.NoError(t, err)
	_, err = f.executor.Execute(context.Background(), plan, f.alice)
	require.ErrorIs(t, err, model.ErrInvalidModel)
}

func TestExecutePrimaryFieldCondition(t *testing.T) {
	f := newExecutorFixture(t)

	results := f.run(t, f.alice, `from dataset where name == "ds-3"`)
	require.Equal(t, int64(1), results.TotalCount)
	require.Len(t, results.Rows, 1)
	require.Equal(t, "ds-3", results.Rows[0]["name"])
}

func TestExecuteDefaultSortAscendingByID(t *testing.T) {
	f := newExecutorFixture(t)

	results := f.run(t, f.alice, `from dataset`)
	require.Equal(t, int64(10), results.TotalCount)
	require.Len(t, results.Rows, 10)
	for i, id := range f.datasets {
		require.Equal(t, id, results.Rows[i]["id"])
	}
}

func TestExecuteRowMergesAnnotations(t *testing.T) {
	f := newExecutorFixture(t)

	results := f.run(t, f.alice, `from dataset where longKey == 3`)
	require.Len(t, results.Rows, 1)
	row := results.Rows[0]
	require.Equal(t, "ds-3", row["name"])
	require.Equal(t, []int64{3}, row["longKey"])
	require.Equal(t, []float64{126}, row["doubleKey"])
	require.Equal(t, f.rootID, row["benefactorId"])
	require.NotEmpty(t, row["eTag"])
}

func TestExecuteMultiValueMembership(t *testing.T) {
	f := newExecutorFixture(t)

	annos := model.NewAnnotations()
	annos.ETag = model.ETagInitial
	annos.AddLong("longKey", 3)
	annos.AddLong("longKey", 77)
	err := f.store.Update(context.Background(), func(tx *store.Tx) error {
		return tx.PutAnnotations(f.datasets[0], annos)
	})
	require.NoError(t, err)

	// Any value of a multi-valued attribute satisfies equality.
	results := f.run(t, f.alice, `from dataset where longKey == 77`)
	require.Equal(t, int64(1), results.TotalCount)
	require.Equal(t, "ds-0", results.Rows[0]["name"])
}
