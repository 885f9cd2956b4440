// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/entityvault/services/repository/model"
	storage "github.com/AleutianAI/entityvault/services/repository/storage/badger"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	s, err := store.New(db, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
		_ = db.Close()
	})
	return s
}

func TestAddNewTypeFirstWriterWins(t *testing.T) {
	s := newTestStore(t)
	r := NewRegistry()
	ctx := context.Background()

	err := s.Update(ctx, func(tx *store.Tx) error {
		return r.AddNewType(tx, "age", model.AnnotationLong)
	})
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}

	// Re-registering the same binding is a no-op.
	err = s.Update(ctx, func(tx *store.Tx) error {
		return r.AddNewType(tx, "age", model.AnnotationLong)
	})
	if err != nil {
		t.Fatalf("idempotent registration: %v", err)
	}

	// A different type for the same name is rejected, globally.
	err = s.Update(ctx, func(tx *store.Tx) error {
		return r.AddNewType(tx, "age", model.AnnotationString)
	})
	if !errors.Is(err, model.ErrInvalidModel) {
		t.Fatalf("conflicting registration: got %v, want ErrInvalidModel", err)
	}

	err = s.View(ctx, func(tx *store.Tx) error {
		typ, ok, err := r.TypeOf(tx, "age")
		if err != nil {
			return err
		}
		if !ok || typ != model.AnnotationLong {
			t.Errorf("TypeOf(age) = %v, %v; want long", typ, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestAddNewTypeConcurrentFirstUse(t *testing.T) {
	s := newTestStore(t)
	r := NewRegistry()
	ctx := context.Background()

	// Both transactions open before either commits, so the loser's
	// snapshot predates the winner's write and its commit conflicts at
	// the engine level. First writer wins; the loser must still come
	// back as "already registered", never as a failure.
	const writers = 2
	ready := make(chan struct{}, writers)
	release := make(chan struct{})
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			first := true
			errs <- s.Update(ctx, func(tx *store.Tx) error {
				if first {
					first = false
					ready <- struct{}{}
					<-release
				}
				return r.AddNewType(tx, "age", model.AnnotationLong)
			})
		}()
	}
	for i := 0; i < writers; i++ {
		<-ready
	}
	close(release)
	for i := 0; i < writers; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent first registration: %v", err)
		}
	}

	err := s.View(ctx, func(tx *store.Tx) error {
		typ, ok, err := r.TypeOf(tx, "age")
		if err != nil {
			return err
		}
		if !ok || typ != model.AnnotationLong {
			t.Errorf("TypeOf(age) = %v, %v; want long", typ, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestTypeOfUnregistered(t *testing.T) {
	s := newTestStore(t)
	r := NewRegistry()

	err := s.View(context.Background(), func(tx *store.Tx) error {
		_, ok, err := r.TypeOf(tx, "never-seen")
		if err != nil {
			return err
		}
		if ok {
			t.Error("unregistered attribute should not resolve")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestValidatorRegistersEveryBucket(t *testing.T) {
	s := newTestStore(t)
	r := NewRegistry()
	v := NewValidator(r)
	ctx := context.Background()

	annos := model.NewAnnotations()
	annos.ETag = "0"
	annos.AddString("species", "gopher")
	annos.AddLong("age", 3)
	annos.AddDouble("score", 9.5)
	annos.AddDate("born", time.Now())
	annos.AddBlob("raw", []byte{1, 2, 3})

	err := s.Update(ctx, func(tx *store.Tx) error {
		return v.Validate(tx, annos)
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	want := map[string]model.AnnotationType{
		"species": model.AnnotationString,
		"age":     model.AnnotationLong,
		"score":   model.AnnotationDouble,
		"born":    model.AnnotationDate,
		"raw":     model.AnnotationBlob,
	}
	err = s.View(ctx, func(tx *store.Tx) error {
		for name, wantType := range want {
			typ, ok, err := r.TypeOf(tx, name)
			if err != nil {
				return err
			}
			if !ok || typ != wantType {
				t.Errorf("TypeOf(%s) = %v, %v; want %v", name, typ, ok, wantType)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestValidatorRejectsConflictingBucket(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(NewRegistry())
	ctx := context.Background()

	first := model.NewAnnotations()
	first.ETag = "0"
	first.AddLong("age", 3)
	if err := s.Update(ctx, func(tx *store.Tx) error {
		return v.Validate(tx, first)
	}); err != nil {
		t.Fatalf("first validate: %v", err)
	}

	second := model.NewAnnotations()
	second.ETag = "1"
	second.AddString("age", "three")
	err := s.Update(ctx, func(tx *store.Tx) error {
		return v.Validate(tx, second)
	})
	if !errors.Is(err, model.ErrInvalidModel) {
		t.Fatalf("conflicting validate: got %v, want ErrInvalidModel", err)
	}
}

func TestValidatorRequiresETag(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(NewRegistry())

	annos := model.NewAnnotations()
	annos.AddString("species", "gopher")
	err := s.Update(context.Background(), func(tx *store.Tx) error {
		return v.Validate(tx, annos)
	})
	if !errors.Is(err, model.ErrInvalidModel) {
		t.Fatalf("missing etag: got %v, want ErrInvalidModel", err)
	}
}

func TestValidatorRejectsNil(t *testing.T) {
	s := newTestStore(t)
	v := NewValidator(NewRegistry())

	err := s.Update(context.Background(), func(tx *store.Tx) error {
		return v.Validate(tx, nil)
	})
	if !errors.Is(err, model.ErrInvalidModel) {
		t.Fatalf("nil annotations: got %v, want ErrInvalidModel", err)
	}
}
