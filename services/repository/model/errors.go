// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every repository layer. Callers branch with
// errors.Is; no layer dispatches on concrete error types.
var (
	// ErrNotFound indicates the id does not resolve to a stored entity.
	// Terminal; surfaced as-is.
	ErrNotFound = errors.New("entity not found")

	// ErrUnauthorized indicates the caller lacks the required access
	// type on the governing ACL. Terminal; never retried. This is kept
	// distinct from ErrNotFound: the service reports Unauthorized for
	// nodes that exist but are not readable.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflictingUpdate indicates a version-token mismatch. The
	// caller is expected to re-fetch and retry; the core never retries
	// on its own.
	ErrConflictingUpdate = errors.New("entity was updated since it was last fetched")

	// ErrInvalidModel indicates a caller error: a missing required
	// field, an attribute/type conflict, or a malformed etag pairing.
	// Terminal.
	ErrInvalidModel = errors.New("invalid model")

	// ErrStorage indicates a failure of the underlying store. Fatal for
	// the request; propagated unchanged, never partially committed.
	ErrStorage = errors.New("storage failure")
)

// InvalidModelf builds an ErrInvalidModel with detail.
func InvalidModelf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidModel, fmt.Sprintf(format, args...))
}

// Unauthorizedf builds an ErrUnauthorized with detail.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// StorageErr wraps a storage-engine failure into the taxonomy while
// keeping the cause inspectable through errors.Is/As.
func StorageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
