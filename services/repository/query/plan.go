// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query parses and executes the repository's little query
// language:
//
//	from <kind> [where <cond> (and <cond>)*]
//	            [order by <field> [asc|desc]] [limit <n>] [offset <n>]
//	cond := [table.]field (== | != | > | < | >= | <=) literal
//
// Only the and combinator is accepted; or is a parse error. The parser
// is a hand-written recursive descent over a small lexer and produces a
// validated Plan; execution merges node columns with the typed
// annotation tables under the caller's authorization filter.
package query

import (
	"fmt"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

// DefaultLimit is the limit applied when a query names none. Queries
// are expected to default to "all"; this sentinel is effectively
// unbounded, not a business limit.
const DefaultLimit int64 = 50000000

// DefaultOffset is the offset applied when a query names none.
const DefaultOffset int64 = 0

// ParseError reports a lexical or syntactic failure with a
// human-readable reason and the byte position it was noticed at.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Msg)
}

func parseErrorf(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Comparator is one of the six comparison operators of the grammar.
type Comparator string

const (
	CompEquals        Comparator = "=="
	CompNotEquals     Comparator = "!="
	CompGreater       Comparator = ">"
	CompLess          Comparator = "<"
	CompGreaterEquals Comparator = ">="
	CompLessEquals    Comparator = "<="
)

// LiteralKind discriminates the typed literal of a condition.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralLong
	LiteralDouble
)

// Literal is a typed constant from the query text. Date-typed
// comparisons coerce at execution time: a long literal is epoch millis,
// a string literal an RFC3339 timestamp.
type Literal struct {
	Kind LiteralKind
	Str  string
	Long int64
	Dbl  float64
}

// Condition is one predicate: (table?, field, comparator, literal).
// Conditions are combined with and only.
type Condition struct {
	Table string
	Field string
	Comp  Comparator
	Value Literal
}

// Sort is the optional ordering of a plan.
type Sort struct {
	Table     string
	Field     string
	Ascending bool
}

// Plan is the structured, validated form of a query, ready for the
// executor.
type Plan struct {
	Kind       model.EntityKind
	Conditions []Condition
	Sort       *Sort
	Limit      int64
	Offset     int64
}

// Bounds configures pagination validation for the translator. Values
// outside the bounds are rejected, never clamped.
type Bounds struct {
	// MaxLimit is the largest acceptable limit. Zero means DefaultLimit.
	MaxLimit int64
}

func (b Bounds) maxLimit() int64 {
	if b.MaxLimit <= 0 {
		return DefaultLimit
	}
	return b.MaxLimit
}

// validatePagination rejects negative offsets and non-positive or
// over-bound limits with ErrInvalidModel; the query parsed fine, the
// caller asked for an unservable window.
func validatePagination(limit, offset int64, b Bounds) error {
	if offset < 0 {
		return model.InvalidModelf("pagination offset must not be negative, got %d", offset)
	}
	if limit < 1 {
		return model.InvalidModelf("pagination limit must be 1 or greater, got %d", limit)
	}
	if limit > b.maxLimit() {
		return model.InvalidModelf("pagination limit must not exceed %d, got %d", b.maxLimit(), limit)
	}
	return nil
}
