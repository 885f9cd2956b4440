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
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/entityvault/services/repository/authz"
	"github.com/AleutianAI/entityvault/services/repository/model"
	"github.com/AleutianAI/entityvault/services/repository/registry"
	"github.com/AleutianAI/entityvault/services/repository/store"
)

var executorTracer = otel.Tracer("entityvault.repository.query")

// Row is one result row: the node's structural columns merged with its
// annotation attributes, keyed by field name.
type Row map[string]any

// Results carries one page of rows plus the total number of matches
// computed independently of the page window.
type Results struct {
	Rows       []Row
	TotalCount int64
}

// Executor runs validated plans against the store.
//
// The caller's authorization is not optional: a predicate equivalent to
// "the governing ACL grants READ to one of the user's groups" is ANDed
// into every plan before rows are considered.
//
// Thread Safety: stateless; safe for concurrent use.
type Executor struct {
	store    *store.Store
	registry *registry.Registry
	guard    *authz.Guard
}

// NewExecutor constructs an executor.
func NewExecutor(s *store.Store, r *registry.Registry, g *authz.Guard) *Executor {
	return &Executor{store: s, registry: r, guard: g}
}

// Execute runs a plan for a user and returns the requested page plus
// the total match count. The whole evaluation runs on one read
// snapshot.
//
// Comparator semantics follow the attribute's registered type: exact
// match and lexical ordering for strings, numeric ordering for longs
// and doubles, instant ordering for dates. A multi-valued attribute
// satisfies a condition when any of its values does, which gives
// equality conditions membership ("contains") semantics. Conditions on
// attributes no node has ever used match nothing.
func (e *Executor) Execute(ctx context.Context, plan *Plan, user *model.UserInfo) (*Results, error) {
	ctx, span := executorTracer.Start(ctx, "query.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("query.kind", string(plan.Kind)),
		attribute.Int("query.conditions", len(plan.Conditions)),
	)

	start := time.Now()
	results := &Results{}
	err := e.store.View(ctx, func(tx *store.Tx) error {
		matched, err := e.collectMatches(tx, plan, user)
		if err != nil {
			return err
		}
		results.TotalCount = int64(len(matched))

		if err := e.sortMatches(tx, plan, matched); err != nil {
			return err
		}

		page := window(matched, plan.Offset, plan.Limit)
		for _, n := range page {
			row, err := e.buildRow(tx, n)
			if err != nil {
				return err
			}
			results.Rows = append(results.Rows, row)
		}
		return nil
	})
	if err != nil {
		queriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	queriesTotal.WithLabelValues("ok").Inc()
	queryDuration.Observe(time.Since(start).Seconds())
	queryRowsReturned.Observe(float64(len(results.Rows)))
	return results, nil
}

// collectMatches scans nodes of the plan's kind, applying the caller's
// READ filter and every condition.
func (e *Executor) collectMatches(tx *store.Tx, plan *Plan, user *model.UserInfo) ([]*model.Node, error) {
	canRead := e.readPredicate(tx, user)

	var matched []*model.Node
	err := tx.ScanNodes(func(n *model.Node) error {
		if n.Kind != plan.Kind {
			return nil
		}
		ok, err := canRead(n)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for i := range plan.Conditions {
			hit, err := e.evalCondition(tx, n, &plan.Conditions[i])
			if err != nil {
				return err
			}
			if !hit {
				return nil
			}
		}
		cp := *n
		matched = append(matched, &cp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

// readPredicate builds the authorization filter, caching the decision
// per benefactor so a subtree costs one ACL read.
func (e *Executor) readPredicate(tx *store.Tx, user *model.UserInfo) func(*model.Node) (bool, error) {
	cache := make(map[string]bool)
	return func(n *model.Node) (bool, error) {
		if v, ok := cache[n.BenefactorID]; ok {
			return v, nil
		}
		acl, err := tx.GetACL(n.BenefactorID)
		if errors.Is(err, model.ErrNotFound) {
			// Stale benefactor pointer; fall back to the chain walk.
			benefactor, rerr := e.guard.ResolveBenefactor(tx, n.ID)
			if rerr != nil {
				return false, rerr
			}
			acl, err = tx.GetACL(benefactor)
		}
		if err != nil {
			return false, err
		}
		v := acl.Grants(user, model.AccessRead)
		cache[n.BenefactorID] = v
		return v, nil
	}
}

// evalCondition evaluates one condition against one node. The table
// qualifier, when present, is informational only; field names resolve
// against the primary columns first and the annotation registry second.
func (e *Executor) evalCondition(tx *store.Tx, n *model.Node, c *Condition) (bool, error) {
	if model.NodePrimaryFields[c.Field] {
		return evalPrimary(n, c)
	}

	t, ok, err := e.registry.TypeOf(tx, c.Field)
	if err != nil {
		return false, err
	}
	if !ok {
		// Never-used attribute: nothing can match it.
		return false, nil
	}
	if t == model.AnnotationBlob {
		return false, model.InvalidModelf("blob attribute %q cannot be used in a condition", c.Field)
	}

	row, err := tx.GetAttrRow(t, c.Field, n.ID)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	return evalAttrRow(row, t, c)
}

func evalPrimary(n *model.Node, c *Condition) (bool, error) {
	switch c.Field {
	case "id":
		return compareStringField(n.ID, c)
	case "name":
		return compareStringField(n.Name, c)
	case "description":
		return compareStringField(n.Description, c)
	case "nodeType":
		return compareStringField(string(n.Kind), c)
	case "parentId":
		parent := ""
		if n.ParentID != nil {
			parent = *n.ParentID
		}
		return compareStringField(parent, c)
	case "benefactorId":
		return compareStringField(n.BenefactorID, c)
	case "createdBy":
		return compareStringField(n.CreatedBy, c)
	case "modifiedBy":
		return compareStringField(n.ModifiedBy, c)
	case "createdOn":
		return compareDateField(n.CreatedOn, c)
	case "modifiedOn":
		return compareDateField(n.ModifiedOn, c)
	case "eTag":
		v, err := n.ETagValue()
		if err != nil {
			return false, model.StorageErr("parse stored eTag", err)
		}
		return compareNumericField(float64(v), c)
	case "currentRevisionNumber":
		return compareNumericField(float64(n.CurrentRevision), c)
	default:
		return false, model.InvalidModelf("unknown primary field %q", c.Field)
	}
}

func compareStringField(v string, c *Condition) (bool, error) {
	lit, err := literalAsString(&c.Value)
	if err != nil {
		return false, err
	}
	return compareStrings(v, lit, c.Comp), nil
}

func compareNumericField(v float64, c *Condition) (bool, error) {
	lit, err := literalAsFloat(&c.Value)
	if err != nil {
		return false, err
	}
	return compareFloats(v, lit, c.Comp), nil
}

func compareDateField(v time.Time, c *Condition) (bool, error) {
	lit, err := literalAsMillis(&c.Value)
	if err != nil {
		return false, err
	}
	return compareFloats(float64(v.UnixMilli()), float64(lit), c.Comp), nil
}

// evalAttrRow applies the condition to every value of the row; any hit
// satisfies it.
func evalAttrRow(row *store.AttrRow, t model.AnnotationType, c *Condition) (bool, error) {
	switch t {
	case model.AnnotationString:
		lit, err := literalAsString(&c.Value)
		if err != nil {
			return false, err
		}
		for _, v := range row.Strings {
			if compareStrings(v, lit, c.Comp) {
				return true, nil
			}
		}
	case model.AnnotationLong:
		lit, err := literalAsFloat(&c.Value)
		if err != nil {
			return false, err
		}
		for _, v := range row.Longs {
			if compareFloats(float64(v), lit, c.Comp) {
				return true, nil
			}
		}
	case model.AnnotationDouble:
		lit, err := literalAsFloat(&c.Value)
		if err != nil {
			return false, err
		}
		for _, v := range row.Doubles {
			if compareFloats(v, lit, c.Comp) {
				return true, nil
			}
		}
	case model.AnnotationDate:
		lit, err := literalAsMillis(&c.Value)
		if err != nil {
			return false, err
		}
		for _, v := range row.Dates {
			if compareFloats(float64(v), float64(lit), c.Comp) {
				return true, nil
			}
		}
	}
	return false, nil
}

func literalAsString(l *Literal) (string, error) {
	switch l.Kind {
	case LiteralString:
		return l.Str, nil
	case LiteralLong:
		return strconv.FormatInt(l.Long, 10), nil
	case LiteralDouble:
		return strconv.FormatFloat(l.Dbl, 'g', -1, 64), nil
	}
	return "", model.InvalidModelf("unsupported literal kind")
}

func literalAsFloat(l *Literal) (float64, error) {
	switch l.Kind {
	case LiteralLong:
		return float64(l.Long), nil
	case LiteralDouble:
		return l.Dbl, nil
	case LiteralString:
		return 0, model.InvalidModelf("cannot compare a numeric field with the string %q", l.Str)
	}
	return 0, model.InvalidModelf("unsupported literal kind")
}

// literalAsMillis coerces a literal for a date comparison: a long is
// epoch millis, a string is an RFC3339 timestamp.
func literalAsMillis(l *Literal) (int64, error) {
	switch l.Kind {
	case LiteralLong:
		return l.Long, nil
	case LiteralDouble:
		return int64(l.Dbl), nil
	case LiteralString:
		dt, err := strfmt.ParseDateTime(l.Str)
		if err != nil {
			return 0, model.InvalidModelf("cannot parse %q as a date: %v", l.Str, err)
		}
		return time.Time(dt).UnixMilli(), nil
	}
	return 0, model.InvalidModelf("unsupported literal kind")
}

func compareStrings(a, b string, c Comparator) bool {
	cmp := strings.Compare(a, b)
	return cmpMatches(cmp, c)
}

func compareFloats(a, b float64, c Comparator) bool {
	cmp := 0
	switch {
	case a < b:
		cmp = -1
	case a > b:
		cmp = 1
	}
	return cmpMatches(cmp, c)
}

func cmpMatches(cmp int, c Comparator) bool {
	switch c {
	case CompEquals:
		return cmp == 0
	case CompNotEquals:
		return cmp != 0
	case CompGreater:
		return cmp > 0
	case CompLess:
		return cmp < 0
	case CompGreaterEquals:
		return cmp >= 0
	case CompLessEquals:
		return cmp <= 0
	}
	return false
}

// sortMatches orders matched nodes per the plan's sort, defaulting to a
// stable ascending order by numeric id. Nodes missing the sort value
// order first ascending.
func (e *Executor) sortMatches(tx *store.Tx, plan *Plan, matched []*model.Node) error {
	if plan.Sort == nil {
		sort.SliceStable(matched, func(i, j int) bool {
			return idLess(matched[i].ID, matched[j].ID)
		})
		return nil
	}

	keys := make(map[string]sortKey, len(matched))
	for _, n := range matched {
		k, err := e.sortKeyFor(tx, plan.Sort.Field, n)
		if err != nil {
			return err
		}
		keys[n.ID] = k
	}

	sort.SliceStable(matched, func(i, j int) bool {
		less := keys[matched[i].ID].less(keys[matched[j].ID])
		if plan.Sort.Ascending {
			return less
		}
		return keys[matched[j].ID].less(keys[matched[i].ID])
	})
	return nil
}

type sortKey struct {
	present bool
	numeric bool
	num     float64
	str     string
}

func (a sortKey) less(b sortKey) bool {
	if a.present != b.present {
		return !a.present
	}
	if a.numeric && b.numeric {
		return a.num < b.num
	}
	return a.str < b.str
}

func (e *Executor) sortKeyFor(tx *store.Tx, field string, n *model.Node) (sortKey, error) {
	if model.NodePrimaryFields[field] {
		switch field {
		case "id":
			return numericIDKey(n.ID), nil
		case "name":
			return sortKey{present: true, str: n.Name}, nil
		case "description":
			return sortKey{present: true, str: n.Description}, nil
		case "nodeType":
			return sortKey{present: true, str: string(n.Kind)}, nil
		case "createdBy":
			return sortKey{present: true, str: n.CreatedBy}, nil
		case "modifiedBy":
			return sortKey{present: true, str: n.ModifiedBy}, nil
		case "createdOn":
			return sortKey{present: true, numeric: true, num: float64(n.CreatedOn.UnixMilli())}, nil
		case "modifiedOn":
			return sortKey{present: true, numeric: true, num: float64(n.ModifiedOn.UnixMilli())}, nil
		case "currentRevisionNumber":
			return sortKey{present: true, numeric: true, num: float64(n.CurrentRevision)}, nil
		default:
			return sortKey{present: true, str: n.ID}, nil
		}
	}

	t, ok, err := e.registry.TypeOf(tx, field)
	if err != nil || !ok {
		return sortKey{}, err
	}
	row, err := tx.GetAttrRow(t, field, n.ID)
	if err != nil || row == nil {
		return sortKey{}, err
	}
	switch t {
	case model.AnnotationString:
		if len(row.Strings) > 0 {
			return sortKey{present: true, str: row.Strings[0]}, nil
		}
	case model.AnnotationLong:
		if len(row.Longs) > 0 {
			return sortKey{present: true, numeric: true, num: float64(row.Longs[0])}, nil
		}
	case model.AnnotationDouble:
		if len(row.Doubles) > 0 {
			return sortKey{present: true, numeric: true, num: row.Doubles[0]}, nil
		}
	case model.AnnotationDate:
		if len(row.Dates) > 0 {
			return sortKey{present: true, numeric: true, num: float64(row.Dates[0])}, nil
		}
	}
	return sortKey{}, nil
}

func numericIDKey(id string) sortKey {
	if v, err := strconv.ParseInt(id, 10, 64); err == nil {
		return sortKey{present: true, numeric: true, num: float64(v)}
	}
	return sortKey{present: true, str: id}
}

func idLess(a, b string) bool {
	return numericIDKey(a).less(numericIDKey(b))
}

func window(matched []*model.Node, offset, limit int64) []*model.Node {
	if offset >= int64(len(matched)) {
		return nil
	}
	end := offset + limit
	if end > int64(len(matched)) || end < 0 {
		end = int64(len(matched))
	}
	return matched[offset:end]
}

// buildRow merges a node's structural columns with its annotation
// attributes into one flat row.
func (e *Executor) buildRow(tx *store.Tx, n *model.Node) (Row, error) {
	row := Row{
		"id":                    n.ID,
		"name":                  n.Name,
		"nodeType":              string(n.Kind),
		"benefactorId":          n.BenefactorID,
		"createdBy":             n.CreatedBy,
		"createdOn":             n.CreatedOn,
		"modifiedBy":            n.ModifiedBy,
		"modifiedOn":            n.ModifiedOn,
		"eTag":                  n.ETag,
		"currentRevisionNumber": n.CurrentRevision,
	}
	if n.Description != "" {
		row["description"] = n.Description
	}
	if n.ParentID != nil {
		row["parentId"] = *n.ParentID
	}

	annos, err := tx.GetAnnotations(n.ID)
	if err != nil {
		return nil, err
	}
	for name, vals := range annos.Strings {
		row[name] = vals
	}
	for name, vals := range annos.Longs {
		row[name] = vals
	}
	for name, vals := range annos.Doubles {
		row[name] = vals
	}
	for name, vals := range annos.Dates {
		row[name] = vals
	}
	for name, vals := range annos.Blobs {
		row[name] = vals
	}
	return row, nil
}
