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
	"strconv"
	"strings"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

// Translator parses query strings into validated plans.
//
// Thread Safety: stateless; safe for concurrent use.
type Translator struct {
	bounds Bounds
}

// NewTranslator constructs a translator with the given pagination
// bounds.
func NewTranslator(bounds Bounds) *Translator {
	return &Translator{bounds: bounds}
}

// Translate parses a query string into a Plan.
//
// # Outputs
//
//   - *Plan: the validated plan with defaults applied.
//   - error: *ParseError for lexical/syntactic failures (including any
//     combinator other than and); ErrInvalidModel for an unknown entity
//     kind or out-of-bounds pagination values.
func (t *Translator) Translate(input string) (*Plan, error) {
	p := &parser{lex: newLexer(input)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	plan, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !model.ValidKind(plan.Kind) {
		return nil, model.InvalidModelf("unknown entity kind %q", plan.Kind)
	}
	if err := validatePagination(plan.Limit, plan.Offset, t.bounds); err != nil {
		return nil, err
	}
	return plan, nil
}

// parser is a single-lookahead recursive descent over the token stream.
type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// keyword reports whether the current token is the given keyword.
// Keywords are matched case-insensitively.
func (p *parser) keyword(kw string) bool {
	return p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.keyword(kw) {
		return parseErrorf(p.tok.pos, "encountered %q but was expecting %q", p.tok.text, kw)
	}
	return p.advance()
}

func (p *parser) parseQuery() (*Plan, error) {
	plan := &Plan{
		Limit:  DefaultLimit,
		Offset: DefaultOffset,
	}

	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, parseErrorf(p.tok.pos, "expecting an entity kind after \"from\"")
	}
	plan.Kind = model.EntityKind(strings.ToLower(p.tok.text))
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.keyword("where") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.parseConditions(plan); err != nil {
			return nil, err
		}
	}

	if p.keyword("order") {
		if err := p.parseOrderBy(plan); err != nil {
			return nil, err
		}
	}

	if p.keyword("limit") {
		v, err := p.parsePaginationValue("limit")
		if err != nil {
			return nil, err
		}
		plan.Limit = v
	}

	if p.keyword("offset") {
		v, err := p.parsePaginationValue("offset")
		if err != nil {
			return nil, err
		}
		plan.Offset = v
	}

	if p.tok.kind != tokEOF {
		return nil, parseErrorf(p.tok.pos, "encountered %q but was expecting end of query", p.tok.text)
	}
	return plan, nil
}

func (p *parser) parseConditions(plan *Plan) error {
	for {
		cond, err := p.parseCondition()
		if err != nil {
			return err
		}
		plan.Conditions = append(plan.Conditions, *cond)

		if p.keyword("and") {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		// Only the and combinator exists in this grammar. Name or
		// explicitly so the message explains itself.
		if p.keyword("or") {
			return parseErrorf(p.tok.pos, "the \"or\" combinator is not supported, only \"and\"")
		}
		return nil
	}
}

func (p *parser) parseCondition() (*Condition, error) {
	table, field, err := p.parseCompoundID()
	if err != nil {
		return nil, err
	}

	if p.tok.kind != tokComparator {
		return nil, parseErrorf(p.tok.pos, "encountered %q but was expecting a comparator", p.tok.text)
	}
	comp := Comparator(p.tok.text)
	if err := p.advance(); err != nil {
		return nil, err
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &Condition{Table: table, Field: field, Comp: comp, Value: *lit}, nil
}

// parseCompoundID parses field or table.field.
func (p *parser) parseCompoundID() (table, field string, err error) {
	if p.tok.kind != tokIdent {
		return "", "", parseErrorf(p.tok.pos, "encountered %q but was expecting a field name", p.tok.text)
	}
	first := p.tok.text
	if err := p.advance(); err != nil {
		return "", "", err
	}
	if p.tok.kind != tokDot {
		return "", first, nil
	}
	if err := p.advance(); err != nil {
		return "", "", err
	}
	if p.tok.kind != tokIdent {
		return "", "", parseErrorf(p.tok.pos, "expecting a field name after %q.", first)
	}
	second := p.tok.text
	if err := p.advance(); err != nil {
		return "", "", err
	}
	return first, second, nil
}

func (p *parser) parseLiteral() (*Literal, error) {
	switch p.tok.kind {
	case tokString:
		lit := &Literal{Kind: LiteralString, Str: p.tok.text}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return lit, nil
	case tokNumber:
		text := p.tok.text
		pos := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return &Literal{Kind: LiteralLong, Long: v}, nil
		}
		if v, err := strconv.ParseFloat(text, 64); err == nil {
			return &Literal{Kind: LiteralDouble, Dbl: v}, nil
		}
		return nil, parseErrorf(pos, "malformed numeric literal %q", text)
	default:
		return nil, parseErrorf(p.tok.pos, "encountered %q but was expecting a literal value", p.tok.text)
	}
}

func (p *parser) parseOrderBy(plan *Plan) error {
	if err := p.expectKeyword("order"); err != nil {
		return err
	}
	if err := p.expectKeyword("by"); err != nil {
		return err
	}
	table, field, err := p.parseCompoundID()
	if err != nil {
		return err
	}
	sort := &Sort{Table: table, Field: field, Ascending: true}
	if p.keyword("asc") {
		if err := p.advance(); err != nil {
			return err
		}
	} else if p.keyword("desc") {
		sort.Ascending = false
		if err := p.advance(); err != nil {
			return err
		}
	}
	plan.Sort = sort
	return nil
}

func (p *parser) parsePaginationValue(kw string) (int64, error) {
	if err := p.advance(); err != nil { // consume the keyword
		return 0, err
	}
	if p.tok.kind != tokNumber {
		return 0, parseErrorf(p.tok.pos, "expecting an integer after %q", kw)
	}
	v, err := strconv.ParseInt(p.tok.text, 10, 64)
	if err != nil {
		return 0, parseErrorf(p.tok.pos, "%s value %q is not an integer", kw, p.tok.text)
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return v, nil
}
