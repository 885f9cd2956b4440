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
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString // quoted literal, value unescaped
	tokNumber // integer or float, classified by the parser
	tokComparator
	tokDot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer produces the token stream for the query grammar. Lexical
// failures surface as *ParseError, never as a generic error.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

// next returns the next token, consuming it.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	switch {
	case c == '"' || c == '\'':
		return l.lexQuoted(c)
	case c == '.':
		l.pos++
		return token{kind: tokDot, text: ".", pos: start}, nil
	case c == '=' || c == '!' || c == '<' || c == '>':
		return l.lexComparator()
	case c == '-' || unicode.IsDigit(rune(c)):
		return l.lexNumber()
	case isIdentStart(rune(c)):
		return l.lexIdent()
	default:
		return token{}, parseErrorf(start, "unexpected character %q", string(c))
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *lexer) lexQuoted(quote byte) (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == quote {
			l.pos++
			return token{kind: tokString, text: sb.String(), pos: start}, nil
		}
		if c == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			c = l.input[l.pos]
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, parseErrorf(start, "unterminated string literal")
}

func (l *lexer) lexComparator() (token, error) {
	start := l.pos
	one := l.input[l.pos]
	two := byte(0)
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos+1]
	}
	switch {
	case one == '=' && two == '=':
		l.pos += 2
		return token{kind: tokComparator, text: "==", pos: start}, nil
	case one == '!' && two == '=':
		l.pos += 2
		return token{kind: tokComparator, text: "!=", pos: start}, nil
	case one == '>' && two == '=':
		l.pos += 2
		return token{kind: tokComparator, text: ">=", pos: start}, nil
	case one == '<' && two == '=':
		l.pos += 2
		return token{kind: tokComparator, text: "<=", pos: start}, nil
	case one == '>':
		l.pos++
		return token{kind: tokComparator, text: ">", pos: start}, nil
	case one == '<':
		l.pos++
		return token{kind: tokComparator, text: "<", pos: start}, nil
	default:
		return token{}, parseErrorf(start, "malformed comparator starting with %q", string(one))
	}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	digits := 0
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if unicode.IsDigit(rune(c)) {
			digits++
			l.pos++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-' {
			// Part of a float form; strconv settles validity later.
			l.pos++
			continue
		}
		break
	}
	if digits == 0 {
		return token{}, parseErrorf(start, "malformed numeric literal")
	}
	return token{kind: tokNumber, text: l.input[start:l.pos], pos: start}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(rune(l.input[l.pos])) {
		l.pos++
	}
	return token{kind: tokIdent, text: l.input[start:l.pos], pos: start}, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
