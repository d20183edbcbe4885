// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqltext provides a lexical view of a SQL statement: a tokenizer that
// understands PostgreSQL quoting rules, extraction of the tables a statement
// references, and a cheap local syntax check run before the server is asked.
package sqltext

import (
	"fmt"
	"strings"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	Word TokenKind = iota
	QuotedIdent
	String
	Number
	Param
	Operator
	Punct
)

func (k TokenKind) String() string {
	switch k {
	case Word:
		return "word"
	case QuotedIdent:
		return "quoted identifier"
	case String:
		return "string"
	case Number:
		return "number"
	case Param:
		return "parameter"
	case Operator:
		return "operator"
	case Punct:
		return "punctuation"
	}
	return "unknown"
}

// Token is one lexical unit of a statement.
type Token struct {
	Kind TokenKind
	// Text is the token as written, quotes included.
	Text string
	// Pos is the byte offset of the token in the input.
	Pos int
	// SpaceBefore reports whether whitespace or a comment preceded the token.
	SpaceBefore bool
}

// Upper returns the upper-cased text of a Word token, or "" for anything else.
func (t Token) Upper() string {
	if t.Kind != Word {
		return ""
	}
	return strings.ToUpper(t.Text)
}

// Is reports whether t is the punctuation or operator s.
func (t Token) Is(s string) bool {
	return (t.Kind == Punct || t.Kind == Operator) && t.Text == s
}

// Ident returns the identifier value of a Word or QuotedIdent token using
// PostgreSQL case folding: unquoted names fold to lower case, quoted names
// keep their case with doubled quotes collapsed.
func (t Token) Ident() string {
	switch t.Kind {
	case Word:
		return strings.ToLower(t.Text)
	case QuotedIdent:
		inner := t.Text[1 : len(t.Text)-1]
		return strings.ReplaceAll(inner, `""`, `"`)
	}
	return ""
}

// SyntaxError reports a lexical or structural problem found locally.
type SyntaxError struct {
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Reason)
}

const operatorChars = "+-*/<>=~!@#%^&|`?:"

// Tokenize splits sql into tokens. Whitespace and comments are dropped.
// Unterminated strings, quoted identifiers, dollar quotes and block comments
// are reported as *SyntaxError.
func Tokenize(sql string) ([]Token, error) {
	var tokens []Token
	space := false
	i := 0
	n := len(sql)

	emit := func(kind TokenKind, start, end int) {
		tokens = append(tokens, Token{Kind: kind, Text: sql[start:end], Pos: start, SpaceBefore: space})
		space = false
	}

	for i < n {
		ch := sql[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f':
			space = true
			i++

		case ch == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}
			space = true

		case ch == '/' && i+1 < n && sql[i+1] == '*':
			end, err := skipBlockComment(sql, i)
			if err != nil {
				return nil, err
			}
			i = end
			space = true

		case ch == '\'':
			end, err := scanQuoted(sql, i, '\'', false)
			if err != nil {
				return nil, err
			}
			emit(String, i, end)
			i = end

		case (ch == 'E' || ch == 'e') && i+1 < n && sql[i+1] == '\'':
			end, err := scanQuoted(sql, i+1, '\'', true)
			if err != nil {
				return nil, err
			}
			emit(String, i, end)
			i = end

		case ch == '"':
			end, err := scanQuoted(sql, i, '"', false)
			if err != nil {
				return nil, err
			}
			emit(QuotedIdent, i, end)
			i = end

		case ch == '$':
			if i+1 < n && isDigit(sql[i+1]) {
				j := i + 1
				for j < n && isDigit(sql[j]) {
					j++
				}
				emit(Param, i, j)
				i = j
				continue
			}
			end, ok, err := scanDollarQuoted(sql, i)
			if err != nil {
				return nil, err
			}
			if !ok {
				emit(Operator, i, i+1)
				i++
				continue
			}
			emit(String, i, end)
			i = end

		case isDigit(ch) || (ch == '.' && i+1 < n && isDigit(sql[i+1])):
			j := scanNumber(sql, i)
			emit(Number, i, j)
			i = j

		case isIdentStart(ch):
			j := i + 1
			for j < n && isIdentPart(sql[j]) {
				j++
			}
			emit(Word, i, j)
			i = j

		case strings.IndexByte("(),;[].", ch) >= 0:
			emit(Punct, i, i+1)
			i++

		case strings.IndexByte(operatorChars, ch) >= 0:
			j := i + 1
			for j < n && strings.IndexByte(operatorChars, sql[j]) >= 0 {
				// a comment start ends the operator
				if (sql[j] == '-' && j+1 < n && sql[j+1] == '-') || (sql[j] == '/' && j+1 < n && sql[j+1] == '*') {
					break
				}
				j++
			}
			emit(Operator, i, j)
			i = j

		default:
			return nil, &SyntaxError{Pos: i, Reason: fmt.Sprintf("unexpected character %q", ch)}
		}
	}
	return tokens, nil
}

func skipBlockComment(sql string, start int) (int, error) {
	depth := 0
	i := start
	for i < len(sql) {
		switch {
		case sql[i] == '/' && i+1 < len(sql) && sql[i+1] == '*':
			depth++
			i += 2
		case sql[i] == '*' && i+1 < len(sql) && sql[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i, nil
			}
		default:
			i++
		}
	}
	return 0, &SyntaxError{Pos: start, Reason: "unterminated block comment"}
}

// scanQuoted returns the offset just past the closing quote. A doubled quote
// is an escaped quote. With backslash set, a backslash escapes the next byte.
func scanQuoted(sql string, start int, quote byte, backslash bool) (int, error) {
	i := start + 1
	for i < len(sql) {
		c := sql[i]
		if backslash && c == '\\' {
			i += 2
			continue
		}
		if c == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	what := "string literal"
	if quote == '"' {
		what = "quoted identifier"
	}
	return 0, &SyntaxError{Pos: start, Reason: "unterminated " + what}
}

// scanDollarQuoted handles $tag$...$tag$ bodies. ok is false when the dollar
// sign does not open a dollar quote.
func scanDollarQuoted(sql string, start int) (end int, ok bool, err error) {
	j := start + 1
	for j < len(sql) && isIdentPart(sql[j]) && sql[j] != '$' {
		j++
	}
	if j >= len(sql) || sql[j] != '$' {
		return 0, false, nil
	}
	tag := sql[start : j+1]
	idx := strings.Index(sql[j+1:], tag)
	if idx < 0 {
		return 0, false, &SyntaxError{Pos: start, Reason: "unterminated dollar-quoted string"}
	}
	return j + 1 + idx + len(tag), true, nil
}

func scanNumber(sql string, i int) int {
	n := len(sql)
	for i < n && (isDigit(sql[i]) || sql[i] == '_') {
		i++
	}
	if i < n && sql[i] == '.' && !(i+1 < n && sql[i+1] == '.') {
		i++
		for i < n && isDigit(sql[i]) {
			i++
		}
	}
	if i < n && (sql[i] == 'e' || sql[i] == 'E') {
		j := i + 1
		if j < n && (sql[j] == '+' || sql[j] == '-') {
			j++
		}
		if j < n && isDigit(sql[j]) {
			i = j
			for i < n && isDigit(sql[i]) {
				i++
			}
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
