// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqltext

import "fmt"

var leadingKeywords = map[string]bool{
	"SELECT": true,
	"WITH":   true,
	"INSERT": true,
	"UPDATE": true,
	"DELETE": true,
	"VALUES": true,
	"TABLE":  true,
	"MERGE":  true,
}

// Words a complete statement cannot end on.
var danglingWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "JOIN": true, "ON": true,
	"AND": true, "OR": true, "NOT": true, "SET": true, "BY": true, "AS": true,
	"INTO": true, "VALUES": true, "HAVING": true, "UNION": true, "USING": true,
	"LIMIT": true, "OFFSET": true, "WITH": true, "IN": true, "CASE": true,
	"WHEN": true, "THEN": true, "ELSE": true, "LIKE": true, "IS": true,
}

// CheckSyntax performs a local structural check of a single DML statement.
// It catches what can be decided without a server round trip: unterminated
// literals, unbalanced brackets, multiple statements, a missing leading
// keyword and statements cut off mid-clause. A nil result does not mean the
// server will accept the statement.
func CheckSyntax(sql string) error {
	tokens, err := Tokenize(sql)
	if err != nil {
		return err
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].Is(";") {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return &SyntaxError{Pos: 0, Reason: "empty statement"}
	}

	first := 0
	for first < len(tokens) && tokens[first].Is("(") {
		first++
	}
	if first >= len(tokens) || !leadingKeywords[tokens[first].Upper()] {
		return &SyntaxError{Pos: tokens[0].Pos, Reason: fmt.Sprintf("statement must start with SELECT, WITH, INSERT, UPDATE, DELETE, VALUES, TABLE or MERGE, got %q", tokens[min(first, len(tokens)-1)].Text)}
	}

	var stack []Token
	for _, t := range tokens {
		switch {
		case t.Is(";"):
			return &SyntaxError{Pos: t.Pos, Reason: "multiple statements are not supported"}
		case t.Is("(") || t.Is("["):
			stack = append(stack, t)
		case t.Is(")") || t.Is("]"):
			want := "("
			if t.Text == "]" {
				want = "["
			}
			if len(stack) == 0 || stack[len(stack)-1].Text != want {
				return &SyntaxError{Pos: t.Pos, Reason: fmt.Sprintf("unbalanced %q", t.Text)}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return &SyntaxError{Pos: open.Pos, Reason: fmt.Sprintf("unclosed %q", open.Text)}
	}

	last := tokens[len(tokens)-1]
	if danglingWords[last.Upper()] || last.Is(",") || last.Is(".") || (last.Kind == Operator && last.Text != "*") {
		return &SyntaxError{Pos: last.Pos, Reason: fmt.Sprintf("statement ends unexpectedly after %q", last.Text)}
	}
	return nil
}
