// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqltext

import (
	"sort"
	"strings"
)

// TableRef names a relation referenced by a statement.
type TableRef struct {
	// Schema is empty when the reference is unqualified.
	Schema string
	Name   string
}

// String returns the reference as it is keyed throughout a session:
// "name" or "schema.name", with identifiers already case folded.
func (r TableRef) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// Qualified returns the reference with each part double-quoted, suitable for
// passing to to_regclass without further case folding.
func (r TableRef) Qualified() string {
	q := quoteIdent(r.Name)
	if r.Schema != "" {
		q = quoteIdent(r.Schema) + "." + q
	}
	return q
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Query is a parsed statement. It is immutable once built.
type Query struct {
	// Raw is the statement exactly as supplied.
	Raw string
	// Normalized has comments removed, whitespace collapsed and any trailing
	// semicolon dropped.
	Normalized string
	Tokens     []Token
	// Refs holds every distinct table the statement reads or writes, ordered by name.
	Refs []TableRef
}

// Tables returns the referenced table names.
func (q *Query) Tables() []string {
	out := make([]string, len(q.Refs))
	for i, r := range q.Refs {
		out[i] = r.String()
	}
	return out
}

// Parse tokenizes raw and extracts the tables it references.
func Parse(raw string) (*Query, error) {
	tokens, err := Tokenize(raw)
	if err != nil {
		return nil, err
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].Is(";") {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return nil, &SyntaxError{Pos: 0, Reason: "empty statement"}
	}
	return &Query{
		Raw:        raw,
		Normalized: render(tokens),
		Tokens:     tokens,
		Refs:       ExtractTables(tokens),
	}, nil
}

func render(tokens []Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 && t.SpaceBefore {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

// Functions whose argument syntax uses FROM without naming a relation.
var fromFunctions = map[string]bool{
	"EXTRACT":   true,
	"SUBSTRING": true,
	"TRIM":      true,
	"OVERLAY":   true,
	"POSITION":  true,
	"NORMALIZE": true,
}

// Words that end a table reference instead of aliasing it.
var clauseWords = map[string]bool{
	"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "CROSS": true, "NATURAL": true, "ON": true, "USING": true,
	"GROUP": true, "ORDER": true, "LIMIT": true, "OFFSET": true, "HAVING": true,
	"WINDOW": true, "UNION": true, "INTERSECT": true, "EXCEPT": true, "SET": true,
	"VALUES": true, "SELECT": true, "RETURNING": true, "FOR": true, "FETCH": true,
	"TABLESAMPLE": true, "DEFAULT": true, "OVERRIDING": true, "WHEN": true,
	"DO": true, "LATERAL": true, "OUTER": true, "WITH": true,
}

// ExtractTables returns the distinct base tables referenced by a token stream.
// Subqueries are searched, aliases are ignored, and names defined by a WITH
// clause are excluded.
func ExtractTables(tokens []Token) []TableRef {
	ctes := cteNames(tokens)
	inFromFunc := fromFunctionDepths(tokens)

	seen := map[string]TableRef{}
	add := func(r TableRef) {
		if r.Schema == "" && ctes[r.Name] {
			return
		}
		seen[r.String()] = r
	}

	for i, t := range tokens {
		kw := t.Upper()
		if kw == "" {
			continue
		}
		var prev string
		if i > 0 {
			prev = tokens[i-1].Upper()
		}
		switch kw {
		case "FROM":
			if inFromFunc[i] || prev == "DISTINCT" {
				continue
			}
			for _, r := range parseTableList(tokens, i+1, true) {
				add(r)
			}
		case "USING":
			if i+1 < len(tokens) && tokens[i+1].Is("(") {
				continue
			}
			for _, r := range parseTableList(tokens, i+1, true) {
				add(r)
			}
		case "JOIN":
			for _, r := range parseTableList(tokens, i+1, false) {
				add(r)
			}
		case "UPDATE":
			// THEN UPDATE SET is a MERGE action, not a target
			if prev == "FOR" || prev == "KEY" || prev == "DO" || prev == "ON" || prev == "THEN" {
				continue
			}
			for _, r := range parseTableList(tokens, i+1, false) {
				add(r)
			}
		case "INTO":
			if prev != "INSERT" && prev != "MERGE" {
				continue
			}
			// INSERT INTO t (cols) must not read as a function call
			if i+1 < len(tokens) && isName(tokens[i+1]) {
				ref, _ := parseQualifiedName(tokens, i+1)
				add(ref)
			}
		case "TABLE":
			if i == 0 || tokens[i-1].Is("(") {
				for _, r := range parseTableList(tokens, i+1, false) {
					add(r)
				}
			}
		}
	}

	out := make([]TableRef, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].String() < out[b].String() })
	return out
}

// parseTableList reads table references starting at pos. With list set,
// comma-separated items are followed.
func parseTableList(tokens []Token, pos int, list bool) []TableRef {
	var refs []TableRef
	for pos < len(tokens) {
		for pos < len(tokens) && (tokens[pos].Upper() == "ONLY" || tokens[pos].Upper() == "LATERAL") {
			pos++
		}
		if pos >= len(tokens) {
			break
		}
		tok := tokens[pos]
		switch {
		case tok.Is("("):
			pos = skipParens(tokens, pos)
		case isName(tok) && pos+1 < len(tokens) && tokens[pos+1].Is("("):
			// set-returning function call
			pos = skipParens(tokens, pos+1)
		case isName(tok):
			ref, next := parseQualifiedName(tokens, pos)
			refs = append(refs, ref)
			pos = next
		default:
			return refs
		}

		if pos < len(tokens) && tokens[pos].Upper() == "AS" {
			pos++
		}
		if pos < len(tokens) && isName(tokens[pos]) && !clauseWords[tokens[pos].Upper()] {
			pos++
			if pos < len(tokens) && tokens[pos].Is("(") {
				pos = skipParens(tokens, pos)
			}
		}
		if !list || pos >= len(tokens) || !tokens[pos].Is(",") {
			return refs
		}
		pos++
	}
	return refs
}

func parseQualifiedName(tokens []Token, pos int) (TableRef, int) {
	parts := []string{tokens[pos].Ident()}
	pos++
	for pos+1 < len(tokens) && tokens[pos].Is(".") && isName(tokens[pos+1]) {
		parts = append(parts, tokens[pos+1].Ident())
		pos += 2
	}
	// database.schema.table keeps the last two parts
	if len(parts) >= 2 {
		return TableRef{Schema: parts[len(parts)-2], Name: parts[len(parts)-1]}, pos
	}
	return TableRef{Name: parts[0]}, pos
}

func isName(t Token) bool {
	return t.Kind == Word || t.Kind == QuotedIdent
}

// skipParens returns the index just past the parenthesis group opening at pos.
func skipParens(tokens []Token, pos int) int {
	depth := 0
	for i := pos; i < len(tokens); i++ {
		switch {
		case tokens[i].Is("("):
			depth++
		case tokens[i].Is(")"):
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(tokens)
}

// cteNames collects names defined as "name [(cols)] AS [NOT] [MATERIALIZED] ("
// after WITH, RECURSIVE or a separating comma.
func cteNames(tokens []Token) map[string]bool {
	names := map[string]bool{}
	for i := 1; i < len(tokens); i++ {
		prev := tokens[i-1]
		if !(prev.Upper() == "WITH" || prev.Upper() == "RECURSIVE" || prev.Is(",")) || !isName(tokens[i]) {
			continue
		}
		j := i + 1
		if j < len(tokens) && tokens[j].Is("(") {
			j = skipParens(tokens, j)
		}
		if j >= len(tokens) || tokens[j].Upper() != "AS" {
			continue
		}
		j++
		for j < len(tokens) && (tokens[j].Upper() == "NOT" || tokens[j].Upper() == "MATERIALIZED") {
			j++
		}
		if j < len(tokens) && tokens[j].Is("(") {
			names[tokens[i].Ident()] = true
		}
	}
	return names
}

// fromFunctionDepths marks token indexes that sit directly inside the
// argument list of a function such as EXTRACT(field FROM source).
func fromFunctionDepths(tokens []Token) map[int]bool {
	marked := map[int]bool{}
	type frame struct{ fromFunc bool }
	var stack []frame
	for i, t := range tokens {
		switch {
		case t.Is("("):
			ff := i > 0 && fromFunctions[tokens[i-1].Upper()]
			stack = append(stack, frame{fromFunc: ff})
		case t.Is(")"):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			if len(stack) > 0 && stack[len(stack)-1].fromFunc {
				marked[i] = true
			}
		}
	}
	return marked
}
