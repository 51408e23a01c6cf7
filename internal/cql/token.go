// Package cql implements the query parser: a pure function from a CQL-like
// string to a typed Query object (or a Syntax error). It consults no
// runtime state — schema/keyspace validation is the Query Executor's job.
//
// Grounded on query-creator/src/lib.rs and query-creator/src/clauses/*.rs
// (the Rust tokenizer walks the string character by character, preserving
// alphanumerics, numeric literals, single-quoted strings with a `''` escape,
// and brace/paren-delimited lists as opaque groups — see
// create_table_cql.rs's split_preserving_parentheses helper). The Go
// tokenizer below reproduces that shape: a flat slice of Tokens where a
// parenthesized or braced group collapses to one Group token carrying its
// full delimited text, so the recursive-descent parser in parser.go never
// has to track nesting depth itself.
package cql

import (
	"fmt"
	"strings"

	"github.com/rusticdb/rusticdb/internal/rerrors"
)

type TokenKind uint8

const (
	TokWord   TokenKind = iota // identifier or keyword
	TokNumber                  // numeric literal
	TokString                  // single-quoted string literal, already unescaped
	TokGroup                   // a balanced (...) or {...} group, Text includes the delimiters
	TokSymbol                  // a single-character punctuation token: , ; = < > *
)

type Token struct {
	Kind TokenKind
	Text string
}

// Tokenize walks s character by character and produces the flat token
// stream described above.
func Tokenize(s string) ([]Token, error) {
	var tokens []Token
	r := []rune(s)
	i := 0
	n := len(r)

	isIdentRune := func(c rune) bool {
		return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}
	isDigit := func(c rune) bool { return c >= '0' && c <= '9' }

	for i < n {
		c := r[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'':
			// Single-quoted string, '' is an escaped literal quote.
			var sb strings.Builder
			i++
			closed := false
			for i < n {
				if r[i] == '\'' {
					if i+1 < n && r[i+1] == '\'' {
						sb.WriteRune('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteRune(r[i])
				i++
			}
			if !closed {
				return nil, rerrors.New(rerrors.Syntax, "unterminated string literal")
			}
			tokens = append(tokens, Token{Kind: TokString, Text: sb.String()})
		case c == '(' || c == '{':
			open, close := c, matchingClose(c)
			start := i
			depth := 0
			for i < n {
				if r[i] == open {
					depth++
				} else if r[i] == close {
					depth--
					if depth == 0 {
						i++
						break
					}
				} else if r[i] == '\'' {
					// skip over string literals so unbalanced quotes inside don't
					// confuse the depth counter.
					i++
					for i < n && r[i] != '\'' {
						i++
					}
				}
				i++
			}
			if depth != 0 {
				return nil, rerrors.New(rerrors.Syntax, "unbalanced parentheses or braces")
			}
			tokens = append(tokens, Token{Kind: TokGroup, Text: string(r[start:i])})
		case isDigit(c) || (c == '-' && i+1 < n && isDigit(r[i+1])):
			start := i
			i++
			for i < n && (isDigit(r[i]) || r[i] == '.') {
				i++
			}
			tokens = append(tokens, Token{Kind: TokNumber, Text: string(r[start:i])})
		case isIdentRune(c):
			start := i
			for i < n && isIdentRune(r[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokWord, Text: string(r[start:i])})
		case c == ',' || c == ';' || c == '=' || c == '<' || c == '>' || c == '*':
			tokens = append(tokens, Token{Kind: TokSymbol, Text: string(c)})
			i++
		default:
			return nil, rerrors.New(rerrors.Syntax, fmt.Sprintf("unexpected character %q", c))
		}
	}
	return tokens, nil
}

func matchingClose(open rune) rune {
	if open == '(' {
		return ')'
	}
	return '}'
}
