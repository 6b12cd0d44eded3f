/*
Copyright (C) 2023  Carl-Philip Hänsch
Copyright (C) 2013  Pieter Kelchtermans (originally licensed unter WTFPL 2.0)

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package ast

import (
	"strconv"

	"github.com/ilish-lang/ilish/internal/diag"
)

// quoteState tracks whether ',' and ',@' are legal at the current read
// position: only inside a Quote or QuasiQuote context, never Normal.
type quoteState int

const (
	stateNormal quoteState = iota
	stateQuote
	stateQuasiQuote
)

var charNameValues = map[string]rune{
	"alarm": 7, "backspace": 8, "delete": 127, "escape": 27,
	"newline": 10, "null": 0, "return": 13, "space": 32, "tab": 9,
}

// token is a lexical token: either a structural symbol ("(", ")", "#(",
// "'", "`", ",", ",@") or a fully-formed atom Expr, each tagged with its
// source position.
type token struct {
	text string // non-empty for structural tokens
	atom Expr
	line int
	col  int
}

// Parser reads a source string into an ordered sequence of expressions,
// collecting diagnostics rather than stopping at the first error so that
// compilation can proceed best-effort.
type Parser struct {
	Source string
	Diags  diag.Diagnostics
}

// ParseProgram tokenizes and reads every top-level expression in s.
func (p *Parser) ParseProgram(s string) []Expr {
	toks := p.tokenize(s)
	var out []Expr
	for len(toks) > 0 {
		e, ok := p.readFrom(&toks, stateNormal)
		if !ok {
			break
		}
		out = append(out, e)
	}
	return out
}

func (p *Parser) errf(line, col int, kind diag.Kind, format string, args ...any) {
	p.Diags.Add(p.Source, line, col, kind, format, args...)
}

// readFrom consumes one expression from the front of toks.
func (p *Parser) readFrom(toks *[]token, qs quoteState) (Expr, bool) {
	if len(*toks) == 0 {
		p.errf(0, 0, diag.KindUnexpectedEOF, "unexpected end of input")
		return Expr{}, false
	}
	t := (*toks)[0]
	*toks = (*toks)[1:]

	switch t.text {
	case "(":
		return p.readList(toks, t.line, t.col, qs)
	case "#(":
		return p.readVector(toks, t.line, t.col, qs)
	case ")":
		p.errf(t.line, t.col, diag.KindUnmatchedRightParen, "unmatched right paren")
		return Expr{}, false
	case "'":
		return p.readQuote(toks, t.line, t.col, "quote", stateQuote)
	case "`":
		return p.readQuote(toks, t.line, t.col, "quasiquote", stateQuasiQuote)
	case ",":
		if qs == stateNormal {
			p.errf(t.line, t.col, diag.KindUnquoteOutsideQuote, "unquote outside of quote")
		}
		return p.readQuote(toks, t.line, t.col, "unquote", stateNormal)
	case ",@":
		if qs == stateNormal {
			p.errf(t.line, t.col, diag.KindSplicingOutsideQuote, "unquote-splicing outside of quote")
		}
		return p.readQuote(toks, t.line, t.col, "unquote-splicing", stateNormal)
	}
	return WithSource(SourceInfo{p.Source, t.line, t.col, t.atom}), true
}

func (p *Parser) readList(toks *[]token, line, col int, qs quoteState) (Expr, bool) {
	var items []Expr
	for {
		if len(*toks) == 0 {
			p.errf(line, col, diag.KindUnexpectedEOF, "unexpected end of input inside list, expecting matching )")
			return Expr{}, false
		}
		if (*toks)[0].text == ")" {
			*toks = (*toks)[1:]
			if len(items) == 0 {
				// "()" alone is the Null literal, not a grammar
				// violation: expr+ applies to non-empty list syntax, but
				// the parenthesized-empty spelling of Nil is a distinct
				// literal atom that must round-trip through printing.
				return WithSource(SourceInfo{p.Source, line, col, Nil()}), true
			}
			return WithSource(SourceInfo{p.Source, line, col, List(items)}), true
		}
		e, ok := p.readFrom(toks, qs)
		if !ok {
			return Expr{}, false
		}
		items = append(items, e)
	}
}

func (p *Parser) readVector(toks *[]token, line, col int, qs quoteState) (Expr, bool) {
	var items []Expr
	for {
		if len(*toks) == 0 {
			p.errf(line, col, diag.KindUnexpectedEOF, "unexpected end of input inside vector, expecting matching )")
			return Expr{}, false
		}
		if (*toks)[0].text == ")" {
			*toks = (*toks)[1:]
			return WithSource(SourceInfo{p.Source, line, col, Vector(items)}), true
		}
		e, ok := p.readFrom(toks, qs)
		if !ok {
			return Expr{}, false
		}
		items = append(items, e)
	}
}

func (p *Parser) readQuote(toks *[]token, line, col int, keyword string, inner quoteState) (Expr, bool) {
	e, ok := p.readFrom(toks, inner)
	if !ok {
		return Expr{}, false
	}
	form := List([]Expr{Symbol(keyword), e})
	return WithSource(SourceInfo{p.Source, line, col, form}), true
}

// tokenize is a hand-rolled state machine covering this language's
// lexical grammar: atoms, parens, vector-open, quote forms, string/char
// literals, and semicolon line comments.
//
// states: 0=idle 2=string 3=string-escape 4=comment; an atom run is
// consumed in one step from the idle state.
func (p *Parser) tokenize(s string) []token {
	line, col := 1, 0
	state := 0
	startToken := 0
	var out []token
	var buf []byte

	flushAtom := func(text string, tl, tc int) {
		out = append(out, token{atom: classifyAtom(p, text, tl, tc), line: tl, col: tc})
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\n' {
			line++
			col = 0
		} else {
			col++
		}

		switch state {
		case 4: // comment until end of line
			if ch == '\n' {
				state = 0
			}
			continue
		case 2: // inside string
			if ch == '\\' {
				state = 3
				continue
			}
			if ch == '"' {
				out = append(out, token{atom: String(string(buf)), line: line, col: col})
				buf = nil
				state = 0
				continue
			}
			buf = append(buf, string(ch)...)
			continue
		case 3: // string escape
			switch ch {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case '"':
				buf = append(buf, '"')
			case '\\':
				buf = append(buf, '\\')
			default:
				buf = append(buf, string(ch)...)
			}
			state = 2
			continue
		}

		switch {
		case ch == ';':
			state = 4
		case ch == '"':
			buf = nil
			state = 2
		case ch == '(':
			out = append(out, token{text: "(", line: line, col: col})
		case ch == ')':
			out = append(out, token{text: ")", line: line, col: col})
		case ch == '#' && i+1 < len(runes) && runes[i+1] == '(':
			out = append(out, token{text: "#(", line: line, col: col})
			i++
			col++
		case ch == '\'':
			out = append(out, token{text: "'", line: line, col: col})
		case ch == '`':
			out = append(out, token{text: "`", line: line, col: col})
		case ch == ',' && i+1 < len(runes) && runes[i+1] == '@':
			out = append(out, token{text: ",@", line: line, col: col})
			i++
			col++
		case ch == ',':
			out = append(out, token{text: ",", line: line, col: col})
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			// whitespace
		default:
			// accumulate a run of atom runes
			startLine, startCol := line, col
			j := i
			for j < len(runes) {
				c := runes[j]
				if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '(' || c == ')' ||
					c == '\'' || c == '`' || c == ',' || c == ';' ||
					(c == '#' && j+1 < len(runes) && runes[j+1] == '(') {
					break
				}
				j++
			}
			text := string(runes[i:j])
			flushAtom(text, startLine, startCol)
			col += j - i - 1
			i = j - 1
		}
	}
	_ = startToken
	return out
}

// classifyAtom turns one whitespace-delimited run into a Fixnum, Bool,
// Char or Symbol.
func classifyAtom(p *Parser, text string, line, col int) Expr {
	switch text {
	case "#t":
		return Bool(true)
	case "#f":
		return Bool(false)
	}
	if len(text) >= 2 && text[0] == '#' && text[1] == '\\' {
		return parseCharSpec(p, text[2:], line, col)
	}
	if isFixnumLiteral(text) {
		n, _ := strconv.ParseInt(text, 10, 64)
		return Fixnum(n)
	}
	return Symbol(text)
}

// isFixnumLiteral matches `[+-]?[0-9]+` with a leading sign only when
// followed by a digit (otherwise the token is a symbol, e.g. "-" or "+").
func isFixnumLiteral(text string) bool {
	i := 0
	if len(text) == 0 {
		return false
	}
	if text[0] == '+' || text[0] == '-' {
		i = 1
	}
	if i >= len(text) {
		return false
	}
	for ; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}

func parseCharSpec(p *Parser, spec string, line, col int) Expr {
	if spec == "" {
		p.errf(line, col, diag.KindMalformedCharName, "empty character literal")
		return Char(0)
	}
	runes := []rune(spec)
	if len(runes) == 1 {
		return Char(runes[0])
	}
	if runes[0] == 'x' || runes[0] == 'X' {
		if n, err := strconv.ParseInt(string(runes[1:]), 16, 32); err == nil {
			return Char(rune(n))
		}
	}
	if r, ok := charNameValues[spec]; ok {
		return Char(r)
	}
	p.errf(line, col, diag.KindMalformedCharName, "misspelled character name %q", spec)
	return Char(0)
}
