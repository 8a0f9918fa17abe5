package smt

import (
	"math/big"
	"strconv"
	"strings"
	"z3mcp/app/expr"
)

// parseValue converts a model value printed in SMT-LIB syntax into a Go
// value. Values outside int64/float64 range or irrational algebraic numbers
// are kept as their printed text.
func parseValue(sort expr.Sort, text string) any {
	text = strings.TrimSpace(text)

	switch sort {
	case expr.SortBool:
		switch text {
		case "true":
			return true
		case "false":
			return false
		}
	case expr.SortInt:
		if r, ok := parseNumeral(text); ok && r.IsInt() && r.Num().IsInt64() {
			return r.Num().Int64()
		}
	case expr.SortReal:
		if r, ok := parseNumeral(text); ok {
			f, _ := r.Float64()
			return f
		}
	case expr.SortString:
		if s, ok := unquoteString(text); ok {
			return s
		}
	}

	return text
}

// parseNumeral evaluates terms like 5, 2.5, (- 3) and (/ 1.0 3.0).
func parseNumeral(text string) (*big.Rat, bool) {
	p := &sexpr{tokens: tokenize(text)}
	r, ok := p.numeral()
	if !ok || p.pos != len(p.tokens) {
		return nil, false
	}
	return r, true
}

type sexpr struct {
	tokens []string
	pos    int
}

func (p *sexpr) next() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, true
}

func (p *sexpr) numeral() (*big.Rat, bool) {
	tok, ok := p.next()
	if !ok {
		return nil, false
	}
	if tok != "(" {
		return new(big.Rat).SetString(tok)
	}

	op, ok := p.next()
	if !ok {
		return nil, false
	}

	var args []*big.Rat
	for p.pos < len(p.tokens) && p.tokens[p.pos] != ")" {
		r, ok := p.numeral()
		if !ok {
			return nil, false
		}
		args = append(args, r)
	}
	if tok, ok = p.next(); !ok || tok != ")" {
		return nil, false
	}

	switch {
	case op == "-" && len(args) == 1:
		return args[0].Neg(args[0]), true
	case op == "-" && len(args) == 2:
		return args[0].Sub(args[0], args[1]), true
	case op == "/" && len(args) == 2 && args[1].Sign() != 0:
		return args[0].Quo(args[0], args[1]), true
	}
	return nil, false
}

func tokenize(text string) []string {
	text = strings.NewReplacer("(", " ( ", ")", " ) ").Replace(text)
	return strings.Fields(text)
}

// unquoteString decodes a Z3 string literal: doubled quotes and \u{...}
// escapes.
func unquoteString(text string) (string, bool) {
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		return "", false
	}
	body := text[1 : len(text)-1]

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		switch {
		case body[i] == '"' && i+1 < len(body) && body[i+1] == '"':
			b.WriteByte('"')
			i++
		case strings.HasPrefix(body[i:], `\u{`):
			end := strings.IndexByte(body[i:], '}')
			if end < 0 {
				return "", false
			}
			code, err := strconv.ParseUint(body[i+3:i+end], 16, 32)
			if err != nil {
				return "", false
			}
			b.WriteRune(rune(code))
			i += end
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String(), true
}
