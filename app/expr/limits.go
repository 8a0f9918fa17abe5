package expr

import (
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"
)

const (
	// DefaultMaxLength bounds the source length when the scope sets no limit.
	DefaultMaxLength = 64 << 10
	// MaxDepth bounds how deeply an expression may nest parentheses, lists,
	// prefix operators and implication chains. The parser recurses once per
	// level, so deeper input could exhaust the goroutine stack.
	MaxDepth = 256
)

var (
	symbols    = exprLexer.Symbols()
	tokIdent   = symbols["Ident"]
	tokInt     = symbols["Int"]
	tokFloat   = symbols["Float"]
	tokString  = symbols["String"]
	tokSpace   = symbols["Whitespace"]
	tokOperand = map[lexer.TokenType]bool{tokIdent: true, tokInt: true, tokFloat: true, tokString: true}
)

func checkLength(src string, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	if len(src) > limit {
		return oops.
			Code("parse_error").
			With("length", len(src), "limit", limit).
			Errorf("expression is %d bytes long, the limit is %d", len(src), limit)
	}
	return nil
}

// nesting tracks the pending prefix operators and implications of one
// parenthesis level.
type nesting struct {
	prefix int
	impl   int
}

// checkDepth estimates the parser recursion depth of src from its tokens.
func checkDepth(src string) error {
	lex, err := exprLexer.LexString("", src)
	if err != nil {
		return oops.Code("parse_error").Wrapf(err, "syntax error")
	}
	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return oops.Code("parse_error").Wrapf(err, "syntax error")
	}

	levels := []nesting{{}}
	depth := 0
	operandEnd := false

	for _, tok := range tokens {
		if tok.Type == tokSpace || tok.EOF() {
			continue
		}

		top := &levels[len(levels)-1]

		switch {
		case tok.Value == "(" || tok.Value == "[":
			levels = append(levels, nesting{})
			depth++
			operandEnd = false

		case tok.Value == ")" || tok.Value == "]":
			if len(levels) > 1 {
				depth -= 1 + top.prefix + top.impl
				levels = levels[:len(levels)-1]
				top = &levels[len(levels)-1]
			}
			depth -= top.prefix
			top.prefix = 0
			operandEnd = true

		case tok.Value == ",":
			depth -= top.prefix + top.impl
			top.prefix, top.impl = 0, 0
			operandEnd = false

		case tok.Value == "==>":
			top.impl++
			depth++
			operandEnd = false

		case tok.Value == "not" || tok.Value == "~" || tok.Value == "!" || (tok.Value == "-" && !operandEnd):
			top.prefix++
			depth++
			operandEnd = false

		case tokOperand[tok.Type] && tok.Value != "and" && tok.Value != "or":
			depth -= top.prefix
			top.prefix = 0
			operandEnd = true

		default:
			operandEnd = false
		}

		if depth > MaxDepth {
			return oops.
				Code("parse_error").
				With("line", tok.Pos.Line, "column", tok.Pos.Column).
				Errorf("%d:%d: expression nests deeper than %d levels", tok.Pos.Line, tok.Pos.Column, MaxDepth)
		}
	}

	return nil
}
