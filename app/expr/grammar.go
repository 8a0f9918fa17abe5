package expr

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Float", Pattern: `\d+\.\d*|\.\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Operator", Pattern: `==>|==|!=|<=|>=|&&|\|\||[-+*/%<>()\[\],&|~!]`},
})

var exprParser = participle.MustBuild[implExpr](
	participle.Lexer(exprLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Precedence, loosest first: ==>, or, and, not, comparisons, + -, * / %, unary -.

type implExpr struct {
	Left  *orExpr   `@@`
	Right *implExpr `( "==>" @@ )?`
}

type orExpr struct {
	Left *andExpr   `@@`
	Rest []*andExpr `( ( "or" | "||" | "|" ) @@ )*`
}

type andExpr struct {
	Left *notExpr   `@@`
	Rest []*notExpr `( ( "and" | "&&" | "&" ) @@ )*`
}

type notExpr struct {
	Pos lexer.Position

	Not *notExpr `  ( "not" | "~" | "!" ) @@`
	Cmp *cmpExpr `| @@`
}

type cmpExpr struct {
	Left *addExpr `@@`
	Rest []*cmpOp `@@*`
}

type cmpOp struct {
	Pos lexer.Position

	Op    string   `@( "==" | "!=" | "<=" | ">=" | "<" | ">" )`
	Right *addExpr `@@`
}

type addExpr struct {
	Left *mulExpr `@@`
	Rest []*addOp `@@*`
}

type addOp struct {
	Pos lexer.Position

	Op    string   `@( "+" | "-" )`
	Right *mulExpr `@@`
}

type mulExpr struct {
	Left *unaryExpr `@@`
	Rest []*mulOp   `@@*`
}

type mulOp struct {
	Pos lexer.Position

	Op    string     `@( "*" | "/" | "%" )`
	Right *unaryExpr `@@`
}

type unaryExpr struct {
	Pos lexer.Position

	Neg     *unaryExpr `  "-" @@`
	Primary *primary   `| @@`
}

type primary struct {
	Pos lexer.Position

	Float *string   `  @Float`
	Int   *string   `| @Int`
	Str   *string   `| @String`
	Ref   *ref      `| @@`
	Sub   *implExpr `| "(" @@ ")"`
}

type ref struct {
	Pos lexer.Position

	Name string `@Ident`
	Call *call  `@@?`
}

type call struct {
	Args []*arg `"(" ( @@ ( "," @@ )* )? ")"`
}

type arg struct {
	Pos lexer.Position

	Bound []string  `  "[" @Ident ( "," @Ident )* "]"`
	Expr  *implExpr `| @@`
}
