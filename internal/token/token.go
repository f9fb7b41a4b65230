package token

// Type identifies the category of a token.
type Type string

// Token carries the lexical item along with its source position.
// For Illegal tokens Literal holds the diagnostic message instead of source text.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
}

// Position describes a byte offset and 1-based line/column.
type Position struct {
	Offset int
	Line   int
	Column int
}

const (
	Illegal Type = "ILLEGAL"
	EOF     Type = "EOF"

	// identifiers and literals
	Ident  Type = "IDENT"
	Number Type = "NUMBER"
	String Type = "STRING"

	// keywords
	And    Type = "AND"
	Class  Type = "CLASS"
	Else   Type = "ELSE"
	False  Type = "FALSE"
	For    Type = "FOR"
	Fun    Type = "FUN"
	If     Type = "IF"
	Nil    Type = "NIL"
	Or     Type = "OR"
	Print  Type = "PRINT"
	Return Type = "RETURN"
	Super  Type = "SUPER"
	This   Type = "THIS"
	True   Type = "TRUE"
	Var    Type = "VAR"
	While  Type = "WHILE"

	// operators
	Assign       Type = "ASSIGN"       // =
	Plus         Type = "PLUS"         // +
	Minus        Type = "MINUS"        // -
	Star         Type = "STAR"         // *
	Slash        Type = "SLASH"        // /
	Bang         Type = "BANG"         // !
	Equal        Type = "EQUAL"        // ==
	NotEqual     Type = "NOTEQUAL"     // !=
	Less         Type = "LESS"         // <
	LessEqual    Type = "LESSEQUAL"    // <=
	Greater      Type = "GREATER"      // >
	GreaterEqual Type = "GREATEREQUAL" // >=

	// delimiters
	Comma     Type = "COMMA"
	Dot       Type = "DOT"
	Semicolon Type = "SEMICOLON"
	LParen    Type = "LPAREN"
	RParen    Type = "RPAREN"
	LBrace    Type = "LBRACE"
	RBrace    Type = "RBRACE"
)

var keywords = map[string]Type{
	"and":    And,
	"class":  Class,
	"else":   Else,
	"false":  False,
	"for":    For,
	"fun":    Fun,
	"if":     If,
	"nil":    Nil,
	"or":     Or,
	"print":  Print,
	"return": Return,
	"super":  Super,
	"this":   This,
	"true":   True,
	"var":    Var,
	"while":  While,
}

// LookupIdent returns the keyword token type or Ident.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Ident
}
