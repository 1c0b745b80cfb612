package token

type TokenType int

const (
	INT TokenType = iota
	FLOAT
	CHAR
	STRING
	BOOL
	IDENTIFIER
	KEYWORD

	binaryop_begin
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	EQUAL

	EQUAL_EQUAL
	BANG_EQUAL
	LESSER
	GREATER
	LESSER_EQUAL
	GREATER_EQUAL
	binaryop_end

	LEFT_PAREN
	RIGHT_PAREN
	LEFT_BRACE
	RIGHT_BRACE
	SEMICOLON
	COMMA
	DOT
	ELLIPSIS

	EOF
	ERROR
)

var names = [...]string{
	INT:           "NLIT",
	FLOAT:         "FLIT",
	CHAR:          "CLIT",
	STRING:        "SLIT",
	BOOL:          "BLIT",
	IDENTIFIER:    "IDENT",
	KEYWORD:       "KEYWORD",
	PLUS:          "PLUS",
	MINUS:         "MINUS",
	STAR:          "STAR",
	SLASH:         "SLASH",
	PERCENT:       "PERCENT",
	EQUAL:         "ASSIGN",
	EQUAL_EQUAL:   "EQ",
	BANG_EQUAL:    "NEQ",
	LESSER:        "LT",
	GREATER:       "GT",
	LESSER_EQUAL:  "LTE",
	GREATER_EQUAL: "GTE",
	LEFT_PAREN:    "LPAREN",
	RIGHT_PAREN:   "RPAREN",
	LEFT_BRACE:    "LBRACE",
	RIGHT_BRACE:   "RBRACE",
	SEMICOLON:     "SEMI",
	COMMA:         "COMMA",
	DOT:           "DOT",
	ELLIPSIS:      "ELLIPSIS",
	EOF:           "EOF",
	ERROR:         "ERROR",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(names) && names[t] != "" {
		return names[t]
	}
	return "UNKNOWN"
}

func (t TokenType) IsBinaryOperator() bool {
	return t > binaryop_begin && t < binaryop_end
}

func (t TokenType) IsComparativeOperator() bool {
	return t >= EQUAL_EQUAL && t <= GREATER_EQUAL
}

func (t TokenType) IsLiteral() bool {
	return t >= INT && t <= BOOL
}

// Literal is the decoded payload of a literal token. Only the field matching
// the token's type is meaningful: Int for INT and BOOL, Float for FLOAT, Char
// for CHAR and Str for STRING.
type Literal struct {
	Int   int64
	Float float64
	Char  byte
	Str   string
}

type Token struct {
	Lexeme string
	Type   TokenType
	Pos    Pos
	Value  Literal
}

// Pos is the location of a token's first character. Line and Column are
// 1-based, Offset is the 0-based byte offset into the source.
type Pos struct {
	Offset int
	Line   int
	Column int
}

func (t Token) Is(typ TokenType, lexeme string) bool {
	return t.Type == typ && t.Lexeme == lexeme
}

// IsKeyword reports whether t is the keyword kw.
func (t Token) IsKeyword(kw string) bool {
	return t.Is(KEYWORD, kw)
}

// IsTypeName reports whether t is one of the built-in type keywords.
func (t Token) IsTypeName() bool {
	return t.Type == KEYWORD && IsTypeName(t.Lexeme)
}

var Keywords = [...]string{
	"import",
	"typedef",
	"return",
	"if",
	"else",
	"while",
	"for",
	"void",
	"char",
	"int",
	"uint",
	"float",
	"double",
	"string",
	"bool",
}

var TypeNames = [...]string{
	"int",
	"uint",
	"char",
	"bool",
	"float",
	"double",
	"string",
	"void",
}

func IsTypeName(name string) bool {
	for _, t := range TypeNames {
		if t == name {
			return true
		}
	}
	return false
}

// LookupIdent classifies an identifier-shaped lexeme. The boolean literals
// are returned as BOOL, the words in Keywords as KEYWORD and everything else
// as IDENTIFIER.
func LookupIdent(text string) TokenType {
	if text == "true" || text == "false" {
		return BOOL
	}
	for _, kw := range Keywords {
		if kw == text {
			return KEYWORD
		}
	}
	return IDENTIFIER
}

type Operator struct {
	Text string
	Type TokenType
}

// Operators is ordered so that every multi-character operator comes before
// any operator that is a prefix of it. A first-match scan is then a
// longest-match scan.
var Operators = [...]Operator{
	{"...", ELLIPSIS},
	{"==", EQUAL_EQUAL},
	{"!=", BANG_EQUAL},
	{"<=", LESSER_EQUAL},
	{">=", GREATER_EQUAL},
	{"+", PLUS},
	{"-", MINUS},
	{"*", STAR},
	{"/", SLASH},
	{"%", PERCENT},
	{"=", EQUAL},
	{"<", LESSER},
	{">", GREATER},
	{"(", LEFT_PAREN},
	{")", RIGHT_PAREN},
	{"{", LEFT_BRACE},
	{"}", RIGHT_BRACE},
	{";", SEMICOLON},
	{",", COMMA},
	{".", DOT},
}

// LookupOperator returns the longest operator that prefixes src.
func LookupOperator(src string) (Operator, bool) {
	for _, op := range Operators {
		if len(src) >= len(op.Text) && src[:len(op.Text)] == op.Text {
			return op, true
		}
	}
	return Operator{}, false
}
