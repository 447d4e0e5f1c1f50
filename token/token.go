// Package token defines the lexical categories the scanner recognizes and
// the Token/Position values it produces.
package token

import "fmt"

// Kind classifies a lexeme recognized by the scanner.
type Kind int

// The 39 lexical categories of Lox: single/double punctuation, keywords,
// identifiers, literals, and end-of-file.
const (
	// Single-character tokens.
	LeftParen Kind = iota
	RightParen
	LeftBrace
	RightBrace
	Comma
	Dot
	Minus
	Plus
	Semicolon
	Slash
	Star

	// One or two character tokens.
	Bang
	BangEqual
	Equal
	EqualEqual
	Greater
	GreaterEqual
	Less
	LessEqual

	// Literals.
	Ident
	String
	Number

	// Keywords.
	And
	Class
	Else
	False
	For
	Fun
	If
	Nil
	Or
	Print
	Return
	Super
	This
	True
	Var
	While

	Eof
)

// names holds a human-readable name for each Kind, used by String and in
// diagnostics.
var names = map[Kind]string{
	LeftParen: "(", RightParen: ")", LeftBrace: "{", RightBrace: "}",
	Comma: ",", Dot: ".", Minus: "-", Plus: "+", Semicolon: ";", Slash: "/", Star: "*",
	Bang: "!", BangEqual: "!=", Equal: "=", EqualEqual: "==",
	Greater: ">", GreaterEqual: ">=", Less: "<", LessEqual: "<=",
	Ident: "IDENT", String: "STRING", Number: "NUMBER",
	And: "and", Class: "class", Else: "else", False: "false", For: "for", Fun: "fun",
	If: "if", Nil: "nil", Or: "or", Print: "print", Return: "return", Super: "super",
	This: "this", True: "true", Var: "var", While: "while",
	Eof: "EOF",
}

func (k Kind) String() string {
	if name, ok := names[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Keywords maps reserved words to their Kind. An identifier lexeme that
// matches one of these is classified as the keyword instead of Ident.
var Keywords = map[string]Kind{
	"and": And, "class": Class, "else": Else, "false": False, "for": For,
	"fun": Fun, "if": If, "nil": Nil, "or": Or, "print": Print, "return": Return,
	"super": Super, "this": This, "true": True, "var": Var, "while": While,
}

// Position is a 1-based line/column location in source, carried alongside
// every token and every emitted instruction for error reporting.
type Position struct {
	Line   int
	Column int
}

// String renders a Position the way compiler diagnostics expect it:
// "[line N]".
func (p Position) String() string {
	return fmt.Sprintf("[line %d]", p.Line)
}

// Token is a lexical token: its kind, the exact source text that produced
// it, and its starting position.
type Token struct {
	Kind   Kind
	Lexeme string
	Pos    Position
}

// IsEOF reports whether t is the end-of-file sentinel.
func (t Token) IsEOF() bool {
	return t.Kind == Eof
}
