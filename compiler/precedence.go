package compiler

import "nilox/token"

// Precedence orders binding strength from loosest to tightest. Each
// infix parse function is registered with the precedence of its
// operator; parsePrecedence climbs the table by only consuming an
// infix operator whose precedence is at least the caller's minimum.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment // =
	PrecOr         // or
	PrecAnd        // and
	PrecEquality   // == !=
	PrecComparison // < > <= >=
	PrecTerm       // + -
	PrecFactor     // * /
	PrecUnary      // ! -
	PrecCall       // . ()
	PrecPrimary
)

// parseFn is the uniform signature for both prefix and infix parse
// functions. canAssign is only consulted by variable(), which needs it to
// decide whether a trailing '=' forms an assignment or is a syntax error;
// every other parse function ignores it. Kept uniform so the rule table
// can hold heterogeneous parse functions as one type.
type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// rules is the table-of-method-values dispatch at the heart of the Pratt
// parser: for any token kind, it answers "what prefix expression can start
// here" and "what infix operator can continue here, and how tightly does
// it bind". Built once at package init from method expressions, so no
// per-Compiler allocation is needed to look up a rule.
var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LeftParen:  {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: PrecCall},
		token.Minus:      {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: PrecTerm},
		token.Plus:       {infix: (*Compiler).binary, precedence: PrecTerm},
		token.Slash:      {infix: (*Compiler).binary, precedence: PrecFactor},
		token.Star:       {infix: (*Compiler).binary, precedence: PrecFactor},
		token.Bang:       {prefix: (*Compiler).unary},
		token.BangEqual:  {infix: (*Compiler).binary, precedence: PrecEquality},
		token.EqualEqual: {infix: (*Compiler).binary, precedence: PrecEquality},
		token.Greater:      {infix: (*Compiler).binary, precedence: PrecComparison},
		token.GreaterEqual: {infix: (*Compiler).binary, precedence: PrecComparison},
		token.Less:         {infix: (*Compiler).binary, precedence: PrecComparison},
		token.LessEqual:    {infix: (*Compiler).binary, precedence: PrecComparison},
		token.Ident:  {prefix: (*Compiler).variable},
		token.String: {prefix: (*Compiler).stringLiteral},
		token.Number: {prefix: (*Compiler).number},
		token.And:    {infix: (*Compiler).and_, precedence: PrecAnd},
		token.Or:     {infix: (*Compiler).or_, precedence: PrecOr},
		token.False:  {prefix: (*Compiler).literal},
		token.Nil:    {prefix: (*Compiler).literal},
		token.True:   {prefix: (*Compiler).literal},
	}
}

// ruleFor returns the parse rule for kind, or the zero rule (no prefix, no
// infix, PrecNone) for tokens with no Pratt role.
func ruleFor(kind token.Kind) parseRule {
	return rules[kind]
}
