package compiler

import (
	"github.com/xirelogy/go-lox/internal/token"
	"github.com/xirelogy/go-lox/internal/value"
)

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(c *compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// rules is filled in init because the parse functions refer back to it.
var rules map[token.Type]parseRule

func init() {
	rules = map[token.Type]parseRule{
		token.LParen:       {(*compiler).grouping, (*compiler).call, precCall},
		token.Dot:          {nil, (*compiler).dot, precCall},
		token.Minus:        {(*compiler).unary, (*compiler).binary, precTerm},
		token.Plus:         {nil, (*compiler).binary, precTerm},
		token.Slash:        {nil, (*compiler).binary, precFactor},
		token.Star:         {nil, (*compiler).binary, precFactor},
		token.Bang:         {(*compiler).unary, nil, precNone},
		token.NotEqual:     {nil, (*compiler).binary, precEquality},
		token.Equal:        {nil, (*compiler).binary, precEquality},
		token.Greater:      {nil, (*compiler).binary, precComparison},
		token.GreaterEqual: {nil, (*compiler).binary, precComparison},
		token.Less:         {nil, (*compiler).binary, precComparison},
		token.LessEqual:    {nil, (*compiler).binary, precComparison},
		token.Ident:        {(*compiler).variable, nil, precNone},
		token.String:       {(*compiler).str, nil, precNone},
		token.Number:       {(*compiler).number, nil, precNone},
		token.And:          {nil, (*compiler).and, precAnd},
		token.Or:           {nil, (*compiler).or, precOr},
		token.False:        {(*compiler).literal, nil, precNone},
		token.True:         {(*compiler).literal, nil, precNone},
		token.Nil:          {(*compiler).literal, nil, precNone},
		token.Super:        {(*compiler).super, nil, precNone},
		token.This:         {(*compiler).this, nil, precNone},
	}
}

func getRule(t token.Type) parseRule {
	return rules[t]
}

func (c *compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.Assign) {
		c.error("Invalid assignment target.")
	}
}

func (c *compiler) grouping(bool) {
	c.expression()
	c.consume(token.RParen, "Expect ')' after expression.")
}

func (c *compiler) number(bool) {
	c.numberConst(c.previous.Literal)
}

func (c *compiler) str(bool) {
	c.emitConst(value.ObjVal(c.heap.InternString(c.previous.Literal)))
}

func (c *compiler) literal(bool) {
	switch c.previous.Type {
	case token.False:
		c.emitByte(OP_FALSE)
	case token.True:
		c.emitByte(OP_TRUE)
	case token.Nil:
		c.emitByte(OP_NIL)
	}
}

func (c *compiler) unary(bool) {
	op := c.previous.Type
	c.parsePrecedence(precUnary)
	switch op {
	case token.Minus:
		c.emitByte(OP_NEG)
	case token.Bang:
		c.emitByte(OP_NOT)
	}
}

var binaryOps = map[token.Type]byte{
	token.Plus:         OP_ADD,
	token.Minus:        OP_SUB,
	token.Star:         OP_MUL,
	token.Slash:        OP_DIV,
	token.Equal:        OP_EQ,
	token.NotEqual:     OP_NEQ,
	token.Less:         OP_LT,
	token.LessEqual:    OP_LTE,
	token.Greater:      OP_GT,
	token.GreaterEqual: OP_GTE,
}

func (c *compiler) binary(bool) {
	op := c.previous.Type
	c.parsePrecedence(getRule(op).precedence + 1)
	c.emitByte(binaryOps[op])
}

func (c *compiler) and(bool) {
	endJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emitByte(OP_POP)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *compiler) or(bool) {
	elseJump := c.emitJump(OP_JUMP_IF_FALSE)
	endJump := c.emitJump(OP_JUMP)
	c.patchJump(elseJump)
	c.emitByte(OP_POP)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *compiler) variable(canAssign bool) {
	c.namedVariable(c.previous.Literal, canAssign)
}

func (c *compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp byte
	arg := c.resolveLocal(c.fc, name)
	wide := false
	switch {
	case arg != -1:
		getOp, setOp = OP_GET_LOCAL, OP_SET_LOCAL
	default:
		if arg = c.resolveUpvalue(c.fc, name); arg != -1 {
			getOp, setOp = OP_GET_UPVALUE, OP_SET_UPVALUE
		} else {
			arg = c.identifierConst(name)
			getOp, setOp = OP_GET_GLOBAL, OP_SET_GLOBAL
			wide = true
		}
	}

	op := getOp
	if canAssign && c.match(token.Assign) {
		c.expression()
		op = setOp
	}
	if wide {
		c.emitU16(op, arg)
	} else {
		c.emitBytes(op, byte(arg))
	}
}

func (c *compiler) argumentList() byte {
	argc := 0
	if !c.check(token.RParen) {
		for {
			c.expression()
			if argc == 255 {
				c.error("Can't have more than 255 arguments.")
			}
			argc++
			if !c.match(token.Comma) {
				break
			}
		}
	}
	c.consume(token.RParen, "Expect ')' after arguments.")
	return byte(argc)
}

func (c *compiler) call(bool) {
	argc := c.argumentList()
	c.emitBytes(OP_CALL, argc)
}

func (c *compiler) dot(canAssign bool) {
	c.consume(token.Ident, "Expect property name after '.'.")
	name := c.identifierConst(c.previous.Literal)

	switch {
	case canAssign && c.match(token.Assign):
		c.expression()
		c.emitU16(OP_SET_PROP, name)
	case c.match(token.LParen):
		argc := c.argumentList()
		c.emitU16(OP_INVOKE, name)
		c.emitByte(argc)
	default:
		c.emitU16(OP_GET_PROP, name)
	}
}

func (c *compiler) this(bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	c.variable(false)
}

func (c *compiler) super(bool) {
	switch {
	case c.class == nil:
		c.error("Can't use 'super' outside of a class.")
	case !c.class.hasSuperclass:
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(token.Dot, "Expect '.' after 'super'.")
	c.consume(token.Ident, "Expect superclass method name.")
	name := c.identifierConst(c.previous.Literal)

	c.namedVariable("this", false)
	if c.match(token.LParen) {
		argc := c.argumentList()
		c.namedVariable("super", false)
		c.emitU16(OP_SUPER_INVOKE, name)
		c.emitByte(argc)
		return
	}
	c.namedVariable("super", false)
	c.emitU16(OP_GET_SUPER, name)
}
