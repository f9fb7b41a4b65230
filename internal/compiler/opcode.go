package compiler

import "github.com/xirelogy/go-lox/internal/bytecode"

const (
	OP_CONST         = bytecode.OP_CONST
	OP_NIL           = bytecode.OP_NIL
	OP_TRUE          = bytecode.OP_TRUE
	OP_FALSE         = bytecode.OP_FALSE
	OP_POP           = bytecode.OP_POP
	OP_ADD           = bytecode.OP_ADD
	OP_SUB           = bytecode.OP_SUB
	OP_MUL           = bytecode.OP_MUL
	OP_DIV           = bytecode.OP_DIV
	OP_NEG           = bytecode.OP_NEG
	OP_NOT           = bytecode.OP_NOT
	OP_EQ            = bytecode.OP_EQ
	OP_NEQ           = bytecode.OP_NEQ
	OP_LT            = bytecode.OP_LT
	OP_LTE           = bytecode.OP_LTE
	OP_GT            = bytecode.OP_GT
	OP_GTE           = bytecode.OP_GTE
	OP_GET_GLOBAL    = bytecode.OP_GET_GLOBAL
	OP_SET_GLOBAL    = bytecode.OP_SET_GLOBAL
	OP_DEFINE_GLOBAL = bytecode.OP_DEFINE_GLOBAL
	OP_GET_LOCAL     = bytecode.OP_GET_LOCAL
	OP_SET_LOCAL     = bytecode.OP_SET_LOCAL
	OP_GET_UPVALUE   = bytecode.OP_GET_UPVALUE
	OP_SET_UPVALUE   = bytecode.OP_SET_UPVALUE
	OP_CLOSE_UPVALUE = bytecode.OP_CLOSE_UPVALUE
	OP_GET_PROP      = bytecode.OP_GET_PROP
	OP_SET_PROP      = bytecode.OP_SET_PROP
	OP_GET_SUPER     = bytecode.OP_GET_SUPER
	OP_CLASS         = bytecode.OP_CLASS
	OP_INHERIT       = bytecode.OP_INHERIT
	OP_METHOD        = bytecode.OP_METHOD
	OP_JUMP          = bytecode.OP_JUMP
	OP_JUMP_IF_FALSE = bytecode.OP_JUMP_IF_FALSE
	OP_LOOP          = bytecode.OP_LOOP
	OP_CALL          = bytecode.OP_CALL
	OP_INVOKE        = bytecode.OP_INVOKE
	OP_SUPER_INVOKE  = bytecode.OP_SUPER_INVOKE
	OP_RETURN        = bytecode.OP_RETURN
	OP_CLOSURE       = bytecode.OP_CLOSURE
	OP_PRINT         = bytecode.OP_PRINT
)
