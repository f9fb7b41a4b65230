package bytecode

// OpCode enumerates bytecode operations.
// Operand layouts are listed in opTable; keep both in sync.
const (
	OP_CONST byte = iota
	OP_NIL
	OP_TRUE
	OP_FALSE
	OP_POP
	_ // reserved
	_ // reserved
	_ // reserved

	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_NEG
	OP_NOT
	_ // reserved
	_ // reserved

	OP_EQ
	OP_NEQ
	OP_LT
	OP_LTE
	OP_GT
	OP_GTE
	_ // reserved
	_ // reserved

	OP_GET_GLOBAL
	OP_SET_GLOBAL
	OP_DEFINE_GLOBAL
	_ // reserved
	_ // reserved
	_ // reserved
	_ // reserved
	_ // reserved

	OP_GET_LOCAL
	OP_SET_LOCAL
	OP_GET_UPVALUE
	OP_SET_UPVALUE
	OP_CLOSE_UPVALUE
	_ // reserved
	_ // reserved
	_ // reserved

	OP_GET_PROP
	OP_SET_PROP
	OP_GET_SUPER
	OP_CLASS
	OP_INHERIT
	OP_METHOD
	_ // reserved
	_ // reserved

	OP_JUMP
	OP_JUMP_IF_FALSE
	OP_LOOP
	_ // reserved
	_ // reserved
	_ // reserved
	_ // reserved
	_ // reserved

	OP_CALL
	OP_INVOKE
	OP_SUPER_INVOKE
	OP_RETURN
	OP_CLOSURE
	_ // reserved
	_ // reserved
	_ // reserved

	OP_PRINT
)

type operandKind int

const (
	operandNone operandKind = iota
	operandConst            // u16 constant index
	operandName             // u16 constant index of a string
	operandByte             // u8 slot or count
	operandJump             // u16 forward offset
	operandLoop             // u16 backward offset
	operandInvoke           // u16 name + u8 argc
	operandClosure          // u16 function + u8 count + count*(u8, u8)
)

type opInfo struct {
	name    string
	operand operandKind
}

var opTable = map[byte]opInfo{
	OP_CONST:         {"OP_CONST", operandConst},
	OP_NIL:           {"OP_NIL", operandNone},
	OP_TRUE:          {"OP_TRUE", operandNone},
	OP_FALSE:         {"OP_FALSE", operandNone},
	OP_POP:           {"OP_POP", operandNone},
	OP_ADD:           {"OP_ADD", operandNone},
	OP_SUB:           {"OP_SUB", operandNone},
	OP_MUL:           {"OP_MUL", operandNone},
	OP_DIV:           {"OP_DIV", operandNone},
	OP_NEG:           {"OP_NEG", operandNone},
	OP_NOT:           {"OP_NOT", operandNone},
	OP_EQ:            {"OP_EQ", operandNone},
	OP_NEQ:           {"OP_NEQ", operandNone},
	OP_LT:            {"OP_LT", operandNone},
	OP_LTE:           {"OP_LTE", operandNone},
	OP_GT:            {"OP_GT", operandNone},
	OP_GTE:           {"OP_GTE", operandNone},
	OP_GET_GLOBAL:    {"OP_GET_GLOBAL", operandName},
	OP_SET_GLOBAL:    {"OP_SET_GLOBAL", operandName},
	OP_DEFINE_GLOBAL: {"OP_DEFINE_GLOBAL", operandName},
	OP_GET_LOCAL:     {"OP_GET_LOCAL", operandByte},
	OP_SET_LOCAL:     {"OP_SET_LOCAL", operandByte},
	OP_GET_UPVALUE:   {"OP_GET_UPVALUE", operandByte},
	OP_SET_UPVALUE:   {"OP_SET_UPVALUE", operandByte},
	OP_CLOSE_UPVALUE: {"OP_CLOSE_UPVALUE", operandNone},
	OP_GET_PROP:      {"OP_GET_PROP", operandName},
	OP_SET_PROP:      {"OP_SET_PROP", operandName},
	OP_GET_SUPER:     {"OP_GET_SUPER", operandName},
	OP_CLASS:         {"OP_CLASS", operandName},
	OP_INHERIT:       {"OP_INHERIT", operandNone},
	OP_METHOD:        {"OP_METHOD", operandName},
	OP_JUMP:          {"OP_JUMP", operandJump},
	OP_JUMP_IF_FALSE: {"OP_JUMP_IF_FALSE", operandJump},
	OP_LOOP:          {"OP_LOOP", operandLoop},
	OP_CALL:          {"OP_CALL", operandByte},
	OP_INVOKE:        {"OP_INVOKE", operandInvoke},
	OP_SUPER_INVOKE:  {"OP_SUPER_INVOKE", operandInvoke},
	OP_RETURN:        {"OP_RETURN", operandNone},
	OP_CLOSURE:       {"OP_CLOSURE", operandClosure},
	OP_PRINT:         {"OP_PRINT", operandNone},
}

// OpName returns the mnemonic for op.
func OpName(op byte) string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return "OP_UNKNOWN"
}

// IsValid reports whether op is a defined opcode.
func IsValid(op byte) bool {
	_, ok := opTable[op]
	return ok
}
