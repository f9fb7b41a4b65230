package bytecode

// stackEffect reports how many values op reads from the top of the stack
// and its net change in stack depth. Operands start at code[ip].
func stackEffect(op byte, code []byte, ip int) (need, delta int) {
	switch op {
	case OP_CONST, OP_NIL, OP_TRUE, OP_FALSE, OP_GET_GLOBAL,
		OP_GET_LOCAL, OP_GET_UPVALUE, OP_CLASS, OP_CLOSURE:
		return 0, 1
	case OP_POP, OP_DEFINE_GLOBAL, OP_CLOSE_UPVALUE, OP_PRINT:
		return 1, -1
	case OP_NEG, OP_NOT, OP_SET_GLOBAL, OP_SET_LOCAL, OP_SET_UPVALUE,
		OP_GET_PROP, OP_JUMP_IF_FALSE, OP_RETURN:
		return 1, 0
	case OP_ADD, OP_SUB, OP_MUL, OP_DIV,
		OP_EQ, OP_NEQ, OP_LT, OP_LTE, OP_GT, OP_GTE,
		OP_SET_PROP, OP_GET_SUPER, OP_INHERIT, OP_METHOD:
		return 2, -1
	case OP_CALL:
		argc := int(code[ip])
		return argc + 1, -argc
	case OP_INVOKE:
		argc := int(code[ip+2])
		return argc + 1, -argc
	case OP_SUPER_INVOKE:
		argc := int(code[ip+2])
		return argc + 2, -argc - 1
	}
	return 0, 0
}

// checkStack walks every path through proto from its entry, tracking the
// depth of the frame's value stack. Slot 0 and the parameters are on the
// stack at entry. next maps instruction offsets to the following offset.
func checkStack(proto *Prototype, next []int, bad func(int, string, ...interface{}) error) error {
	code := proto.Code
	depth := make([]int, len(code))
	for i := range depth {
		depth[i] = -1
	}

	type path struct{ ip, depth int }
	work := []path{{ip: 0, depth: proto.Arity + 1}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		for ip, d := p.ip, p.depth; ip < len(code); {
			if next[ip] == 0 {
				return bad(ip, "jump into the middle of an instruction")
			}
			if depth[ip] >= 0 {
				if depth[ip] != d {
					return bad(ip, "stack depth %d, %d on another path", d, depth[ip])
				}
				break
			}
			depth[ip] = d

			op := code[ip]
			need, delta := stackEffect(op, code, ip+1)
			if d < need {
				return bad(ip, "%s needs %d stack values, has %d", OpName(op), need, d)
			}

			switch op {
			case OP_GET_LOCAL, OP_SET_LOCAL:
				if slot := int(code[ip+1]); slot >= d {
					return bad(ip, "local slot %d outside frame of %d", slot, d)
				}
			case OP_GET_UPVALUE, OP_SET_UPVALUE:
				if slot := int(code[ip+1]); slot >= len(proto.Upvalues) {
					return bad(ip, "upvalue %d out of range (%d declared)", slot, len(proto.Upvalues))
				}
			case OP_CLOSURE:
				count := int(code[ip+3])
				for i := 0; i < count; i++ {
					isLocal, index := code[ip+4+2*i], int(code[ip+5+2*i])
					if isLocal == 1 && index >= d {
						return bad(ip, "captured local %d outside frame of %d", index, d)
					}
					if isLocal == 0 && index >= len(proto.Upvalues) {
						return bad(ip, "captured upvalue %d out of range (%d declared)", index, len(proto.Upvalues))
					}
				}
			}
			d += delta

			following := next[ip]
			switch op {
			case OP_RETURN:
				following = len(code)
			case OP_JUMP:
				following += jumpOffset(code, ip)
			case OP_LOOP:
				following -= jumpOffset(code, ip)
			case OP_JUMP_IF_FALSE:
				work = append(work, path{ip: following + jumpOffset(code, ip), depth: d})
			}
			ip = following
		}
	}
	return nil
}

func jumpOffset(code []byte, ip int) int {
	return int(code[ip+1])<<8 | int(code[ip+2])
}
