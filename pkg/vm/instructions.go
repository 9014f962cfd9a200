package vm

import (
	"math"

	"github.com/jclassvm/jclassvm/pkg/jerr"
	"github.com/jclassvm/jclassvm/pkg/opcode"
)

// executeInstruction executes a single bytecode instruction. frame.PC has
// already been advanced past the opcode byte itself when this is called.
// Returns (returnValue, hasReturn, error); hasReturn signals that Call
// should stop the dispatch loop and hand returnValue to the caller.
func (vm *VM) executeInstruction(frame *Frame, op byte) (Value, bool, error) {
	switch op {
	case opcode.Nop:
		// no effect

	// --- Constant push ---
	case opcode.AconstNull:
		return Value{}, false, frame.Push(RefValue(nil))
	case opcode.IconstM1:
		return Value{}, false, frame.Push(IntValue(-1))
	case opcode.Iconst0:
		return Value{}, false, frame.Push(IntValue(0))
	case opcode.Iconst1:
		return Value{}, false, frame.Push(IntValue(1))
	case opcode.Iconst2:
		return Value{}, false, frame.Push(IntValue(2))
	case opcode.Iconst3:
		return Value{}, false, frame.Push(IntValue(3))
	case opcode.Iconst4:
		return Value{}, false, frame.Push(IntValue(4))
	case opcode.Iconst5:
		return Value{}, false, frame.Push(IntValue(5))
	case opcode.Lconst0:
		return Value{}, false, frame.Push(LongValue(0))
	case opcode.Lconst1:
		return Value{}, false, frame.Push(LongValue(1))
	case opcode.Fconst0:
		return Value{}, false, frame.Push(FloatValue(0))
	case opcode.Fconst1:
		return Value{}, false, frame.Push(FloatValue(1))
	case opcode.Fconst2:
		return Value{}, false, frame.Push(FloatValue(2))
	case opcode.Dconst0:
		return Value{}, false, frame.Push(DoubleValue(0))
	case opcode.Dconst1:
		return Value{}, false, frame.Push(DoubleValue(1))

	case opcode.Bipush:
		return Value{}, false, frame.Push(IntValue(int32(frame.ReadI8())))
	case opcode.Sipush:
		return Value{}, false, frame.Push(IntValue(int32(frame.ReadI16())))

	case opcode.Ldc:
		return vm.executeLdc(frame, uint16(frame.ReadU8()))
	case opcode.LdcW:
		return vm.executeLdc(frame, frame.ReadU16())
	case opcode.Ldc2W:
		return vm.executeLdc2(frame, frame.ReadU16())

	// --- Load (indexed) ---
	case opcode.Iload, opcode.Lload, opcode.Fload, opcode.Dload, opcode.Aload:
		return vm.executeLoadIndexed(frame, int(frame.ReadU8()))

	// --- Load (slot-fixed) ---
	case opcode.Iload0, opcode.Lload0, opcode.Fload0, opcode.Dload0, opcode.Aload0:
		return vm.executeLoadIndexed(frame, 0)
	case opcode.Iload1, opcode.Lload1, opcode.Fload1, opcode.Dload1, opcode.Aload1:
		return vm.executeLoadIndexed(frame, 1)
	case opcode.Iload2, opcode.Lload2, opcode.Fload2, opcode.Dload2, opcode.Aload2:
		return vm.executeLoadIndexed(frame, 2)
	case opcode.Iload3, opcode.Lload3, opcode.Fload3, opcode.Dload3, opcode.Aload3:
		return vm.executeLoadIndexed(frame, 3)

	// --- Store (indexed) ---
	case opcode.Istore, opcode.Lstore, opcode.Fstore, opcode.Dstore, opcode.Astore:
		return vm.executeStoreIndexed(frame, int(frame.ReadU8()))

	// --- Store (slot-fixed) ---
	case opcode.Istore0, opcode.Lstore0, opcode.Fstore0, opcode.Dstore0, opcode.Astore0:
		return vm.executeStoreIndexed(frame, 0)
	case opcode.Istore1, opcode.Lstore1, opcode.Fstore1, opcode.Dstore1, opcode.Astore1:
		return vm.executeStoreIndexed(frame, 1)
	case opcode.Istore2, opcode.Lstore2, opcode.Fstore2, opcode.Dstore2, opcode.Astore2:
		return vm.executeStoreIndexed(frame, 2)
	case opcode.Istore3, opcode.Lstore3, opcode.Fstore3, opcode.Dstore3, opcode.Astore3:
		return vm.executeStoreIndexed(frame, 3)

	// --- Stack ops ---
	case opcode.Pop:
		_, err := frame.Pop()
		return Value{}, false, err
	case opcode.Dup:
		v, err := frame.Pop()
		if err != nil {
			return Value{}, false, err
		}
		if err := frame.Push(v); err != nil {
			return Value{}, false, err
		}
		return Value{}, false, frame.Push(v)

	// --- Integer arithmetic ---
	case opcode.Iadd:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) { return a + b, nil })
	case opcode.Isub:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) { return a - b, nil })
	case opcode.Imul:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) { return a * b, nil })
	case opcode.Idiv:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, jerr.New(jerr.DivisionByZero, "idiv by zero")
			}
			return a / b, nil
		})
	case opcode.Irem:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, jerr.New(jerr.DivisionByZero, "irem by zero")
			}
			return a % b, nil
		})
	case opcode.Ineg:
		return Value{}, false, unaryIntOp(frame, func(a int32) int32 { return -a })

	case opcode.Iand:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) { return a & b, nil })
	case opcode.Ior:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) { return a | b, nil })
	case opcode.Ixor:
		return Value{}, false, binaryIntOp(frame, func(a, b int32) (int32, error) { return a ^ b, nil })

	// --- Long arithmetic ---
	case opcode.Ladd:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) { return a + b, nil })
	case opcode.Lsub:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) { return a - b, nil })
	case opcode.Lmul:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) { return a * b, nil })
	case opcode.Ldiv:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, jerr.New(jerr.DivisionByZero, "ldiv by zero")
			}
			return a / b, nil
		})
	case opcode.Lrem:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, jerr.New(jerr.DivisionByZero, "lrem by zero")
			}
			return a % b, nil
		})
	case opcode.Lneg:
		return Value{}, false, unaryLongOp(frame, func(a int64) int64 { return -a })
	case opcode.Land:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) { return a & b, nil })
	case opcode.Lor:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) { return a | b, nil })
	case opcode.Lxor:
		return Value{}, false, binaryLongOp(frame, func(a, b int64) (int64, error) { return a ^ b, nil })

	// --- Float arithmetic ---
	case opcode.Fadd:
		return Value{}, false, binaryFloatOp(frame, func(a, b float32) float32 { return a + b })
	case opcode.Fsub:
		return Value{}, false, binaryFloatOp(frame, func(a, b float32) float32 { return a - b })
	case opcode.Fmul:
		return Value{}, false, binaryFloatOp(frame, func(a, b float32) float32 { return a * b })
	case opcode.Fdiv:
		return Value{}, false, binaryFloatOp(frame, func(a, b float32) float32 { return a / b })
	case opcode.Frem:
		return Value{}, false, binaryFloatOp(frame, func(a, b float32) float32 { return float32(math.Mod(float64(a), float64(b))) })
	case opcode.Fneg:
		return Value{}, false, unaryFloatOp(frame, func(a float32) float32 { return -a })

	// --- Double arithmetic ---
	case opcode.Dadd:
		return Value{}, false, binaryDoubleOp(frame, func(a, b float64) float64 { return a + b })
	case opcode.Dsub:
		return Value{}, false, binaryDoubleOp(frame, func(a, b float64) float64 { return a - b })
	case opcode.Dmul:
		return Value{}, false, binaryDoubleOp(frame, func(a, b float64) float64 { return a * b })
	case opcode.Ddiv:
		return Value{}, false, binaryDoubleOp(frame, func(a, b float64) float64 { return a / b })
	case opcode.Drem:
		return Value{}, false, binaryDoubleOp(frame, math.Mod)
	case opcode.Dneg:
		return Value{}, false, unaryDoubleOp(frame, func(a float64) float64 { return -a })

	// --- Conversions ---
	case opcode.I2l:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			i, err := v.asInt()
			return LongValue(int64(i)), err
		})
	case opcode.I2f:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			i, err := v.asInt()
			return FloatValue(float32(i)), err
		})
	case opcode.I2d:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			i, err := v.asInt()
			return DoubleValue(float64(i)), err
		})
	case opcode.I2b:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			i, err := v.asInt()
			return ByteValue(int32(int8(i))), err
		})
	case opcode.I2c:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			i, err := v.asInt()
			return CharValue(int32(uint16(i))), err
		})
	case opcode.I2s:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			i, err := v.asInt()
			return ShortValue(int32(int16(i))), err
		})
	case opcode.L2i:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			l, err := v.asLong()
			return IntValue(int32(l)), err
		})
	case opcode.L2f:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			l, err := v.asLong()
			return FloatValue(float32(l)), err
		})
	case opcode.L2d:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			l, err := v.asLong()
			return DoubleValue(float64(l)), err
		})
	case opcode.F2i:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			f, err := v.asFloat()
			return IntValue(floatToInt32(float64(f))), err
		})
	case opcode.F2l:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			f, err := v.asFloat()
			return LongValue(floatToInt64(float64(f))), err
		})
	case opcode.F2d:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			f, err := v.asFloat()
			return DoubleValue(float64(f)), err
		})
	case opcode.D2i:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			d, err := v.asDouble()
			return IntValue(floatToInt32(d)), err
		})
	case opcode.D2l:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			d, err := v.asDouble()
			return LongValue(floatToInt64(d)), err
		})
	case opcode.D2f:
		return Value{}, false, convertOp(frame, func(v Value) (Value, error) {
			d, err := v.asDouble()
			return FloatValue(float32(d)), err
		})

	// --- Increment ---
	case opcode.Iinc:
		index := int(frame.ReadU8())
		delta := int32(frame.ReadI8())
		cur, err := frame.GetLocal(index)
		if err != nil {
			return Value{}, false, err
		}
		i, err := cur.asInt()
		if err != nil {
			return Value{}, false, err
		}
		return Value{}, false, frame.SetLocal(index, IntValue(i+delta))

	// --- Unary branch (compare against 0) ---
	case opcode.Ifeq:
		return vm.branchUnary(frame, func(v int32) bool { return v == 0 })
	case opcode.Ifne:
		return vm.branchUnary(frame, func(v int32) bool { return v != 0 })
	case opcode.Iflt:
		return vm.branchUnary(frame, func(v int32) bool { return v < 0 })
	case opcode.Ifge:
		return vm.branchUnary(frame, func(v int32) bool { return v >= 0 })
	case opcode.Ifgt:
		return vm.branchUnary(frame, func(v int32) bool { return v > 0 })
	case opcode.Ifle:
		return vm.branchUnary(frame, func(v int32) bool { return v <= 0 })

	// --- Binary branch ---
	case opcode.IfIcmpeq:
		return vm.branchBinary(frame, func(v1, v2 int32) bool { return v1 == v2 })
	case opcode.IfIcmpne:
		return vm.branchBinary(frame, func(v1, v2 int32) bool { return v1 != v2 })
	case opcode.IfIcmplt:
		return vm.branchBinary(frame, func(v1, v2 int32) bool { return v1 < v2 })
	case opcode.IfIcmpge:
		return vm.branchBinary(frame, func(v1, v2 int32) bool { return v1 >= v2 })
	case opcode.IfIcmpgt:
		return vm.branchBinary(frame, func(v1, v2 int32) bool { return v1 > v2 })
	case opcode.IfIcmple:
		return vm.branchBinary(frame, func(v1, v2 int32) bool { return v1 <= v2 })

	// --- Unconditional branch ---
	case opcode.Goto:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		frame.PC = branchPC + int(offset)
	case opcode.GotoW:
		branchPC := frame.PC - 1
		offset := frame.ReadI32()
		frame.PC = branchPC + int(offset)

	// --- Return ---
	case opcode.Ireturn, opcode.Lreturn, opcode.Freturn, opcode.Dreturn, opcode.Areturn:
		v, err := frame.Pop()
		return v, true, err
	case opcode.Return:
		return VoidValue(), true, nil

	// --- Static field access ---
	case opcode.Getstatic:
		return Value{}, false, vm.executeGetstatic(frame)
	case opcode.Putstatic:
		return Value{}, false, vm.executePutstatic(frame)

	// --- Static invocation ---
	case opcode.Invokestatic:
		return vm.executeInvokestatic(frame)

	default:
		return Value{}, false, jerr.New(jerr.UnhandledOpcode, "unhandled opcode 0x%02X (%s) at pc=%d", op, opcode.Mnemonic(op), frame.PC-1)
	}

	return Value{}, false, nil
}

func (vm *VM) executeLoadIndexed(frame *Frame, index int) (Value, bool, error) {
	v, err := frame.GetLocal(index)
	if err != nil {
		return Value{}, false, err
	}
	return Value{}, false, frame.Push(v)
}

func (vm *VM) executeStoreIndexed(frame *Frame, index int) (Value, bool, error) {
	v, err := frame.Pop()
	if err != nil {
		return Value{}, false, err
	}
	return Value{}, false, frame.SetLocal(index, v)
}

func (vm *VM) branchUnary(frame *Frame, cond func(int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1
	offset := frame.ReadI16()
	val, err := frame.Pop()
	if err != nil {
		return Value{}, false, err
	}
	i, err := val.asInt()
	if err != nil {
		return Value{}, false, err
	}
	if cond(i) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

func (vm *VM) branchBinary(frame *Frame, cond func(v1, v2 int32) bool) (Value, bool, error) {
	branchPC := frame.PC - 1
	offset := frame.ReadI16()
	val2, err := frame.Pop()
	if err != nil {
		return Value{}, false, err
	}
	val1, err := frame.Pop()
	if err != nil {
		return Value{}, false, err
	}
	v1, err := val1.asInt()
	if err != nil {
		return Value{}, false, err
	}
	v2, err := val2.asInt()
	if err != nil {
		return Value{}, false, err
	}
	if cond(v1, v2) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

func binaryIntOp(frame *Frame, op func(a, b int32) (int32, error)) error {
	b, err := frame.Pop()
	if err != nil {
		return err
	}
	a, err := frame.Pop()
	if err != nil {
		return err
	}
	ai, err := a.asInt()
	if err != nil {
		return err
	}
	bi, err := b.asInt()
	if err != nil {
		return err
	}
	result, err := op(ai, bi)
	if err != nil {
		return err
	}
	return frame.Push(IntValue(result))
}

func unaryIntOp(frame *Frame, op func(int32) int32) error {
	v, err := frame.Pop()
	if err != nil {
		return err
	}
	i, err := v.asInt()
	if err != nil {
		return err
	}
	return frame.Push(IntValue(op(i)))
}

func binaryLongOp(frame *Frame, op func(a, b int64) (int64, error)) error {
	b, err := frame.Pop()
	if err != nil {
		return err
	}
	a, err := frame.Pop()
	if err != nil {
		return err
	}
	al, err := a.asLong()
	if err != nil {
		return err
	}
	bl, err := b.asLong()
	if err != nil {
		return err
	}
	result, err := op(al, bl)
	if err != nil {
		return err
	}
	return frame.Push(LongValue(result))
}

func unaryLongOp(frame *Frame, op func(int64) int64) error {
	v, err := frame.Pop()
	if err != nil {
		return err
	}
	l, err := v.asLong()
	if err != nil {
		return err
	}
	return frame.Push(LongValue(op(l)))
}

func binaryFloatOp(frame *Frame, op func(a, b float32) float32) error {
	b, err := frame.Pop()
	if err != nil {
		return err
	}
	a, err := frame.Pop()
	if err != nil {
		return err
	}
	af, err := a.asFloat()
	if err != nil {
		return err
	}
	bf, err := b.asFloat()
	if err != nil {
		return err
	}
	return frame.Push(FloatValue(op(af, bf)))
}

func unaryFloatOp(frame *Frame, op func(float32) float32) error {
	v, err := frame.Pop()
	if err != nil {
		return err
	}
	f, err := v.asFloat()
	if err != nil {
		return err
	}
	return frame.Push(FloatValue(op(f)))
}

func binaryDoubleOp(frame *Frame, op func(a, b float64) float64) error {
	b, err := frame.Pop()
	if err != nil {
		return err
	}
	a, err := frame.Pop()
	if err != nil {
		return err
	}
	ad, err := a.asDouble()
	if err != nil {
		return err
	}
	bd, err := b.asDouble()
	if err != nil {
		return err
	}
	return frame.Push(DoubleValue(op(ad, bd)))
}

func unaryDoubleOp(frame *Frame, op func(float64) float64) error {
	v, err := frame.Pop()
	if err != nil {
		return err
	}
	d, err := v.asDouble()
	if err != nil {
		return err
	}
	return frame.Push(DoubleValue(op(d)))
}

func convertOp(frame *Frame, op func(Value) (Value, error)) error {
	v, err := frame.Pop()
	if err != nil {
		return err
	}
	result, err := op(v)
	if err != nil {
		return err
	}
	return frame.Push(result)
}

// floatToInt32 rounds toward zero and clamps NaN to 0, per JVMS §2.8.3.
func floatToInt32(f float64) int32 {
	if math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

func floatToInt64(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}
