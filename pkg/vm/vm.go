// Package vm is the stack-based bytecode interpreter: frame stack, operand
// stack, per-class static-field store, and the opcode dispatch loop in
// instructions.go.
package vm

import (
	"github.com/jclassvm/jclassvm/pkg/classfile"
	"github.com/jclassvm/jclassvm/pkg/descriptor"
	"github.com/jclassvm/jclassvm/pkg/jerr"
)

// maxFrameDepth bounds nested invokestatic recursion so a self-recursive
// method fails with StackOverflow instead of exhausting the host stack.
const maxFrameDepth = 1024

// StaticData is a single class's static-field slots, keyed by field name.
type StaticData map[string]Value

// VM is the interpreter's mutable execution state: the per-class static
// store and the live frame stack. It has no concept of an active ClassFile
// of its own — every call names the ClassFile it runs against — so one VM
// can juggle statics for several loaded classes at once.
type VM struct {
	statics     map[string]StaticData // binary class name -> static fields
	initialized map[string]bool       // binary class name -> InitializeClass done
	frames      []*Frame
}

// New returns a VM with empty static-data and initialization bookkeeping.
func New() *VM {
	return &VM{
		statics:     make(map[string]StaticData),
		initialized: make(map[string]bool),
	}
}

// InitializeClass seeds cf's static fields and runs its <clinit>, if any.
// It is idempotent: a class already marked initialized returns nil
// immediately, including when called re-entrantly from within its own
// <clinit> (SPEC_FULL.md §5 ordering guarantee).
func (vm *VM) InitializeClass(cf *classfile.ClassFile) error {
	className, err := cf.ClassName()
	if err != nil {
		return err
	}
	if vm.initialized[className] {
		return nil
	}
	vm.initialized[className] = true

	data := make(StaticData)
	vm.statics[className] = data
	for i := range cf.Fields {
		f := &cf.Fields[i]
		if !f.IsStatic() {
			continue
		}
		fd, _, err := descriptor.ParseField(f.Descriptor)
		if err != nil {
			return jerr.Wrap(jerr.BadDescriptor, err, "parsing descriptor of static field %s", f.Name)
		}
		val := zeroValueForDescriptor(fd)
		if f.HasConstantValue {
			val, err = constantValueFor(cf.ConstantPool, fd, f.ConstantValueIndex)
			if err != nil {
				return jerr.Wrap(jerr.PoolKindMismatch, err, "resolving ConstantValue of static field %s", f.Name)
			}
		}
		data[f.Name] = val
	}

	if clinit := cf.FindMethod("<clinit>", "()V"); clinit != nil {
		if _, err := vm.Call(cf, clinit, nil); err != nil {
			return err
		}
	}
	return nil
}

// Call ensures cf is initialized, then runs method to completion with args
// bound to its locals (each Long/Double argument consuming two adjacent
// slots, per the JVMS-faithful resolution in SPEC_FULL.md §9).
func (vm *VM) Call(cf *classfile.ClassFile, method *classfile.MethodInfo, args []Value) (Value, error) {
	if err := vm.InitializeClass(cf); err != nil {
		return Value{}, err
	}
	return vm.invoke(cf, method, args)
}

// CallPublicStaticNoArg is the method-selector convenience of SPEC_FULL.md
// §6.2: it locates method by name, requires PUBLIC+STATIC and an empty
// parameter list, then calls it.
func (vm *VM) CallPublicStaticNoArg(cf *classfile.ClassFile, methodName string) (Value, error) {
	method := cf.FindMethodByName(methodName)
	if method == nil {
		return Value{}, jerr.New(jerr.NoCode, "no method named %q", methodName)
	}
	if !method.IsPublicStatic() {
		return Value{}, jerr.New(jerr.WrongValueKind, "method %q is not both public and static", methodName)
	}
	md, err := descriptor.ParseMethod(method.Descriptor)
	if err != nil {
		return Value{}, jerr.Wrap(jerr.BadDescriptor, err, "parsing descriptor of method %q", methodName)
	}
	if len(md.Params) != 0 {
		return Value{}, jerr.New(jerr.WrongValueKind, "method %q takes parameters; CallPublicStaticNoArg requires none", methodName)
	}
	return vm.Call(cf, method, nil)
}

// invoke runs method's Code without re-checking class initialization; Call
// and InitializeClass's own <clinit> invocation both funnel through it via
// Call, which performs the (idempotent) initialization check first.
func (vm *VM) invoke(cf *classfile.ClassFile, method *classfile.MethodInfo, args []Value) (Value, error) {
	if method.Code == nil {
		return Value{}, jerr.New(jerr.NoCode, "method %s%s has no Code attribute", method.Name, method.Descriptor)
	}
	if len(vm.frames) >= maxFrameDepth {
		return Value{}, jerr.New(jerr.StackOverflow, "exceeded max frame depth %d calling %s%s", maxFrameDepth, method.Name, method.Descriptor)
	}

	frame := NewFrame(method.Code.MaxLocals, method.Code.MaxStack, method.Code.Code, cf)
	slot := 0
	for _, a := range args {
		if err := frame.SetLocal(slot, a); err != nil {
			return Value{}, err
		}
		if a.IsWide() {
			slot += 2
		} else {
			slot++
		}
	}

	vm.frames = append(vm.frames, frame)
	defer func() { vm.frames = vm.frames[:len(vm.frames)-1] }()

	for {
		if frame.PC >= len(frame.Code) {
			return Value{}, jerr.New(jerr.UnhandledOpcode, "method %s%s fell off the end of its code without returning", method.Name, method.Descriptor)
		}
		op := frame.Code[frame.PC]
		frame.PC++
		result, hasReturn, err := vm.executeInstruction(frame, op)
		if err != nil {
			return Value{}, err
		}
		if hasReturn {
			return result, nil
		}
	}
}

// executeGetstatic resolves a FieldRef and pushes the named static's value.
// Cross-class static access is out of scope (SPEC_FULL.md Non-goals:
// "dynamic class resolution"); the referenced class must already have a
// StaticData entry, which in practice means it is frame.Class itself.
func (vm *VM) executeGetstatic(frame *Frame) error {
	index := frame.ReadU16()
	fref, err := frame.Class.ConstantPool.Fieldref(index)
	if err != nil {
		return err
	}
	data, ok := vm.statics[fref.ClassName]
	if !ok {
		return jerr.New(jerr.PoolKindMismatch, "getstatic: class %q has no loaded static data (cross-class static access is unsupported)", fref.ClassName)
	}
	val, ok := data[fref.FieldName]
	if !ok {
		return jerr.New(jerr.PoolKindMismatch, "getstatic: class %q has no static field %q", fref.ClassName, fref.FieldName)
	}
	return frame.Push(val)
}

// executePutstatic resolves a FieldRef and stores the popped value.
func (vm *VM) executePutstatic(frame *Frame) error {
	index := frame.ReadU16()
	fref, err := frame.Class.ConstantPool.Fieldref(index)
	if err != nil {
		return err
	}
	val, err := frame.Pop()
	if err != nil {
		return err
	}
	data, ok := vm.statics[fref.ClassName]
	if !ok {
		return jerr.New(jerr.PoolKindMismatch, "putstatic: class %q has no loaded static data (cross-class static access is unsupported)", fref.ClassName)
	}
	data[fref.FieldName] = val
	return nil
}

// executeLdc resolves an Integer/Float/String/Class/MethodHandle/MethodType/
// Dynamic constant and pushes it. String/Class/MethodHandle/MethodType/
// Dynamic constants push an opaque Ref (SPEC_FULL.md §4.3: "there is no
// object heap").
func (vm *VM) executeLdc(frame *Frame, index uint16) (Value, bool, error) {
	entry, err := frame.Class.ConstantPool.Entry(index)
	if err != nil {
		return Value{}, false, err
	}
	var v Value
	switch e := entry.(type) {
	case *classfile.ConstantInteger:
		v = IntValue(e.Value)
	case *classfile.ConstantFloat:
		v = FloatValue(e.Value)
	case *classfile.ConstantString:
		s, err := frame.Class.ConstantPool.String(index)
		if err != nil {
			return Value{}, false, err
		}
		v = RefValue(s)
	case *classfile.ConstantClass:
		name, err := frame.Class.ConstantPool.ClassName(index)
		if err != nil {
			return Value{}, false, err
		}
		v = RefValue(name)
	case *classfile.ConstantMethodHandle:
		v = RefValue(e)
	case *classfile.ConstantMethodType:
		desc, err := frame.Class.ConstantPool.Utf8(e.DescriptorIndex)
		if err != nil {
			return Value{}, false, err
		}
		v = RefValue(desc)
	case *classfile.ConstantDynamic:
		v = RefValue(e)
	default:
		return Value{}, false, jerr.New(jerr.PoolKindMismatch, "ldc: constant pool index %d (tag=%d) is not a loadable constant", index, entry.Tag())
	}
	return Value{}, false, frame.Push(v)
}

// executeLdc2 resolves a Long/Double constant for ldc2_w.
func (vm *VM) executeLdc2(frame *Frame, index uint16) (Value, bool, error) {
	entry, err := frame.Class.ConstantPool.Entry(index)
	if err != nil {
		return Value{}, false, err
	}
	var v Value
	switch e := entry.(type) {
	case *classfile.ConstantLong:
		v = LongValue(e.Value)
	case *classfile.ConstantDouble:
		v = DoubleValue(e.Value)
	default:
		return Value{}, false, jerr.New(jerr.PoolKindMismatch, "ldc2_w: constant pool index %d (tag=%d) is not Long or Double", index, entry.Tag())
	}
	return Value{}, false, frame.Push(v)
}

// executeInvokestatic resolves a MethodRef, recursively calls the target
// (same-class only — SPEC_FULL.md Non-goal: multi-class resolution), pops
// its N argument slots, and pushes the return value iff the callee is
// non-void.
func (vm *VM) executeInvokestatic(frame *Frame) (Value, bool, error) {
	index := frame.ReadU16()
	mref, err := frame.Class.ConstantPool.Methodref(index)
	if err != nil {
		return Value{}, false, err
	}
	target := frame.Class.FindMethod(mref.MethodName, mref.Descriptor)
	if target == nil {
		return Value{}, false, jerr.New(jerr.PoolKindMismatch, "invokestatic: %s%s not found (cross-class resolution is unsupported)", mref.MethodName, mref.Descriptor)
	}
	md, err := descriptor.ParseMethod(target.Descriptor)
	if err != nil {
		return Value{}, false, jerr.Wrap(jerr.BadDescriptor, err, "parsing descriptor of invokestatic target %s", mref.MethodName)
	}

	n := len(md.Params)
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := frame.Pop()
		if err != nil {
			return Value{}, false, err
		}
		args[i] = v
	}

	result, err := vm.Call(frame.Class, target, args)
	if err != nil {
		return Value{}, false, err
	}
	if md.Return == nil {
		return Value{}, false, nil
	}
	return Value{}, false, frame.Push(result)
}

// zeroValueForDescriptor is a static field's default fill before any
// ConstantValue is applied.
func zeroValueForDescriptor(fd descriptor.FieldDescriptor) Value {
	if fd.Dimensions > 0 || fd.Kind == descriptor.Object {
		return RefValue(nil)
	}
	switch fd.Kind {
	case descriptor.Byte, descriptor.Boolean:
		return ByteValue(0)
	case descriptor.Char:
		return CharValue(0)
	case descriptor.Short:
		return ShortValue(0)
	case descriptor.Long:
		return LongValue(0)
	case descriptor.Float:
		return FloatValue(0)
	case descriptor.Double:
		return DoubleValue(0)
	default:
		return IntValue(0)
	}
}

// constantValueFor resolves a field's ConstantValue attribute through the
// pool, shaped by the field's own descriptor kind.
func constantValueFor(pool *classfile.ConstantPool, fd descriptor.FieldDescriptor, index uint16) (Value, error) {
	if fd.Dimensions > 0 {
		return Value{}, jerr.New(jerr.WrongValueKind, "array-typed field cannot carry a ConstantValue")
	}
	switch fd.Kind {
	case descriptor.Long:
		v, err := pool.Long(index)
		return LongValue(v), err
	case descriptor.Float:
		v, err := pool.Float(index)
		return FloatValue(v), err
	case descriptor.Double:
		v, err := pool.Double(index)
		return DoubleValue(v), err
	case descriptor.Object:
		s, err := pool.String(index)
		return RefValue(s), err
	case descriptor.Byte:
		v, err := pool.Integer(index)
		return ByteValue(v), err
	case descriptor.Short:
		v, err := pool.Integer(index)
		return ShortValue(v), err
	case descriptor.Char:
		v, err := pool.Integer(index)
		return CharValue(v), err
	case descriptor.Boolean:
		v, err := pool.Integer(index)
		return ByteValue(v), err
	default: // Int
		v, err := pool.Integer(index)
		return IntValue(v), err
	}
}
