// Package disasm renders a decoded ClassFile as a javap-style text listing:
// constant pool, access flags, field and method signatures, and a
// per-instruction bytecode dump sharing pkg/opcode with the interpreter.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/jclassvm/jclassvm/pkg/classfile"
	"github.com/jclassvm/jclassvm/pkg/descriptor"
	"github.com/jclassvm/jclassvm/pkg/opcode"
)

// Disassemble writes a full textual listing of cf to w.
func Disassemble(w io.Writer, cf *classfile.ClassFile) error {
	className, err := cf.ClassName()
	if err != nil {
		return err
	}
	superName, err := cf.SuperClassName()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %s", strings.Join(classAccessFlagNames(cf.AccessFlags), " "), className)
	if superName != "" {
		fmt.Fprintf(w, " extends %s", superName)
	}
	fmt.Fprintf(w, "\n  minor version: %d\n  major version: %d\n", cf.MinorVersion, cf.MajorVersion)

	fmt.Fprintf(w, "\nConstant pool:\n")
	for i := 1; i < cf.ConstantPool.Count(); i++ {
		entry, err := cf.ConstantPool.Entry(uint16(i))
		if err != nil {
			continue // unusable index (gap slot after Long/Double), skip silently
		}
		tag, payload := describeConstant(cf.ConstantPool, entry, uint16(i))
		fmt.Fprintf(w, "  #%-4d = %-18s %s\n", i, tag, payload)
	}

	fmt.Fprintf(w, "\nFields:\n")
	for i := range cf.Fields {
		if err := disassembleField(w, &cf.Fields[i]); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\nMethods:\n")
	for i := range cf.Methods {
		if err := disassembleMethod(w, cf, &cf.Methods[i]); err != nil {
			return err
		}
	}

	return nil
}

func disassembleField(w io.Writer, f *classfile.FieldInfo) error {
	fd, _, err := descriptor.ParseField(f.Descriptor)
	if err != nil {
		return err
	}
	flags := fieldAccessFlagNames(f.AccessFlags)
	fmt.Fprintf(w, "  %s %s %s;\n", strings.Join(flags, " "), fd.String(), f.Name)
	return nil
}

func disassembleMethod(w io.Writer, cf *classfile.ClassFile, m *classfile.MethodInfo) error {
	md, err := descriptor.ParseMethod(m.Descriptor)
	if err != nil {
		return err
	}
	params := make([]string, len(md.Params))
	for i, p := range md.Params {
		params[i] = p.String()
	}
	ret := "void"
	if md.Return != nil {
		ret = md.Return.String()
	}
	flags := methodAccessFlagNames(m.AccessFlags)
	fmt.Fprintf(w, "  %s %s %s(%s);\n", strings.Join(flags, " "), ret, m.Name, strings.Join(params, ", "))

	if m.Code == nil {
		return nil
	}
	fmt.Fprintf(w, "    Code:\n")
	fmt.Fprintf(w, "      stack=%d, locals=%d\n", m.Code.MaxStack, m.Code.MaxLocals)
	return disassembleCode(w, cf, m.Code.Code)
}

// disassembleCode walks code printing one line per instruction. A variable-
// length opcode (tableswitch, lookupswitch, wide) breaks pc bookkeeping, so
// it prints a placeholder and stops rather than risk misaligned output for
// the remainder of the method.
func disassembleCode(w io.Writer, cf *classfile.ClassFile, code []byte) error {
	pc := 0
	for pc < len(code) {
		op := code[pc]
		info, known := opcode.Table[op]
		if !known {
			fmt.Fprintf(w, "      %4d: unknown 0x%02X\n", pc, op)
			pc++
			continue
		}
		if info.OperandLen < 0 {
			fmt.Fprintf(w, "      %4d: %s ...(variable-length, not disassembled)\n", pc, info.Mnemonic)
			return nil
		}

		operandStart := pc + 1
		operandEnd := operandStart + info.OperandLen
		if operandEnd > len(code) {
			fmt.Fprintf(w, "      %4d: %s <truncated>\n", pc, info.Mnemonic)
			return nil
		}
		operand := code[operandStart:operandEnd]

		line := fmt.Sprintf("      %4d: %s", pc, info.Mnemonic)
		if len(operand) > 0 {
			line += " " + formatOperand(info, operand)
		}
		if comment := poolComment(cf, info, operand); comment != "" {
			line += " // " + comment
		}
		fmt.Fprintln(w, line)

		pc = operandEnd
	}
	return nil
}

func formatOperand(info opcode.Info, operand []byte) string {
	switch len(operand) {
	case 1:
		return fmt.Sprintf("%d", operand[0])
	case 2:
		return fmt.Sprintf("%d", int(operand[0])<<8|int(operand[1]))
	case 4:
		return fmt.Sprintf("%d", int(operand[0])<<24|int(operand[1])<<16|int(operand[2])<<8|int(operand[3]))
	default:
		return fmt.Sprintf("% X", operand)
	}
}

// poolComment resolves a pool-referencing instruction's operand into a
// human-readable summary, javap-style.
func poolComment(cf *classfile.ClassFile, info opcode.Info, operand []byte) string {
	switch info.Mnemonic {
	case "ldc":
		if len(operand) != 1 {
			return ""
		}
		return summarizeConstant(cf.ConstantPool, uint16(operand[0]))
	case "ldc_w", "ldc2_w", "getstatic", "putstatic", "invokestatic", "invokevirtual",
		"invokespecial", "new", "checkcast", "instanceof", "anewarray":
		if len(operand) != 2 {
			return ""
		}
		return summarizeConstant(cf.ConstantPool, uint16(operand[0])<<8|uint16(operand[1]))
	case "invokeinterface", "invokedynamic":
		if len(operand) != 4 {
			return ""
		}
		return summarizeConstant(cf.ConstantPool, uint16(operand[0])<<8|uint16(operand[1]))
	default:
		return ""
	}
}

func summarizeConstant(pool *classfile.ConstantPool, index uint16) string {
	entry, err := pool.Entry(index)
	if err != nil {
		return ""
	}
	_, payload := describeConstant(pool, entry, index)
	return payload
}

// describeConstant returns (tag name, resolved payload) for a pool entry.
func describeConstant(pool *classfile.ConstantPool, entry classfile.ConstantPoolEntry, index uint16) (string, string) {
	switch e := entry.(type) {
	case *classfile.ConstantUtf8:
		return "Utf8", fmt.Sprintf("%q", e.Value)
	case *classfile.ConstantInteger:
		return "Integer", fmt.Sprintf("%d", e.Value)
	case *classfile.ConstantFloat:
		return "Float", fmt.Sprintf("%g", e.Value)
	case *classfile.ConstantLong:
		return "Long", fmt.Sprintf("%d", e.Value)
	case *classfile.ConstantDouble:
		return "Double", fmt.Sprintf("%g", e.Value)
	case *classfile.ConstantClass:
		name, err := pool.Utf8(e.NameIndex)
		if err != nil {
			return "Class", fmt.Sprintf("#%d", e.NameIndex)
		}
		return "Class", fmt.Sprintf("#%d // %s", e.NameIndex, name)
	case *classfile.ConstantString:
		s, err := pool.Utf8(e.StringIndex)
		if err != nil {
			return "String", fmt.Sprintf("#%d", e.StringIndex)
		}
		return "String", fmt.Sprintf("#%d // %q", e.StringIndex, s)
	case *classfile.ConstantFieldref:
		return "Fieldref", refPayload(pool, e.ClassIndex, e.NameAndTypeIndex)
	case *classfile.ConstantMethodref:
		return "Methodref", refPayload(pool, e.ClassIndex, e.NameAndTypeIndex)
	case *classfile.ConstantInterfaceMethodref:
		return "InterfaceMethodref", refPayload(pool, e.ClassIndex, e.NameAndTypeIndex)
	case *classfile.ConstantNameAndType:
		name, _ := pool.Utf8(e.NameIndex)
		desc, _ := pool.Utf8(e.DescriptorIndex)
		return "NameAndType", fmt.Sprintf("#%d:#%d // %s:%s", e.NameIndex, e.DescriptorIndex, name, desc)
	case *classfile.ConstantMethodHandle:
		return "MethodHandle", fmt.Sprintf("%d:#%d", e.ReferenceKind, e.ReferenceIndex)
	case *classfile.ConstantMethodType:
		desc, _ := pool.Utf8(e.DescriptorIndex)
		return "MethodType", fmt.Sprintf("#%d // %s", e.DescriptorIndex, desc)
	case *classfile.ConstantDynamic:
		return "Dynamic", fmt.Sprintf("#%d:#%d", e.BootstrapMethodAttrIndex, e.NameAndTypeIndex)
	case *classfile.ConstantInvokeDynamic:
		return "InvokeDynamic", fmt.Sprintf("#%d:#%d", e.BootstrapMethodAttrIndex, e.NameAndTypeIndex)
	case *classfile.ConstantModule:
		name, _ := pool.Utf8(e.NameIndex)
		return "Module", name
	case *classfile.ConstantPackage:
		name, _ := pool.Utf8(e.NameIndex)
		return "Package", name
	default:
		return fmt.Sprintf("tag(%d)", entry.Tag()), fmt.Sprintf("#%d", index)
	}
}

func refPayload(pool *classfile.ConstantPool, classIndex, natIndex uint16) string {
	className, _ := pool.ClassName(classIndex)
	name, desc, _ := pool.NameAndType(natIndex)
	return fmt.Sprintf("#%d.#%d // %s.%s:%s", classIndex, natIndex, className, name, desc)
}

func classAccessFlagNames(flags uint16) []string {
	var names []string
	add := func(bit uint16, name string) {
		if flags&bit != 0 {
			names = append(names, name)
		}
	}
	add(classfile.AccPublic, "public")
	add(classfile.AccFinal, "final")
	add(classfile.AccInterface, "interface")
	add(classfile.AccAbstract, "abstract")
	add(classfile.AccSynthetic, "synthetic")
	add(classfile.AccAnnotation, "annotation")
	add(classfile.AccEnum, "enum")
	add(classfile.AccModule, "module")
	names = append(names, "class")
	return names
}

func fieldAccessFlagNames(flags uint16) []string {
	var names []string
	add := func(bit uint16, name string) {
		if flags&bit != 0 {
			names = append(names, name)
		}
	}
	add(classfile.AccFieldPublic, "public")
	add(classfile.AccFieldPrivate, "private")
	add(classfile.AccFieldProtected, "protected")
	add(classfile.AccFieldStatic, "static")
	add(classfile.AccFieldFinal, "final")
	add(classfile.AccFieldVolatile, "volatile")
	add(classfile.AccFieldTransient, "transient")
	add(classfile.AccFieldSynthetic, "synthetic")
	add(classfile.AccFieldEnum, "enum")
	return names
}

func methodAccessFlagNames(flags uint16) []string {
	var names []string
	add := func(bit uint16, name string) {
		if flags&bit != 0 {
			names = append(names, name)
		}
	}
	add(classfile.AccMethodPublic, "public")
	add(classfile.AccMethodPrivate, "private")
	add(classfile.AccMethodProtected, "protected")
	add(classfile.AccMethodStatic, "static")
	add(classfile.AccMethodFinal, "final")
	add(classfile.AccMethodSynchronized, "synchronized")
	add(classfile.AccMethodBridge, "bridge")
	add(classfile.AccMethodVarargs, "varargs")
	add(classfile.AccMethodNative, "native")
	add(classfile.AccMethodAbstract, "abstract")
	add(classfile.AccMethodStrict, "strictfp")
	add(classfile.AccMethodSynthetic, "synthetic")
	return names
}
