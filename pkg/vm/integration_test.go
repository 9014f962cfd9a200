package vm

import (
	"testing"

	"github.com/jclassvm/jclassvm/pkg/classfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// integrationCP is a minimal constant pool builder shared by the end-to-end
// scenarios below.
type integrationCP struct {
	entries []classfile.ConstantPoolEntry
}

func (b *integrationCP) add(e classfile.ConstantPoolEntry) uint16 {
	if b.entries == nil {
		b.entries = []classfile.ConstantPoolEntry{nil}
	}
	b.entries = append(b.entries, e)
	return uint16(len(b.entries) - 1)
}

func simpleClass(name string, methods []classfile.MethodInfo, fields []classfile.FieldInfo) *classfile.ClassFile {
	b := &integrationCP{}
	nameIdx := b.add(&classfile.ConstantUtf8{Value: name})
	classIdx := b.add(&classfile.ConstantClass{NameIndex: nameIdx})
	return &classfile.ClassFile{
		ConstantPool: classfile.NewConstantPool(b.entries),
		ThisClass:    classIdx,
		Methods:      methods,
		Fields:       fields,
	}
}

// TestConstantReturn covers the "constant return" scenario: a method that
// does nothing but push a literal and return it.
func TestConstantReturn(t *testing.T) {
	code := []byte{0x06, 0xAC} // iconst_3, ireturn
	cf := simpleClass("Const", []classfile.MethodInfo{
		{
			AccessFlags: classfile.AccMethodPublic | classfile.AccMethodStatic,
			Name:        "run",
			Descriptor:  "()I",
			Code:        &classfile.CodeAttribute{MaxStack: 1, MaxLocals: 0, Code: code},
		},
	}, nil)

	v := New()
	result, err := v.CallPublicStaticNoArg(cf, "run")
	require.NoError(t, err)
	assert.Equal(t, int32(3), result.Int)
}

// TestSimpleArithmetic covers "simple arithmetic": 40 + 2.
func TestSimpleArithmetic(t *testing.T) {
	code := []byte{0x10, 0x28, 0x10, 0x02, 0x60, 0xAC} // bipush 40, bipush 2, iadd, ireturn
	cf := simpleClass("Arith", []classfile.MethodInfo{
		{
			AccessFlags: classfile.AccMethodPublic | classfile.AccMethodStatic,
			Name:        "run",
			Descriptor:  "()I",
			Code:        &classfile.CodeAttribute{MaxStack: 2, MaxLocals: 0, Code: code},
		},
	}, nil)

	v := New()
	result, err := v.CallPublicStaticNoArg(cf, "run")
	require.NoError(t, err)
	assert.Equal(t, int32(42), result.Int)
}

// TestLoopSum covers the "loop sum 1..10" boundary case, driven entirely by
// goto/if_icmpgt/iinc.
func TestLoopSum(t *testing.T) {
	code := []byte{
		0x04, 0x3C, 0x03, 0x3D, // iconst_1, istore_1, iconst_0, istore_2
		0x1B, 0x10, 0x0A, 0xA3, 0x00, 0x0D, // L: iload_1, bipush 10, if_icmpgt +13 (to E)
		0x1C, 0x1B, 0x60, 0x3D, // iload_2, iload_1, iadd, istore_2
		0x84, 0x01, 0x01, // iinc 1, 1
		0xA7, 0xFF, 0xF3, // goto -13 (back to L)
		0x1C, 0xAC, // E: iload_2, ireturn
	}
	cf := simpleClass("Loop", []classfile.MethodInfo{
		{
			AccessFlags: classfile.AccMethodPublic | classfile.AccMethodStatic,
			Name:        "run",
			Descriptor:  "()I",
			Code:        &classfile.CodeAttribute{MaxStack: 4, MaxLocals: 3, Code: code},
		},
	}, nil)

	v := New()
	result, err := v.CallPublicStaticNoArg(cf, "run")
	require.NoError(t, err)
	assert.Equal(t, int32(55), result.Int)
}

// TestStaticReadWrite covers "static read/write": a static field initialized
// via ConstantValue, then incremented and read back through getstatic/
// putstatic in the same method.
func TestStaticReadWrite(t *testing.T) {
	b := &integrationCP{}
	classNameIdx := b.add(&classfile.ConstantUtf8{Value: "Counter"})
	classIdx := b.add(&classfile.ConstantClass{NameIndex: classNameIdx})
	fieldNameIdx := b.add(&classfile.ConstantUtf8{Value: "count"})
	fieldDescIdx := b.add(&classfile.ConstantUtf8{Value: "I"})
	natIdx := b.add(&classfile.ConstantNameAndType{NameIndex: fieldNameIdx, DescriptorIndex: fieldDescIdx})
	fieldrefIdx := b.add(&classfile.ConstantFieldref{ClassIndex: classIdx, NameAndTypeIndex: natIdx})
	constValIdx := b.add(&classfile.ConstantInteger{Value: 7})

	// getstatic #fieldref, iconst_1, iadd, putstatic #fieldref, getstatic #fieldref, ireturn
	code := []byte{
		0xB2, byte(fieldrefIdx >> 8), byte(fieldrefIdx),
		0x04, 0x60,
		0xB3, byte(fieldrefIdx >> 8), byte(fieldrefIdx),
		0xB2, byte(fieldrefIdx >> 8), byte(fieldrefIdx),
		0xAC,
	}

	cf := &classfile.ClassFile{
		ConstantPool: classfile.NewConstantPool(b.entries),
		ThisClass:    classIdx,
		Fields: []classfile.FieldInfo{
			{
				AccessFlags:        classfile.AccFieldStatic,
				Name:               "count",
				Descriptor:         "I",
				HasConstantValue:   true,
				ConstantValueIndex: constValIdx,
			},
		},
		Methods: []classfile.MethodInfo{
			{
				AccessFlags: classfile.AccMethodPublic | classfile.AccMethodStatic,
				Name:        "run",
				Descriptor:  "()I",
				Code:        &classfile.CodeAttribute{MaxStack: 4, MaxLocals: 0, Code: code},
			},
		},
	}

	v := New()
	result, err := v.CallPublicStaticNoArg(cf, "run")
	require.NoError(t, err)
	assert.Equal(t, int32(8), result.Int)
}

// TestClinitOrdering covers "clinit ordering": <clinit> must run (and set
// the static's real value) before any method reads it.
func TestClinitOrdering(t *testing.T) {
	b := &integrationCP{}
	classNameIdx := b.add(&classfile.ConstantUtf8{Value: "Init"})
	classIdx := b.add(&classfile.ConstantClass{NameIndex: classNameIdx})
	fieldNameIdx := b.add(&classfile.ConstantUtf8{Value: "x"})
	fieldDescIdx := b.add(&classfile.ConstantUtf8{Value: "I"})
	natIdx := b.add(&classfile.ConstantNameAndType{NameIndex: fieldNameIdx, DescriptorIndex: fieldDescIdx})
	fieldrefIdx := b.add(&classfile.ConstantFieldref{ClassIndex: classIdx, NameAndTypeIndex: natIdx})

	// <clinit>: bipush 11, putstatic #fieldref, return
	clinitCode := []byte{
		0x10, 0x0B,
		0xB3, byte(fieldrefIdx >> 8), byte(fieldrefIdx),
		0xB1,
	}
	// get: getstatic #fieldref, ireturn
	getCode := []byte{
		0xB2, byte(fieldrefIdx >> 8), byte(fieldrefIdx),
		0xAC,
	}

	cf := &classfile.ClassFile{
		ConstantPool: classfile.NewConstantPool(b.entries),
		ThisClass:    classIdx,
		Fields: []classfile.FieldInfo{
			{AccessFlags: classfile.AccFieldStatic, Name: "x", Descriptor: "I"},
		},
		Methods: []classfile.MethodInfo{
			{
				AccessFlags: classfile.AccMethodStatic,
				Name:        "<clinit>",
				Descriptor:  "()V",
				Code:        &classfile.CodeAttribute{MaxStack: 1, MaxLocals: 0, Code: clinitCode},
			},
			{
				AccessFlags: classfile.AccMethodPublic | classfile.AccMethodStatic,
				Name:        "get",
				Descriptor:  "()I",
				Code:        &classfile.CodeAttribute{MaxStack: 1, MaxLocals: 0, Code: getCode},
			},
		},
	}

	v := New()
	result, err := v.CallPublicStaticNoArg(cf, "get")
	require.NoError(t, err)
	assert.Equal(t, int32(11), result.Int)
}

// TestLongArithmeticEndToEnd covers the "long arithmetic" scenario via
// ldc2_w, confirming wide stack slots flow through a full Call rather than
// just the isolated arithmetic helper.
func TestLongArithmeticEndToEnd(t *testing.T) {
	b := &integrationCP{}
	classNameIdx := b.add(&classfile.ConstantUtf8{Value: "Longs"})
	classIdx := b.add(&classfile.ConstantClass{NameIndex: classNameIdx})
	longIdx := b.add(&classfile.ConstantLong{Value: 1000000000000})

	// ldc2_w #long, lconst_1, ladd, lreturn
	code := []byte{
		0x14, byte(longIdx >> 8), byte(longIdx),
		0x0A,
		0x61,
		0xAD,
	}

	cf := &classfile.ClassFile{
		ConstantPool: classfile.NewConstantPool(b.entries),
		ThisClass:    classIdx,
		Methods: []classfile.MethodInfo{
			{
				AccessFlags: classfile.AccMethodPublic | classfile.AccMethodStatic,
				Name:        "run",
				Descriptor:  "()J",
				Code:        &classfile.CodeAttribute{MaxStack: 4, MaxLocals: 0, Code: code},
			},
		},
	}

	v := New()
	result, err := v.CallPublicStaticNoArg(cf, "run")
	require.NoError(t, err)
	assert.Equal(t, int64(1000000000001), result.Long)
}
