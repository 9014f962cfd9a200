package classfile

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/jclassvm/jclassvm/pkg/jerr"
)

// Constant pool tags (JVMS Table 4.4-A).
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

// ConstantPoolEntry is implemented by every constant pool record kind.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct{ Value string }

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct{ Value int32 }

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct{ Value float32 }

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct{ Value int64 }

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct{ Value float64 }

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

type ConstantClass struct{ NameIndex uint16 }

func (c *ConstantClass) Tag() uint8 { return TagClass }

type ConstantString struct{ StringIndex uint16 }

func (c *ConstantString) Tag() uint8 { return TagString }

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

// ConstantMethodHandle is kept first-class (rather than skipped) so a
// disassembler can render it even though the interpreter never resolves one.
type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

type ConstantMethodType struct{ DescriptorIndex uint16 }

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() uint8 { return TagDynamic }

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantInvokeDynamic) Tag() uint8 { return TagInvokeDynamic }

type ConstantModule struct{ NameIndex uint16 }

func (c *ConstantModule) Tag() uint8 { return TagModule }

type ConstantPackage struct{ NameIndex uint16 }

func (c *ConstantPackage) Tag() uint8 { return TagPackage }

// constantGap occupies the slot immediately after a Long or Double entry,
// per JVMS §4.4.5: "constant_pool index n+1 ... is considered unusable."
type constantGap struct{}

func (constantGap) Tag() uint8 { return 0 }

// ConstantPool is the 1-indexed constant pool of a class file, with
// resolution helpers that return typed jerr errors on mismatch.
type ConstantPool struct {
	entries []ConstantPoolEntry
}

// NewConstantPool builds a ConstantPool directly from a 1-indexed entries
// slice (entries[0] is conventionally nil), for callers assembling a
// ClassFile in memory rather than decoding one from bytes.
func NewConstantPool(entries []ConstantPoolEntry) *ConstantPool {
	return &ConstantPool{entries: entries}
}

// Count returns constant_pool_count, i.e. len(entries) including the unused
// index 0.
func (p *ConstantPool) Count() int { return len(p.entries) }

func (p *ConstantPool) entryAt(index uint16) (ConstantPoolEntry, error) {
	if index == 0 || int(index) >= len(p.entries) || p.entries[index] == nil {
		return nil, jerr.New(jerr.PoolIndexOutOfRange, "constant pool index %d out of range (count=%d)", index, len(p.entries))
	}
	if _, gap := p.entries[index].(constantGap); gap {
		return nil, jerr.New(jerr.PoolIndexOutOfRange, "constant pool index %d falls in the unusable slot after a Long/Double entry", index)
	}
	return p.entries[index], nil
}

// Entry returns the raw entry at index, for disassembly.
func (p *ConstantPool) Entry(index uint16) (ConstantPoolEntry, error) {
	return p.entryAt(index)
}

// Utf8 resolves a CONSTANT_Utf8 entry's string value.
func (p *ConstantPool) Utf8(index uint16) (string, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return "", err
	}
	u, ok := e.(*ConstantUtf8)
	if !ok {
		return "", jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Utf8 (tag=%d)", index, e.Tag())
	}
	return u.Value, nil
}

// ClassName resolves a CONSTANT_Class entry to its binary class name.
func (p *ConstantPool) ClassName(index uint16) (string, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return "", err
	}
	c, ok := e.(*ConstantClass)
	if !ok {
		return "", jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Class (tag=%d)", index, e.Tag())
	}
	return p.Utf8(c.NameIndex)
}

// Integer resolves a CONSTANT_Integer entry.
func (p *ConstantPool) Integer(index uint16) (int32, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return 0, err
	}
	v, ok := e.(*ConstantInteger)
	if !ok {
		return 0, jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Integer (tag=%d)", index, e.Tag())
	}
	return v.Value, nil
}

// Float resolves a CONSTANT_Float entry.
func (p *ConstantPool) Float(index uint16) (float32, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return 0, err
	}
	v, ok := e.(*ConstantFloat)
	if !ok {
		return 0, jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Float (tag=%d)", index, e.Tag())
	}
	return v.Value, nil
}

// Long resolves a CONSTANT_Long entry.
func (p *ConstantPool) Long(index uint16) (int64, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return 0, err
	}
	v, ok := e.(*ConstantLong)
	if !ok {
		return 0, jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Long (tag=%d)", index, e.Tag())
	}
	return v.Value, nil
}

// Double resolves a CONSTANT_Double entry.
func (p *ConstantPool) Double(index uint16) (float64, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return 0, err
	}
	v, ok := e.(*ConstantDouble)
	if !ok {
		return 0, jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Double (tag=%d)", index, e.Tag())
	}
	return v.Value, nil
}

// String resolves a CONSTANT_String entry to the Utf8 text it references.
func (p *ConstantPool) String(index uint16) (string, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return "", err
	}
	s, ok := e.(*ConstantString)
	if !ok {
		return "", jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not String (tag=%d)", index, e.Tag())
	}
	return p.Utf8(s.StringIndex)
}

// NameAndType resolves a CONSTANT_NameAndType entry to its two Utf8 strings.
func (p *ConstantPool) NameAndType(index uint16) (name, descriptor string, err error) {
	e, err := p.entryAt(index)
	if err != nil {
		return "", "", err
	}
	nat, ok := e.(*ConstantNameAndType)
	if !ok {
		return "", "", jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not NameAndType (tag=%d)", index, e.Tag())
	}
	name, err = p.Utf8(nat.NameIndex)
	if err != nil {
		return "", "", err
	}
	descriptor, err = p.Utf8(nat.DescriptorIndex)
	if err != nil {
		return "", "", err
	}
	return name, descriptor, nil
}

// FieldRefInfo is the resolved (class, name, descriptor) triple of a
// CONSTANT_Fieldref.
type FieldRefInfo struct {
	ClassName  string
	FieldName  string
	Descriptor string
}

// MethodRefInfo is the resolved (class, name, descriptor) triple of a
// CONSTANT_Methodref or CONSTANT_InterfaceMethodref.
type MethodRefInfo struct {
	ClassName  string
	MethodName string
	Descriptor string
}

// Fieldref resolves a CONSTANT_Fieldref entry.
func (p *ConstantPool) Fieldref(index uint16) (*FieldRefInfo, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return nil, err
	}
	f, ok := e.(*ConstantFieldref)
	if !ok {
		return nil, jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Fieldref (tag=%d)", index, e.Tag())
	}
	className, err := p.ClassName(f.ClassIndex)
	if err != nil {
		return nil, jerr.Wrap(jerr.PoolKindMismatch, err, "resolving Fieldref class at index %d", index)
	}
	name, desc, err := p.NameAndType(f.NameAndTypeIndex)
	if err != nil {
		return nil, jerr.Wrap(jerr.PoolKindMismatch, err, "resolving Fieldref name_and_type at index %d", index)
	}
	return &FieldRefInfo{ClassName: className, FieldName: name, Descriptor: desc}, nil
}

// Methodref resolves a CONSTANT_Methodref entry.
func (p *ConstantPool) Methodref(index uint16) (*MethodRefInfo, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*ConstantMethodref)
	if !ok {
		return nil, jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not Methodref (tag=%d)", index, e.Tag())
	}
	className, err := p.ClassName(m.ClassIndex)
	if err != nil {
		return nil, jerr.Wrap(jerr.PoolKindMismatch, err, "resolving Methodref class at index %d", index)
	}
	name, desc, err := p.NameAndType(m.NameAndTypeIndex)
	if err != nil {
		return nil, jerr.Wrap(jerr.PoolKindMismatch, err, "resolving Methodref name_and_type at index %d", index)
	}
	return &MethodRefInfo{ClassName: className, MethodName: name, Descriptor: desc}, nil
}

// InterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func (p *ConstantPool) InterfaceMethodref(index uint16) (*MethodRefInfo, error) {
	e, err := p.entryAt(index)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*ConstantInterfaceMethodref)
	if !ok {
		return nil, jerr.New(jerr.PoolKindMismatch, "constant pool index %d is not InterfaceMethodref (tag=%d)", index, e.Tag())
	}
	className, err := p.ClassName(m.ClassIndex)
	if err != nil {
		return nil, jerr.Wrap(jerr.PoolKindMismatch, err, "resolving InterfaceMethodref class at index %d", index)
	}
	name, desc, err := p.NameAndType(m.NameAndTypeIndex)
	if err != nil {
		return nil, jerr.Wrap(jerr.PoolKindMismatch, err, "resolving InterfaceMethodref name_and_type at index %d", index)
	}
	return &MethodRefInfo{ClassName: className, MethodName: name, Descriptor: desc}, nil
}

// parseConstantPool reads constant_pool_count-1 entries from r. The result
// is 1-indexed: index 0 is nil, and the slot after a Long/Double is a
// constantGap.
func parseConstantPool(r io.Reader, count uint16) (*ConstantPool, error) {
	entries := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading constant pool tag at index %d", i)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Utf8 length at index %d", i)
			}
			raw := make([]byte, length)
			if _, err := io.ReadFull(r, raw); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Utf8 bytes at index %d", i)
			}
			entries[i] = &ConstantUtf8{Value: string(raw)}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Integer at index %d", i)
			}
			entries[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Float at index %d", i)
			}
			entries[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong:
			var val int64
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Long at index %d", i)
			}
			entries[i] = &ConstantLong{Value: val}
			i++
			if i < count {
				entries[i] = constantGap{}
			}

		case TagDouble:
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Double at index %d", i)
			}
			entries[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			i++
			if i < count {
				entries[i] = constantGap{}
			}

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Class at index %d", i)
			}
			entries[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading String at index %d", i)
			}
			entries[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Fieldref class_index at index %d", i)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Fieldref name_and_type_index at index %d", i)
			}
			entries[i] = &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagMethodref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Methodref class_index at index %d", i)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Methodref name_and_type_index at index %d", i)
			}
			entries[i] = &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagInterfaceMethodref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading InterfaceMethodref class_index at index %d", i)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading InterfaceMethodref name_and_type_index at index %d", i)
			}
			entries[i] = &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading NameAndType name_index at index %d", i)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading NameAndType descriptor_index at index %d", i)
			}
			entries[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var refKind uint8
			var refIndex uint16
			if err := binary.Read(r, binary.BigEndian, &refKind); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading MethodHandle reference_kind at index %d", i)
			}
			if err := binary.Read(r, binary.BigEndian, &refIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading MethodHandle reference_index at index %d", i)
			}
			entries[i] = &ConstantMethodHandle{ReferenceKind: refKind, ReferenceIndex: refIndex}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading MethodType at index %d", i)
			}
			entries[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic:
			var bsmIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &bsmIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Dynamic bootstrap_method_attr_index at index %d", i)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Dynamic name_and_type_index at index %d", i)
			}
			entries[i] = &ConstantDynamic{BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}

		case TagInvokeDynamic:
			var bsmIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &bsmIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading InvokeDynamic bootstrap_method_attr_index at index %d", i)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading InvokeDynamic name_and_type_index at index %d", i)
			}
			entries[i] = &ConstantInvokeDynamic{BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}

		case TagModule:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Module at index %d", i)
			}
			entries[i] = &ConstantModule{NameIndex: nameIndex}

		case TagPackage:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading Package at index %d", i)
			}
			entries[i] = &ConstantPackage{NameIndex: nameIndex}

		default:
			return nil, jerr.New(jerr.UnknownConstantTag, "unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return &ConstantPool{entries: entries}, nil
}
