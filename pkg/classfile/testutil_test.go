package classfile

import (
	"bytes"
	"encoding/binary"
)

// cpBuilder assembles a constant pool byte-for-byte, the way a real
// compiler's class writer would, so decoder tests exercise the real wire
// format instead of a synthetic in-memory shortcut.
type cpBuilder struct {
	entries [][]byte
}

func (b *cpBuilder) add(entry []byte) uint16 {
	b.entries = append(b.entries, entry)
	return uint16(len(b.entries))
}

func (b *cpBuilder) utf8(s string) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagUtf8)
	binary.Write(buf, binary.BigEndian, uint16(len(s)))
	buf.WriteString(s)
	return b.add(buf.Bytes())
}

func (b *cpBuilder) class(nameIndex uint16) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagClass)
	binary.Write(buf, binary.BigEndian, nameIndex)
	return b.add(buf.Bytes())
}

func (b *cpBuilder) nameAndType(nameIndex, descIndex uint16) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagNameAndType)
	binary.Write(buf, binary.BigEndian, nameIndex)
	binary.Write(buf, binary.BigEndian, descIndex)
	return b.add(buf.Bytes())
}

func (b *cpBuilder) fieldref(classIndex, natIndex uint16) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagFieldref)
	binary.Write(buf, binary.BigEndian, classIndex)
	binary.Write(buf, binary.BigEndian, natIndex)
	return b.add(buf.Bytes())
}

func (b *cpBuilder) methodref(classIndex, natIndex uint16) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagMethodref)
	binary.Write(buf, binary.BigEndian, classIndex)
	binary.Write(buf, binary.BigEndian, natIndex)
	return b.add(buf.Bytes())
}

func (b *cpBuilder) integer(v int32) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagInteger)
	binary.Write(buf, binary.BigEndian, v)
	return b.add(buf.Bytes())
}

func (b *cpBuilder) long(v int64) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagLong)
	binary.Write(buf, binary.BigEndian, v)
	idx := b.add(buf.Bytes())
	// A Long takes two pool indices; the nil entry reserves the unusable
	// second one (bytes() writes nothing for it but still counts it).
	b.entries = append(b.entries, nil)
	return idx
}

func (b *cpBuilder) string(utf8Index uint16) uint16 {
	buf := new(bytes.Buffer)
	buf.WriteByte(TagString)
	binary.Write(buf, binary.BigEndian, utf8Index)
	return b.add(buf.Bytes())
}

func (b *cpBuilder) bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint16(len(b.entries)+1))
	for _, e := range b.entries {
		buf.Write(e)
	}
	return buf.Bytes()
}

// rawAttr assembles a raw attribute_info entry.
func rawAttr(nameIndex uint16, data []byte) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, nameIndex)
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}

// codeAttrData builds the body of a Code attribute (no exception table, no
// nested attributes), given raw bytecode.
func codeAttrData(maxStack, maxLocals uint16, code []byte) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, maxStack)
	binary.Write(buf, binary.BigEndian, maxLocals)
	binary.Write(buf, binary.BigEndian, uint32(len(code)))
	buf.Write(code)
	binary.Write(buf, binary.BigEndian, uint16(0)) // exception_table_length
	binary.Write(buf, binary.BigEndian, uint16(0)) // attributes_count
	return buf.Bytes()
}

// codeAttrDataWithHandler builds the body of a Code attribute with a single
// exception table entry and no nested attributes.
func codeAttrDataWithHandler(maxStack, maxLocals uint16, code []byte, h ExceptionHandler) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, maxStack)
	binary.Write(buf, binary.BigEndian, maxLocals)
	binary.Write(buf, binary.BigEndian, uint32(len(code)))
	buf.Write(code)
	binary.Write(buf, binary.BigEndian, uint16(1)) // exception_table_length
	binary.Write(buf, binary.BigEndian, h.StartPC)
	binary.Write(buf, binary.BigEndian, h.EndPC)
	binary.Write(buf, binary.BigEndian, h.HandlerPC)
	binary.Write(buf, binary.BigEndian, h.CatchType)
	binary.Write(buf, binary.BigEndian, uint16(0)) // attributes_count
	return buf.Bytes()
}

// fieldInfoBytes builds a single field_info record carrying one
// ConstantValue attribute.
func fieldInfoBytes(accessFlags, nameIndex, descIndex, cvNameIndex, constantIndex uint16) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, accessFlags)
	binary.Write(buf, binary.BigEndian, nameIndex)
	binary.Write(buf, binary.BigEndian, descIndex)
	binary.Write(buf, binary.BigEndian, uint16(1)) // attributes_count
	cvData := make([]byte, 2)
	binary.BigEndian.PutUint16(cvData, constantIndex)
	buf.Write(rawAttr(cvNameIndex, cvData))
	return buf.Bytes()
}

// newByteReader adapts a byte slice to io.Reader for Decode's consumers.
func newByteReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// methodInfoBytes builds a single method_info record with one Code attribute.
func methodInfoBytes(accessFlags, nameIndex, descIndex, codeNameIndex uint16, code []byte, maxStack, maxLocals uint16) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, accessFlags)
	binary.Write(buf, binary.BigEndian, nameIndex)
	binary.Write(buf, binary.BigEndian, descIndex)
	binary.Write(buf, binary.BigEndian, uint16(1)) // attributes_count
	buf.Write(rawAttr(codeNameIndex, codeAttrData(maxStack, maxLocals, code)))
	return buf.Bytes()
}

// methodInfoWithAttr builds a single method_info record from an already
// assembled raw attribute (see rawAttr), for tests that need to control the
// attribute body directly rather than going through methodInfoBytes.
func methodInfoWithAttr(accessFlags, nameIndex, descIndex uint16, attr []byte) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, accessFlags)
	binary.Write(buf, binary.BigEndian, nameIndex)
	binary.Write(buf, binary.BigEndian, descIndex)
	binary.Write(buf, binary.BigEndian, uint16(1)) // attributes_count
	buf.Write(attr)
	return buf.Bytes()
}

// classParts assembles a complete .class byte stream from pre-built pieces.
type classParts struct {
	minor, major        uint16
	pool                *cpBuilder
	accessFlags         uint16
	thisClass           uint16
	superClass          uint16
	interfaces          []uint16
	fields              [][]byte
	methods             [][]byte
	attrs               [][]byte
	forceTrailing       bool
	forceTruncateBefore int // if > 0, truncate the assembled bytes to this length
}

func (p classParts) assemble() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint32(0xCAFEBABE))
	binary.Write(buf, binary.BigEndian, p.minor)
	binary.Write(buf, binary.BigEndian, p.major)
	buf.Write(p.pool.bytes())
	binary.Write(buf, binary.BigEndian, p.accessFlags)
	binary.Write(buf, binary.BigEndian, p.thisClass)
	binary.Write(buf, binary.BigEndian, p.superClass)
	binary.Write(buf, binary.BigEndian, uint16(len(p.interfaces)))
	for _, iface := range p.interfaces {
		binary.Write(buf, binary.BigEndian, iface)
	}
	binary.Write(buf, binary.BigEndian, uint16(len(p.fields)))
	for _, f := range p.fields {
		buf.Write(f)
	}
	binary.Write(buf, binary.BigEndian, uint16(len(p.methods)))
	for _, m := range p.methods {
		buf.Write(m)
	}
	binary.Write(buf, binary.BigEndian, uint16(len(p.attrs)))
	for _, a := range p.attrs {
		buf.Write(a)
	}
	out := buf.Bytes()
	if p.forceTrailing {
		out = append(out, 0x00)
	}
	if p.forceTruncateBefore > 0 && p.forceTruncateBefore < len(out) {
		out = out[:p.forceTruncateBefore]
	}
	return out
}
