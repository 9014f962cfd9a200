package classfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/jclassvm/jclassvm/pkg/jerr"
)

const classMagic = 0xCAFEBABE

// DecodeFile opens and decodes a .class file from the given path.
func DecodeFile(path string) (*ClassFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a complete .class file from r and returns the decoded
// ClassFile (see ClassFile for which pool references are checked here).
// Any byte remaining after the final class attribute is rejected with
// jerr.TrailingBytes.
func Decode(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, jerr.Wrap(jerr.InvalidMagic, err, "reading magic number")
	}
	if magic != classMagic {
		return nil, jerr.New(jerr.InvalidMagic, "invalid magic number 0x%08X, expected 0xCAFEBABE", magic)
	}

	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading minor_version")
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading major_version")
	}

	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading constant_pool_count")
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, err
	}
	cf.ConstantPool = pool

	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading access_flags")
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading this_class")
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading super_class")
	}

	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading interfaces_count")
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading interfaces[%d]", i)
		}
	}

	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading fields_count")
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, err
	}

	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading methods_count")
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, err
	}

	var classAttrCount uint16
	if err := binary.Read(r, binary.BigEndian, &classAttrCount); err != nil {
		return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading class attributes_count")
	}
	cf.Attributes, err = parseAttributeInfos(r, cf.ConstantPool, classAttrCount)
	if err != nil {
		return nil, err
	}
	for _, attr := range cf.Attributes {
		if attr.Name != "SourceFile" {
			continue
		}
		if len(attr.Data) != 2 {
			return nil, jerr.New(jerr.MalformedAttribute, "SourceFile attribute has length %d, expected 2", len(attr.Data))
		}
		idx := binary.BigEndian.Uint16(attr.Data)
		name, err := cf.ConstantPool.Utf8(idx)
		if err != nil {
			return nil, jerr.Wrap(jerr.PoolIndexOutOfRange, err, "resolving SourceFile index")
		}
		cf.SourceFile = name
	}

	trailing := make([]byte, 1)
	if n, err := r.Read(trailing); err == nil && n > 0 {
		return nil, jerr.New(jerr.TrailingBytes, "unexpected data after the final class attribute")
	}

	return cf, nil
}

func parseFields(r io.Reader, pool *ConstantPool, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading field %d access_flags", i)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading field %d name_index", i)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading field %d descriptor_index", i)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading field %d attributes_count", i)
		}

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, jerr.Wrap(jerr.PoolIndexOutOfRange, err, "resolving field %d name", i)
		}
		desc, err := pool.Utf8(descIndex)
		if err != nil {
			return nil, jerr.Wrap(jerr.PoolIndexOutOfRange, err, "resolving field %d descriptor", i)
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount)
		if err != nil {
			return nil, err
		}

		fi := FieldInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}
		for _, attr := range attrs {
			if attr.Name != "ConstantValue" {
				continue
			}
			if len(attr.Data) != 2 {
				return nil, jerr.New(jerr.MalformedAttribute, "ConstantValue attribute of field %s has length %d, expected 2", name, len(attr.Data))
			}
			fi.HasConstantValue = true
			fi.ConstantValueIndex = binary.BigEndian.Uint16(attr.Data)
		}

		fields[i] = fi
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool *ConstantPool, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		var accessFlags, nameIndex, descIndex, attrCount uint16
		if err := binary.Read(r, binary.BigEndian, &accessFlags); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading method %d access_flags", i)
		}
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading method %d name_index", i)
		}
		if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading method %d descriptor_index", i)
		}
		if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading method %d attributes_count", i)
		}

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, jerr.Wrap(jerr.PoolIndexOutOfRange, err, "resolving method %d name", i)
		}
		desc, err := pool.Utf8(descIndex)
		if err != nil {
			return nil, jerr.Wrap(jerr.PoolIndexOutOfRange, err, "resolving method %d descriptor", i)
		}

		attrs, err := parseAttributeInfos(r, pool, attrCount)
		if err != nil {
			return nil, err
		}

		m := MethodInfo{
			AccessFlags: accessFlags,
			Name:        name,
			Descriptor:  desc,
			Attributes:  attrs,
		}

		for _, attr := range attrs {
			if attr.Name == "Code" {
				code, err := parseCodeAttribute(pool, attr.Data)
				if err != nil {
					return nil, jerr.Wrap(jerr.MalformedAttribute, err, "parsing Code attribute for method %s%s", name, desc)
				}
				m.Code = code
				break
			}
		}

		methods[i] = m
	}
	return methods, nil
}

func parseAttributeInfos(r io.Reader, pool *ConstantPool, count uint16) ([]RawAttribute, error) {
	attrs := make([]RawAttribute, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading attribute %d name_index", i)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading attribute %d length", i)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, jerr.Wrap(jerr.MalformedAttribute, err, "reading attribute %d data (declared length %d)", i, length)
		}

		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return nil, jerr.Wrap(jerr.PoolIndexOutOfRange, err, "resolving attribute %d name", i)
		}

		attrs[i] = RawAttribute{Name: name, Data: data}
	}
	return attrs, nil
}

// parseCodeAttribute decodes a Code attribute's body (JVMS §4.7.3). Its own
// nested attributes (LineNumberTable, StackMapTable, etc.) are kept as
// RawAttribute rather than interpreted.
func parseCodeAttribute(pool *ConstantPool, data []byte) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, jerr.New(jerr.MalformedAttribute, "Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	offset := 8
	if len(data) < offset+int(codeLength) {
		return nil, jerr.New(jerr.MalformedAttribute, "Code attribute too short for code_length %d", codeLength)
	}
	code := make([]byte, codeLength)
	copy(code, data[offset:offset+int(codeLength)])
	offset += int(codeLength)

	if len(data) < offset+2 {
		return nil, jerr.New(jerr.MalformedAttribute, "Code attribute truncated before exception_table_length")
	}
	exTableLen := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	handlers := make([]ExceptionHandler, exTableLen)
	for i := uint16(0); i < exTableLen; i++ {
		if len(data) < offset+8 {
			return nil, jerr.New(jerr.MalformedAttribute, "Code attribute truncated in exception_table entry %d", i)
		}
		handlers[i] = ExceptionHandler{
			StartPC:   binary.BigEndian.Uint16(data[offset : offset+2]),
			EndPC:     binary.BigEndian.Uint16(data[offset+2 : offset+4]),
			HandlerPC: binary.BigEndian.Uint16(data[offset+4 : offset+6]),
			CatchType: binary.BigEndian.Uint16(data[offset+6 : offset+8]),
		}
		offset += 8
	}

	if len(data) < offset+2 {
		return nil, jerr.New(jerr.MalformedAttribute, "Code attribute truncated before attributes_count")
	}
	attrCount := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2
	rest := bytes.NewReader(data[offset:])
	attrs, err := parseAttributeInfos(rest, pool, attrCount)
	if err != nil {
		return nil, err
	}
	if rest.Len() != 0 {
		return nil, jerr.New(jerr.MalformedAttribute, "Code attribute has %d bytes after its nested attributes", rest.Len())
	}

	return &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}, nil
}
