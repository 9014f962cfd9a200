// Package descriptor parses the textual type and method descriptor grammar
// embedded in the class file constant pool (JVMS §4.3) into a typed form.
package descriptor

import (
	"strings"

	"github.com/jclassvm/jclassvm/pkg/jerr"
)

// BaseKind identifies a primitive or reference field type.
type BaseKind int

const (
	Byte BaseKind = iota
	Char
	Double
	Float
	Int
	Long
	Short
	Boolean
	Object
)

var primitiveNames = map[BaseKind]string{
	Byte:    "byte",
	Char:    "char",
	Double:  "double",
	Float:   "float",
	Int:     "int",
	Long:    "long",
	Short:   "short",
	Boolean: "boolean",
}

var baseKindForLetter = map[byte]BaseKind{
	'B': Byte,
	'C': Char,
	'D': Double,
	'F': Float,
	'I': Int,
	'J': Long,
	'S': Short,
	'Z': Boolean,
}

// maxArrayDimensions is the JVMS-mandated ceiling on '[' prefixes.
const maxArrayDimensions = 255

// FieldDescriptor is a parsed JVMS field type: a base kind plus an array
// dimension count (0 for a non-array type).
type FieldDescriptor struct {
	Kind       BaseKind
	ClassName  string // only meaningful when Kind == Object; dots, not slashes
	Dimensions int
}

// String renders the descriptor in javap-ish form, e.g. "int[][]" or
// "java.lang.String".
func (d FieldDescriptor) String() string {
	var base string
	if d.Kind == Object {
		base = d.ClassName
	} else {
		base = primitiveNames[d.Kind]
	}
	return base + strings.Repeat("[]", d.Dimensions)
}

// MethodDescriptor is a parsed JVMS method descriptor: an ordered parameter
// list plus a return type (nil meaning void).
type MethodDescriptor struct {
	Params []FieldDescriptor
	Return *FieldDescriptor // nil means void
}

// String renders "<ret> (<p1>, <p2>, ...)", using "void" for an absent return.
func (d MethodDescriptor) String() string {
	ret := "void"
	if d.Return != nil {
		ret = d.Return.String()
	}
	parts := make([]string, len(d.Params))
	for i, p := range d.Params {
		parts[i] = p.String()
	}
	return ret + " (" + strings.Join(parts, ", ") + ")"
}

// ParseField parses a single FieldType starting at the beginning of text and
// returns the descriptor plus the number of characters consumed, so a caller
// walking a method's parameter list can advance past it.
func ParseField(text string) (FieldDescriptor, int, error) {
	return parseFieldAt(text, 0)
}

func parseFieldAt(text string, pos int) (FieldDescriptor, int, error) {
	start := pos
	dims := 0
	for pos < len(text) && text[pos] == '[' {
		dims++
		pos++
		if dims > maxArrayDimensions {
			return FieldDescriptor{}, 0, jerr.New(jerr.TooManyDimensions,
				"more than %d leading '[' in descriptor %q", maxArrayDimensions, text)
		}
	}
	if pos >= len(text) {
		return FieldDescriptor{}, 0, jerr.New(jerr.BadDescriptor,
			"descriptor %q ended before a base type", text)
	}

	c := text[pos]
	if kind, ok := baseKindForLetter[c]; ok {
		pos++
		return FieldDescriptor{Kind: kind, Dimensions: dims}, pos - start, nil
	}

	if c != 'L' {
		return FieldDescriptor{}, 0, jerr.New(jerr.BadDescriptor,
			"unexpected character %q in descriptor %q at offset %d", c, text, pos)
	}
	pos++
	nameStart := pos
	for pos < len(text) && text[pos] != ';' {
		pos++
	}
	if pos >= len(text) {
		return FieldDescriptor{}, 0, jerr.New(jerr.BadDescriptor,
			"unterminated class name in descriptor %q", text)
	}
	className := strings.ReplaceAll(text[nameStart:pos], "/", ".")
	pos++ // consume ';'
	return FieldDescriptor{Kind: Object, ClassName: className, Dimensions: dims}, pos - start, nil
}

// ParseMethod parses a full method descriptor "(FieldType*)(FieldType|V)".
func ParseMethod(text string) (MethodDescriptor, error) {
	if len(text) == 0 || text[0] != '(' {
		return MethodDescriptor{}, jerr.New(jerr.BadDescriptor,
			"method descriptor %q does not start with '('", text)
	}
	pos := 1
	var params []FieldDescriptor
	for pos < len(text) && text[pos] != ')' {
		fd, n, err := parseFieldAt(text, pos)
		if err != nil {
			return MethodDescriptor{}, err
		}
		params = append(params, fd)
		pos += n
	}
	if pos >= len(text) {
		return MethodDescriptor{}, jerr.New(jerr.BadDescriptor,
			"method descriptor %q missing closing ')'", text)
	}
	pos++ // consume ')'

	if pos >= len(text) {
		return MethodDescriptor{}, jerr.New(jerr.BadDescriptor,
			"method descriptor %q missing return type", text)
	}
	if text[pos] == 'V' {
		if pos+1 != len(text) {
			return MethodDescriptor{}, jerr.New(jerr.BadDescriptor,
				"method descriptor %q has trailing characters after void return", text)
		}
		return MethodDescriptor{Params: params, Return: nil}, nil
	}

	ret, n, err := parseFieldAt(text, pos)
	if err != nil {
		return MethodDescriptor{}, err
	}
	if pos+n != len(text) {
		return MethodDescriptor{}, jerr.New(jerr.BadDescriptor,
			"method descriptor %q has trailing characters after return type", text)
	}
	return MethodDescriptor{Params: params, Return: &ret}, nil
}

// IsWide reports whether a field kind occupies two local-variable slots
// (Long and Double, per JVMS §2.6.1).
func (d FieldDescriptor) IsWide() bool {
	return d.Dimensions == 0 && (d.Kind == Long || d.Kind == Double)
}
