package vjson

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

// Tag indicates the data type of a value.
type Tag uint8

const (
	TagString    = Tag('"')
	TagInteger   = Tag('l')
	TagFloat     = Tag('d')
	TagNull      = Tag('n')
	TagBoolTrue  = Tag('t')
	TagBoolFalse = Tag('f')
	TagObject    = Tag('{')
	TagArray     = Tag('[')
	TagEnd       = Tag(0)
)

func (t Tag) String() string {
	return string([]byte{byte(t)})
}

// Type is a JSON value type.
type Type uint8

const (
	TypeNone Type = iota
	TypeNull
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeObject
	TypeArray
)

// String returns the type as a string.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "(no type)"
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	}
	return "(invalid)"
}

// TagToType converts a tag to type.
// All non-existing tags return TypeNone.
var TagToType = [256]Type{
	TagString:    TypeString,
	TagInteger:   TypeInt,
	TagFloat:     TypeFloat,
	TagNull:      TypeNull,
	TagBoolTrue:  TypeBool,
	TagBoolFalse: TypeBool,
	TagObject:    TypeObject,
	TagArray:     TypeArray,
}

// Type converts a tag to a type.
func (t Tag) Type() Type {
	return TagToType[t]
}

// Value is one node of a parsed document. The zero Value has no type.
//
// String payloads of a borrowed Value are slices of the input buffer and stay
// valid only while the buffer is alive and unmodified; owned Values carry
// their own string storage.
type Value struct {
	tag Tag
	num uint64
	str []byte
	arr []Value
	obj *Object
}

// Tag returns the value tag.
func (v Value) Tag() Tag { return v.tag }

// Type returns the value type.
func (v Value) Type() Type { return TagToType[v.tag] }

// IsNull returns whether the value is the JSON null literal.
func (v Value) IsNull() bool { return v.tag == TagNull }

// Bool returns the bool value.
func (v Value) Bool() (bool, error) {
	switch v.tag {
	case TagBoolTrue:
		return true, nil
	case TagBoolFalse:
		return false, nil
	}
	return false, fmt.Errorf("value is not bool, but %v", v.Type())
}

// Int returns the integer value of the element.
// Floats within range are automatically converted.
func (v Value) Int() (int64, error) {
	switch v.tag {
	case TagInteger:
		return int64(v.num), nil
	case TagFloat:
		f := math.Float64frombits(v.num)
		if f >= math.MaxInt64 {
			return 0, errors.New("float value overflows int64")
		}
		if f < math.MinInt64 {
			return 0, errors.New("float value underflows int64")
		}
		return int64(f), nil
	}
	return 0, fmt.Errorf("unable to convert type %v to int", v.Type())
}

// Float returns the float value of the element.
// Integers are automatically converted to float.
func (v Value) Float() (float64, error) {
	switch v.tag {
	case TagFloat:
		return math.Float64frombits(v.num), nil
	case TagInteger:
		return float64(int64(v.num)), nil
	}
	return 0, fmt.Errorf("unable to convert type %v to float", v.Type())
}

// StringBytes returns the string value as a byte slice.
func (v Value) StringBytes() ([]byte, error) {
	if v.tag != TagString {
		return nil, fmt.Errorf("value is not string, but %v", v.Type())
	}
	return v.str, nil
}

// String returns the string value. The bytes are copied, so the result is
// safe to retain even for a borrowed document.
func (v Value) String() (string, error) {
	b, err := v.StringBytes()
	return string(b), err
}

// Array returns the elements of an array value.
func (v Value) Array() ([]Value, error) {
	if v.tag != TagArray {
		return nil, fmt.Errorf("value is not array, but %v", v.Type())
	}
	return v.arr, nil
}

// Object returns an object value.
func (v Value) Object() (*Object, error) {
	if v.tag != TagObject {
		return nil, fmt.Errorf("value is not object, but %v", v.Type())
	}
	return v.obj, nil
}

// Interface returns the value converted to plain Go types.
// Objects are returned as map[string]interface{} with later duplicate keys
// overwriting earlier ones. Arrays are returned as []interface{}. Integer
// values are returned as int64, float values as float64.
func (v Value) Interface() (interface{}, error) {
	switch v.tag {
	case TagNull:
		return nil, nil
	case TagBoolTrue:
		return true, nil
	case TagBoolFalse:
		return false, nil
	case TagInteger:
		return int64(v.num), nil
	case TagFloat:
		return math.Float64frombits(v.num), nil
	case TagString:
		return string(v.str), nil
	case TagArray:
		dst := make([]interface{}, len(v.arr))
		for i := range v.arr {
			elem, err := v.arr[i].Interface()
			if err != nil {
				return nil, err
			}
			dst[i] = elem
		}
		return dst, nil
	case TagObject:
		return v.obj.Map(nil)
	}
	return nil, fmt.Errorf("unknown tag: %v", v.tag)
}

// Equal reports deep equality: same tag tree, same numeric payloads (the
// integer/float distinction is preserved) and byte-equal strings.
func (v Value) Equal(other Value) bool {
	if v.tag != other.tag {
		return false
	}
	switch v.tag {
	case TagInteger, TagFloat:
		return v.num == other.num
	case TagString:
		return bytes.Equal(v.str, other.str)
	case TagArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case TagObject:
		if v.obj.Len() != other.obj.Len() {
			return false
		}
		for i := range v.obj.fields {
			a, b := &v.obj.fields[i], &other.obj.fields[i]
			if !bytes.Equal(a.Key, b.Key) || !a.Value.Equal(b.Value) {
				return false
			}
		}
		return true
	}
	return true
}

// Field is a single key/value pair of an object.
type Field struct {
	Key   []byte
	Value Value
}

// Object represents a JSON object. Fields keep their source order; duplicate
// keys are all retained, with the last occurrence winning lookups.
type Object struct {
	fields []Field
}

// Len returns the number of fields, duplicates included.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

// Fields returns the fields in source order.
func (o *Object) Fields() []Field {
	if o == nil {
		return nil
	}
	return o.fields
}

// Get returns the value of the named key. With duplicate keys the last value
// wins.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	for i := len(o.fields) - 1; i >= 0; i-- {
		if string(o.fields[i].Key) == key {
			return o.fields[i].Value, true
		}
	}
	return Value{}, false
}

// ForEach calls back fn for each field in source order.
func (o *Object) ForEach(fn func(key []byte, v Value)) {
	if o == nil {
		return
	}
	for i := range o.fields {
		fn(o.fields[i].Key, o.fields[i].Value)
	}
}

// Map will unmarshal into a map[string]interface{}.
// See Value.Interface() for a reference on value types.
func (o *Object) Map(dst map[string]interface{}) (map[string]interface{}, error) {
	if dst == nil {
		dst = make(map[string]interface{}, o.Len())
	}
	for i := range o.fields {
		elem, err := o.fields[i].Value.Interface()
		if err != nil {
			return nil, fmt.Errorf("parsing element %q: %w", o.fields[i].Key, err)
		}
		dst[string(o.fields[i].Key)] = elem
	}
	return dst, nil
}
