package pdb

import (
	"fmt"
	"strings"
)

// ValueType is the storage type of an argument or return value.
type ValueType int

const (
	ValueInt32 ValueType = iota
	ValueInt16
	ValueInt8
	ValueFloat
	ValueString
	ValueInt32Array
	ValueInt16Array
	ValueInt8Array
	ValueFloatArray
	ValueStringArray
	ValueColor
	ValueColorArray
	ValueItemID
	ValueDisplayID
	ValueImageID
	ValueLayerID
	ValueChannelID
	ValueLayerMaskID
	ValueDrawableID
	ValueSelectionID
	ValueVectorsID
	ValueParasite
	ValueStatus
	ValueBoolean
	ValueEnum
)

var valueTypeNames = [...]string{
	ValueInt32:       "int32",
	ValueInt16:       "int16",
	ValueInt8:        "int8",
	ValueFloat:       "float",
	ValueString:      "string",
	ValueInt32Array:  "int32-array",
	ValueInt16Array:  "int16-array",
	ValueInt8Array:   "int8-array",
	ValueFloatArray:  "float-array",
	ValueStringArray: "string-array",
	ValueColor:       "color",
	ValueColorArray:  "color-array",
	ValueItemID:      "item-id",
	ValueDisplayID:   "display-id",
	ValueImageID:     "image-id",
	ValueLayerID:     "layer-id",
	ValueChannelID:   "channel-id",
	ValueLayerMaskID: "layer-mask-id",
	ValueDrawableID:  "drawable-id",
	ValueSelectionID: "selection-id",
	ValueVectorsID:   "vectors-id",
	ValueParasite:    "parasite",
	ValueStatus:      "status",
	ValueBoolean:     "boolean",
	ValueEnum:        "enum",
}

func (t ValueType) String() string {
	if t >= 0 && int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("value-type(%d)", int(t))
}

// IsObjectID reports whether values of this type name an image-model object.
func (t ValueType) IsObjectID() bool {
	switch t {
	case ValueItemID, ValueDisplayID, ValueImageID, ValueLayerID, ValueChannelID,
		ValueLayerMaskID, ValueDrawableID, ValueSelectionID, ValueVectorsID:
		return true
	}
	return false
}

// IsArray reports whether the type is one of the array kinds.
func (t ValueType) IsArray() bool {
	switch t {
	case ValueInt32Array, ValueInt16Array, ValueInt8Array, ValueFloatArray,
		ValueStringArray, ValueColorArray:
		return true
	}
	return false
}

// Color is an RGBA color with components in [0, 1].
type Color struct {
	R, G, B, A float64
}

// Parasite is a named blob attached to an image-model object.
type Parasite struct {
	Name  string
	Flags uint32
	Data  []byte
}

// Value is one argument or return value. Type selects which field is
// meaningful; integer-like types (ids, status, boolean, enum) use Int.
type Value struct {
	Type     ValueType
	Int      int32
	Float    float64
	Str      string
	Int32s   []int32
	Int16s   []int16
	Bytes    []byte
	Floats   []float64
	Strings  []string
	Color    Color
	Colors   []Color
	Parasite Parasite
}

// ValueArray is an ordered list of values. Return value arrays always start
// with a status.
type ValueArray []Value

// Int32 returns an int32 value.
func Int32(v int32) Value { return Value{Type: ValueInt32, Int: v} }

// Int16 returns an int16 value.
func Int16(v int16) Value { return Value{Type: ValueInt16, Int: int32(v)} }

// Int8 returns an int8 (unsigned byte) value.
func Int8(v uint8) Value { return Value{Type: ValueInt8, Int: int32(v)} }

// Float returns a float value.
func Float(v float64) Value { return Value{Type: ValueFloat, Float: v} }

// String returns a string value.
func String(v string) Value { return Value{Type: ValueString, Str: v} }

// Bool returns a boolean value.
func Bool(v bool) Value {
	if v {
		return Value{Type: ValueBoolean, Int: 1}
	}
	return Value{Type: ValueBoolean}
}

// Enum returns an enum value.
func Enum(v int32) Value { return Value{Type: ValueEnum, Int: v} }

// ObjectID returns an id value of the given object type.
func ObjectID(t ValueType, id int32) Value { return Value{Type: t, Int: id} }

// ImageID returns an image id value.
func ImageID(id int32) Value { return ObjectID(ValueImageID, id) }

// DrawableID returns a drawable id value.
func DrawableID(id int32) Value { return ObjectID(ValueDrawableID, id) }

// ColorValue returns a color value.
func ColorValue(c Color) Value { return Value{Type: ValueColor, Color: c} }

// ParasiteValue returns a parasite value.
func ParasiteValue(p Parasite) Value { return Value{Type: ValueParasite, Parasite: p} }

// StatusValue returns a status value.
func StatusValue(s Status) Value { return Value{Type: ValueStatus, Int: int32(s)} }

// Int32Array returns an int32 array value.
func Int32Array(v ...int32) Value { return Value{Type: ValueInt32Array, Int32s: v} }

// Int16Array returns an int16 array value.
func Int16Array(v ...int16) Value { return Value{Type: ValueInt16Array, Int16s: v} }

// Int8Array returns a byte array value.
func Int8Array(v []byte) Value { return Value{Type: ValueInt8Array, Bytes: v} }

// FloatArray returns a float array value.
func FloatArray(v ...float64) Value { return Value{Type: ValueFloatArray, Floats: v} }

// StringArray returns a string array value.
func StringArray(v ...string) Value { return Value{Type: ValueStringArray, Strings: v} }

// ColorArray returns a color array value.
func ColorArray(v ...Color) Value { return Value{Type: ValueColorArray, Colors: v} }

// Zero returns the default value of a type.
func Zero(t ValueType) Value {
	v := Value{Type: t}
	if t.IsObjectID() {
		v.Int = -1
	}
	return v
}

// AsBool reports whether an integer-like value is non-zero.
func (v Value) AsBool() bool { return v.Int != 0 }

// Len returns the element count of an array value, zero otherwise.
func (v Value) Len() int {
	switch v.Type {
	case ValueInt32Array:
		return len(v.Int32s)
	case ValueInt16Array:
		return len(v.Int16s)
	case ValueInt8Array:
		return len(v.Bytes)
	case ValueFloatArray:
		return len(v.Floats)
	case ValueStringArray:
		return len(v.Strings)
	case ValueColorArray:
		return len(v.Colors)
	}
	return 0
}

// Convert reinterprets a value as another type of the same storage class,
// e.g. an INT32 read off the wire as a boolean or an enum.
func (v Value) Convert(t ValueType) (Value, bool) {
	if v.Type == t {
		return v, true
	}
	if ArgTypeFromValueType(v.Type) == ArgTypeFromValueType(t) {
		v.Type = t
		return v, true
	}
	if v.Type.IsObjectID() && t.IsObjectID() {
		v.Type = t
		return v, true
	}
	return v, false
}

func (v Value) String() string {
	switch v.Type {
	case ValueInt32, ValueInt16, ValueInt8, ValueEnum:
		return fmt.Sprintf("%d", v.Int)
	case ValueBoolean:
		return fmt.Sprintf("%t", v.AsBool())
	case ValueStatus:
		return Status(v.Int).String()
	case ValueFloat:
		return fmt.Sprintf("%g", v.Float)
	case ValueString:
		return fmt.Sprintf("%q", v.Str)
	case ValueColor:
		return fmt.Sprintf("(%g %g %g %g)", v.Color.R, v.Color.G, v.Color.B, v.Color.A)
	case ValueParasite:
		return fmt.Sprintf("parasite %q (%d bytes)", v.Parasite.Name, len(v.Parasite.Data))
	case ValueInt32Array:
		return fmt.Sprint(v.Int32s)
	case ValueInt16Array:
		return fmt.Sprint(v.Int16s)
	case ValueInt8Array:
		return fmt.Sprint(v.Bytes)
	case ValueFloatArray:
		return fmt.Sprint(v.Floats)
	case ValueStringArray:
		quoted := make([]string, len(v.Strings))
		for i, s := range v.Strings {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		return "[" + strings.Join(quoted, " ") + "]"
	case ValueColorArray:
		return fmt.Sprintf("%d colors", len(v.Colors))
	}
	if v.Type.IsObjectID() {
		return fmt.Sprintf("%s:%d", v.Type, v.Int)
	}
	return "?"
}
