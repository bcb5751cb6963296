package pdb

import "fmt"

// ArgType is the legacy argument type enumeration. It is what travels on the
// wire and what the on-disk procedure cache stores.
type ArgType int32

const (
	ArgInt32 ArgType = iota
	ArgInt16
	ArgInt8
	ArgFloat
	ArgString
	ArgInt32Array
	ArgInt16Array
	ArgInt8Array
	ArgFloatArray
	ArgStringArray
	ArgColor
	ArgItem
	ArgDisplay
	ArgImage
	ArgLayer
	ArgChannel
	ArgDrawable
	ArgSelection
	ArgColorArray
	ArgVectors
	ArgParasite
	ArgStatus
	ArgEnd
)

var argTypeNames = [...]string{
	ArgInt32:       "INT32",
	ArgInt16:       "INT16",
	ArgInt8:        "INT8",
	ArgFloat:       "FLOAT",
	ArgString:      "STRING",
	ArgInt32Array:  "INT32ARRAY",
	ArgInt16Array:  "INT16ARRAY",
	ArgInt8Array:   "INT8ARRAY",
	ArgFloatArray:  "FLOATARRAY",
	ArgStringArray: "STRINGARRAY",
	ArgColor:       "COLOR",
	ArgItem:        "ITEM",
	ArgDisplay:     "DISPLAY",
	ArgImage:       "IMAGE",
	ArgLayer:       "LAYER",
	ArgChannel:     "CHANNEL",
	ArgDrawable:    "DRAWABLE",
	ArgSelection:   "SELECTION",
	ArgColorArray:  "COLORARRAY",
	ArgVectors:     "VECTORS",
	ArgParasite:    "PARASITE",
	ArgStatus:      "STATUS",
	ArgEnd:         "END",
}

func (t ArgType) String() string {
	if t >= 0 && int(t) < len(argTypeNames) {
		return argTypeNames[t]
	}
	return fmt.Sprintf("ARGTYPE(%d)", int32(t))
}

// Valid reports whether t is a real argument type (END excluded).
func (t ArgType) Valid() bool {
	return t >= ArgInt32 && t < ArgEnd
}

// ParseArgType maps a name such as "INT32" back to its ArgType.
func ParseArgType(name string) (ArgType, bool) {
	for i, n := range argTypeNames {
		if n == name && ArgType(i) != ArgEnd {
			return ArgType(i), true
		}
	}
	return ArgEnd, false
}

var argToValue = map[ArgType]ValueType{
	ArgInt32:       ValueInt32,
	ArgInt16:       ValueInt16,
	ArgInt8:        ValueInt8,
	ArgFloat:       ValueFloat,
	ArgString:      ValueString,
	ArgInt32Array:  ValueInt32Array,
	ArgInt16Array:  ValueInt16Array,
	ArgInt8Array:   ValueInt8Array,
	ArgFloatArray:  ValueFloatArray,
	ArgStringArray: ValueStringArray,
	ArgColor:       ValueColor,
	ArgItem:        ValueItemID,
	ArgDisplay:     ValueDisplayID,
	ArgImage:       ValueImageID,
	ArgLayer:       ValueLayerID,
	ArgChannel:     ValueChannelID,
	ArgDrawable:    ValueDrawableID,
	ArgSelection:   ValueSelectionID,
	ArgColorArray:  ValueColorArray,
	ArgVectors:     ValueVectorsID,
	ArgParasite:    ValueParasite,
	ArgStatus:      ValueStatus,
}

// ValueType returns the canonical storage type for a legacy argument type.
func (t ArgType) ValueType() (ValueType, bool) {
	v, ok := argToValue[t]
	return v, ok
}

// ArgTypeFromValueType maps a storage type to the legacy enumeration.
// Boolean and enum values travel as INT32, layer masks as CHANNEL.
func ArgTypeFromValueType(t ValueType) ArgType {
	switch t {
	case ValueInt32, ValueBoolean, ValueEnum:
		return ArgInt32
	case ValueInt16:
		return ArgInt16
	case ValueInt8:
		return ArgInt8
	case ValueFloat:
		return ArgFloat
	case ValueString:
		return ArgString
	case ValueInt32Array:
		return ArgInt32Array
	case ValueInt16Array:
		return ArgInt16Array
	case ValueInt8Array:
		return ArgInt8Array
	case ValueFloatArray:
		return ArgFloatArray
	case ValueStringArray:
		return ArgStringArray
	case ValueColor:
		return ArgColor
	case ValueItemID:
		return ArgItem
	case ValueDisplayID:
		return ArgDisplay
	case ValueImageID:
		return ArgImage
	case ValueLayerID:
		return ArgLayer
	case ValueChannelID, ValueLayerMaskID:
		return ArgChannel
	case ValueDrawableID:
		return ArgDrawable
	case ValueSelectionID:
		return ArgSelection
	case ValueColorArray:
		return ArgColorArray
	case ValueVectorsID:
		return ArgVectors
	case ValueParasite:
		return ArgParasite
	case ValueStatus:
		return ArgStatus
	}
	return ArgEnd
}

// ParamSpecFromArgType synthesizes a parameter descriptor for a legacy
// declaration. Object ids declared this way accept -1.
func ParamSpecFromArgType(t ArgType, name, desc string) (ParamSpec, error) {
	vt, ok := t.ValueType()
	if !ok {
		return ParamSpec{}, fmt.Errorf("argument %q has invalid type %d", name, int32(t))
	}
	return ParamSpec{Type: vt, Name: name, Desc: desc, NoneOK: vt.IsObjectID()}, nil
}
