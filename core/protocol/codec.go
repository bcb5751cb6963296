package protocol

import (
	"fmt"

	"github.com/FocuswithJustin/picman/core/pdb"
	"github.com/FocuswithJustin/picman/core/wire"
)

// decoder reads fields off a channel and remembers the first failure, so a
// message body reads as a flat list of fields.
type decoder struct {
	c   *wire.Channel
	err error
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.c.ReadUint32()
	d.err = err
	return v
}

func (d *decoder) i32() int32 {
	if d.err != nil {
		return 0
	}
	v, err := d.c.ReadInt32()
	d.err = err
	return v
}

func (d *decoder) i16() int16 {
	if d.err != nil {
		return 0
	}
	v, err := d.c.ReadInt16()
	d.err = err
	return v
}

func (d *decoder) u8() uint8 {
	if d.err != nil {
		return 0
	}
	v, err := d.c.ReadInt8()
	d.err = err
	return v
}

func (d *decoder) flag8() bool  { return d.u8() != 0 }
func (d *decoder) flag32() bool { return d.u32() != 0 }

func (d *decoder) double() float64 {
	if d.err != nil {
		return 0
	}
	v, err := d.c.ReadDouble()
	d.err = err
	return v
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	v, err := d.c.ReadString()
	d.err = err
	return v
}

func (d *decoder) color() pdb.Color {
	if d.err != nil {
		return pdb.Color{}
	}
	v, err := d.c.ReadColor()
	d.err = err
	return pdb.Color{R: v[0], G: v[1], B: v[2], A: v[3]}
}

// count reads an element count and rejects absurd values before anything
// gets allocated for them.
func (d *decoder) count() int {
	n := d.u32()
	if d.err == nil && n > wire.MaxLength {
		d.err = wire.ErrTooLong
	}
	if d.err != nil {
		return 0
	}
	return int(n)
}

func (d *decoder) bytes() []byte {
	n := d.count()
	if d.err != nil || n == 0 {
		return nil
	}
	b, err := d.c.ReadBytes(n)
	d.err = err
	return b
}

func (d *decoder) paramDefs(n int) []ParamDef {
	var defs []ParamDef
	for i := 0; i < n && d.err == nil; i++ {
		defs = append(defs, ParamDef{
			Type:        pdb.ArgType(d.u32()),
			Name:        d.str(),
			Description: d.str(),
		})
	}
	return defs
}

func (d *decoder) params() pdb.ValueArray {
	n := d.count()
	var vals pdb.ValueArray
	for i := 0; i < n && d.err == nil; i++ {
		vals = append(vals, d.param())
	}
	return vals
}

func (d *decoder) param() pdb.Value {
	at := pdb.ArgType(d.u32())
	if d.err != nil {
		return pdb.Value{}
	}
	vt, ok := at.ValueType()
	if !ok {
		d.err = fmt.Errorf("protocol: invalid parameter type %d", int32(at))
		return pdb.Value{}
	}

	v := pdb.Value{Type: vt}
	switch at {
	case pdb.ArgInt16:
		v.Int = int32(d.i16())
	case pdb.ArgInt8:
		v.Int = int32(d.u8())
	case pdb.ArgFloat:
		v.Float = d.double()
	case pdb.ArgString:
		v.Str = d.str()
	case pdb.ArgInt32Array:
		n := d.count()
		for i := 0; i < n && d.err == nil; i++ {
			v.Int32s = append(v.Int32s, d.i32())
		}
	case pdb.ArgInt16Array:
		n := d.count()
		for i := 0; i < n && d.err == nil; i++ {
			v.Int16s = append(v.Int16s, d.i16())
		}
	case pdb.ArgInt8Array:
		v.Bytes = d.bytes()
	case pdb.ArgFloatArray:
		n := d.count()
		for i := 0; i < n && d.err == nil; i++ {
			v.Floats = append(v.Floats, d.double())
		}
	case pdb.ArgStringArray:
		n := d.count()
		for i := 0; i < n && d.err == nil; i++ {
			v.Strings = append(v.Strings, d.str())
		}
	case pdb.ArgColor:
		v.Color = d.color()
	case pdb.ArgColorArray:
		n := d.count()
		for i := 0; i < n && d.err == nil; i++ {
			v.Colors = append(v.Colors, d.color())
		}
	case pdb.ArgParasite:
		v.Parasite.Name = d.str()
		v.Parasite.Flags = d.u32()
		v.Parasite.Data = d.bytes()
	default:
		// INT32, STATUS and every object id travel as a signed int32.
		v.Int = d.i32()
	}
	return v
}

// encoder is the write-side counterpart of decoder.
type encoder struct {
	c   *wire.Channel
	err error
}

func (e *encoder) u32(v uint32) {
	if e.err == nil {
		e.err = e.c.WriteUint32(v)
	}
}

func (e *encoder) i32(v int32) {
	if e.err == nil {
		e.err = e.c.WriteInt32(v)
	}
}

func (e *encoder) i16(v int16) {
	if e.err == nil {
		e.err = e.c.WriteInt16(v)
	}
}

func (e *encoder) u8(v uint8) {
	if e.err == nil {
		e.err = e.c.WriteInt8(v)
	}
}

func (e *encoder) flag8(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) flag32(v bool) {
	if v {
		e.u32(1)
	} else {
		e.u32(0)
	}
}

func (e *encoder) double(v float64) {
	if e.err == nil {
		e.err = e.c.WriteDouble(v)
	}
}

func (e *encoder) str(v string) {
	if e.err == nil {
		e.err = e.c.WriteString(v)
	}
}

func (e *encoder) color(v pdb.Color) {
	if e.err == nil {
		e.err = e.c.WriteColor([4]float64{v.R, v.G, v.B, v.A})
	}
}

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	if e.err == nil && len(b) > 0 {
		e.err = e.c.WriteBytes(b)
	}
}

func (e *encoder) paramDefs(defs []ParamDef) {
	for _, def := range defs {
		e.u32(uint32(def.Type))
		e.str(def.Name)
		e.str(def.Description)
	}
}

func (e *encoder) params(vals pdb.ValueArray) {
	e.u32(uint32(len(vals)))
	for _, v := range vals {
		e.param(v)
	}
}

func (e *encoder) param(v pdb.Value) {
	at := pdb.ArgTypeFromValueType(v.Type)
	if at == pdb.ArgEnd {
		if e.err == nil {
			e.err = fmt.Errorf("protocol: value of type %s cannot be sent", v.Type)
		}
		return
	}
	e.u32(uint32(at))

	switch at {
	case pdb.ArgInt16:
		e.i16(int16(v.Int))
	case pdb.ArgInt8:
		e.u8(uint8(v.Int))
	case pdb.ArgFloat:
		e.double(v.Float)
	case pdb.ArgString:
		e.str(v.Str)
	case pdb.ArgInt32Array:
		e.u32(uint32(len(v.Int32s)))
		for _, n := range v.Int32s {
			e.i32(n)
		}
	case pdb.ArgInt16Array:
		e.u32(uint32(len(v.Int16s)))
		for _, n := range v.Int16s {
			e.i16(n)
		}
	case pdb.ArgInt8Array:
		e.bytes(v.Bytes)
	case pdb.ArgFloatArray:
		e.u32(uint32(len(v.Floats)))
		for _, f := range v.Floats {
			e.double(f)
		}
	case pdb.ArgStringArray:
		e.u32(uint32(len(v.Strings)))
		for _, s := range v.Strings {
			e.str(s)
		}
	case pdb.ArgColor:
		e.color(v.Color)
	case pdb.ArgColorArray:
		e.u32(uint32(len(v.Colors)))
		for _, c := range v.Colors {
			e.color(c)
		}
	case pdb.ArgParasite:
		e.str(v.Parasite.Name)
		e.u32(v.Parasite.Flags)
		e.bytes(v.Parasite.Data)
	default:
		e.i32(v.Int)
	}
}
