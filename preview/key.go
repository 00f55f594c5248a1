package preview

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

// ParamKind identifies the primitive type carried by a Param.
type ParamKind int

const (
	ParamNone ParamKind = iota
	ParamString
	ParamInt
	ParamFloat
	ParamBool
)

// Param is the optional parameter value passed to a preview function.
// The zero value means "no parameter". Only primitive kinds are allowed
// because the value crosses the isolation boundary unchanged.
type Param struct {
	Kind  ParamKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// NoParam is the zero Param.
var NoParam = Param{}

// Param constructors.
func StringParam(s string) Param { return Param{Kind: ParamString, Str: s} }
func IntParam(i int64) Param { return Param{Kind: ParamInt, Int: i} }
func FloatParam(f float64) Param { return Param{Kind: ParamFloat, Float: f} }
func BoolParam(b bool) Param { return Param{Kind: ParamBool, Bool: b} }

// ParamOf converts a primitive Go value into a Param.
func ParamOf(v any) (Param, error) {
	switch x := v.(type) {
	case nil:
		return NoParam, nil
	case string:
		return StringParam(x), nil
	case int:
		return IntParam(int64(x)), nil
	case int32:
		return IntParam(int64(x)), nil
	case int64:
		return IntParam(x), nil
	case float32:
		return FloatParam(float64(x)), nil
	case float64:
		return FloatParam(x), nil
	case bool:
		return BoolParam(x), nil
	default:
		return NoParam, fmt.Errorf("%w: unsupported type %T", ErrInvalidParam, v)
	}
}

// IsSet reports whether the param carries a value.
func (p Param) IsSet() bool { return p.Kind != ParamNone }

// Value returns the boxed primitive: nil, string, int64, float64 or bool.
func (p Param) Value() any {
	switch p.Kind {
	case ParamString:
		return p.Str
	case ParamInt:
		return p.Int
	case ParamFloat:
		return p.Float
	case ParamBool:
		return p.Bool
	default:
		return nil
	}
}

// String formats the param for logs and key identities.
func (p Param) String() string {
	switch p.Kind {
	case ParamString:
		return strconv.Quote(p.Str)
	case ParamInt:
		return strconv.FormatInt(p.Int, 10)
	case ParamFloat:
		return formatFloat(p.Float)
	case ParamBool:
		return strconv.FormatBool(p.Bool)
	default:
		return "-"
	}
}

// Key identifies one renderable unit: a function, its optional parameter and
// the preview spec. Keys are compared with == and used directly as map keys.
type Key struct {
	FunctionID string
	Param      Param
	Spec       Spec
}

// NewKey builds a cache key.
func NewKey(functionID string, param Param, spec Spec) Key {
	return Key{FunctionID: functionID, Param: param, Spec: spec}
}

// Hash returns a 64-bit FNV-1a hash of the key. Equal keys hash equally.
func (k Key) Hash() uint64 {
	h := fnv.New64a()
	var b [8]byte

	writeString := func(s string) {
		binary.LittleEndian.PutUint64(b[:], uint64(len(s)))
		h.Write(b[:])
		h.Write([]byte(s))
	}
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(b[:], uint64(v))
		h.Write(b[:])
	}
	writeFloat := func(f float64) {
		// -0 == +0 must hash the same.
		if f == 0 {
			f = 0
		}
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		h.Write(b[:])
	}
	writeBool := func(v bool) {
		if v {
			writeInt(1)
		} else {
			writeInt(0)
		}
	}

	writeString(k.FunctionID)

	writeInt(int64(k.Param.Kind))
	writeString(k.Param.Str)
	writeInt(k.Param.Int)
	writeFloat(k.Param.Float)
	writeBool(k.Param.Bool)

	s := k.Spec
	writeString(s.Name)
	writeString(s.Group)
	writeInt(int64(s.WidthDp))
	writeInt(int64(s.HeightDp))
	writeString(s.Locale)
	writeBool(s.RTL)
	writeFloat(s.FontScale)
	writeFloat(s.Density)
	writeBool(s.DarkMode)
	writeInt(int64(s.Background.ARGB))
	writeBool(s.Background.Valid)
	writeBool(s.StatusBar)
	writeInt(int64(s.NavigationBar))
	writeBool(s.NavigationBarContrast)
	writeInt(int64(s.DisplayCutout))
	writeBool(s.CaptionBar)
	writeBool(s.InspectionMode)

	return h.Sum64()
}

// ID returns the hash as a 16-digit hex string, used in URLs and history rows.
func (k Key) ID() string {
	return fmt.Sprintf("%016x", k.Hash())
}

// String renders a readable identity such as
// "demo.Button(\"ok\") [name=Dark 200x-1dp @2x dark]".
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(k.FunctionID)
	if k.Param.IsSet() {
		sb.WriteString("(")
		sb.WriteString(k.Param.String())
		sb.WriteString(")")
	}
	s := k.Spec
	fmt.Fprintf(&sb, " [name=%s %dx%ddp @%sx", s.Name, s.WidthDp, s.HeightDp, formatFloat(s.Density))
	if s.DarkMode {
		sb.WriteString(" dark")
	}
	if s.Locale != "" {
		sb.WriteString(" ")
		sb.WriteString(s.Locale)
	}
	sb.WriteString("]")
	return sb.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
