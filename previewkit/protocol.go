package previewkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ProtocolVersion is the version of the positional invocation signature.
// Any change to the argument list below must bump it.
const ProtocolVersion = 1

// Entry point names exported by every preview runtime.
const (
	RenderEntryPoint = "previewkit.render"
	ChromeEntryPoint = "previewkit.chrome"
)

// EntryFunc is the primitive-only invocation signature shared by both sides of
// the isolation boundary. The argument order is protocol version 1.
//
// On success pix holds width*height NRGBA pixels with a stride of 4*width and
// errText is empty. On failure errText holds a human readable message,
// optionally followed by a blank line and a stack description.
type EntryFunc = func(
	function string,
	param any,
	widthDp, heightDp int,
	density, fontScale float64,
	darkMode bool,
	locale string,
	rtl, inspectionMode bool,
	insetsWire string,
) (pix []byte, width, height int, errText string)

// ErrBadInvocation is returned when positional arguments cannot be decoded.
var ErrBadInvocation = errors.New("previewkit: malformed invocation arguments")

// badInvocationPrefix starts the errText of an entry point that rejected its
// arguments rather than failing in the preview function.
const badInvocationPrefix = "bad invocation: "

// BadInvocationText formats err as the errText of a rejected argument list.
func BadInvocationText(err error) string {
	return badInvocationPrefix + err.Error()
}

// CutBadInvocation reports whether errText came from BadInvocationText and
// returns the message without the marker.
func CutBadInvocation(errText string) (message string, ok bool) {
	return strings.CutPrefix(errText, badInvocationPrefix)
}

// Invocation holds one decoded positional argument list.
type Invocation struct {
	Function       string
	Param          any
	WidthDp        int
	HeightDp       int
	Density        float64
	FontScale      float64
	DarkMode       bool
	Locale         string
	RTL            bool
	InspectionMode bool
	Insets         string
}

// Call invokes fn with the positional arguments of inv.
func (inv Invocation) Call(fn EntryFunc) ([]byte, int, int, string) {
	return fn(inv.Function, inv.Param, inv.WidthDp, inv.HeightDp, inv.Density, inv.FontScale,
		inv.DarkMode, inv.Locale, inv.RTL, inv.InspectionMode, inv.Insets)
}

// WireParam is the JSON form of a primitive parameter. A nil *WireParam is
// "no parameter".
type WireParam struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// EncodeArgs encodes inv as the positional JSON argument array.
func EncodeArgs(inv Invocation) ([]json.RawMessage, error) {
	param, err := encodeParam(inv.Param)
	if err != nil {
		return nil, err
	}

	values := []any{
		inv.Function,
		param,
		inv.WidthDp,
		inv.HeightDp,
		inv.Density,
		inv.FontScale,
		inv.DarkMode,
		inv.Locale,
		inv.RTL,
		inv.InspectionMode,
		inv.Insets,
	}

	args := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", ErrBadInvocation, i, err)
		}
		args[i] = raw
	}
	return args, nil
}

// DecodeArgs decodes a positional JSON argument array.
func DecodeArgs(args []json.RawMessage) (Invocation, error) {
	var inv Invocation
	if len(args) != 11 {
		return inv, fmt.Errorf("%w: want 11 arguments, got %d", ErrBadInvocation, len(args))
	}

	var param *WireParam
	targets := []any{
		&inv.Function,
		&param,
		&inv.WidthDp,
		&inv.HeightDp,
		&inv.Density,
		&inv.FontScale,
		&inv.DarkMode,
		&inv.Locale,
		&inv.RTL,
		&inv.InspectionMode,
		&inv.Insets,
	}
	for i, target := range targets {
		if err := json.Unmarshal(args[i], target); err != nil {
			return Invocation{}, fmt.Errorf("%w: argument %d: %v", ErrBadInvocation, i, err)
		}
	}

	value, err := decodeParam(param)
	if err != nil {
		return Invocation{}, err
	}
	inv.Param = value
	return inv, nil
}

func encodeParam(v any) (*WireParam, error) {
	var kind string
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		kind = "string"
	case int64:
		kind = "int"
	case int:
		kind, v = "int", int64(x)
	case float64:
		kind = "float"
	case bool:
		kind = "bool"
	default:
		return nil, fmt.Errorf("%w: unsupported parameter type %T", ErrBadInvocation, v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: parameter: %v", ErrBadInvocation, err)
	}
	return &WireParam{Kind: kind, Value: raw}, nil
}

func decodeParam(p *WireParam) (any, error) {
	if p == nil {
		return nil, nil
	}

	var err error
	switch p.Kind {
	case "string":
		var s string
		err = json.Unmarshal(p.Value, &s)
		if err == nil {
			return s, nil
		}
	case "int":
		var i int64
		err = json.Unmarshal(p.Value, &i)
		if err == nil {
			return i, nil
		}
	case "float":
		var f float64
		err = json.Unmarshal(p.Value, &f)
		if err == nil {
			return f, nil
		}
	case "bool":
		var b bool
		err = json.Unmarshal(p.Value, &b)
		if err == nil {
			return b, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown parameter kind %q", ErrBadInvocation, p.Kind)
	}
	return nil, fmt.Errorf("%w: parameter of kind %s: %v", ErrBadInvocation, p.Kind, err)
}

// CatalogResponse is the body of GET /v1/catalog.
type CatalogResponse struct {
	Version     int      `json:"version"`
	Library     string   `json:"library"`
	EntryPoints []string `json:"entry_points"`
	Functions   []string `json:"functions"`
}

// InvokeRequest is the body of POST /v1/invoke.
type InvokeRequest struct {
	Version    int               `json:"version"`
	EntryPoint string            `json:"entry_point"`
	Args       []json.RawMessage `json:"args"`
}

// ErrorResponse is returned by the worker for failed invocations and
// rejected requests. Protocol is set when the request itself was at fault.
type ErrorResponse struct {
	Message  string `json:"message"`
	Stack    string `json:"stack,omitempty"`
	Protocol bool   `json:"protocol,omitempty"`
}

// SplitErrorText splits an errText into its message and stack parts.
func SplitErrorText(errText string) ErrorResponse {
	message, stack, _ := strings.Cut(errText, "\n\n")
	return ErrorResponse{Message: message, Stack: stack}
}

// Text joins the message and stack back into an errText.
func (e ErrorResponse) Text() string {
	if e.Stack == "" {
		return e.Message
	}
	return e.Message + "\n\n" + e.Stack
}
