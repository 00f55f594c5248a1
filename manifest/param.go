package manifest

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"preview_engine/preview"
)

// ParamFromCty converts an evaluated HCL value into a preview parameter.
// Null is NoParam; whole numbers become int params and other numbers float
// params. Collections and objects are rejected because parameters must be
// primitive.
func ParamFromCty(v cty.Value) (preview.Param, error) {
	if v.IsNull() {
		return preview.NoParam, nil
	}
	if !v.IsWhollyKnown() {
		return preview.NoParam, fmt.Errorf("%w: param value is not known", preview.ErrInvalidParam)
	}

	switch v.Type() {
	case cty.String:
		var s string
		if err := gocty.FromCtyValue(v, &s); err != nil {
			return preview.NoParam, fmt.Errorf("%w: %v", preview.ErrInvalidParam, err)
		}
		return preview.StringParam(s), nil
	case cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(v, &b); err != nil {
			return preview.NoParam, fmt.Errorf("%w: %v", preview.ErrInvalidParam, err)
		}
		return preview.BoolParam(b), nil
	case cty.Number:
		var i int64
		if err := gocty.FromCtyValue(v, &i); err == nil {
			return preview.IntParam(i), nil
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return preview.NoParam, fmt.Errorf("%w: %v", preview.ErrInvalidParam, err)
		}
		return preview.FloatParam(f), nil
	default:
		return preview.NoParam, fmt.Errorf("%w: unsupported type %s", preview.ErrInvalidParam, v.Type().FriendlyName())
	}
}
