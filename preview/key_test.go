package preview

import (
	"errors"
	"math"
	"testing"
)

func TestKey_FieldEqualKeysAreEqual(t *testing.T) {
	a := NewKey("demo.Button", StringParam("ok"), NewSpec(WithName("Dark"), WithDarkMode(true), WithDensity(2)))
	b := NewKey("demo.Button", StringParam("ok"), NewSpec(WithName("Dark"), WithDarkMode(true), WithDensity(2)))

	if a != b {
		t.Fatal("field-equal keys must be ==")
	}
	if a.Hash() != b.Hash() {
		t.Error("field-equal keys must hash equally")
	}

	slots := map[Key]int{a: 1}
	slots[b] = 2
	if len(slots) != 1 {
		t.Errorf("equal keys occupied %d map slots, want 1", len(slots))
	}
}

func TestKey_DifferentComponentsDiffer(t *testing.T) {
	base := NewKey("demo.Button", NoParam, DefaultSpec())

	variants := map[string]Key{
		"function":   NewKey("demo.Card", NoParam, DefaultSpec()),
		"param":      NewKey("demo.Button", IntParam(1), DefaultSpec()),
		"spec":       NewKey("demo.Button", NoParam, NewSpec(WithDarkMode(true))),
		"param kind": NewKey("demo.Button", StringParam(""), DefaultSpec()),
	}

	for name, k := range variants {
		t.Run(name, func(t *testing.T) {
			if k == base {
				t.Fatal("keys should differ")
			}
			if k.Hash() == base.Hash() {
				t.Error("hash collision for distinct keys")
			}
		})
	}
}

func TestKey_NegativeZeroHashesLikeZero(t *testing.T) {
	a := NewKey("f", FloatParam(0), DefaultSpec())
	b := NewKey("f", FloatParam(math.Copysign(0, -1)), DefaultSpec())

	if a != b {
		t.Fatal("+0 and -0 params should be ==")
	}
	if a.Hash() != b.Hash() {
		t.Error("+0 and -0 params should hash equally")
	}
}

func TestKey_ID(t *testing.T) {
	k := NewKey("demo.Button", NoParam, DefaultSpec())
	if len(k.ID()) != 16 {
		t.Errorf("ID() = %q, want 16 hex digits", k.ID())
	}
	if k.ID() != NewKey("demo.Button", NoParam, DefaultSpec()).ID() {
		t.Error("ID must be stable")
	}
}

func TestKey_String(t *testing.T) {
	k := NewKey("demo.Button", StringParam("ok"), NewSpec(WithName("Dark"), WithSize(200, -1), WithDensity(2), WithDarkMode(true)))
	want := `demo.Button("ok") [name=Dark 200x-1dp @2x dark]`
	if got := k.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParamOf(t *testing.T) {
	tests := []struct {
		in      any
		want    Param
		wantErr bool
	}{
		{nil, NoParam, false},
		{"x", StringParam("x"), false},
		{7, IntParam(7), false},
		{int64(-2), IntParam(-2), false},
		{1.5, FloatParam(1.5), false},
		{true, BoolParam(true), false},
		{[]int{1}, NoParam, true},
	}

	for _, tt := range tests {
		got, err := ParamOf(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParamOf(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrInvalidParam) {
			t.Errorf("ParamOf(%v) error should wrap ErrInvalidParam", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParamOf(%v) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.Value() != tt.want.Value() {
			t.Errorf("Value() round trip mismatch for %v", tt.in)
		}
	}
}
