package value

import (
	"encoding/json"
	"testing"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		val  Value
		want bool
	}{
		{"null", Null(), false},
		{"omit", Omit(), false},
		{"true", BoolValue(true), true},
		{"false", BoolValue(false), false},
		{"zero int", IntValue(0), false},
		{"nonzero int", IntValue(3), true},
		{"zero float", FloatValue(0), false},
		{"nonzero float", FloatValue(0.5), true},
		{"empty string", StringValue(""), false},
		{"string", StringValue("x"), true},
		{"empty seq", SeqValue(), false},
		{"seq", SeqValue(IntValue(1)), true},
		{"empty map", NewMap(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.val.Truthy(); got != tt.want {
				t.Errorf("Truthy() = %v, want %v", got, tt.want)
			}
		})
	}

	m := NewMap()
	m.MapSet("k", Null())
	if !m.Truthy() {
		t.Error("non-empty map must be truthy")
	}
}

func TestOmitNotEqualNull(t *testing.T) {
	if Omit().Equal(Null()) {
		t.Fatal("omit must compare unequal to null")
	}
	if !Omit().Equal(Omit()) {
		t.Fatal("omit must equal omit")
	}
}

func TestEqualNumericCrossKind(t *testing.T) {
	if !IntValue(2).Equal(FloatValue(2.0)) {
		t.Error("2 must equal 2.0")
	}
	if IntValue(2).Equal(StringValue("2")) {
		t.Error("2 must not equal \"2\"")
	}
}

func TestMapOrder(t *testing.T) {
	m := NewMap()
	m.MapSet("zeta", IntValue(1))
	m.MapSet("alpha", IntValue(2))
	m.MapSet("mid", IntValue(3))
	m.MapSet("alpha", IntValue(4)) // overwrite keeps position

	want := []string{"zeta", "alpha", "mid"}
	got := m.MapKeys()
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("keys = %v, want %v", got, want)
		}
	}
	v, _ := m.MapGet("alpha")
	if i, _ := v.AsInt(); i != 4 {
		t.Errorf("alpha = %v, want 4", v)
	}

	m.MapDelete("zeta")
	if _, ok := m.MapGet("zeta"); ok {
		t.Error("zeta still present after delete")
	}
	if got := m.MapKeys(); got[0] != "alpha" || got[1] != "mid" {
		t.Errorf("keys after delete = %v", got)
	}
}

func TestParseYAMLPreservesOrder(t *testing.T) {
	v, err := ParseYAML("b: 1\na: two\nc: [1, 2.5, yes, null]\n")
	if err != nil {
		t.Fatal(err)
	}
	keys := v.MapKeys()
	if keys[0] != "b" || keys[1] != "a" || keys[2] != "c" {
		t.Fatalf("keys = %v", keys)
	}
	c, _ := v.MapGet("c")
	items, _ := c.AsSeq()
	if items[0].Kind() != KindInt || items[1].Kind() != KindFloat ||
		items[2].Kind() != KindBool || items[3].Kind() != KindNull {
		t.Fatalf("scalar typing lost: %v", items)
	}
}

func TestParseYAMLEmpty(t *testing.T) {
	v, err := ParseYAML("")
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsNull() {
		t.Errorf("empty document = %v, want null", v.Kind())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	m := NewMap()
	m.MapSet("z", IntValue(1))
	m.MapSet("a", SeqValue(StringValue("x"), BoolValue(true)))
	m.MapSet("n", Null())

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var back Value
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !m.Equal(back) {
		t.Fatalf("round trip mismatch: %s vs %s", m, back)
	}
	keys := back.MapKeys()
	if keys[0] != "z" || keys[1] != "a" || keys[2] != "n" {
		t.Fatalf("order lost through JSON: %v", keys)
	}
}

func TestFromGoOmitMarker(t *testing.T) {
	v := FromGo(OmitMarker)
	if !v.IsOmit() {
		t.Fatalf("marker string must map to the omit variant, got %v", v.Kind())
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		val  Value
		want string
	}{
		{StringValue("plain"), "plain"},
		{IntValue(42), "42"},
		{FloatValue(1.5), "1.5"},
		{BoolValue(true), "true"},
		{Null(), ""},
	}
	for _, tt := range tests {
		if got := tt.val.Stringify(); got != tt.want {
			t.Errorf("Stringify(%v) = %q, want %q", tt.val.Kind(), got, tt.want)
		}
	}
}
