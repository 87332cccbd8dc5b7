package core

import (
	"encoding/json"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"1", "1"},
		{"1.0", "1"},
		{"1.23", "1.23"},
		{"1,23", "1.23"},
		{"1,234.50", "1234.5"},
		{" 2.50 ", "2.5"},
		{"-1", "-1"},
		{"0", "0"},
		{"", "0"},
		{"   ", "0"},
		{"abc", "0"},
		{"1.2.3", "0"},
		{"NaN", "0"},
	}
	for _, tc := range cases {
		got := ParseAmount(tc.in)
		if got.String() != tc.out {
			t.Fatalf("%q expected %s, got %s", tc.in, tc.out, got)
		}
	}
}

func TestParseAmountStrict(t *testing.T) {
	if _, ok := ParseAmountStrict(""); !ok {
		t.Fatalf("blank should be valid")
	}
	if _, ok := ParseAmountStrict("x12"); ok {
		t.Fatalf("x12 should be invalid")
	}
	if a, ok := ParseAmountStrict("12.5"); !ok || a.String() != "12.5" {
		t.Fatalf("expected 12.5, got %s ok=%v", a, ok)
	}
}

func TestAmountExactAddition(t *testing.T) {
	got := ParseAmount("0.1").Add(ParseAmount("0.2"))
	if !got.Equal(ParseAmount("0.3")) {
		t.Fatalf("expected exact 0.3, got %s", got)
	}
}

func TestAmountJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		V Amount `json:"v"`
	}{V: ParseAmount("12.50")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"v":12.5}` {
		t.Fatalf("expected plain number, got %s", b)
	}

	cases := map[string]string{
		`{"v":100}`:    "100",
		`{"v":"42.5"}`: "42.5",
		`{"v":null}`:   "0",
		`{"v":"abc"}`:  "0",
		`{"v":""}`:     "0",
		`{}`:           "0",
		`{"v":1.5e2}`:  "150",
	}
	for in, want := range cases {
		var out struct {
			V Amount `json:"v"`
		}
		if err := json.Unmarshal([]byte(in), &out); err != nil {
			t.Fatalf("%s: unexpected error %v", in, err)
		}
		if out.V.String() != want {
			t.Fatalf("%s: expected %s, got %s", in, want, out.V)
		}
	}
}

func TestAmountScanValue(t *testing.T) {
	var a Amount
	if err := a.Scan("12.34"); err != nil || a.String() != "12.34" {
		t.Fatalf("scan string: %v %s", err, a)
	}
	if err := a.Scan(nil); err != nil || !a.IsZero() {
		t.Fatalf("scan nil: %v %s", err, a)
	}
	if err := a.Scan(int64(7)); err != nil || a.String() != "7" {
		t.Fatalf("scan int: %v %s", err, a)
	}
	v, err := ParseAmount("3.10").Value()
	if err != nil || v != "3.1" {
		t.Fatalf("value: %v %v", v, err)
	}
}
