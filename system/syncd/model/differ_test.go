package model

import (
	"encoding/json"
	"testing"
)

func TestStructuralDiffer(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
		want          string
	}{
		{"equal", `{"a":1}`, `{"a":1}`, `[]`},
		{"add key", `{}`, `{"a":1}`, `[{"op":"add","path":"/a","value":1}]`},
		{"remove key", `{"a":1,"b":2}`, `{"b":2}`, `[{"op":"remove","path":"/a"}]`},
		{"replace scalar", `{"a":1}`, `{"a":"x"}`, `[{"op":"replace","path":"/a","value":"x"}]`},
		{"nested", `{"a":{"b":1,"c":2}}`, `{"a":{"b":1,"c":3}}`, `[{"op":"replace","path":"/a/c","value":3}]`},
		{"kind change", `{"a":[1]}`, `{"a":{"x":1}}`, `[{"op":"replace","path":"/a","value":{"x":1}}]`},
		{"array element", `{"a":[1,2]}`, `{"a":[1,5]}`, `[{"op":"replace","path":"/a/1","value":5}]`},
		{"escaped keys", `{}`, `{"a/b":1,"c~d":2}`, `[{"op":"add","path":"/a~1b","value":1},{"op":"add","path":"/c~0d","value":2}]`},
		{"null value", `{"a":1}`, `{"a":null}`, `[{"op":"replace","path":"/a","value":null}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StructuralDiffer{}.Diff(json.RawMessage(tt.before), json.RawMessage(tt.after))
			if err != nil {
				t.Fatalf("Diff() error = %v", err)
			}
			jsonEqual(t, tt.want, got)
		})
	}
}

func TestStructuralDiffer_RoundTrip(t *testing.T) {
	pairs := [][2]string{
		{`{}`, `{"a":{"b":[1,{"c":true}]},"d":"e"}`},
		{`{"a":{"b":[1,{"c":true},3]},"d":"e"}`, `{"a":{"b":[{"c":false}]}}`},
		{`{"list":[1,2,3,4]}`, `{"list":[4,3]}`},
		{`{"a":[1]}`, `{"a":[1,2,3]}`},
		{`{"a":[1,2,3]}`, `{"a":[1]}`},
		{`{"a":{"x":1}}`, `{}`},
	}
	for _, p := range pairs {
		patch, err := StructuralDiffer{}.Diff(json.RawMessage(p[0]), json.RawMessage(p[1]))
		if err != nil {
			t.Fatalf("Diff() error = %v", err)
		}
		got, err := JSONPatcher{}.Patch(json.RawMessage(p[0]), patch)
		if err != nil {
			t.Fatalf("Patch(%s) error = %v", patch, err)
		}
		jsonEqual(t, p[1], got)
	}
}

func TestStructuralDiffer_InvalidInput(t *testing.T) {
	if _, err := (StructuralDiffer{}).Diff(json.RawMessage(`{`), json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for invalid before document")
	}
	if _, err := (StructuralDiffer{}).Diff(json.RawMessage(`{}`), nil); err == nil {
		t.Error("expected error for missing after document")
	}
}
