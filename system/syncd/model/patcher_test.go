package model

import (
	"encoding/json"
	"testing"
)

func TestJSONPatcher(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		patch   string
		want    string
		wantErr bool
	}{
		{name: "add", doc: `{}`, patch: `[{"op":"add","path":"/a","value":1}]`, want: `{"a":1}`},
		{name: "empty", doc: `{"a":1}`, patch: `[]`, want: `{"a":1}`},
		{name: "test passes", doc: `{"a":1}`, patch: `[{"op":"test","path":"/a","value":1},{"op":"replace","path":"/a","value":2}]`, want: `{"a":2}`},
		{name: "test fails", doc: `{"a":1}`, patch: `[{"op":"test","path":"/a","value":2}]`, wantErr: true},
		{name: "not a list", doc: `{}`, patch: `{"op":"add","path":"/a","value":1}`, wantErr: true},
		{name: "unknown op", doc: `{}`, patch: `[{"op":"frob","path":"/a"}]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := json.RawMessage(tt.doc)
			got, err := JSONPatcher{}.Patch(doc, json.RawMessage(tt.patch))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Patch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(doc) != tt.doc {
				t.Errorf("input document modified: %s", doc)
			}
			if !tt.wantErr {
				jsonEqual(t, tt.want, got)
			}
		})
	}
}

func TestPatcherFunc(t *testing.T) {
	var calls int
	p := PatcherFunc(func(doc, patch json.RawMessage) (json.RawMessage, error) {
		calls++
		return doc, nil
	})
	m := newReadyModel(t, &Config{Name: "counted", Patcher: p})
	m.Apply(json.RawMessage(`[]`))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
