package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/signadot/docsync/system/syncd/api"
)

func TestDiffPlain(t *testing.T) {
	var buf bytes.Buffer
	r := newDocRenderer(&buf, false)
	err := r.Diff(json.RawMessage(`{"a":1}`), json.RawMessage(`{"a":2}`))
	if err != nil {
		t.Fatal(err)
	}
	want := "  {\n-   \"a\": 1\n+   \"a\": 2\n  }\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("diff output mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffInvalidDocument(t *testing.T) {
	r := newDocRenderer(&bytes.Buffer{}, false)
	if err := r.Diff(json.RawMessage(`{`), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for invalid document")
	}
}

func TestApplyUpdate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		patch   string
		want    string
		wantErr bool
	}{
		{name: "add", doc: `{}`, patch: `[{"op":"add","path":"/x","value":1}]`, want: `{"x":1}`},
		{name: "empty", doc: `{"x":1}`, patch: `[]`, want: `{"x":1}`},
		{name: "out of sync", doc: `{}`, patch: `[{"op":"test","path":"/x","value":1}]`, wantErr: true},
		{name: "not a patch", doc: `{}`, patch: `{"op":"add"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyUpdate(json.RawMessage(tt.doc), &api.Update{Patch: json.RawMessage(tt.patch), Version: 1})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var g, w any
			if err := json.Unmarshal(got, &g); err != nil {
				t.Fatal(err)
			}
			if err := json.Unmarshal([]byte(tt.want), &w); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(w, g); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
