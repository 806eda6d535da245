package model

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/signadot/docsync/debug"
)

// Patcher applies patch to doc and returns the new document. doc must not
// be modified.
type Patcher interface {
	Patch(doc, patch json.RawMessage) (json.RawMessage, error)
}

// PatcherFunc adapts a function to Patcher.
type PatcherFunc func(doc, patch json.RawMessage) (json.RawMessage, error)

func (f PatcherFunc) Patch(doc, patch json.RawMessage) (json.RawMessage, error) {
	return f(doc, patch)
}

// JSONPatcher applies RFC 6902 JSON Patch operation lists.
type JSONPatcher struct{}

func (JSONPatcher) Patch(doc, patch json.RawMessage) (json.RawMessage, error) {
	if debug.Patch() {
		debug.Logf("jsonpatch %s on %s\n", patch, doc)
	}
	ops, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}
	out, err := ops.Apply(doc)
	if err != nil {
		return nil, err
	}
	return out, nil
}
