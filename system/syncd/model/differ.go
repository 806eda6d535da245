package model

import (
	"encoding/json"
	"fmt"

	"github.com/signadot/docsync/debug"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/wI2L/jsondiff"
)

// Differ computes a patch taking before to after.
type Differ interface {
	Diff(before, after json.RawMessage) (json.RawMessage, error)
}

// DifferFunc adapts a function to Differ.
type DifferFunc func(before, after json.RawMessage) (json.RawMessage, error)

func (f DifferFunc) Diff(before, after json.RawMessage) (json.RawMessage, error) {
	return f(before, after)
}

// StructuralDiffer produces RFC 6902 patches by walking both documents.
// Object keys are visited in sorted order; arrays are compared by index,
// with surplus elements appended or removed at the end.
type StructuralDiffer struct{}

func (StructuralDiffer) Diff(before, after json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(before) {
		return nil, fmt.Errorf("invalid before document")
	}
	if !json.Valid(after) {
		return nil, fmt.Errorf("invalid after document")
	}
	patch, err := jsondiff.CompareJSON(before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to diff documents: %w", err)
	}
	if len(patch) == 0 {
		return api.EmptyPatch, nil
	}
	d, err := json.Marshal(patch)
	if err != nil {
		return nil, err
	}
	if debug.Diff() {
		debug.Logf("diff %s -> %s = %s\n", before, after, d)
	}
	return d, nil
}
