package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// docRenderer prints line diffs between successive document versions.
type docRenderer struct {
	out    io.Writer
	insert func(string, ...any) string
	delete func(string, ...any) string
	header func(string, ...any) string
}

func newDocRenderer(out io.Writer, forceColor bool) *docRenderer {
	r := &docRenderer{
		out:    out,
		insert: fmt.Sprintf,
		delete: fmt.Sprintf,
		header: fmt.Sprintf,
	}
	if !forceColor && !isTerminal(out) {
		return r
	}
	r.insert = enabled(color.New(color.FgGreen)).SprintfFunc()
	r.delete = enabled(color.New(color.FgRed)).SprintfFunc()
	r.header = enabled(color.RGB(74, 92, 138)).SprintfFunc()
	return r
}

func enabled(c *color.Color) *color.Color {
	c.EnableColor()
	return c
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

// Header prints a version banner.
func (r *docRenderer) Header(format string, args ...any) {
	fmt.Fprintln(r.out, r.header(format, args...))
}

// Diff prints the lines that changed between the indented forms of before
// and after.
func (r *docRenderer) Diff(before, after json.RawMessage) error {
	a, err := indent(before)
	if err != nil {
		return err
	}
	b, err := indent(after)
	if err != nil {
		return err
	}
	dmp := diffpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)
	for _, d := range diffs {
		for _, line := range splitLines(d.Text) {
			switch d.Type {
			case diffpatch.DiffInsert:
				fmt.Fprintln(r.out, r.insert("+ %s", line))
			case diffpatch.DiffDelete:
				fmt.Fprintln(r.out, r.delete("- %s", line))
			case diffpatch.DiffEqual:
				fmt.Fprintf(r.out, "  %s\n", line)
			}
		}
	}
	return nil
}

func indent(doc json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return "", fmt.Errorf("invalid document: %w", err)
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
