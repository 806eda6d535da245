package debug

import (
	"encoding/json"
	"fmt"
	"os"
)

// Logf writes a debug line to stderr. Raw JSON and decoded JSON values
// in args are rendered indented.
func Logf(msg string, args ...any) {
	for i := range args {
		a := args[i]
		switch x := a.(type) {
		case map[string]any, []any, json.Number:
			d, err := json.MarshalIndent(a, "   |", "  ")
			if err != nil {
				args[i] = fmt.Sprintf("%v", a)
				continue
			}
			args[i] = string(d)
		case json.RawMessage:
			args[i] = string(x)
		case bool, string, float64, int, int64:

		default:
		}
	}
	fmt.Fprintf(os.Stderr, msg, args...)
}
