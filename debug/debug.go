package debug

import (
	"os"
	"strconv"
)

type debug struct {
	Handshake bool
	Patch     bool
	Diff      bool
	Wire      bool
}

var d *debug

func init() {
	d = &debug{}
	d.Handshake = boolEnv("DOCSYNC_DEBUG_HANDSHAKE")
	d.Patch = boolEnv("DOCSYNC_DEBUG_PATCH")
	d.Diff = boolEnv("DOCSYNC_DEBUG_DIFF")
	d.Wire = boolEnv("DOCSYNC_DEBUG_WIRE")
}

func boolEnv(v string) bool {
	x := os.Getenv(v)
	if x == "" {
		return false
	}
	b, _ := strconv.ParseBool(x)
	return b
}

func Handshake() bool {
	return d.Handshake
}
func Patch() bool {
	return d.Patch
}
func Diff() bool {
	return d.Diff
}
func Wire() bool {
	return d.Wire
}
