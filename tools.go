//go:build tools

// For the tools.go pattern, see:
// https://go.dev/wiki/Modules#how-can-i-track-tool-dependencies-for-a-module

package gdag

import (
	// Stringer generates the String methods for decision and scoring enums.
	_ "golang.org/x/tools/cmd/stringer"
)
