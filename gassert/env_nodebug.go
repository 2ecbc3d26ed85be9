//go:build !debug

package gassert

// Env selects which assertions are active.
//
// In non-debug builds Env is an empty struct with no methods,
// so code that consults it must itself be behind the "debug" build tag.
// In debug builds Env is an alias for *Environment.
type Env struct{}
