// Package gassert provides opt-in runtime assertions.
//
// Validating every invariant on every call is too expensive for production,
// but it is invaluable while chasing a divergent commit sequence.
// Assertions are compiled in only with the "debug" build tag
// (go test -tags debug ./...), and even then only the rules
// enabled in the [Env] are checked.
//
// Rules are dot-separated paths such as "dgstate.arena" or "dgengine.commit_index".
// A rule ending in ".*" enables every path beneath it, and "*" alone enables everything.
// A leading "!" excludes an exact path from an otherwise matching wildcard.
// [EnvironmentFromString] accepts a comma-separated list of rules.
package gassert
