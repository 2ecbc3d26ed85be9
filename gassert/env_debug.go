//go:build debug

package gassert

import (
	"fmt"
	"log/slog"
	"strings"
)

// Env is an alias for *Environment in debug builds.
type Env = *Environment

// Environment is a parsed set of assertion rules.
// It is immutable after construction, apart from [*Environment.OnlyLogFailures],
// which must be called before the Environment is shared.
type Environment struct {
	all      bool
	prefixes []string
	exacts   map[string]struct{}
	excludes map[string]struct{}

	log *slog.Logger
}

// EnvironmentFromString parses a comma-separated list of rules.
func EnvironmentFromString(in string) (*Environment, error) {
	e := &Environment{
		exacts:   map[string]struct{}{},
		excludes: map[string]struct{}{},
	}
	if in == "" {
		return e, nil
	}

	for _, r := range strings.Split(in, ",") {
		r = strings.TrimSpace(r)
		switch {
		case r == "":
			return nil, fmt.Errorf("empty rule in %q", in)
		case strings.Contains(r, ".."):
			return nil, fmt.Errorf("invalid rule %q: empty path segment", r)
		case r == "*":
			e.all = true
		case strings.HasPrefix(r, "!"):
			e.excludes[r[1:]] = struct{}{}
		case strings.HasSuffix(r, ".*"):
			e.prefixes = append(e.prefixes, strings.TrimSuffix(r, "*"))
		case strings.Contains(r, "*"):
			return nil, fmt.Errorf("invalid rule %q: wildcard may only be the final segment", r)
		default:
			e.exacts[r] = struct{}{}
		}
	}

	return e, nil
}

// OnlyLogFailures makes [*Environment.HandleAssertionFailure] log instead of panicking.
func (e *Environment) OnlyLogFailures(log *slog.Logger) {
	e.log = log
}

// Enabled reports whether the assertion at the given rule path should run.
func (e *Environment) Enabled(rule string) bool {
	if _, ok := e.excludes[rule]; ok {
		return false
	}
	if e.all {
		return true
	}
	if _, ok := e.exacts[rule]; ok {
		return true
	}
	for _, p := range e.prefixes {
		if strings.HasPrefix(rule, p) {
			return true
		}
	}
	return false
}

// HandleAssertionFailure panics with err,
// or logs it at error level if [*Environment.OnlyLogFailures] was called.
func (e *Environment) HandleAssertionFailure(err error) {
	if e.log != nil {
		e.log.Error("ASSERTION FAILURE", "err", err)
		return
	}
	panic(fmt.Errorf("assertion failure: %w", err))
}
