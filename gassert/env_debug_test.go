//go:build debug

package gassert_test

import (
	"errors"
	"testing"

	"github.com/gordian-engine/gdag/gassert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_rules(t *testing.T) {
	t.Parallel()

	env, err := gassert.EnvironmentFromString("dgstate.*,!dgstate.children,dgengine.commit_index")
	require.NoError(t, err)

	require.True(t, env.Enabled("dgstate.arena"))
	require.False(t, env.Enabled("dgstate.children"))
	require.True(t, env.Enabled("dgengine.commit_index"))
	require.False(t, env.Enabled("dgengine.other"))
}

func TestEnvironment_invalidRules(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"a..b", "a.*.b", "a,,b"} {
		_, err := gassert.EnvironmentFromString(in)
		require.Error(t, err, in)
	}
}

func TestEnvironment_failurePanics(t *testing.T) {
	t.Parallel()

	env, err := gassert.EnvironmentFromString("*")
	require.NoError(t, err)
	require.Panics(t, func() {
		env.HandleAssertionFailure(errors.New("boom"))
	})
}
