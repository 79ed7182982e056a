package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Run("hex encoded", func(t *testing.T) {
		key, err := generate(32)

		require.NoError(t, err)
		require.Len(t, key, 64)
		require.Regexp(t, "^[0-9a-f]+$", key)
	})

	t.Run("random", func(t *testing.T) {
		first, err := generate(32)
		require.NoError(t, err)
		second, err := generate(32)
		require.NoError(t, err)

		require.NotEqual(t, first, second)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := generate(8)
		require.Error(t, err)
	})
}
