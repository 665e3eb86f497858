package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFlag(t *testing.T) {
	for _, raw := range []string{"1", "true", "TRUE", " yes ", "on", "t"} {
		require.True(t, parseFlag(raw), raw)
	}
	for _, raw := range []string{"", "0", "false", "off", "no", "maybe"} {
		require.False(t, parseFlag(raw), raw)
	}
}
