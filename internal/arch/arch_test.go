package arch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestISAString(t *testing.T) {
	require.Equal(t, "amd64", ISAAMD64.String())
	require.Equal(t, "x86", ISAX86.String())
	require.Equal(t, "arm64", ISAArm64.String())
	require.Equal(t, "unknown", ISAUnknown.String())
}

func TestISAPointerSize(t *testing.T) {
	require.Equal(t, 4, ISAX86.PointerSize())
	require.Equal(t, 8, ISAAMD64.PointerSize())
	require.Equal(t, 8, ISAArm64.PointerSize())
}
