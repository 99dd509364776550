//go:build amd64 || 386

package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlushInstructionCacheIsNoop(t *testing.T) {
	require.NoError(t, FlushInstructionCache(0x1000, 0x2000))
}
