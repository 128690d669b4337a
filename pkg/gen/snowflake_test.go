package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvideSnowflakeNode(t *testing.T) {
	t.Setenv("NODE_ID", "7")
	node, err := ProvideSnowflakeNode()
	require.NoError(t, err)
	require.Equal(t, int64(7), node.Generate().Node())

	t.Setenv("NODE_ID", "x")
	_, err = ProvideSnowflakeNode()
	require.Error(t, err)
}
