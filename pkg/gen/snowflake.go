package gen

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake", fx.Provide(ProvideSnowflakeNode))

// ProvideSnowflakeNode builds the node from NODE_ID (default 1) so replicas
// do not mint colliding ids.
func ProvideSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if v, ok := os.LookupEnv("NODE_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = id
	}
	return snowflake.NewNode(nodeID)
}
