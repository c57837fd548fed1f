package gen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("gen", fx.Provide(NewSnowflakeNode))

// SnowflakeNode issues the string primary keys every table in the platform
// uses. A single node per process is enough for our write volume.
type SnowflakeNode struct {
	node *snowflake.Node
}

func NewSnowflakeNode() (*SnowflakeNode, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return &SnowflakeNode{node: node}, nil
}

func (s *SnowflakeNode) GenerateID() string {
	return s.node.Generate().String()
}
