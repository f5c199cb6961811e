package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator mints unique int64 identifiers for database rows. It wraps a
// snowflake node so inserts carry their primary keys instead of relying on
// database autoincrement.
type Generator struct {
	node *snowflake.Node
}

// New creates a Generator for the given node ID (0-1023)
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &Generator{node: node}, nil
}

// NextID returns a new unique identifier. Safe for concurrent use.
func (g *Generator) NextID() int64 {
	return g.node.Generate().Int64()
}
