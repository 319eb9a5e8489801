package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID string using a node ID from
// the environment variable SNOWFLAKE_NODE (default 1). The node is created
// once per process; a fresh node per call would reset the sequence and
// could hand out the same ID twice within a millisecond.
// If the node cannot be initialized it falls back to a KSUID string.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		node = nodeFromEnv(os.Getenv("SNOWFLAKE_NODE"))
	})
	return generate(node)
}

// nodeFromEnv returns nil when the configured node ID is out of range.
func nodeFromEnv(v string) *snowflake.Node {
	nodeID := int64(1)
	if id, err := strconv.ParseInt(v, 10, 64); err == nil {
		nodeID = id
	}
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil
	}
	return n
}

func generate(n *snowflake.Node) string {
	if n == nil {
		return NewKSUID()
	}
	return n.Generate().String()
}
