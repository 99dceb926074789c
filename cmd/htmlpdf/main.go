package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"github.com/smallbiznis/htmlpdf/internal/migration"
	"github.com/smallbiznis/htmlpdf/internal/observability"
	"github.com/smallbiznis/htmlpdf/internal/server"
	"github.com/smallbiznis/htmlpdf/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake uses SNOWFLAKE_NODE_ID so replicas mint disjoint ids.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
