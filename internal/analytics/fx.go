package analytics

import (
	"github.com/smallbiznis/htmlpdf/internal/analytics/service"
	"github.com/smallbiznis/htmlpdf/internal/analytics/statement"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics.service",
	fx.Provide(service.New),
	fx.Provide(statement.New),
)
