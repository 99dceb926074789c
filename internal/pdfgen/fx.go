package pdfgen

import (
	"github.com/smallbiznis/htmlpdf/internal/pdfgen/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pdfgen.pipeline",
	fx.Provide(service.New),
)
