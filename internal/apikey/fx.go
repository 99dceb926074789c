package apikey

import (
	apikeydomain "github.com/smallbiznis/htmlpdf/internal/apikey/domain"
	"github.com/smallbiznis/htmlpdf/internal/apikey/repository"
	"github.com/smallbiznis/htmlpdf/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(fx.Annotate(
		service.New,
		fx.As(new(apikeydomain.Service)),
		fx.As(new(apikeydomain.KeyStore)),
	)),
)
