package renderer

import "go.uber.org/fx"

var Module = fx.Module("renderer",
	fx.Provide(ChromeConfigFrom),
	fx.Provide(fx.Annotate(NewChromeRenderer, fx.As(new(Renderer)))),
)
