package watermark

import (
	"github.com/smallbiznis/studiosync/internal/watermark/repository"
	"github.com/smallbiznis/studiosync/internal/watermark/service"
	"go.uber.org/fx"
)

var Module = fx.Module("watermark.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
