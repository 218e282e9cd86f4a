package csvsource

import (
	"github.com/smallbiznis/studiosync/internal/config"
	"github.com/smallbiznis/studiosync/internal/export/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("export.csvsource",
	fx.Provide(Provide),
)

// Provide opens the export directory named by EXPORT_DIR.
func Provide(cfg config.Config, log *zap.Logger) (domain.Source, error) {
	return New(cfg.ExportDir, log)
}
