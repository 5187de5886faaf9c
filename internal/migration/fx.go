package migration

import (
	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/badrx15/creavisionbot/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DBType == db.TypePostgres {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("applying postgres migrations")
			return RunMigrations(sqlDB)
		}
		log.Info("auto-migrating schema", zap.String("db_type", cfg.DBType))
		return AutoMigrate(conn)
	}),
)
