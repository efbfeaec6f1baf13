package repository

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lancache-dash/lancache-dash-go/internal/config"
	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/utils"
)

// InitDB 初始化数据库连接
func InitDB(cfg *config.DatabaseConfig, dataDir string, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	if cfg.Type == "mysql" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
		dialector = mysql.Open(dsn)
	} else {
		// SQLite (fallback); WAL 让 tail 写入和面板读取互不阻塞
		dsn := filepath.Join(dataDir, "downloads.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 关闭 SQL 日志
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true, // 预编译 SQL
	})

	if err != nil {
		return nil, err
	}

	// 设置连接池
	if err := utils.OptimizeDBPool(db, cfg.Type); err != nil {
		return nil, err
	}

	// 自动迁移
	if err := autoMigrate(db, log); err != nil {
		return nil, err
	}

	return db, nil
}

// autoMigrate 自动迁移数据库表结构
func autoMigrate(db *gorm.DB, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	err := db.AutoMigrate(
		&domain.Download{},
		&domain.Setting{},
		&domain.SteamDepotMapping{},
	)

	if err != nil {
		return err
	}

	log.Info("Database migrations completed")
	return nil
}
