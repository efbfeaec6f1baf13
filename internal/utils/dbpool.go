package utils

import (
	"time"

	"gorm.io/gorm"
)

// OptimizeDBPool 优化数据库连接池
// 面板的查询都很短, 少量连接即可; 采集侧写入与 HTTP 读取共用同一个池
func OptimizeDBPool(db *gorm.DB, dbType string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if dbType == "sqlite" {
		// SQLite 写锁是全库级别的, 并发连接只会互相等待
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
	}

	// 防止长时间连接导致的问题
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	return nil
}
