package users

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config 用户存储配置
type Config struct {
	// 驱动: memory, sqlite, postgres
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN: sqlite 为文件路径（":memory:" 为内存库），postgres 为连接串
	DSN string `yaml:"dsn" env:"DSN"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// ReadWriteStore 可写的用户存储
type ReadWriteStore interface {
	Store
	Upsert(ctx context.Context, u *User) error
	List(ctx context.Context) ([]User, error)
}

// Open 按配置打开用户存储。返回的 close 函数在 memory 驱动下为空操作。
func Open(cfg Config, logger *zap.Logger) (ReadWriteStore, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, nil, fmt.Errorf("unsupported user store driver: %s (supported: memory, sqlite, postgres)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := NewGormStore(db, logger)
	if err := store.AutoMigrate(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	logger.Info("user store connected", zap.String("driver", cfg.Driver))
	return store, store.Close, nil
}
