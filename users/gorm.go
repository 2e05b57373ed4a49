package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/imagenhancer/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore 基于 GORM 的用户存储，支持 postgres 与 sqlite。
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建 GormStore
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: db, logger: logger.With(zap.String("component", "user_store"))}
}

// AutoMigrate 创建或更新用户表
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&User{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// GetUserByID 实现 Store
func (s *GormStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "user lookup failed").WithCause(err)
	}
	return &u, nil
}

// Upsert 新增或按主键覆盖用户
func (s *GormStore) Upsert(ctx context.Context, u *User) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "token", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	s.logger.Info("user upserted", zap.String("user_id", u.ID))
	return nil
}

// List 按 ID 排序返回全部用户
func (s *GormStore) List(ctx context.Context) ([]User, error) {
	var out []User
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

// Ping 检查底层连接
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
