package users

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/imagenhancer/types"
)

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// User 宿主用户身份。Token 用于以该用户身份调用宿主生成接口。
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:255;index" json:"email,omitempty"`
	Role      string    `gorm:"size:32;default:user" json:"role"`
	Token     string    `gorm:"size:1024" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string { return "enhancer_users" }

// Store 按 ID 解析用户身份。
type Store interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// notFound 把 ErrUserNotFound 包装成结构化错误。
func notFound(id string) error {
	return types.NewError(types.ErrUserNotFound, "user "+id+" not found").WithCause(ErrUserNotFound)
}
