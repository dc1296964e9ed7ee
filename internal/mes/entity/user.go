package entity

import (
	"time"
)

// 用户角色，按权限从低到高排列
const (
	RoleOperator          = "operator"           // 操作员：只能看到自己创建或被指派的工单
	RoleProductionManager = "production_manager" // 生产主管：可创建/管理自己创建或被指派的工单
	RoleAdmin             = "admin"              // 管理员：全部权限
)

// User 用户实体
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Name         string    `json:"name" gorm:"size:64;not null"`
	Email        string    `json:"email" gorm:"size:128;not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:128;not null"`
	Role         string    `json:"role" gorm:"size:32;not null;default:operator"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// 关联
	CreatedOrders []ProductionOrder `json:"created_orders,omitempty" gorm:"foreignKey:CreatorID"`
	Assignments   []OrderAssignment `json:"-" gorm:"foreignKey:UserID"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin 是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsProductionManager 是否为生产主管
func (u *User) IsProductionManager() bool {
	return u.Role == RoleProductionManager
}

// IsOperator 是否为操作员
func (u *User) IsOperator() bool {
	return u.Role == RoleOperator
}

// ValidRole 角色是否合法
func ValidRole(role string) bool {
	switch role {
	case RoleOperator, RoleProductionManager, RoleAdmin:
		return true
	}
	return false
}
