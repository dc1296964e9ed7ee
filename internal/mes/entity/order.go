package entity

import (
	"time"
)

// 工单类型（kind 判别字段，同一张表）
const (
	OrderKindNormal = "normal" // 普通工单
	OrderKindUrgent = "urgent" // 紧急工单：必须带 deadline
)

// 工单状态
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

// 任务状态
const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

// ProductionOrder 生产工单
// order_number 在同一 kind 内唯一且单调递增，由服务层在创建时分配
type ProductionOrder struct {
	ID              string     `json:"id" gorm:"primaryKey;size:32"`
	Kind            string     `json:"kind" gorm:"size:16;not null;uniqueIndex:idx_orders_kind_number,priority:1"`
	OrderNumber     int        `json:"order_number" gorm:"not null;uniqueIndex:idx_orders_kind_number,priority:2"`
	StartDate       time.Time  `json:"start_date" gorm:"type:date;not null"`
	ExpectedEndDate time.Time  `json:"expected_end_date" gorm:"type:date;not null"`
	Deadline        *time.Time `json:"deadline,omitempty" gorm:"type:date"` // 仅 urgent 工单使用
	Status          string     `json:"status" gorm:"size:16;not null;default:pending"`
	CreatorID       string     `json:"creator_id" gorm:"size:32;not null;index"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// 关联
	Creator       *User             `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	Tasks         []Task            `json:"tasks,omitempty" gorm:"foreignKey:ProductionOrderID;constraint:OnDelete:CASCADE"`
	Assignments   []OrderAssignment `json:"-" gorm:"foreignKey:ProductionOrderID;constraint:OnDelete:CASCADE"`
	AssignedUsers []User            `json:"assigned_users,omitempty" gorm:"many2many:order_assignments;joinForeignKey:ProductionOrderID;joinReferences:UserID"`
}

func (ProductionOrder) TableName() string {
	return "production_orders"
}

// IsUrgent 是否为紧急工单
func (o *ProductionOrder) IsUrgent() bool {
	return o.Kind == OrderKindUrgent
}

// AccessibleBy 用户是否能访问该工单（创建者或被指派者；admin 恒为真）
// 判定前需预加载 Assignments
func (o *ProductionOrder) AccessibleBy(u *User) bool {
	if u.IsAdmin() {
		return true
	}
	if o.CreatorID == u.ID {
		return true
	}
	for _, a := range o.Assignments {
		if a.UserID == u.ID {
			return true
		}
	}
	return false
}

// ValidOrderKind 工单类型是否合法
func ValidOrderKind(kind string) bool {
	return kind == OrderKindNormal || kind == OrderKindUrgent
}

// ValidOrderStatus 工单状态是否合法
func ValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Task 工单任务
type Task struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	ProductionOrderID string    `json:"production_order_id" gorm:"size:32;not null;index"`
	Description       string    `json:"description" gorm:"type:text;not null"`
	ExpectedEndDate   time.Time `json:"expected_end_date" gorm:"type:date;not null"`
	Status            string    `json:"status" gorm:"size:16;not null;default:pending"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Order *ProductionOrder `json:"-" gorm:"foreignKey:ProductionOrderID"`
}

func (Task) TableName() string {
	return "tasks"
}

// IsOverdue 过期判定：pending 且预计完成日早于 today。只做派生计算，不落库
func (t *Task) IsOverdue(today time.Time) bool {
	return t.Status == TaskStatusPending && t.ExpectedEndDate.Before(today)
}

// OrderAssignment 工单指派关系，(user_id, production_order_id) 唯一
type OrderAssignment struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	UserID            string    `json:"user_id" gorm:"size:32;not null;uniqueIndex:idx_assignments_user_order,priority:1"`
	ProductionOrderID string    `json:"production_order_id" gorm:"size:32;not null;uniqueIndex:idx_assignments_user_order,priority:2"`
	CreatedAt         time.Time `json:"created_at"`

	User  *User            `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Order *ProductionOrder `json:"-" gorm:"foreignKey:ProductionOrderID"`
}

func (OrderAssignment) TableName() string {
	return "order_assignments"
}
