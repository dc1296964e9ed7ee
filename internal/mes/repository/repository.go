package repository

import (
	"gorm.io/gorm"
)

// Scope 查询可见范围限定，由 policy 包生成、handler/service 逐层传入
type Scope = func(*gorm.DB) *gorm.DB

// Repositories 仓库集合
type Repositories struct {
	User       *UserRepository
	Order      *OrderRepository
	Task       *TaskRepository
	Assignment *AssignmentRepository
	Audit      *AuditRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepository(db),
		Order:      NewOrderRepository(db),
		Task:       NewTaskRepository(db),
		Assignment: NewAssignmentRepository(db),
		Audit:      NewAuditRepository(db),
	}
}
