package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// AssignmentRepository 工单指派仓库
type AssignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository 创建工单指派仓库
func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// FindByID 根据ID查找指派关系
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*entity.OrderAssignment, error) {
	var assignment entity.OrderAssignment
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Order").
		Where("id = ?", id).
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("order_assignment", id)
		}
		return nil, err
	}
	return &assignment, nil
}

// ListByOrder 工单的全部指派
func (r *AssignmentRepository) ListByOrder(ctx context.Context, orderID string) ([]entity.OrderAssignment, error) {
	var assignments []entity.OrderAssignment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("production_order_id = ?", orderID).
		Find(&assignments).Error
	return assignments, err
}

// ListOperatorsByOrder 工单上被指派的 operator 用户（缓存失效用）
func (r *AssignmentRepository) ListOperatorsByOrder(ctx context.Context, orderID string) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).
		Model(&entity.User{}).
		Joins("JOIN order_assignments ON order_assignments.user_id = users.id").
		Where("order_assignments.production_order_id = ?", orderID).
		Where("users.role = ?", entity.RoleOperator).
		Find(&users).Error
	return users, err
}

// ListByOrderIDs 批量查找多个工单的指派（含用户）
func (r *AssignmentRepository) ListByOrderIDs(ctx context.Context, orderIDs []string) ([]entity.OrderAssignment, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var assignments []entity.OrderAssignment
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("production_order_id IN ?", orderIDs).
		Find(&assignments).Error
	return assignments, err
}

// Delete 删除指派关系
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.OrderAssignment{}).Error
}
