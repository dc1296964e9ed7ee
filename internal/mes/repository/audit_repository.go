package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// AuditRepository 审计日志仓库。日志只追加，不提供更新和删除
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建审计日志仓库
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// ListByOrder 工单的审计日志，按时间倒序
func (r *AuditRepository) ListByOrder(ctx context.Context, orderID string, page, pageSize int) ([]entity.OrderAuditLog, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entity.OrderAuditLog{}).
		Where("production_order_id = ?", orderID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []entity.OrderAuditLog
	err := query.
		Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error

	return logs, total, err
}
