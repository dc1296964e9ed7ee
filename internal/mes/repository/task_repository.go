package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// TaskRepository 任务仓库
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓库
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// FindByOrder 查找指定工单下的任务
func (r *TaskRepository) FindByOrder(ctx context.Context, orderID, taskID string) (*entity.Task, error) {
	var task entity.Task
	err := r.db.WithContext(ctx).
		Where("production_order_id = ? AND id = ?", orderID, taskID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task", taskID)
		}
		return nil, err
	}
	return &task, nil
}

// ListByOrder 工单下全部任务
func (r *TaskRepository) ListByOrder(ctx context.Context, orderID string) ([]entity.Task, error) {
	var tasks []entity.Task
	err := r.db.WithContext(ctx).
		Where("production_order_id = ?", orderID).
		Order("id ASC").
		Find(&tasks).Error
	return tasks, err
}

// TaskCounts 任务统计计数（汇总查询路径，与内存汇总路径结果一致）
type TaskCounts struct {
	Total             int        `gorm:"column:total"`
	Pending           int        `gorm:"column:pending"`
	Completed         int        `gorm:"column:completed"`
	Overdue           int        `gorm:"column:overdue"`
	LatestPendingDate *time.Time `gorm:"column:latest_pending_date"`
}

// CountSummary 单条 SQL 统计工单任务数。
// 未预加载任务集合时的回退路径
func (r *TaskRepository) CountSummary(ctx context.Context, orderID string, today time.Time) (TaskCounts, error) {
	var counts TaskCounts
	err := r.db.WithContext(ctx).
		Model(&entity.Task{}).
		Select(`COUNT(*) AS total,
			COUNT(CASE WHEN status = 'pending' THEN 1 END) AS pending,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) AS completed,
			COUNT(CASE WHEN status = 'pending' AND expected_end_date < ? THEN 1 END) AS overdue,
			MAX(CASE WHEN status = 'pending' THEN expected_end_date END) AS latest_pending_date`, today).
		Where("production_order_id = ?", orderID).
		Scan(&counts).Error
	return counts, err
}

// ListExpired 过期任务（pending 且预计完成日早于 today），通知扫描用
func (r *TaskRepository) ListExpired(ctx context.Context, today time.Time) ([]entity.Task, error) {
	var tasks []entity.Task
	err := r.db.WithContext(ctx).
		Where("status = ?", entity.TaskStatusPending).
		Where("expected_end_date < ?", today).
		Preload("Order").
		Preload("Order.Creator").
		Preload("Order.AssignedUsers").
		Find(&tasks).Error
	return tasks, err
}
