package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// OrderRepository 工单仓库
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建工单仓库
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindScoped 在可见范围内查找工单。
// 范围外的工单返回 NotFound 而不是 Forbidden，避免泄露存在性
func (r *OrderRepository) FindScoped(ctx context.Context, scope Scope, id string) (*entity.ProductionOrder, error) {
	var order entity.ProductionOrder
	err := r.db.WithContext(ctx).
		Scopes(scope).
		Preload("Creator").
		Preload("AssignedUsers").
		Preload("Assignments").
		Preload("Tasks").
		Where("production_orders.id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("production_order", id)
		}
		return nil, err
	}
	return &order, nil
}

// OrderFilters 工单列表过滤条件
type OrderFilters struct {
	Kind            string
	Status          string
	CreatorID       string
	AssignedUserID  string
	OrderNumber     *int
	StartDateFrom   *time.Time
	StartDateTo     *time.Time
	ExpectedEndFrom *time.Time
	ExpectedEndTo   *time.Time
	DeadlineFrom    *time.Time
	DeadlineTo      *time.Time
}

func applyOrderFilters(query *gorm.DB, f OrderFilters) *gorm.DB {
	if f.Kind != "" {
		query = query.Where("production_orders.kind = ?", f.Kind)
	}
	if f.Status != "" {
		query = query.Where("production_orders.status = ?", f.Status)
	}
	if f.CreatorID != "" {
		query = query.Where("production_orders.creator_id = ?", f.CreatorID)
	}
	if f.AssignedUserID != "" {
		query = query.Where(
			"production_orders.id IN (SELECT production_order_id FROM order_assignments WHERE user_id = ?)",
			f.AssignedUserID,
		)
	}
	if f.OrderNumber != nil {
		query = query.Where("production_orders.order_number = ?", *f.OrderNumber)
	}
	if f.StartDateFrom != nil {
		query = query.Where("production_orders.start_date >= ?", *f.StartDateFrom)
	}
	if f.StartDateTo != nil {
		query = query.Where("production_orders.start_date <= ?", *f.StartDateTo)
	}
	if f.ExpectedEndFrom != nil {
		query = query.Where("production_orders.expected_end_date >= ?", *f.ExpectedEndFrom)
	}
	if f.ExpectedEndTo != nil {
		query = query.Where("production_orders.expected_end_date <= ?", *f.ExpectedEndTo)
	}
	if f.DeadlineFrom != nil {
		query = query.Where("production_orders.deadline >= ?", *f.DeadlineFrom)
	}
	if f.DeadlineTo != nil {
		query = query.Where("production_orders.deadline <= ?", *f.DeadlineTo)
	}
	return query
}

// List 工单列表
func (r *OrderRepository) List(ctx context.Context, scope Scope, f OrderFilters, page, pageSize int) ([]entity.ProductionOrder, int64, error) {
	query := applyOrderFilters(
		r.db.WithContext(ctx).Model(&entity.ProductionOrder{}).Scopes(scope),
		f,
	)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []entity.ProductionOrder
	err := query.
		Preload("Creator").
		Preload("AssignedUsers").
		Preload("Tasks").
		Order("production_orders.created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

// NextOrderNumber 计算同 kind 下的下一个工单号（无则从1起）。
// 读取和写入之间存在竞态，依赖 (kind, order_number) 唯一索引兜底，
// 冲突由调用方重试
func (r *OrderRepository) NextOrderNumber(ctx context.Context, kind, excludeID string) (int, error) {
	query := r.db.WithContext(ctx).
		Model(&entity.ProductionOrder{}).
		Where("kind = ?", kind)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var max int
	err := query.Select("COALESCE(MAX(order_number), 0)").Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Save 更新工单
func (r *OrderRepository) Save(ctx context.Context, order *entity.ProductionOrder) error {
	err := r.db.WithContext(ctx).Save(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("order_number is already taken for this kind")
	}
	return err
}

// UrgentOrderRow 紧急工单报表行：每个工单恰好一行，
// 任务计数来自普通 join 聚合，最新 pending 任务来自 lateral 子查询
type UrgentOrderRow struct {
	ID              string     `gorm:"column:id"`
	Kind            string     `gorm:"column:kind"`
	OrderNumber     int        `gorm:"column:order_number"`
	StartDate       time.Time  `gorm:"column:start_date"`
	ExpectedEndDate time.Time  `gorm:"column:expected_end_date"`
	Deadline        *time.Time `gorm:"column:deadline"`
	Status          string     `gorm:"column:status"`
	CreatorID       string     `gorm:"column:creator_id"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`

	LatestTaskID              *string    `gorm:"column:latest_task_id"`
	LatestTaskDescription     *string    `gorm:"column:latest_task_description"`
	LatestTaskExpectedEndDate *time.Time `gorm:"column:latest_task_expected_end_date"`
	LatestTaskCreatedAt       *time.Time `gorm:"column:latest_task_created_at"`
	LatestTaskUpdatedAt       *time.Time `gorm:"column:latest_task_updated_at"`

	PendingTasksCount    int     `gorm:"column:pending_tasks_count"`
	CompletedTasksCount  int     `gorm:"column:completed_tasks_count"`
	TotalTasksCount      int     `gorm:"column:total_tasks_count"`
	CompletionPercentage float64 `gorm:"column:completion_percentage"`
}

const latestPendingTaskJoin = `LEFT JOIN LATERAL (
	SELECT id, description, expected_end_date, created_at, updated_at
	FROM tasks
	WHERE tasks.production_order_id = production_orders.id
	  AND tasks.status = 'pending'
	ORDER BY id DESC
	LIMIT 1
) AS latest_task ON true`

// UrgentReport 紧急工单报表查询
func (r *OrderRepository) UrgentReport(ctx context.Context, scope Scope, page, pageSize int) ([]UrgentOrderRow, int64, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&entity.ProductionOrder{}).
			Scopes(scope).
			Where("production_orders.kind = ?", entity.OrderKindUrgent)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []UrgentOrderRow
	err := base().
		Joins("LEFT JOIN tasks ON tasks.production_order_id = production_orders.id").
		Joins(latestPendingTaskJoin).
		Select(`production_orders.*,
			latest_task.id AS latest_task_id,
			latest_task.description AS latest_task_description,
			latest_task.expected_end_date AS latest_task_expected_end_date,
			latest_task.created_at AS latest_task_created_at,
			latest_task.updated_at AS latest_task_updated_at,
			COUNT(CASE WHEN tasks.status = 'pending' THEN 1 END) AS pending_tasks_count,
			COUNT(CASE WHEN tasks.status = 'completed' THEN 1 END) AS completed_tasks_count,
			COUNT(tasks.id) AS total_tasks_count,
			CASE WHEN COUNT(tasks.id) > 0
				THEN ROUND(COUNT(CASE WHEN tasks.status = 'completed' THEN 1 END) * 100.0 / COUNT(tasks.id), 2)
				ELSE 0
			END AS completion_percentage`).
		Group("production_orders.id, latest_task.id, latest_task.description, latest_task.expected_end_date, latest_task.created_at, latest_task.updated_at").
		Order("production_orders.order_number ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error

	return rows, total, err
}

// ListUrgentWithOverdueTasks 存在至少一个过期 pending 任务的紧急工单
func (r *OrderRepository) ListUrgentWithOverdueTasks(ctx context.Context, scope Scope, today time.Time, page, pageSize int) ([]entity.ProductionOrder, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&entity.ProductionOrder{}).
		Scopes(scope).
		Where("production_orders.kind = ?", entity.OrderKindUrgent).
		Where(
			"production_orders.id IN (SELECT production_order_id FROM tasks WHERE status = 'pending' AND expected_end_date < ?)",
			today,
		)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []entity.ProductionOrder
	err := query.
		Preload("Creator").
		Preload("AssignedUsers").
		Preload("Tasks").
		Order("production_orders.order_number ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

// MonthlyCounts 月度统计的四个独立计数（非互斥分类）
type MonthlyCounts struct {
	NormalOrdersStarting     int64 `json:"normal_orders_starting"`
	UrgentOrdersWithDeadline int64 `json:"urgent_orders_with_deadline"`
	TotalOrdersStarted       int64 `json:"total_orders_started"`
	CompletedOrders          int64 `json:"completed_orders"`
}

// CountMonthly 统计窗口 [monthStart, monthEnd] 内的工单数。
// completed 按 updated_at 落窗判定，窗口上界取当日 23:59:59
func (r *OrderRepository) CountMonthly(ctx context.Context, scope Scope, monthStart, monthEnd time.Time) (MonthlyCounts, error) {
	var counts MonthlyCounts
	endOfDay := time.Date(monthEnd.Year(), monthEnd.Month(), monthEnd.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), monthEnd.Location())

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&entity.ProductionOrder{}).Scopes(scope)
	}

	err := base().
		Where("production_orders.kind = ?", entity.OrderKindNormal).
		Where("production_orders.start_date BETWEEN ? AND ?", monthStart, monthEnd).
		Count(&counts.NormalOrdersStarting).Error
	if err != nil {
		return counts, err
	}

	err = base().
		Where("production_orders.kind = ?", entity.OrderKindUrgent).
		Where("production_orders.deadline BETWEEN ? AND ?", monthStart, monthEnd).
		Count(&counts.UrgentOrdersWithDeadline).Error
	if err != nil {
		return counts, err
	}

	err = base().
		Where("production_orders.start_date BETWEEN ? AND ?", monthStart, monthEnd).
		Count(&counts.TotalOrdersStarted).Error
	if err != nil {
		return counts, err
	}

	err = base().
		Where("production_orders.status = ?", entity.OrderStatusCompleted).
		Where("production_orders.updated_at BETWEEN ? AND ?", monthStart, endOfDay).
		Count(&counts.CompletedOrders).Error

	return counts, err
}

// ListUrgentDeadlineBetween 截止日落在 [from, to] 的 pending 紧急工单（催办扫描用）
func (r *OrderRepository) ListUrgentDeadlineBetween(ctx context.Context, from, to time.Time) ([]entity.ProductionOrder, error) {
	var orders []entity.ProductionOrder
	err := r.db.WithContext(ctx).
		Where("kind = ?", entity.OrderKindUrgent).
		Where("status = ?", entity.OrderStatusPending).
		Where("deadline BETWEEN ? AND ?", from, to).
		Preload("Creator").
		Preload("AssignedUsers").
		Find(&orders).Error
	return orders, err
}
