package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/policy"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// TaskService 任务服务。任务始终挂在某个工单下，
// 所有操作先在可见范围内取到工单再做权限判定
type TaskService struct {
	db    *gorm.DB
	repos *repository.Repositories
	audit *AuditService
}

// NewTaskService 创建任务服务
func NewTaskService(db *gorm.DB, repos *repository.Repositories, audit *AuditService) *TaskService {
	return &TaskService{db: db, repos: repos, audit: audit}
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Description     string `json:"description"`
	ExpectedEndDate string `json:"expected_end_date"`
	Status          string `json:"status"`
}

// UpdateTaskRequest 更新任务请求，nil 字段表示不修改
type UpdateTaskRequest struct {
	Description     *string `json:"description"`
	ExpectedEndDate *string `json:"expected_end_date"`
	Status          *string `json:"status"`
}

func (s *TaskService) loadOrder(ctx context.Context, user *entity.User, orderID string) (*entity.ProductionOrder, error) {
	return s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), orderID)
}

// List 工单下的任务列表
func (s *TaskService) List(ctx context.Context, user *entity.User, orderID string) ([]entity.Task, error) {
	order, err := s.loadOrder(ctx, user, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionList, policy.ResourceTask, policy.Ref{Order: order}); err != nil {
		return nil, err
	}
	return s.repos.Task.ListByOrder(ctx, orderID)
}

// Get 读取单个任务
func (s *TaskService) Get(ctx context.Context, user *entity.User, orderID, taskID string) (*entity.Task, error) {
	order, err := s.loadOrder(ctx, user, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionView, policy.ResourceTask, policy.Ref{Order: order}); err != nil {
		return nil, err
	}
	return s.repos.Task.FindByOrder(ctx, orderID, taskID)
}

// Create 新增任务并记录 task_added 审计日志
func (s *TaskService) Create(ctx context.Context, user *entity.User, actor Actor, orderID string, req CreateTaskRequest) (*entity.Task, error) {
	order, err := s.loadOrder(ctx, user, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionCreate, policy.ResourceTask, policy.Ref{Order: order}); err != nil {
		return nil, err
	}

	verr := &apperr.ValidationError{}
	task := &entity.Task{
		ID:                uuid.New().String()[:32],
		ProductionOrderID: order.ID,
		Description:       req.Description,
		Status:            req.Status,
	}
	if task.Status == "" {
		task.Status = entity.TaskStatusPending
	}
	if req.ExpectedEndDate != "" {
		if t := parseDate(verr, "expected_end_date", req.ExpectedEndDate); t != nil {
			task.ExpectedEndDate = *t
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}
	if err := validateTask(task); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		return s.audit.Record(tx, order.ID, actor, entity.AuditActionTaskAdded, entity.JSONB{
			"task_id":           task.ID,
			"description":       task.Description,
			"expected_end_date": task.ExpectedEndDate.Format("2006-01-02"),
			"status":            task.Status,
		})
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Update 更新任务并记录 task_updated 审计日志
func (s *TaskService) Update(ctx context.Context, user *entity.User, actor Actor, orderID, taskID string, req UpdateTaskRequest) (*entity.Task, error) {
	order, err := s.loadOrder(ctx, user, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionUpdate, policy.ResourceTask, policy.Ref{Order: order}); err != nil {
		return nil, err
	}

	task, err := s.repos.Task.FindByOrder(ctx, orderID, taskID)
	if err != nil {
		return nil, err
	}

	before := *task
	verr := &apperr.ValidationError{}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.ExpectedEndDate != nil {
		if t := parseDate(verr, "expected_end_date", *req.ExpectedEndDate); t != nil {
			task.ExpectedEndDate = *t
		}
	}
	if req.Status != nil {
		task.Status = *req.Status
	}
	if verr.HasErrors() {
		return nil, verr
	}
	if err := validateTask(task); err != nil {
		return nil, err
	}

	details := taskDiff(&before, task)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(task).Error; err != nil {
			return err
		}
		if len(details) == 0 {
			return nil
		}
		details["task_id"] = task.ID
		return s.audit.Record(tx, order.ID, actor, entity.AuditActionTaskUpdated, details)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Delete 删除任务并记录 task_deleted 审计日志
func (s *TaskService) Delete(ctx context.Context, user *entity.User, actor Actor, orderID, taskID string) error {
	order, err := s.loadOrder(ctx, user, orderID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(user, policy.ActionDelete, policy.ResourceTask, policy.Ref{Order: order}); err != nil {
		return err
	}

	task, err := s.repos.Task.FindByOrder(ctx, orderID, taskID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.audit.Record(tx, order.ID, actor, entity.AuditActionTaskDeleted, entity.JSONB{
			"task_id":     task.ID,
			"description": task.Description,
			"status":      task.Status,
		}); err != nil {
			return err
		}
		return tx.Where("id = ?", task.ID).Delete(&entity.Task{}).Error
	})
}

// Complete 标记任务完成。operator 也有此权限，即使其无权改工单字段
func (s *TaskService) Complete(ctx context.Context, user *entity.User, actor Actor, orderID, taskID string) (*entity.Task, error) {
	return s.transition(ctx, user, actor, orderID, taskID, policy.ActionComplete, entity.TaskStatusCompleted)
}

// Reopen 重新打开已完成的任务
func (s *TaskService) Reopen(ctx context.Context, user *entity.User, actor Actor, orderID, taskID string) (*entity.Task, error) {
	return s.transition(ctx, user, actor, orderID, taskID, policy.ActionReopen, entity.TaskStatusPending)
}

func (s *TaskService) transition(ctx context.Context, user *entity.User, actor Actor, orderID, taskID string, action policy.Action, status string) (*entity.Task, error) {
	order, err := s.loadOrder(ctx, user, orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, action, policy.ResourceTask, policy.Ref{Order: order}); err != nil {
		return nil, err
	}

	task, err := s.repos.Task.FindByOrder(ctx, orderID, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == status {
		return task, nil
	}

	from := task.Status
	task.Status = status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(task).Error; err != nil {
			return err
		}
		return s.audit.Record(tx, order.ID, actor, entity.AuditActionTaskUpdated, entity.JSONB{
			"task_id": task.ID,
			"status":  map[string]interface{}{"from": from, "to": status},
		})
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// taskDiff 任务字段变更对比，和工单的 Diff 同构
func taskDiff(before, after *entity.Task) entity.JSONB {
	diff := entity.JSONB{}
	if before.Description != after.Description {
		diff["description"] = map[string]interface{}{"from": before.Description, "to": after.Description}
	}
	if !before.ExpectedEndDate.Equal(after.ExpectedEndDate) {
		diff["expected_end_date"] = map[string]interface{}{
			"from": before.ExpectedEndDate.Format("2006-01-02"),
			"to":   after.ExpectedEndDate.Format("2006-01-02"),
		}
	}
	if before.Status != after.Status {
		diff["status"] = map[string]interface{}{"from": before.Status, "to": after.Status}
	}
	return diff
}
