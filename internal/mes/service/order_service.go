package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/policy"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// OrderService 工单生命周期服务：
// 编号分配、跨字段校验、嵌套任务与指派的原子创建、审计与缓存失效的触发
type OrderService struct {
	db     *gorm.DB
	repos  *repository.Repositories
	audit  *AuditService
	cache  *StatsCache
	logger *zap.Logger
}

// NewOrderService 创建工单服务
func NewOrderService(db *gorm.DB, repos *repository.Repositories, audit *AuditService, cache *StatsCache, logger *zap.Logger) *OrderService {
	return &OrderService{db: db, repos: repos, audit: audit, cache: cache, logger: logger}
}

// Today 当前日期（去掉时分秒）。过期判定和报表都以整天为粒度
func Today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TaskAttrs 嵌套任务参数
type TaskAttrs struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	ExpectedEndDate string `json:"expected_end_date"`
	Status          string `json:"status"`
	Destroy         bool   `json:"_destroy"`
}

// CreateOrderRequest 创建工单请求
type CreateOrderRequest struct {
	Kind            string      `json:"kind"`
	OrderNumber     *int        `json:"order_number"`
	StartDate       string      `json:"start_date"`
	ExpectedEndDate string      `json:"expected_end_date"`
	Deadline        string      `json:"deadline"`
	Status          string      `json:"status"`
	Tasks           []TaskAttrs `json:"tasks"`
	UserIDs         *[]string   `json:"user_ids"`
}

// UpdateOrderRequest 更新工单请求，nil 字段表示不修改
type UpdateOrderRequest struct {
	Kind            *string     `json:"kind"`
	OrderNumber     *int        `json:"order_number"`
	StartDate       *string     `json:"start_date"`
	ExpectedEndDate *string     `json:"expected_end_date"`
	Deadline        *string     `json:"deadline"`
	Status          *string     `json:"status"`
	Tasks           []TaskAttrs `json:"tasks"`
	UserIDs         *[]string   `json:"user_ids"`
}

func parseDate(verr *apperr.ValidationError, field, value string) *time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		verr.Add(field, "must be a valid date (YYYY-MM-DD)")
		return nil
	}
	return &t
}

// validateOrder 持久化前的跨字段校验
func validateOrder(order *entity.ProductionOrder) error {
	verr := &apperr.ValidationError{}

	if !entity.ValidOrderKind(order.Kind) {
		verr.Add("kind", "must be normal or urgent")
	}
	if !entity.ValidOrderStatus(order.Status) {
		verr.Add("status", "is not a valid status")
	}
	if order.StartDate.IsZero() {
		verr.Add("start_date", "can't be blank")
	}
	if order.ExpectedEndDate.IsZero() {
		verr.Add("expected_end_date", "can't be blank")
	}
	if !order.StartDate.IsZero() && !order.ExpectedEndDate.IsZero() &&
		order.ExpectedEndDate.Before(order.StartDate) {
		verr.Add("expected_end_date", "must be greater than or equal to start date")
	}

	switch order.Kind {
	case entity.OrderKindUrgent:
		if order.Deadline == nil {
			verr.Add("deadline", "can't be blank")
		} else if !order.StartDate.IsZero() && order.Deadline.Before(order.StartDate) {
			verr.Add("deadline", "must be greater than or equal to start date")
		}
	case entity.OrderKindNormal:
		if order.Deadline != nil {
			verr.Add("deadline", "is only allowed for urgent orders")
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

func validateTask(task *entity.Task) error {
	verr := &apperr.ValidationError{}
	if task.Description == "" {
		verr.Add("description", "can't be blank")
	}
	if task.ExpectedEndDate.IsZero() {
		verr.Add("expected_end_date", "can't be blank")
	}
	if task.Status != entity.TaskStatusPending && task.Status != entity.TaskStatusCompleted {
		verr.Add("status", "is not a valid status")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// compactUserIDs 去重并丢弃空ID
func compactUserIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Get 在用户可见范围内读取工单
func (s *OrderService) Get(ctx context.Context, user *entity.User, id string) (*entity.ProductionOrder, error) {
	order, err := s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionView, policy.ResourceOrder, policy.Ref{Order: order}); err != nil {
		return nil, err
	}
	return order, nil
}

// List 用户可见范围内的工单列表
func (s *OrderService) List(ctx context.Context, user *entity.User, f repository.OrderFilters, page, pageSize int) ([]entity.ProductionOrder, int64, error) {
	if err := policy.Authorize(user, policy.ActionList, policy.ResourceOrder, policy.Ref{}); err != nil {
		return nil, 0, err
	}
	return s.repos.Order.List(ctx, policy.ScopeOrders(user), f, page, pageSize)
}

// Create 创建工单，连同嵌套任务、指派和审计日志一起提交或一起回滚
func (s *OrderService) Create(ctx context.Context, user *entity.User, actor Actor, req CreateOrderRequest) (*entity.ProductionOrder, error) {
	if err := policy.Authorize(user, policy.ActionCreate, policy.ResourceOrder, policy.Ref{}); err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = entity.OrderKindNormal
	}

	// 字段白名单：按角色和工单类型过滤请求字段
	permitted := policy.PermittedOrderFields(user, kind)

	status := entity.OrderStatusPending
	if req.Status != "" && permitted["status"] {
		status = req.Status
	}

	verr := &apperr.ValidationError{}
	order := &entity.ProductionOrder{
		ID:     uuid.New().String()[:32],
		Kind:   kind,
		Status: status,
	}
	if req.StartDate != "" && permitted["start_date"] {
		if t := parseDate(verr, "start_date", req.StartDate); t != nil {
			order.StartDate = *t
		}
	}
	if req.ExpectedEndDate != "" && permitted["expected_end_date"] {
		if t := parseDate(verr, "expected_end_date", req.ExpectedEndDate); t != nil {
			order.ExpectedEndDate = *t
		}
	}
	if req.Deadline != "" {
		if !permitted["deadline"] {
			verr.Add("deadline", "is only allowed for urgent orders")
		} else {
			order.Deadline = parseDate(verr, "deadline", req.Deadline)
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}
	order.CreatorID = user.ID

	if err := validateOrder(order); err != nil {
		return nil, err
	}

	taskAttrs := req.Tasks
	if !permitted["tasks"] {
		taskAttrs = nil
	}
	tasks := make([]entity.Task, 0, len(taskAttrs))
	for _, attrs := range taskAttrs {
		tverr := &apperr.ValidationError{}
		task := entity.Task{
			ID:                uuid.New().String()[:32],
			ProductionOrderID: order.ID,
			Description:       attrs.Description,
			Status:            attrs.Status,
		}
		if task.Status == "" {
			task.Status = entity.TaskStatusPending
		}
		if attrs.ExpectedEndDate != "" {
			if t := parseDate(tverr, "expected_end_date", attrs.ExpectedEndDate); t != nil {
				task.ExpectedEndDate = *t
			}
		}
		if tverr.HasErrors() {
			return nil, tverr
		}
		if err := validateTask(&task); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	var userIDs []string
	if req.UserIDs != nil && permitted["user_ids"] {
		userIDs = compactUserIDs(*req.UserIDs)
	}

	explicitNumber := req.OrderNumber != nil
	if explicitNumber {
		order.OrderNumber = *req.OrderNumber
	}

	// 编号分配是先读最大值再写入，并发创建同 kind 工单可能撞号，
	// 由 (kind, order_number) 唯一索引兜底，冲突后重算一次再试
	for attempt := 0; ; attempt++ {
		if !explicitNumber {
			next, err := s.repos.Order.NextOrderNumber(ctx, order.Kind, "")
			if err != nil {
				return nil, err
			}
			order.OrderNumber = next
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(order).Error; err != nil {
				return err
			}
			if len(tasks) > 0 {
				if err := tx.Create(&tasks).Error; err != nil {
					return err
				}
			}
			if err := s.replaceAssignments(tx, order.ID, userIDs); err != nil {
				return err
			}
			return s.audit.Record(tx, order.ID, actor, entity.AuditActionCreated, s.audit.Snapshot(order))
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if !explicitNumber && attempt == 0 {
				continue
			}
			return nil, apperr.Conflict("order_number is already taken for this kind")
		}
		return nil, err
	}

	s.invalidateStats(ctx, order)

	return s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), order.ID)
}

// Update 更新工单。kind 变化且未显式指定编号时按新 kind 重新取号
func (s *OrderService) Update(ctx context.Context, user *entity.User, actor Actor, id string, req UpdateOrderRequest) (*entity.ProductionOrder, error) {
	order, err := s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), id)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionUpdate, policy.ResourceOrder, policy.Ref{Order: order}); err != nil {
		return nil, err
	}

	before := *order

	verr := &apperr.ValidationError{}
	kindChanged := false
	if req.Kind != nil && *req.Kind != order.Kind {
		order.Kind = *req.Kind
		kindChanged = true
	}

	// 白名单按更新后的 kind 计算：转普通工单的同时带 deadline 会被拒绝
	permitted := policy.PermittedOrderFields(user, order.Kind)

	if req.StartDate != nil && permitted["start_date"] {
		if t := parseDate(verr, "start_date", *req.StartDate); t != nil {
			order.StartDate = *t
		}
	}
	if req.ExpectedEndDate != nil && permitted["expected_end_date"] {
		if t := parseDate(verr, "expected_end_date", *req.ExpectedEndDate); t != nil {
			order.ExpectedEndDate = *t
		}
	}
	if req.Deadline != nil {
		switch {
		case *req.Deadline == "":
			order.Deadline = nil
		case !permitted["deadline"]:
			verr.Add("deadline", "is only allowed for urgent orders")
		default:
			order.Deadline = parseDate(verr, "deadline", *req.Deadline)
		}
	}
	if req.Status != nil && permitted["status"] {
		order.Status = *req.Status
	}
	if verr.HasErrors() {
		return nil, verr
	}

	// 转为普通工单时 deadline 不再有意义，直接清掉
	if kindChanged && order.Kind == entity.OrderKindNormal {
		order.Deadline = nil
	}

	explicitNumber := req.OrderNumber != nil
	if explicitNumber {
		order.OrderNumber = *req.OrderNumber
	}

	if err := validateOrder(order); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if kindChanged && !explicitNumber {
			// 按新 kind 重新取号，排除自身
			next, err := s.repos.Order.NextOrderNumber(ctx, order.Kind, order.ID)
			if err != nil {
				return nil, err
			}
			order.OrderNumber = next
		}

		diff := s.audit.Diff(&before, order)

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Omit("Creator", "AssignedUsers", "Assignments", "Tasks").Save(order).Error; err != nil {
				return err
			}
			if permitted["tasks"] {
				if err := s.applyTaskAttrs(tx, order.ID, req.Tasks); err != nil {
					return err
				}
			}
			if req.UserIDs != nil && permitted["user_ids"] {
				if err := s.replaceAssignments(tx, order.ID, compactUserIDs(*req.UserIDs)); err != nil {
					return err
				}
			}
			// 字段没变就不写审计日志
			if len(diff) > 0 {
				action := s.audit.ClassifyUpdate(diff)
				return s.audit.Record(tx, order.ID, actor, action, diff)
			}
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if kindChanged && !explicitNumber && attempt == 0 {
				continue
			}
			return nil, apperr.Conflict("order_number is already taken for this kind")
		}
		return nil, err
	}

	s.invalidateStats(ctx, order)

	return s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), order.ID)
}

// applyTaskAttrs 处理嵌套任务的增删改
func (s *OrderService) applyTaskAttrs(tx *gorm.DB, orderID string, attrs []TaskAttrs) error {
	for _, a := range attrs {
		switch {
		case a.Destroy && a.ID != "":
			if err := tx.Where("production_order_id = ? AND id = ?", orderID, a.ID).
				Delete(&entity.Task{}).Error; err != nil {
				return err
			}
		case a.ID != "":
			var task entity.Task
			err := tx.Where("production_order_id = ? AND id = ?", orderID, a.ID).First(&task).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("task", a.ID)
				}
				return err
			}
			if a.Description != "" {
				task.Description = a.Description
			}
			if a.ExpectedEndDate != "" {
				verr := &apperr.ValidationError{}
				if t := parseDate(verr, "expected_end_date", a.ExpectedEndDate); t != nil {
					task.ExpectedEndDate = *t
				} else {
					return verr
				}
			}
			if a.Status != "" {
				task.Status = a.Status
			}
			if err := validateTask(&task); err != nil {
				return err
			}
			if err := tx.Save(&task).Error; err != nil {
				return err
			}
		default:
			verr := &apperr.ValidationError{}
			task := entity.Task{
				ID:                uuid.New().String()[:32],
				ProductionOrderID: orderID,
				Description:       a.Description,
				Status:            a.Status,
			}
			if task.Status == "" {
				task.Status = entity.TaskStatusPending
			}
			if a.ExpectedEndDate != "" {
				if t := parseDate(verr, "expected_end_date", a.ExpectedEndDate); t != nil {
					task.ExpectedEndDate = *t
				}
			}
			if verr.HasErrors() {
				return verr
			}
			if err := validateTask(&task); err != nil {
				return err
			}
			if err := tx.Create(&task).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete 删除工单。审计日志先于删除写入同一事务，
// 删除后日志的工单外键由数据库置空，历史仍可查询
func (s *OrderService) Delete(ctx context.Context, user *entity.User, actor Actor, id string) error {
	order, err := s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), id)
	if err != nil {
		return err
	}
	if err := policy.Authorize(user, policy.ActionDelete, policy.ResourceOrder, policy.Ref{Order: order}); err != nil {
		return err
	}

	// 删除前收集受影响的 operator，删完就查不到指派了
	operators, opErr := s.repos.Assignment.ListOperatorsByOrder(ctx, order.ID)
	if opErr != nil {
		s.logger.Warn("failed to list assigned operators before delete", zap.Error(opErr))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.audit.Record(tx, order.ID, actor, entity.AuditActionDeleted, s.audit.Snapshot(order)); err != nil {
			return err
		}
		// 任务和指派由外键级联删除
		return tx.Where("id = ?", order.ID).Delete(&entity.ProductionOrder{}).Error
	})
	if err != nil {
		return err
	}

	monthStart, _ := MonthBounds(time.Now())
	s.cache.Invalidate(ctx, InvalidationKeys(order.Creator, operators, monthStart))
	return nil
}

// replaceAssignments 原子替换工单的全部指派：
// 清空后按去重压缩过的用户ID逐个建立，忽略不存在的用户
func (s *OrderService) replaceAssignments(tx *gorm.DB, orderID string, userIDs []string) error {
	if userIDs == nil {
		return nil
	}
	if err := tx.Where("production_order_id = ?", orderID).
		Delete(&entity.OrderAssignment{}).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	var users []entity.User
	if err := tx.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return err
	}
	assignments := make([]entity.OrderAssignment, 0, len(users))
	for _, u := range users {
		assignments = append(assignments, entity.OrderAssignment{
			ID:                uuid.New().String()[:32],
			UserID:            u.ID,
			ProductionOrderID: orderID,
		})
	}
	if len(assignments) == 0 {
		return nil
	}
	return tx.Create(&assignments).Error
}

// ReplaceAssignments 对外的指派替换入口（工单可见性与权限检查后执行）
func (s *OrderService) ReplaceAssignments(ctx context.Context, user *entity.User, actor Actor, orderID string, userIDs []string) (*entity.ProductionOrder, error) {
	order, err := s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionAssign, policy.ResourceOrder, policy.Ref{Order: order}); err != nil {
		return nil, err
	}

	ids := compactUserIDs(userIDs)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.replaceAssignments(tx, orderID, ids)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStats(ctx, order)
	return s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), orderID)
}

// AssignUser 指派单个用户
func (s *OrderService) AssignUser(ctx context.Context, user *entity.User, actor Actor, orderID, targetUserID string) (*entity.OrderAssignment, error) {
	order, err := s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), orderID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(user, policy.ActionAssign, policy.ResourceOrder, policy.Ref{Order: order}); err != nil {
		return nil, err
	}

	target, err := s.repos.User.FindByID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}

	assignment := &entity.OrderAssignment{
		ID:                uuid.New().String()[:32],
		UserID:            target.ID,
		ProductionOrderID: order.ID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(assignment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("user is already assigned to this order")
			}
			return err
		}
		return s.audit.Record(tx, order.ID, actor, entity.AuditActionAssigned,
			entity.JSONB{"user_id": target.ID})
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStats(ctx, order)
	assignment.User = target
	assignment.Order = order
	return assignment, nil
}

// UnassignUser 解除指派
func (s *OrderService) UnassignUser(ctx context.Context, user *entity.User, actor Actor, assignmentID string) error {
	assignment, err := s.repos.Assignment.FindByID(ctx, assignmentID)
	if err != nil {
		return err
	}
	order, err := s.repos.Order.FindScoped(ctx, policy.ScopeOrders(user), assignment.ProductionOrderID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(user, policy.ActionAssign, policy.ResourceOrder, policy.Ref{Order: order}); err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", assignment.ID).Delete(&entity.OrderAssignment{}).Error; err != nil {
			return err
		}
		return s.audit.Record(tx, order.ID, actor, entity.AuditActionUnassigned,
			entity.JSONB{"user_id": assignment.UserID})
	})
	if err != nil {
		return err
	}

	s.invalidateStats(ctx, order)
	return nil
}

// invalidateStats 工单变更后的统计缓存失效（尽力而为，不影响主流程）
func (s *OrderService) invalidateStats(ctx context.Context, order *entity.ProductionOrder) {
	creator := order.Creator
	if creator == nil {
		if u, err := s.repos.User.FindByID(ctx, order.CreatorID); err == nil {
			creator = u
		}
	}
	operators, err := s.repos.Assignment.ListOperatorsByOrder(ctx, order.ID)
	if err != nil {
		s.logger.Warn("failed to list assigned operators for cache invalidation",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	monthStart, _ := MonthBounds(time.Now())
	s.cache.Invalidate(ctx, InvalidationKeys(creator, operators, monthStart))
}
