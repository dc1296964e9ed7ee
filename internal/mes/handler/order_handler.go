package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// OrderHandler 工单处理器
type OrderHandler struct {
	*base
	svc       *service.OrderService
	reportSvc *service.ReportService
	auditRepo *repository.AuditRepository
}

// NewOrderHandler 创建工单处理器
func NewOrderHandler(b *base, svc *service.OrderService, reportSvc *service.ReportService, auditRepo *repository.AuditRepository) *OrderHandler {
	return &OrderHandler{base: b, svc: svc, reportSvc: reportSvc, auditRepo: auditRepo}
}

// orderView 工单详情响应：实体字段外加任务汇总
func (h *OrderHandler) orderView(c *gin.Context, order *entity.ProductionOrder) (gin.H, error) {
	summary, err := h.reportSvc.OrderSummary(c.Request.Context(), order, service.Today())
	if err != nil {
		return nil, err
	}
	return gin.H{
		"order":         order,
		"tasks_summary": summary,
	}, nil
}

// queryDate 解析 YYYY-MM-DD 查询参数，缺省或非法时返回 nil
func queryDate(c *gin.Context, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &t
}

// List 工单列表
// GET /api/v1/orders?kind=&status=&creator_id=&assigned_user_id=&order_number=&start_date_from=&...
func (h *OrderHandler) List(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)

	filters := repository.OrderFilters{
		Kind:            c.Query("kind"),
		Status:          c.Query("status"),
		CreatorID:       c.Query("creator_id"),
		AssignedUserID:  c.Query("assigned_user_id"),
		StartDateFrom:   queryDate(c, "start_date_from"),
		StartDateTo:     queryDate(c, "start_date_to"),
		ExpectedEndFrom: queryDate(c, "expected_end_from"),
		ExpectedEndTo:   queryDate(c, "expected_end_to"),
		DeadlineFrom:    queryDate(c, "deadline_from"),
		DeadlineTo:      queryDate(c, "deadline_to"),
	}
	if raw := c.Query("order_number"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filters.OrderNumber = &n
		}
	}
	orders, total, err := h.svc.List(c.Request.Context(), user, filters, page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}

	Success(c, ListResponse{
		Items:      orders,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// Get 工单详情
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	order, err := h.svc.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	view, err := h.orderView(c, order)
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, view)
}

// Create 创建工单
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.svc.Create(c.Request.Context(), user, actor(c), req)
	if err != nil {
		RenderError(c, err)
		return
	}
	Created(c, order)
}

// Update 更新工单
// PATCH /api/v1/orders/:id
func (h *OrderHandler) Update(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req service.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	order, err := h.svc.Update(c.Request.Context(), user, actor(c), c.Param("id"), req)
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, order)
}

// Delete 删除工单
// DELETE /api/v1/orders/:id
func (h *OrderHandler) Delete(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), user, actor(c), c.Param("id")); err != nil {
		RenderError(c, err)
		return
	}
	Success(c, gin.H{"message": "order deleted"})
}

// TasksSummary 工单任务汇总
// GET /api/v1/orders/:id/tasks_summary
func (h *OrderHandler) TasksSummary(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	order, err := h.svc.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	summary, err := h.reportSvc.OrderSummary(c.Request.Context(), order, service.Today())
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, summary)
}

// AuditLogs 工单审计日志
// GET /api/v1/orders/:id/audit_logs
func (h *OrderHandler) AuditLogs(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	// 可见性检查复用工单读取
	order, err := h.svc.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}

	page, pageSize := GetPagination(c)
	logs, total, err := h.auditRepo.ListByOrder(c.Request.Context(), order.ID, page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}

	Success(c, ListResponse{
		Items:      logs,
		Pagination: NewPagination(page, pageSize, total),
	})
}
