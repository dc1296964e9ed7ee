package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/policy"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// ReportHandler 报表处理器
type ReportHandler struct {
	*base
	svc *service.ReportService
}

// NewReportHandler 创建报表处理器
func NewReportHandler(b *base, svc *service.ReportService) *ReportHandler {
	return &ReportHandler{base: b, svc: svc}
}

// UrgentOrders 紧急工单报表
// GET /api/v1/reports/urgent_orders
func (h *ReportHandler) UrgentOrders(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := policy.Authorize(user, policy.ActionReport, policy.ResourceOrder, policy.Ref{}); err != nil {
		RenderError(c, err)
		return
	}

	page, pageSize := GetPagination(c)
	rows, total, err := h.svc.UrgentOrdersReport(c.Request.Context(), policy.ScopeOrders(user), service.Today(), page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}

	Success(c, ListResponse{
		Items:      rows,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// OverdueTasks 过期任务报表
// GET /api/v1/reports/urgent_orders/with_expired_tasks
func (h *ReportHandler) OverdueTasks(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := policy.Authorize(user, policy.ActionReport, policy.ResourceOrder, policy.Ref{}); err != nil {
		RenderError(c, err)
		return
	}

	page, pageSize := GetPagination(c)
	rows, total, err := h.svc.OverdueTasksReport(c.Request.Context(), policy.ScopeOrders(user), service.Today(), page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}

	Success(c, ListResponse{
		Items:      rows,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// MonthlyStatistics 当月统计
// GET /api/v1/reports/monthly_statistics
func (h *ReportHandler) MonthlyStatistics(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := policy.Authorize(user, policy.ActionReport, policy.ResourceOrder, policy.Ref{}); err != nil {
		RenderError(c, err)
		return
	}

	monthStart, monthEnd := service.MonthBounds(time.Now())
	stats, err := h.svc.MonthlyStatistics(c.Request.Context(), user, policy.ScopeOrders(user), monthStart, monthEnd)
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, stats)
}

// ExportUrgentOrders 导出紧急工单报表 Excel
// GET /api/v1/reports/urgent_orders/export
func (h *ReportHandler) ExportUrgentOrders(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := policy.Authorize(user, policy.ActionReport, policy.ResourceOrder, policy.Ref{}); err != nil {
		RenderError(c, err)
		return
	}

	f, filename, err := h.svc.ExportUrgentReport(c.Request.Context(), policy.ScopeOrders(user), service.Today())
	if err != nil {
		RenderError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
