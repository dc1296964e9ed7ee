package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// AssignmentHandler 工单指派处理器
type AssignmentHandler struct {
	*base
	svc *service.OrderService
}

// NewAssignmentHandler 创建指派处理器
func NewAssignmentHandler(b *base, svc *service.OrderService) *AssignmentHandler {
	return &AssignmentHandler{base: b, svc: svc}
}

// AssignRequest 指派请求
type AssignRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ReplaceRequest 整体替换指派请求
type ReplaceRequest struct {
	UserIDs []string `json:"user_ids"`
}

// Assign 指派用户到工单
// POST /api/v1/orders/:id/assignments
func (h *AssignmentHandler) Assign(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "user_id is required")
		return
	}
	assignment, err := h.svc.AssignUser(c.Request.Context(), user, actor(c), c.Param("id"), req.UserID)
	if err != nil {
		RenderError(c, err)
		return
	}
	Created(c, assignment)
}

// Replace 整体替换工单的指派名单
// PUT /api/v1/orders/:id/assignments
func (h *AssignmentHandler) Replace(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	order, err := h.svc.ReplaceAssignments(c.Request.Context(), user, actor(c), c.Param("id"), req.UserIDs)
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, order)
}

// Unassign 解除指派
// DELETE /api/v1/orders/:id/assignments/:assignment_id
func (h *AssignmentHandler) Unassign(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.UnassignUser(c.Request.Context(), user, actor(c), c.Param("assignment_id")); err != nil {
		RenderError(c, err)
		return
	}
	Success(c, gin.H{"message": "assignment removed"})
}
