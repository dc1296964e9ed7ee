package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// TaskHandler 任务处理器，所有路由都嵌套在工单下
type TaskHandler struct {
	*base
	svc *service.TaskService
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(b *base, svc *service.TaskService) *TaskHandler {
	return &TaskHandler{base: b, svc: svc}
}

// List 工单任务列表
// GET /api/v1/orders/:id/tasks
func (h *TaskHandler) List(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	tasks, err := h.svc.List(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, gin.H{"items": tasks})
}

// Get 任务详情
// GET /api/v1/orders/:id/tasks/:task_id
func (h *TaskHandler) Get(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	task, err := h.svc.Get(c.Request.Context(), user, c.Param("id"), c.Param("task_id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, task)
}

// Create 新增任务
// POST /api/v1/orders/:id/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req service.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	task, err := h.svc.Create(c.Request.Context(), user, actor(c), c.Param("id"), req)
	if err != nil {
		RenderError(c, err)
		return
	}
	Created(c, task)
}

// Update 更新任务
// PATCH /api/v1/orders/:id/tasks/:task_id
func (h *TaskHandler) Update(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req service.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	task, err := h.svc.Update(c.Request.Context(), user, actor(c), c.Param("id"), c.Param("task_id"), req)
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, task)
}

// Delete 删除任务
// DELETE /api/v1/orders/:id/tasks/:task_id
func (h *TaskHandler) Delete(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), user, actor(c), c.Param("id"), c.Param("task_id")); err != nil {
		RenderError(c, err)
		return
	}
	Success(c, gin.H{"message": "task deleted"})
}

// Complete 完成任务
// POST /api/v1/orders/:id/tasks/:task_id/complete
func (h *TaskHandler) Complete(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	task, err := h.svc.Complete(c.Request.Context(), user, actor(c), c.Param("id"), c.Param("task_id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, task)
}

// Reopen 重新打开任务
// POST /api/v1/orders/:id/tasks/:task_id/reopen
func (h *TaskHandler) Reopen(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	task, err := h.svc.Reopen(c.Request.Context(), user, actor(c), c.Param("id"), c.Param("task_id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, task)
}
