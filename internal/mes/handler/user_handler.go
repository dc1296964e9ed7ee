package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// UserHandler 用户处理器
type UserHandler struct {
	*base
	svc *service.UserService
}

// NewUserHandler 创建用户处理器
func NewUserHandler(b *base, svc *service.UserService) *UserHandler {
	return &UserHandler{base: b, svc: svc}
}

// List 用户列表
// GET /api/v1/users?role=&search=
func (h *UserHandler) List(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	filters := repository.UserFilters{
		Role:   c.Query("role"),
		Search: c.Query("search"),
	}
	users, total, err := h.svc.List(c.Request.Context(), user, filters, page, pageSize)
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, ListResponse{
		Items:      users,
		Pagination: NewPagination(page, pageSize, total),
	})
}

// Get 用户详情
// GET /api/v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	target, err := h.svc.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, target)
}

// Create 创建用户
// POST /api/v1/users
func (h *UserHandler) Create(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	target, err := h.svc.Create(c.Request.Context(), user, req)
	if err != nil {
		RenderError(c, err)
		return
	}
	Created(c, target)
}

// Update 更新用户
// PATCH /api/v1/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	target, err := h.svc.Update(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		RenderError(c, err)
		return
	}
	Success(c, target)
}

// Delete 删除用户
// DELETE /api/v1/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		RenderError(c, err)
		return
	}
	Success(c, gin.H{"message": "user deleted"})
}
