package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
)

// Handlers 处理器集合
type Handlers struct {
	Auth       *AuthHandler
	User       *UserHandler
	Order      *OrderHandler
	Task       *TaskHandler
	Assignment *AssignmentHandler
	Report     *ReportHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, repos *repository.Repositories, cfg *config.Config) *Handlers {
	base := &base{userRepo: repos.User}
	return &Handlers{
		Auth:       NewAuthHandler(svc.Auth, cfg),
		User:       NewUserHandler(base, svc.User),
		Order:      NewOrderHandler(base, svc.Order, svc.Report, repos.Audit),
		Task:       NewTaskHandler(base, svc.Task),
		Assignment: NewAssignmentHandler(base, svc.Order),
		Report:     NewReportHandler(base, svc.Report),
	}
}

// base 各处理器共享的当前用户加载逻辑
type base struct {
	userRepo *repository.UserRepository
}

// currentUser 按认证中间件写入的 user_id 加载当前用户。
// 加载失败直接渲染 401 并返回 false，调用方直接 return 即可
func (b *base) currentUser(c *gin.Context) (*entity.User, bool) {
	userID := GetUserID(c)
	if userID == "" {
		Unauthorized(c, "Authorization is required")
		return nil, false
	}
	user, err := b.userRepo.FindByID(c.Request.Context(), userID)
	if err != nil {
		Unauthorized(c, "User not found")
		return nil, false
	}
	return user, true
}

// actor 当前请求的审计操作者
func actor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID:    GetUserID(c),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination 构造分页信息
func NewPagination(page, pageSize int, total int64) *Pagination {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return &Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      int(total),
		TotalPages: totalPages,
	}
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// Forbidden 禁止访问响应
func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// Conflict 资源冲突响应
func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

// UnprocessableEntity 校验失败响应
func UnprocessableEntity(c *gin.Context, message string, fields interface{}) {
	c.JSON(422, Response{
		Code:    42200,
		Message: message,
		Data:    fields,
	})
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RenderError 按业务错误类型渲染响应
func RenderError(c *gin.Context, err error) {
	var (
		nfErr   *apperr.NotFoundError
		authErr *apperr.AuthorizationError
		valErr  *apperr.ValidationError
		cfErr   *apperr.ConflictError
		mpErr   *apperr.MissingParameterError
	)
	switch {
	case errors.As(err, &nfErr):
		NotFound(c, nfErr.Error())
	case errors.As(err, &authErr):
		Forbidden(c, authErr.Error())
	case errors.As(err, &valErr):
		UnprocessableEntity(c, "Validation failed", valErr.Fields)
	case errors.As(err, &cfErr):
		Conflict(c, cfErr.Error())
	case errors.As(err, &mpErr):
		BadRequest(c, mpErr.Error())
	default:
		if gin.Mode() == gin.ReleaseMode {
			InternalError(c, "Internal server error")
			return
		}
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
