// Package apperr 定义领域错误分类。
// 策略引擎和生命周期管理抛出类型化错误，由 handler 层统一翻译为 HTTP 响应，
// 中间各层只用 %w 包装、从不吞掉。
package apperr

import (
	"fmt"
	"strings"
)

// NotFoundError 资源不存在，或存在但在调用者可见范围之外。
// 两种情况对外同码，避免泄露资源存在性
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// NotFound 构造 NotFoundError
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// AuthorizationError 资源可见但动作不被允许
type AuthorizationError struct {
	Action   string
	Resource string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to %s %s", e.Action, e.Resource)
}

// Forbidden 构造 AuthorizationError
func Forbidden(action, resource string) *AuthorizationError {
	return &AuthorizationError{Action: action, Resource: resource}
}

// FieldError 单个字段的校验失败
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 字段级不变量被破坏，可携带多条字段错误
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add 追加字段错误并返回自身，便于链式收集
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	return e
}

// HasErrors 是否收集到字段错误
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// Validation 构造单字段 ValidationError
func Validation(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// ConflictError 唯一性冲突（如并发下重复的 order_number）
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Conflict 构造 ConflictError
func Conflict(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// MissingParameterError 请求缺少必要参数
type MissingParameterError struct {
	Param string
}

func (e *MissingParameterError) Error() string {
	return "required parameter missing: " + e.Param
}

// MissingParameter 构造 MissingParameterError
func MissingParameter(param string) *MissingParameterError {
	return &MissingParameterError{Param: param}
}
