package service

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

// Actor 当前请求的操作者上下文。
// 显式作为参数传入每个写操作，不走全局状态
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// Present 是否存在可归因的操作者。
// 无操作者（系统内部写入）不产生审计日志：无法归因时宁可不记，
// 这是有意保留的缺口而非遗漏
func (a Actor) Present() bool {
	return a.UserID != ""
}

// AuditService 审计记录器。
// 日志必须和触发它的写操作同事务提交：写日志失败则整个事务回滚，
// 静默丢失审计轨迹在这个领域属于正确性问题
type AuditService struct{}

// NewAuditService 创建审计记录器
func NewAuditService() *AuditService {
	return &AuditService{}
}

// dateStr 日期字段统一格式化，nil 保持为 nil
func dateStr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// Snapshot 工单字段快照（不含 id 和时间戳），用于 created/deleted 日志
func (s *AuditService) Snapshot(order *entity.ProductionOrder) entity.JSONB {
	start := order.StartDate
	end := order.ExpectedEndDate
	return entity.JSONB{
		"kind":              order.Kind,
		"order_number":      order.OrderNumber,
		"start_date":        dateStr(&start),
		"expected_end_date": dateStr(&end),
		"deadline":          dateStr(order.Deadline),
		"status":            order.Status,
		"creator_id":        order.CreatorID,
	}
}

// Diff 更新前后字段对比，只包含发生变化的字段，每项为 {from, to}
func (s *AuditService) Diff(before, after *entity.ProductionOrder) entity.JSONB {
	diff := entity.JSONB{}
	prev := s.Snapshot(before)
	next := s.Snapshot(after)
	for field, from := range prev {
		to := next[field]
		if from != to {
			diff[field] = map[string]interface{}{"from": from, "to": to}
		}
	}
	return diff
}

// ClassifyUpdate 更新动作细分：状态变化优先于类型变化，其余为普通更新
func (s *AuditService) ClassifyUpdate(diff entity.JSONB) string {
	if _, ok := diff["status"]; ok {
		return entity.AuditActionStatusChanged
	}
	if _, ok := diff["kind"]; ok {
		return entity.AuditActionKindChanged
	}
	return entity.AuditActionUpdated
}

// Record 写入一条审计日志。
// 必须在触发写操作的事务内调用（tx）；actor 缺失时静默跳过
func (s *AuditService) Record(tx *gorm.DB, orderID string, actor Actor, action string, details entity.JSONB) error {
	if !actor.Present() {
		return nil
	}

	log := &entity.OrderAuditLog{
		ID:                uuid.New().String()[:32],
		ProductionOrderID: &orderID,
		UserID:            actor.UserID,
		Action:            action,
		ChangeDetails:     details,
		IPAddress:         actor.IPAddress,
		UserAgent:         actor.UserAgent,
	}
	return tx.Create(log).Error
}
