package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB PostgreSQL JSONB 类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// 审计动作
const (
	AuditActionCreated       = "created"
	AuditActionUpdated       = "updated"
	AuditActionDeleted       = "deleted"
	AuditActionStatusChanged = "status_changed"
	AuditActionKindChanged   = "kind_changed"
	AuditActionAssigned      = "assigned"
	AuditActionUnassigned    = "unassigned"
	AuditActionTaskAdded     = "task_added"
	AuditActionTaskUpdated   = "task_updated"
	AuditActionTaskDeleted   = "task_deleted"
)

// AuditActions 全部合法动作
var AuditActions = []string{
	AuditActionCreated,
	AuditActionUpdated,
	AuditActionDeleted,
	AuditActionStatusChanged,
	AuditActionKindChanged,
	AuditActionAssigned,
	AuditActionUnassigned,
	AuditActionTaskAdded,
	AuditActionTaskUpdated,
	AuditActionTaskDeleted,
}

// OrderAuditLog 工单审计日志，只追加不修改
// 工单删除时外键置空（SET NULL），历史记录保留
type OrderAuditLog struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	ProductionOrderID *string   `json:"production_order_id" gorm:"size:32;index"`
	UserID            string    `json:"user_id" gorm:"size:32;not null;index"`
	Action            string    `json:"action" gorm:"size:32;not null;index"`
	ChangeDetails     JSONB     `json:"change_details" gorm:"type:jsonb"`
	IPAddress         string    `json:"ip_address" gorm:"size:64"`
	UserAgent         string    `json:"user_agent" gorm:"size:512"`
	CreatedAt         time.Time `json:"created_at"`

	Order *ProductionOrder `json:"-" gorm:"foreignKey:ProductionOrderID;constraint:OnDelete:SET NULL"`
	User  *User            `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (OrderAuditLog) TableName() string {
	return "order_audit_logs"
}

// ValidAuditAction 动作是否合法
func ValidAuditAction(action string) bool {
	for _, a := range AuditActions {
		if a == action {
			return true
		}
	}
	return false
}
