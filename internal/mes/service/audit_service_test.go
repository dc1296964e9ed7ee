package service

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func sampleOrder() *entity.ProductionOrder {
	deadline := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	return &entity.ProductionOrder{
		ID:              "order-01",
		Kind:            entity.OrderKindUrgent,
		OrderNumber:     7,
		StartDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpectedEndDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		Deadline:        &deadline,
		Status:          entity.OrderStatusPending,
		CreatorID:       "mgr-01",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func TestSnapshotExcludesIDAndTimestamps(t *testing.T) {
	svc := NewAuditService()
	snap := svc.Snapshot(sampleOrder())

	for _, forbidden := range []string{"id", "created_at", "updated_at"} {
		if _, ok := snap[forbidden]; ok {
			t.Errorf("snapshot must not contain %q", forbidden)
		}
	}
	if snap["kind"] != entity.OrderKindUrgent {
		t.Errorf("kind = %v", snap["kind"])
	}
	if snap["order_number"] != 7 {
		t.Errorf("order_number = %v", snap["order_number"])
	}
	if snap["start_date"] != "2025-01-01" {
		t.Errorf("start_date = %v", snap["start_date"])
	}
	if snap["deadline"] != "2025-02-10" {
		t.Errorf("deadline = %v", snap["deadline"])
	}
}

func TestSnapshotNilDeadline(t *testing.T) {
	svc := NewAuditService()
	order := sampleOrder()
	order.Kind = entity.OrderKindNormal
	order.Deadline = nil

	snap := svc.Snapshot(order)
	if snap["deadline"] != nil {
		t.Errorf("nil deadline should snapshot as nil, got %v", snap["deadline"])
	}
}

func TestDiffOnlyChangedFields(t *testing.T) {
	svc := NewAuditService()
	before := sampleOrder()
	after := *before
	after.Status = entity.OrderStatusCompleted

	diff := svc.Diff(before, &after)
	if len(diff) != 1 {
		t.Fatalf("diff = %v, want only status", diff)
	}
	change, ok := diff["status"].(map[string]interface{})
	if !ok {
		t.Fatalf("status change shape: %v", diff["status"])
	}
	if change["from"] != entity.OrderStatusPending || change["to"] != entity.OrderStatusCompleted {
		t.Errorf("status change = %v", change)
	}
}

func TestDiffNoChanges(t *testing.T) {
	svc := NewAuditService()
	before := sampleOrder()
	after := *before

	if diff := svc.Diff(before, &after); len(diff) != 0 {
		t.Errorf("identical orders should produce empty diff, got %v", diff)
	}
}

func TestClassifyUpdatePrecedence(t *testing.T) {
	svc := NewAuditService()

	// status 变化优先，即使 kind 也变了
	both := entity.JSONB{
		"status": map[string]interface{}{"from": "pending", "to": "completed"},
		"kind":   map[string]interface{}{"from": "normal", "to": "urgent"},
	}
	if got := svc.ClassifyUpdate(both); got != entity.AuditActionStatusChanged {
		t.Errorf("classify(both) = %q, want status_changed", got)
	}

	kindOnly := entity.JSONB{
		"kind": map[string]interface{}{"from": "normal", "to": "urgent"},
	}
	if got := svc.ClassifyUpdate(kindOnly); got != entity.AuditActionKindChanged {
		t.Errorf("classify(kind) = %q, want kind_changed", got)
	}

	plain := entity.JSONB{
		"start_date": map[string]interface{}{"from": "2025-01-01", "to": "2025-01-02"},
	}
	if got := svc.ClassifyUpdate(plain); got != entity.AuditActionUpdated {
		t.Errorf("classify(plain) = %q, want updated", got)
	}
}

func TestActorPresent(t *testing.T) {
	if (Actor{}).Present() {
		t.Error("empty actor must not be present")
	}
	if !(Actor{UserID: "u-1"}).Present() {
		t.Error("actor with user id must be present")
	}
}

func TestRecordSkipsMissingActor(t *testing.T) {
	svc := NewAuditService()
	// 无操作者时静默跳过，不应触碰 tx（nil 也不该 panic）
	if err := svc.Record(nil, "order-01", Actor{}, entity.AuditActionCreated, entity.JSONB{}); err != nil {
		t.Errorf("record without actor should be a no-op, got %v", err)
	}
}
