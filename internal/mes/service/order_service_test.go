package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-mes/internal/mes/apperr"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func validOrder(kind string) *entity.ProductionOrder {
	order := &entity.ProductionOrder{
		Kind:            kind,
		Status:          entity.OrderStatusPending,
		StartDate:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpectedEndDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	if kind == entity.OrderKindUrgent {
		d := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
		order.Deadline = &d
	}
	return order
}

func fieldErrors(t *testing.T, err error) map[string]bool {
	t.Helper()
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	return fields
}

func TestValidateOrderOK(t *testing.T) {
	if err := validateOrder(validOrder(entity.OrderKindNormal)); err != nil {
		t.Errorf("normal order should be valid: %v", err)
	}
	if err := validateOrder(validOrder(entity.OrderKindUrgent)); err != nil {
		t.Errorf("urgent order should be valid: %v", err)
	}
}

func TestValidateOrderUrgentRequiresDeadline(t *testing.T) {
	order := validOrder(entity.OrderKindUrgent)
	order.Deadline = nil
	fields := fieldErrors(t, validateOrder(order))
	if !fields["deadline"] {
		t.Error("urgent order without deadline must fail on deadline")
	}
}

func TestValidateOrderNormalRejectsDeadline(t *testing.T) {
	order := validOrder(entity.OrderKindNormal)
	d := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	order.Deadline = &d
	fields := fieldErrors(t, validateOrder(order))
	if !fields["deadline"] {
		t.Error("normal order with deadline must fail on deadline")
	}
}

func TestValidateOrderDateOrdering(t *testing.T) {
	order := validOrder(entity.OrderKindNormal)
	order.ExpectedEndDate = order.StartDate.AddDate(0, 0, -1)
	fields := fieldErrors(t, validateOrder(order))
	if !fields["expected_end_date"] {
		t.Error("end before start must fail")
	}

	urgent := validOrder(entity.OrderKindUrgent)
	early := urgent.StartDate.AddDate(0, 0, -1)
	urgent.Deadline = &early
	fields = fieldErrors(t, validateOrder(urgent))
	if !fields["deadline"] {
		t.Error("deadline before start must fail")
	}
}

func TestValidateOrderSameDayBoundaries(t *testing.T) {
	// 起止同日、deadline 等于开始日都合法（校验是严格小于才报错）
	order := validOrder(entity.OrderKindUrgent)
	order.ExpectedEndDate = order.StartDate
	order.Deadline = &order.StartDate
	if err := validateOrder(order); err != nil {
		t.Errorf("same-day boundaries should be valid: %v", err)
	}
}

func TestValidateOrderUnknownKindAndStatus(t *testing.T) {
	order := validOrder(entity.OrderKindNormal)
	order.Kind = "express"
	order.Status = "paused"
	fields := fieldErrors(t, validateOrder(order))
	if !fields["kind"] || !fields["status"] {
		t.Errorf("unknown kind/status must fail, got %v", fields)
	}
}

func TestValidateTask(t *testing.T) {
	task := &entity.Task{
		Description:     "组装外壳",
		ExpectedEndDate: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		Status:          entity.TaskStatusPending,
	}
	if err := validateTask(task); err != nil {
		t.Errorf("task should be valid: %v", err)
	}

	bad := &entity.Task{Status: "paused"}
	fields := fieldErrors(t, validateTask(bad))
	for _, f := range []string{"description", "expected_end_date", "status"} {
		if !fields[f] {
			t.Errorf("missing validation on %s", f)
		}
	}
}

func TestCreateOrderDeadlineFilteredByKind(t *testing.T) {
	// 字段白名单在任何数据库访问之前生效：
	// 普通工单带 deadline 直接以校验错误拒绝
	svc := NewOrderService(nil, nil, nil, nil, zap.NewNop())
	mgr := &entity.User{ID: "mgr-01", Role: entity.RoleProductionManager}

	_, err := svc.Create(context.Background(), mgr, Actor{}, CreateOrderRequest{
		Kind:            entity.OrderKindNormal,
		StartDate:       "2025-01-01",
		ExpectedEndDate: "2025-01-31",
		Deadline:        "2025-02-10",
	})
	fields := fieldErrors(t, err)
	if !fields["deadline"] {
		t.Errorf("deadline on normal order must be rejected, got %v", fields)
	}
}

func TestCompactUserIDs(t *testing.T) {
	got := compactUserIDs([]string{"a", "", "b", "a", "", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (order must be preserved)", got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	verr := &apperr.ValidationError{}
	d := parseDate(verr, "start_date", "2025-03-15")
	if verr.HasErrors() || d == nil {
		t.Fatalf("valid date rejected: %v", verr)
	}
	if !d.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parsed = %v", d)
	}

	verr = &apperr.ValidationError{}
	if d := parseDate(verr, "start_date", "15/03/2025"); d != nil || !verr.HasErrors() {
		t.Error("malformed date must be rejected")
	}
}
