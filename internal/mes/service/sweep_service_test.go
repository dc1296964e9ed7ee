package service

import (
	"testing"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestRecipientsDedup(t *testing.T) {
	order := &entity.ProductionOrder{
		CreatorID: "mgr-01",
		AssignedUsers: []entity.User{
			{ID: "op-01"},
			{ID: "mgr-01"}, // 创建者同时被指派
			{ID: "op-02"},
			{ID: "op-01"},
		},
	}

	got := recipients(order)
	want := []string{"mgr-01", "op-01", "op-02"}
	if len(got) != len(want) {
		t.Fatalf("recipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("recipients = %v, want %v", got, want)
		}
	}
}

func TestRecipientsNoAssignees(t *testing.T) {
	order := &entity.ProductionOrder{CreatorID: "mgr-01"}
	got := recipients(order)
	if len(got) != 1 || got[0] != "mgr-01" {
		t.Errorf("recipients = %v, want just the creator", got)
	}
}
