package service

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestStatsCacheKey(t *testing.T) {
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	if got := StatsCacheKey(entity.RoleAdmin, "u-1", monthStart); got != "monthly_stats/admin/2025/3" {
		t.Errorf("admin key = %q", got)
	}
	if got := StatsCacheKey(entity.RoleProductionManager, "u-1", monthStart); got != "monthly_stats/production_manager/2025/3" {
		t.Errorf("manager key = %q", got)
	}
	// operator 的范围因人而异，键里必须带用户ID
	if got := StatsCacheKey(entity.RoleOperator, "u-1", monthStart); got != "monthly_stats/operator/u-1/2025/3" {
		t.Errorf("operator key = %q", got)
	}
}

func TestInvalidationKeys(t *testing.T) {
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	creator := &entity.User{ID: "op-creator", Role: entity.RoleOperator}
	assigned := []entity.User{
		{ID: "op-a", Role: entity.RoleOperator},
		{ID: "op-b", Role: entity.RoleOperator},
	}

	keys := InvalidationKeys(creator, assigned, monthStart)

	want := map[string]bool{
		"monthly_stats/admin/2025/3":               true,
		"monthly_stats/production_manager/2025/3":  true,
		"monthly_stats/operator/op-creator/2025/3": true,
		"monthly_stats/operator/op-a/2025/3":       true,
		"monthly_stats/operator/op-b/2025/3":       true,
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys %v, want %d", len(keys), keys, len(want))
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}
}

func TestInvalidationKeysManagerCreator(t *testing.T) {
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	creator := &entity.User{ID: "mgr-1", Role: entity.RoleProductionManager}

	// 主管创建者没有专属键，只有两个全局角色键
	keys := InvalidationKeys(creator, nil, monthStart)
	if len(keys) != 2 {
		t.Fatalf("got %d keys %v, want 2", len(keys), keys)
	}
}

func TestInvalidationKeysDedup(t *testing.T) {
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	creator := &entity.User{ID: "op-1", Role: entity.RoleOperator}
	// 创建者同时也在指派名单里
	assigned := []entity.User{
		{ID: "op-1", Role: entity.RoleOperator},
		{ID: "op-1", Role: entity.RoleOperator},
		{ID: "op-2", Role: entity.RoleOperator},
	}

	keys := InvalidationKeys(creator, assigned, monthStart)
	if len(keys) != 4 {
		t.Fatalf("got %d keys %v, want 4 (dedup failed)", len(keys), keys)
	}
}

func TestInvalidationKeysNilCreator(t *testing.T) {
	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	keys := InvalidationKeys(nil, nil, monthStart)
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
}
