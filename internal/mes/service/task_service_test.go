package service

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func TestTaskDiff(t *testing.T) {
	before := &entity.Task{
		Description:     "打磨",
		ExpectedEndDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Status:          entity.TaskStatusPending,
	}
	after := &entity.Task{
		Description:     "打磨抛光",
		ExpectedEndDate: time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
		Status:          entity.TaskStatusPending,
	}

	diff := taskDiff(before, after)
	if len(diff) != 2 {
		t.Fatalf("diff = %v, want description and expected_end_date", diff)
	}
	if _, ok := diff["status"]; ok {
		t.Error("unchanged status must not appear in diff")
	}

	dateChange := diff["expected_end_date"].(map[string]interface{})
	if dateChange["from"] != "2025-01-10" || dateChange["to"] != "2025-01-12" {
		t.Errorf("date change = %v", dateChange)
	}
}

func TestTaskDiffEmpty(t *testing.T) {
	task := &entity.Task{
		Description:     "打磨",
		ExpectedEndDate: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Status:          entity.TaskStatusPending,
	}
	copied := *task
	if diff := taskDiff(task, &copied); len(diff) != 0 {
		t.Errorf("identical tasks should yield empty diff: %v", diff)
	}
}
