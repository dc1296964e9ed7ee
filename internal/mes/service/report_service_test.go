package service

import (
	"testing"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSummarize(t *testing.T) {
	today := date(2025, 1, 15)
	tasks := []entity.Task{
		{Status: entity.TaskStatusCompleted, ExpectedEndDate: date(2025, 1, 10)},
		{Status: entity.TaskStatusCompleted, ExpectedEndDate: date(2025, 1, 25)},
		{Status: entity.TaskStatusPending, ExpectedEndDate: date(2025, 1, 10)}, // 过期
		{Status: entity.TaskStatusPending, ExpectedEndDate: date(2025, 1, 20)},
	}

	s := Summarize(tasks, today)
	if s.Total != 4 {
		t.Errorf("total = %d, want 4", s.Total)
	}
	if s.Pending != 2 {
		t.Errorf("pending = %d, want 2", s.Pending)
	}
	if s.Completed != 2 {
		t.Errorf("completed = %d, want 2", s.Completed)
	}
	if s.Overdue != 1 {
		t.Errorf("overdue = %d, want 1", s.Overdue)
	}
	if s.CompletionPercentage != 50.0 {
		t.Errorf("completion = %v, want 50.0", s.CompletionPercentage)
	}
	// 最新 pending 任务日期取 pending 里最大的，已完成任务不参与
	if s.LatestPendingTaskDate == nil || !s.LatestPendingTaskDate.Equal(date(2025, 1, 20)) {
		t.Errorf("latest pending task date = %v, want 2025-01-20", s.LatestPendingTaskDate)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, date(2025, 1, 15))
	if s.Total != 0 || s.CompletionPercentage != 0 {
		t.Errorf("empty task set should yield zeroes, got %+v", s)
	}
	if s.LatestPendingTaskDate != nil {
		t.Errorf("no pending tasks should yield nil latest date, got %v", s.LatestPendingTaskDate)
	}
}

func TestSummarizeAllCompletedHasNoLatestPendingDate(t *testing.T) {
	tasks := []entity.Task{
		{Status: entity.TaskStatusCompleted, ExpectedEndDate: date(2025, 1, 10)},
		{Status: entity.TaskStatusCompleted, ExpectedEndDate: date(2025, 1, 20)},
	}
	if s := Summarize(tasks, date(2025, 1, 15)); s.LatestPendingTaskDate != nil {
		t.Errorf("all-completed order should have nil latest pending date, got %v", s.LatestPendingTaskDate)
	}
}

func TestSummarizeTaskDueTodayIsNotOverdue(t *testing.T) {
	today := date(2025, 1, 15)
	tasks := []entity.Task{
		{Status: entity.TaskStatusPending, ExpectedEndDate: today},
	}
	if s := Summarize(tasks, today); s.Overdue != 0 {
		t.Errorf("task due today should not count as overdue, got %d", s.Overdue)
	}
}

func TestCompletionPercentageRounding(t *testing.T) {
	cases := []struct {
		completed, total int
		want             float64
	}{
		{0, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{3, 3, 100},
		{1, 7, 14.29},
	}
	for _, c := range cases {
		if got := completionPercentage(c.completed, c.total); got != c.want {
			t.Errorf("completionPercentage(%d, %d) = %v, want %v", c.completed, c.total, got, c.want)
		}
	}
}

func TestDaysUntil(t *testing.T) {
	today := date(2025, 1, 29)
	deadline := date(2025, 2, 1)
	got := DaysUntil(&deadline, today)
	if got == nil || *got != 3 {
		t.Fatalf("DaysUntil = %v, want 3", got)
	}

	if DaysUntil(nil, today) != nil {
		t.Error("nil deadline should yield nil")
	}

	past := date(2025, 1, 27)
	got = DaysUntil(&past, today)
	if got == nil || *got != -2 {
		t.Fatalf("DaysUntil past = %v, want -2", got)
	}
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(time.Date(2025, 2, 14, 13, 45, 0, 0, time.UTC))
	if !start.Equal(date(2025, 2, 1)) {
		t.Errorf("month start = %v", start)
	}
	if !end.Equal(date(2025, 2, 28)) {
		t.Errorf("month end = %v", end)
	}

	// 12月翻年
	start, end = MonthBounds(time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
	if !start.Equal(date(2024, 12, 1)) || !end.Equal(date(2024, 12, 31)) {
		t.Errorf("december bounds = %v .. %v", start, end)
	}
}

func TestEndOfDay(t *testing.T) {
	e := EndOfDay(date(2025, 2, 28))
	if e.Hour() != 23 || e.Minute() != 59 || e.Second() != 59 {
		t.Errorf("end of day = %v", e)
	}
	if e.Day() != 28 || e.Month() != 2 {
		t.Errorf("end of day moved date: %v", e)
	}
}
