package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// ReportService 聚合报表服务。
// 只读：输入是已按调用者权限裁剪过的范围，本服务从不写库
type ReportService struct {
	orderRepo      *repository.OrderRepository
	taskRepo       *repository.TaskRepository
	userRepo       *repository.UserRepository
	assignmentRepo *repository.AssignmentRepository
	cache          *StatsCache
}

// NewReportService 创建报表服务
func NewReportService(repos *repository.Repositories, cache *StatsCache) *ReportService {
	return &ReportService{
		orderRepo:      repos.Order,
		taskRepo:       repos.Task,
		userRepo:       repos.User,
		assignmentRepo: repos.Assignment,
		cache:          cache,
	}
}

// TaskSummary 单工单任务汇总
type TaskSummary struct {
	Total                 int        `json:"total"`
	Pending               int        `json:"pending"`
	Completed             int        `json:"completed"`
	Overdue               int        `json:"overdue"`
	CompletionPercentage  float64    `json:"completion_percentage"`
	LatestPendingTaskDate *time.Time `json:"latest_pending_task_date"`
}

// completionPercentage 完成率 = round(completed/total*100, 2)，空集合为0。
// 内存路径和计数查询路径都经过这里，保证两边结果一致
func completionPercentage(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*100*100) / 100
}

// Summarize 从已加载的任务集合计算汇总，避免多余查询
func Summarize(tasks []entity.Task, today time.Time) TaskSummary {
	summary := TaskSummary{Total: len(tasks)}
	for i := range tasks {
		switch tasks[i].Status {
		case entity.TaskStatusCompleted:
			summary.Completed++
		case entity.TaskStatusPending:
			summary.Pending++
			if tasks[i].IsOverdue(today) {
				summary.Overdue++
			}
			if summary.LatestPendingTaskDate == nil || tasks[i].ExpectedEndDate.After(*summary.LatestPendingTaskDate) {
				d := tasks[i].ExpectedEndDate
				summary.LatestPendingTaskDate = &d
			}
		}
	}
	summary.CompletionPercentage = completionPercentage(summary.Completed, summary.Total)
	return summary
}

// OrderSummary 工单任务汇总。
// 任务集合已预加载时走内存路径，否则回退到计数查询
func (s *ReportService) OrderSummary(ctx context.Context, order *entity.ProductionOrder, today time.Time) (TaskSummary, error) {
	if order.Tasks != nil {
		return Summarize(order.Tasks, today), nil
	}

	counts, err := s.taskRepo.CountSummary(ctx, order.ID, today)
	if err != nil {
		return TaskSummary{}, err
	}
	return TaskSummary{
		Total:                 counts.Total,
		Pending:               counts.Pending,
		Completed:             counts.Completed,
		Overdue:               counts.Overdue,
		CompletionPercentage:  completionPercentage(counts.Completed, counts.Total),
		LatestPendingTaskDate: counts.LatestPendingDate,
	}, nil
}

// UserBrief 报表里的用户摘要
type UserBrief struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TaskBrief 报表里的任务摘要
type TaskBrief struct {
	ID              string     `json:"id"`
	Description     string     `json:"description"`
	ExpectedEndDate time.Time  `json:"expected_end_date"`
	Status          string     `json:"status"`
	IsOverdue       bool       `json:"is_overdue"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// UrgentOrderReportRow 紧急工单报表行
type UrgentOrderReportRow struct {
	ID                   string      `json:"id"`
	Kind                 string      `json:"kind"`
	OrderNumber          int         `json:"order_number"`
	StartDate            time.Time   `json:"start_date"`
	ExpectedEndDate      time.Time   `json:"expected_end_date"`
	Deadline             *time.Time  `json:"deadline"`
	Status               string      `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	Creator              UserBrief   `json:"creator"`
	AssignedUsers        []UserBrief `json:"assigned_users"`
	LatestPendingTask    *TaskBrief  `json:"latest_pending_task"`
	PendingTasksCount    int         `json:"pending_tasks_count"`
	CompletedTasksCount  int         `json:"completed_tasks_count"`
	TotalTasksCount      int         `json:"total_tasks_count"`
	CompletionPercentage float64     `json:"completion_percentage"`
	DaysUntilDeadline    *int        `json:"days_until_deadline"`
}

// DaysUntil 距截止日的整天数，无截止日为 nil
func DaysUntil(deadline *time.Time, today time.Time) *int {
	if deadline == nil {
		return nil
	}
	days := int(deadline.Sub(today).Hours() / 24)
	return &days
}

// UrgentOrdersReport 紧急工单报表：
// 每个范围内的紧急工单恰好一行，带任务计数、完成率、最新 pending 任务和距截止天数
func (s *ReportService) UrgentOrdersReport(ctx context.Context, scope repository.Scope, today time.Time, page, pageSize int) ([]UrgentOrderReportRow, int64, error) {
	rows, total, err := s.orderRepo.UrgentReport(ctx, scope, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	// 批量补充创建者和指派用户
	creatorIDs := make([]string, 0, len(rows))
	orderIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		creatorIDs = append(creatorIDs, row.CreatorID)
		orderIDs = append(orderIDs, row.ID)
	}
	creators, err := s.userRepo.ListByIDs(ctx, creatorIDs)
	if err != nil {
		return nil, 0, err
	}
	creatorByID := make(map[string]entity.User, len(creators))
	for _, u := range creators {
		creatorByID[u.ID] = u
	}

	assignments, err := s.assignmentRepo.ListByOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, 0, err
	}
	assignedByOrder := make(map[string][]UserBrief)
	for _, a := range assignments {
		if a.User == nil {
			continue
		}
		assignedByOrder[a.ProductionOrderID] = append(assignedByOrder[a.ProductionOrderID], UserBrief{
			ID: a.User.ID, Name: a.User.Name, Email: a.User.Email,
		})
	}

	report := make([]UrgentOrderReportRow, 0, len(rows))
	for _, row := range rows {
		var latest *TaskBrief
		if row.LatestTaskID != nil {
			latest = &TaskBrief{
				ID:              *row.LatestTaskID,
				Status:          entity.TaskStatusPending,
				CreatedAt:       row.LatestTaskCreatedAt,
				UpdatedAt:       row.LatestTaskUpdatedAt,
			}
			if row.LatestTaskDescription != nil {
				latest.Description = *row.LatestTaskDescription
			}
			if row.LatestTaskExpectedEndDate != nil {
				latest.ExpectedEndDate = *row.LatestTaskExpectedEndDate
				latest.IsOverdue = row.LatestTaskExpectedEndDate.Before(today)
			}
		}

		creator := creatorByID[row.CreatorID]
		assigned := assignedByOrder[row.ID]
		if assigned == nil {
			assigned = []UserBrief{}
		}

		report = append(report, UrgentOrderReportRow{
			ID:                   row.ID,
			Kind:                 row.Kind,
			OrderNumber:          row.OrderNumber,
			StartDate:            row.StartDate,
			ExpectedEndDate:      row.ExpectedEndDate,
			Deadline:             row.Deadline,
			Status:               row.Status,
			CreatedAt:            row.CreatedAt,
			UpdatedAt:            row.UpdatedAt,
			Creator:              UserBrief{ID: creator.ID, Name: creator.Name, Email: creator.Email},
			AssignedUsers:        assigned,
			LatestPendingTask:    latest,
			PendingTasksCount:    row.PendingTasksCount,
			CompletedTasksCount:  row.CompletedTasksCount,
			TotalTasksCount:      row.TotalTasksCount,
			CompletionPercentage: row.CompletionPercentage,
			DaysUntilDeadline:    DaysUntil(row.Deadline, today),
		})
	}

	return report, total, nil
}

// OverdueOrderReportRow 过期任务报表行
type OverdueOrderReportRow struct {
	ID                string      `json:"id"`
	Kind              string      `json:"kind"`
	OrderNumber       int         `json:"order_number"`
	StartDate         time.Time   `json:"start_date"`
	ExpectedEndDate   time.Time   `json:"expected_end_date"`
	Deadline          *time.Time  `json:"deadline"`
	Status            string      `json:"status"`
	Creator           UserBrief   `json:"creator"`
	AssignedUsers     []UserBrief `json:"assigned_users"`
	ExpiredTasksCount int         `json:"expired_tasks_count"`
	ExpiredTasks      []TaskBrief `json:"expired_tasks"`
}

// OverdueTasksReport 至少有一个过期 pending 任务的紧急工单及其过期任务清单
func (s *ReportService) OverdueTasksReport(ctx context.Context, scope repository.Scope, today time.Time, page, pageSize int) ([]OverdueOrderReportRow, int64, error) {
	orders, total, err := s.orderRepo.ListUrgentWithOverdueTasks(ctx, scope, today, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	report := make([]OverdueOrderReportRow, 0, len(orders))
	for i := range orders {
		order := &orders[i]

		expired := make([]TaskBrief, 0)
		for j := range order.Tasks {
			t := &order.Tasks[j]
			if !t.IsOverdue(today) {
				continue
			}
			created := t.CreatedAt
			updated := t.UpdatedAt
			expired = append(expired, TaskBrief{
				ID:              t.ID,
				Description:     t.Description,
				ExpectedEndDate: t.ExpectedEndDate,
				Status:          t.Status,
				IsOverdue:       true,
				CreatedAt:       &created,
				UpdatedAt:       &updated,
			})
		}

		row := OverdueOrderReportRow{
			ID:                order.ID,
			Kind:              order.Kind,
			OrderNumber:       order.OrderNumber,
			StartDate:         order.StartDate,
			ExpectedEndDate:   order.ExpectedEndDate,
			Deadline:          order.Deadline,
			Status:            order.Status,
			AssignedUsers:     []UserBrief{},
			ExpiredTasksCount: len(expired),
			ExpiredTasks:      expired,
		}
		if order.Creator != nil {
			row.Creator = UserBrief{ID: order.Creator.ID, Name: order.Creator.Name, Email: order.Creator.Email}
		}
		for _, u := range order.AssignedUsers {
			row.AssignedUsers = append(row.AssignedUsers, UserBrief{ID: u.ID, Name: u.Name, Email: u.Email})
		}

		report = append(report, row)
	}

	return report, total, nil
}

// MonthlyStats 月度统计响应
type MonthlyStats struct {
	CurrentMonth repository.MonthlyCounts `json:"current_month"`
}

// MonthBounds 给定时刻所在月的 [月初, 月末] 日期
func MonthBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, -1)
	return start, end
}

// EndOfDay 当日最后一刻，月度缓存以此为过期点
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// MonthlyStatistics 月度统计（缓存包装）。
// 范围由调用方按角色裁剪后传入，缓存键与范围的构成保持同构：
// 范围一致的角色共享键，operator 各自独立
func (s *ReportService) MonthlyStatistics(ctx context.Context, user *entity.User, scope repository.Scope, monthStart, monthEnd time.Time) (MonthlyStats, error) {
	key := StatsCacheKey(user.Role, user.ID, monthStart)
	expiresAt := EndOfDay(monthEnd)

	counts, err := s.cache.Fetch(ctx, key, expiresAt, func() (repository.MonthlyCounts, error) {
		return s.orderRepo.CountMonthly(ctx, scope, monthStart, monthEnd)
	})
	if err != nil {
		return MonthlyStats{}, err
	}
	return MonthlyStats{CurrentMonth: counts}, nil
}

// ExportUrgentReport 导出紧急工单报表为 Excel
func (s *ReportService) ExportUrgentReport(ctx context.Context, scope repository.Scope, today time.Time) (*excelize.File, string, error) {
	rows, _, err := s.UrgentOrdersReport(ctx, scope, today, 1, 1000)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "UrgentOrders"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	headers := []string{"工单号", "状态", "开始日期", "预计完成", "截止日期", "距截止(天)", "任务总数", "待办", "已完成", "完成率(%)", "创建人", "最新待办任务"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for i, row := range rows {
		r := i + 2
		deadline := ""
		if row.Deadline != nil {
			deadline = row.Deadline.Format("2006-01-02")
		}
		days := ""
		if row.DaysUntilDeadline != nil {
			days = fmt.Sprintf("%d", *row.DaysUntilDeadline)
		}
		latest := ""
		if row.LatestPendingTask != nil {
			latest = row.LatestPendingTask.Description
		}
		values := []interface{}{
			row.OrderNumber,
			row.Status,
			row.StartDate.Format("2006-01-02"),
			row.ExpectedEndDate.Format("2006-01-02"),
			deadline,
			days,
			row.TotalTasksCount,
			row.PendingTasksCount,
			row.CompletedTasksCount,
			row.CompletionPercentage,
			row.Creator.Name,
			latest,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, r)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("urgent_orders_report_%s.xlsx", today.Format("20060102"))
	return f, filename, nil
}
