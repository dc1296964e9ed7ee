package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/webhook"
)

// Notifier 到期提醒的出站通道
type Notifier interface {
	Notify(ctx context.Context, n webhook.Notification) error
}

// SweepService 定时巡检服务：
// 过期任务提醒和紧急工单临期提醒。通知失败只记日志，不中断巡检
type SweepService struct {
	repos    *repository.Repositories
	notifier Notifier
	logger   *zap.Logger
}

// NewSweepService 创建巡检服务
func NewSweepService(repos *repository.Repositories, notifier Notifier, logger *zap.Logger) *SweepService {
	return &SweepService{repos: repos, notifier: notifier, logger: logger}
}

// recipients 工单的通知对象：创建者加全部被指派人，去重
func recipients(order *entity.ProductionOrder) []string {
	seen := map[string]bool{}
	var out []string
	if order.CreatorID != "" {
		seen[order.CreatorID] = true
		out = append(out, order.CreatorID)
	}
	for _, u := range order.AssignedUsers {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u.ID)
	}
	return out
}

// ExpiredTasksSweep 巡检所有已过期未完成的任务并逐单推送提醒
func (s *SweepService) ExpiredTasksSweep(ctx context.Context) error {
	today := Today()
	tasks, err := s.repos.Task.ListExpired(ctx, today)
	if err != nil {
		return fmt.Errorf("list expired tasks: %w", err)
	}

	notified := 0
	for i := range tasks {
		task := &tasks[i]
		if task.Order == nil {
			continue
		}
		n := webhook.Notification{
			Event: "task.expired",
			Message: fmt.Sprintf("任务已过期：工单 #%d 的任务「%s」应于 %s 完成",
				task.Order.OrderNumber, task.Description, task.ExpectedEndDate.Format("2006-01-02")),
			Recipients: recipients(task.Order),
			Payload: map[string]interface{}{
				"task_id":           task.ID,
				"order_id":          task.ProductionOrderID,
				"order_number":      task.Order.OrderNumber,
				"expected_end_date": task.ExpectedEndDate.Format("2006-01-02"),
			},
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("expired task notification failed",
				zap.String("task_id", task.ID), zap.Error(err))
			continue
		}
		notified++
	}

	s.logger.Info("expired tasks sweep finished",
		zap.Int("expired", len(tasks)), zap.Int("notified", notified))
	return nil
}

// UrgentDeadlineSweep 巡检 deadline 落在明天到后天之间的紧急工单并推送临期提醒
func (s *SweepService) UrgentDeadlineSweep(ctx context.Context) error {
	today := Today()
	from := today.AddDate(0, 0, 1)
	to := today.AddDate(0, 0, 2)

	orders, err := s.repos.Order.ListUrgentDeadlineBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list urgent orders near deadline: %w", err)
	}

	notified := 0
	for i := range orders {
		order := &orders[i]
		if order.Deadline == nil {
			continue
		}
		days := int(order.Deadline.Sub(today) / (24 * time.Hour))
		n := webhook.Notification{
			Event: "order.deadline_approaching",
			Message: fmt.Sprintf("紧急工单 #%d 距 deadline（%s）还有 %d 天",
				order.OrderNumber, order.Deadline.Format("2006-01-02"), days),
			Recipients: recipients(order),
			Payload: map[string]interface{}{
				"order_id":            order.ID,
				"order_number":        order.OrderNumber,
				"deadline":            order.Deadline.Format("2006-01-02"),
				"days_until_deadline": days,
			},
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("deadline notification failed",
				zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		notified++
	}

	s.logger.Info("urgent deadline sweep finished",
		zap.Int("approaching", len(orders)), zap.Int("notified", notified))
	return nil
}

// Run 按固定间隔循环执行两类巡检，ctx 取消后退出
func (s *SweepService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ExpiredTasksSweep(ctx); err != nil {
				s.logger.Error("expired tasks sweep failed", zap.Error(err))
			}
			if err := s.UrgentDeadlineSweep(ctx); err != nil {
				s.logger.Error("urgent deadline sweep failed", zap.Error(err))
			}
		}
	}
}
