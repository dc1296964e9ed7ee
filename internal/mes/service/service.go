package service

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/shared/webhook"
)

// Services 服务集合
type Services struct {
	Auth   *AuthService
	User   *UserService
	Order  *OrderService
	Task   *TaskService
	Report *ReportService
	Audit  *AuditService
	Cache  *StatsCache
	Sweep  *SweepService
}

// NewServices 创建所有服务
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	audit := NewAuditService()
	cache := NewStatsCache(rdb, logger)
	notifier := webhook.NewClient(cfg.Webhook.URL)

	return &Services{
		Auth:   NewAuthService(repos.User, rdb, cfg),
		User:   NewUserService(repos.User),
		Order:  NewOrderService(db, repos, audit, cache, logger),
		Task:   NewTaskService(db, repos, audit),
		Report: NewReportService(repos, cache),
		Audit:  audit,
		Cache:  cache,
		Sweep:  NewSweepService(repos, notifier, logger),
	}
}
