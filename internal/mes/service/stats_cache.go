package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
)

// 月度统计缓存键前缀，完整格式：
// monthly_stats/{role}/{user_id 仅 operator}/{year}/{month}
// admin 和主管看到的是同一份全局范围，按角色共享一个键即可；
// operator 范围因人而异，键里必须带上用户ID
const statsCachePrefix = "monthly_stats"

// StatsCache 月度统计缓存。
// 缓存只是纯聚合计算外面的一层薄壳：redis 不可用时直接回源计算，
// 绝不因缓存故障让请求失败
type StatsCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewStatsCache 创建统计缓存
func NewStatsCache(rdb *redis.Client, logger *zap.Logger) *StatsCache {
	return &StatsCache{rdb: rdb, logger: logger}
}

// StatsCacheKey 构造月度统计缓存键
func StatsCacheKey(role, userID string, monthStart time.Time) string {
	if role == entity.RoleOperator {
		return fmt.Sprintf("%s/%s/%s/%d/%d", statsCachePrefix, role, userID, monthStart.Year(), int(monthStart.Month()))
	}
	return fmt.Sprintf("%s/%s/%d/%d", statsCachePrefix, role, monthStart.Year(), int(monthStart.Month()))
}

// InvalidationKeys 某工单变更后需要删除的全部缓存键：
// 两个全局角色键恒删；创建者是 operator 则删其键；每个被指派的 operator 各删一个
func InvalidationKeys(creator *entity.User, assignedOperators []entity.User, monthStart time.Time) []string {
	keys := []string{
		StatsCacheKey(entity.RoleAdmin, "", monthStart),
		StatsCacheKey(entity.RoleProductionManager, "", monthStart),
	}
	seen := map[string]bool{}
	if creator != nil && creator.IsOperator() {
		key := StatsCacheKey(entity.RoleOperator, creator.ID, monthStart)
		keys = append(keys, key)
		seen[creator.ID] = true
	}
	for _, u := range assignedOperators {
		if seen[u.ID] {
			continue
		}
		keys = append(keys, StatsCacheKey(entity.RoleOperator, u.ID, monthStart))
		seen[u.ID] = true
	}
	return keys
}

// Fetch 缓存包装：命中直接返回，未命中回源计算并按 expiresAt 写回。
// 读写 redis 的任何错误都降级为直接计算
func (c *StatsCache) Fetch(ctx context.Context, key string, expiresAt time.Time, compute func() (repository.MonthlyCounts, error)) (repository.MonthlyCounts, error) {
	if c.rdb != nil {
		cached, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			var counts repository.MonthlyCounts
			if jsonErr := json.Unmarshal([]byte(cached), &counts); jsonErr == nil {
				return counts, nil
			}
			// 缓存内容损坏，当作未命中
		} else if err != redis.Nil {
			c.logger.Warn("stats cache read failed, computing directly",
				zap.String("key", key), zap.Error(err))
		}
	}

	counts, err := compute()
	if err != nil {
		return counts, err
	}

	if c.rdb != nil {
		ttl := time.Until(expiresAt)
		if ttl > 0 {
			data, _ := json.Marshal(counts)
			if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
				c.logger.Warn("stats cache write failed",
					zap.String("key", key), zap.Error(err))
			}
		}
	}

	return counts, nil
}

// Invalidate 删除一组键。尽力而为的幂等删除：
// 并发失效操作删除键集合的并集，顺序无关，无需加锁
func (c *StatsCache) Invalidate(ctx context.Context, keys []string) {
	if c.rdb == nil || len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("stats cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
