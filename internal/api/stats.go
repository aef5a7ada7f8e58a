package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexcool68/ST-backend/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	statsJobName = "stats"
	statsKey     = "st-backend:stats"
)

// StatsSnapshot 定时任务写入 Redis 的统计快照。
type StatsSnapshot struct {
	Users           int64     `json:"users"`
	ActivatedUsers  int64     `json:"activatedUsers"`
	PendingTokens   int64     `json:"pendingTokens"`
	MailQueueLength int       `json:"mailQueueLength"`
	CollectedAt     time.Time `json:"collectedAt"`
}

// runStatsJob 统计用户与令牌数量并把快照写入 Redis。
func (s *Server) runStatsJob(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	users, err := s.users.Count(ctx)
	if err != nil {
		s.logger.Error("stats: count users failed", slog.String("error", err.Error()))
		return
	}
	activated, err := s.users.CountActivated(ctx)
	if err != nil {
		s.logger.Error("stats: count activated users failed", slog.String("error", err.Error()))
		return
	}
	tokens, err := s.tokens.CountOutstanding(ctx)
	if err != nil {
		s.logger.Error("stats: count tokens failed", slog.String("error", err.Error()))
		return
	}

	snapshot := StatsSnapshot{
		Users:           users,
		ActivatedUsers:  activated,
		PendingTokens:   tokens,
		MailQueueLength: s.mailQueue.Len(),
		CollectedAt:     time.Now().UTC(),
	}

	metrics.UserTotals.WithLabelValues("all").Set(float64(users))
	metrics.UserTotals.WithLabelValues("activated").Set(float64(activated))
	metrics.TokensOutstanding.Set(float64(tokens))
	metrics.MailQueueDepth.Set(float64(snapshot.MailQueueLength))

	payload, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Error("stats: marshal snapshot failed", slog.String("error", err.Error()))
		return
	}
	if err := s.rdb.Set(ctx, statsKey, payload, 0).Err(); err != nil {
		s.logger.Error("stats: write snapshot failed", slog.String("error", err.Error()))
		return
	}

	s.logger.Info("stats snapshot written",
		slog.Int64("users", users),
		slog.Int64("activated", activated),
		slog.Int64("tokens", tokens))
}

// handlePing 服务存活探测。
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "pong"})
}

// handleStats 返回最近一次统计快照，尚未生成时返回 404。
func (s *Server) handleStats(c *gin.Context) {
	payload, err := s.rdb.Get(c.Request.Context(), statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "no snapshot yet"})
			return
		}
		s.logger.Error("read stats snapshot failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "read snapshot failed"})
		return
	}

	var snapshot StatsSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		s.logger.Error("decode stats snapshot failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "decode snapshot failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "stats": snapshot})
}
