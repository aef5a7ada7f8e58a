// Package metrics 定义服务的 Prometheus 指标。
//
// 所有指标通过 promauto 注册到默认 Registry，由 /metrics 端点统一暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UserTotals 按状态统计的用户数量，由每小时统计任务刷新。
	// state: all | activated
	UserTotals = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "st_backend",
		Name:      "users_total",
		Help:      "Number of registered users by state.",
	}, []string{"state"})

	// TokensOutstanding 当前未消费的操作令牌数量。
	TokensOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "st_backend",
		Name:      "action_tokens_outstanding",
		Help:      "Number of outstanding action tokens.",
	})

	// MailQueueDepth 邮件队列当前积压的任务数。
	MailQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "st_backend",
		Name:      "mail_queue_depth",
		Help:      "Number of mail jobs waiting in the dispatch queue.",
	})

	// MailDispatchTotal 按结果统计的邮件投递次数。
	// status: ok | error | dropped
	MailDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "st_backend",
		Name:      "mail_dispatch_total",
		Help:      "Number of mail dispatch attempts by status.",
	}, []string{"status"})
)
