package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// VerificationEmailsSentTotal 已发送的验证码邮件数。
	VerificationEmailsSentTotal prometheus.Counter
	// WelcomeEmailsSentTotal 已发送的欢迎邮件数。
	WelcomeEmailsSentTotal prometheus.Counter
	// EmailSendFailedTotal 邮件发送失败数（后台任务内吞掉的错误）。
	EmailSendFailedTotal prometheus.Counter
	// DraftsPublishedTotal 定时扫描自动发布的菜谱数。
	DraftsPublishedTotal prometheus.Counter
	// RatingsUpsertedTotal 评分创建/更新总数。
	RatingsUpsertedTotal prometheus.Counter
	// AuthForbiddenTotal 越权访问被拒绝的次数。
	AuthForbiddenTotal prometheus.Counter

	initOnce sync.Once
)

// InitMetrics 注册 Prometheus 指标，可安全重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		VerificationEmailsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "culinary_canvas",
			Name:      "verification_emails_sent_total",
			Help:      "Number of verification code emails dispatched.",
		})
		WelcomeEmailsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "culinary_canvas",
			Name:      "welcome_emails_sent_total",
			Help:      "Number of welcome emails dispatched.",
		})
		EmailSendFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "culinary_canvas",
			Name:      "email_send_failed_total",
			Help:      "Number of email jobs that failed in the background.",
		})
		DraftsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "culinary_canvas",
			Name:      "drafts_published_total",
			Help:      "Number of draft recipes published by the sweep.",
		})
		RatingsUpsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "culinary_canvas",
			Name:      "ratings_upserted_total",
			Help:      "Number of rating create/update operations.",
		})
		AuthForbiddenTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "culinary_canvas",
			Name:      "auth_forbidden_total",
			Help:      "Number of rejected ownership violations.",
		})

		prometheus.MustRegister(
			VerificationEmailsSentTotal,
			WelcomeEmailsSentTotal,
			EmailSendFailedTotal,
			DraftsPublishedTotal,
			RatingsUpsertedTotal,
			AuthForbiddenTotal,
		)
	})
}
