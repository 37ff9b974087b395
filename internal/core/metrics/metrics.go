package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "kv_ops_total", Help: "Key-value writes by operation"},
		[]string{"op"},
	)
	CrossTabEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crosstab_events_total", Help: "Cross-tab change events by direction"},
		[]string{"direction"},
	)
	ModerationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "moderation_decisions_total", Help: "Submission decisions and account actions"},
		[]string{"action"},
	)
	QuizCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "quiz_completions_total", Help: "Finished quizzes by outcome and tier"},
		[]string{"outcome", "tier"},
	)
	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_created_total", Help: "Notifications appended by kind"},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(StoreOps, CrossTabEvents, ModerationDecisions, QuizCompletions, NotificationsCreated)
}
