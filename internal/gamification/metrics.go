package gamification

import (
	"strconv"

	"github.com/laxlab/drill-rewards/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CompletionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drill_completions_total",
			Help: "Workout completions by outcome",
		},
		[]string{"outcome"},
	)

	PointsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_awarded_total",
			Help: "Points credited to wallets",
		},
		[]string{"currency", "source"},
	)

	StreakTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_transitions_total",
			Help: "Streak state machine transitions",
		},
		[]string{"transition"},
	)

	MilestonesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_milestone_bonuses_total",
			Help: "Streak milestone bonuses paid",
		},
		[]string{"milestone"},
	)

	ConcurrencyRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "award_concurrency_retries_total",
			Help: "Award attempts retried after a streak version conflict",
		},
	)

	AwardDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "award_pipeline_duration_seconds",
			Help:    "Duration of the award pipeline including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// RegisterMetrics registers the engine collectors on reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		CompletionCounter,
		PointsAwarded,
		StreakTransitions,
		MilestonesAwarded,
		ConcurrencyRetries,
		AwardDuration,
	)
}

func recordPoints(award models.PointAward, source models.SourceType) {
	award.Each(func(c models.Currency, amount int64) {
		PointsAwarded.WithLabelValues(string(c), string(source)).Add(float64(amount))
	})
}

func recordMilestone(m int) {
	MilestonesAwarded.WithLabelValues(strconv.Itoa(m)).Inc()
}
