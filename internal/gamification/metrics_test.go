package gamification

import (
	"testing"

	"github.com/laxlab/drill-rewards/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterMetrics(reg)
	if err := reg.Register(CompletionCounter); err == nil {
		t.Error("CompletionCounter registered twice")
	}
}

func TestRecordPoints(t *testing.T) {
	counter := PointsAwarded.WithLabelValues(string(models.ReboundReward), string(models.SourceDrillAward))
	before := testutil.ToFloat64(counter)

	recordPoints(award(models.LaxCredit, 4, models.ReboundReward, 9), models.SourceDrillAward)

	if got := testutil.ToFloat64(counter) - before; got != 9 {
		t.Errorf("rebound_reward points moved by %v, want 9", got)
	}
}
