package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/laxlab/drill-rewards/internal/models"
)

// TierDef defines a named streak tier.
type TierDef struct {
	Days  int
	Title string
	// Bonus is the one-time lax_credit payout; zero for cosmetic tiers.
	Bonus int64
	// Milestone tiers are tracked in streak_milestone_reached.
	Milestone bool
}

// Tiers lists streak tiers in ascending order.
var Tiers = []TierDef{
	{Days: 3, Title: "Getting Started"},
	{Days: 7, Title: "Week Warrior", Bonus: 100, Milestone: true},
	{Days: 14, Title: "Dedicated", Milestone: true},
	{Days: 30, Title: "Monthly Master", Bonus: 500, Milestone: true},
	{Days: 100, Title: "Centurion", Bonus: 2000, Milestone: true},
}

// MilestoneThresholds returns the tracked milestone days in ascending order.
func MilestoneThresholds() []int {
	var out []int
	for _, t := range Tiers {
		if t.Milestone {
			out = append(out, t.Days)
		}
	}
	return out
}

// MilestoneBonus returns the payout for a milestone; ok is false for
// cosmetic or unknown milestones.
func MilestoneBonus(milestone int) (models.PointAward, bool) {
	var award models.PointAward
	for _, t := range Tiers {
		if t.Milestone && t.Days == milestone && t.Bonus > 0 {
			award.Set(models.LaxCredit, t.Bonus)
			return award, true
		}
	}
	return award, false
}

// StreakTitle returns the title of the highest tier reached.
func StreakTitle(streak int) string {
	title := ""
	for _, t := range Tiers {
		if streak >= t.Days {
			title = t.Title
		}
	}
	return title
}

// NextMilestone returns the next tracked milestone above reached, if any.
func NextMilestone(reached int) (int, bool) {
	for _, m := range MilestoneThresholds() {
		if m > reached {
			return m, true
		}
	}
	return 0, false
}

// crossedMilestones returns every milestone above reached that streak has
// arrived at, ascending.
func crossedMilestones(reached, streak int) []int {
	var out []int
	for _, m := range MilestoneThresholds() {
		if m > reached && streak >= m {
			out = append(out, m)
		}
	}
	return out
}

// AwardMilestone pays a newly crossed milestone exactly once. Cosmetic tiers
// are recorded without a ledger entry. A milestone already claimed returns
// ErrDuplicateMilestoneAward and writes nothing.
func AwardMilestone(ctx context.Context, tx Tx, userID int64, milestone int, now time.Time) (*LedgerBatch, error) {
	bonus, paid := MilestoneBonus(milestone)

	var batch *LedgerBatch
	claim := models.MilestoneAward{UserID: userID, Milestone: milestone, CreatedAt: now}
	if paid {
		batch = NewLedgerBatch(userID, bonus, models.SourceStreakMilestone,
			fmt.Sprintf("%d-day streak milestone", milestone), now)
		claim.BatchID = batch.ID
	}

	if err := tx.ClaimMilestone(ctx, claim); err != nil {
		if errors.Is(err, ErrDuplicateMilestoneAward) {
			return nil, err
		}
		return nil, fmt.Errorf("claim milestone %d: %w", milestone, err)
	}
	if batch == nil {
		return nil, nil
	}
	if err := tx.ApplyLedgerBatch(ctx, batch.Transactions); err != nil {
		return nil, fmt.Errorf("apply milestone bonus: %w", err)
	}
	return batch, nil
}
