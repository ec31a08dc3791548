package gamification

import (
	"time"

	"github.com/laxlab/drill-rewards/internal/models"
)

const (
	// DefaultFreezeCount is the allowance every new streak record starts with.
	DefaultFreezeCount = 2

	maxMissedDays      = 3
	freezeCooldownDays = 7
)

// Transition names how a session moved the streak.
type Transition string

const (
	TransitionStarted   Transition = "started"
	TransitionSameDay   Transition = "same_day"
	TransitionContinued Transition = "continued"
	TransitionFrozen    Transition = "frozen"
	TransitionReset     Transition = "reset"
)

// StreakUpdate is the result of advancing a record for one qualifying session.
type StreakUpdate struct {
	Record            models.StreakRecord
	Transition        Transition
	MilestonesCrossed []int
}

// CalendarDate returns the calendar day of t in loc, as UTC midnight.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(dateOnly(b).Sub(dateOnly(a)).Hours() / 24)
}

// NewStreakRecord is the lazily created record for a user's first session.
func NewStreakRecord(userID int64) models.StreakRecord {
	return models.StreakRecord{UserID: userID, StreakFreezeCount: DefaultFreezeCount}
}

// FreezeEligible reports whether a freeze may cover the gap up to today.
func FreezeEligible(rec models.StreakRecord, today time.Time) bool {
	if rec.LastActivityDate == nil {
		return false
	}
	missed := daysBetween(*rec.LastActivityDate, today) - 1
	if missed < 1 || missed > maxMissedDays {
		return false
	}
	return FreezeReady(rec, today)
}

// FreezeReady reports whether a freeze is owned and off cooldown on today.
func FreezeReady(rec models.StreakRecord, today time.Time) bool {
	if rec.StreakFreezeCount <= 0 {
		return false
	}
	return rec.LastFreezeUsed == nil || daysBetween(*rec.LastFreezeUsed, today) >= freezeCooldownDays
}

// EffectiveStreak is the streak a session today would build on: the stored
// value when it is still alive or a freeze can save it, otherwise 0.
func EffectiveStreak(rec models.StreakRecord, today time.Time) int {
	if rec.LastActivityDate == nil {
		return 0
	}
	gap := daysBetween(*rec.LastActivityDate, today)
	if gap <= 1 || FreezeEligible(rec, today) {
		return rec.CurrentStreak
	}
	return 0
}

// ActiveOn reports whether the record already counted a session on day.
func ActiveOn(rec models.StreakRecord, day time.Time) bool {
	return rec.LastActivityDate != nil && daysBetween(*rec.LastActivityDate, day) <= 0
}

// AdvanceStreak applies one qualifying session on today. A second session on
// the same day leaves the record untouched.
func AdvanceStreak(rec models.StreakRecord, today time.Time) StreakUpdate {
	today = dateOnly(today)
	next := rec

	var transition Transition
	switch {
	case rec.LastActivityDate == nil || rec.CurrentStreak == 0:
		if ActiveOn(rec, today) {
			return StreakUpdate{Record: rec, Transition: TransitionSameDay}
		}
		next.CurrentStreak = 1
		transition = TransitionStarted
	case daysBetween(*rec.LastActivityDate, today) <= 0:
		// A stored date ahead of today is clock skew; treat it as today.
		return StreakUpdate{Record: rec, Transition: TransitionSameDay}
	case daysBetween(*rec.LastActivityDate, today) == 1:
		next.CurrentStreak++
		transition = TransitionContinued
	case FreezeEligible(rec, today):
		next.CurrentStreak++
		next.StreakFreezeCount--
		used := today
		next.LastFreezeUsed = &used
		transition = TransitionFrozen
	default:
		next.CurrentStreak = 1
		transition = TransitionReset
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	last := today
	next.LastActivityDate = &last
	next.TotalWorkoutsCompleted++

	crossed := crossedMilestones(next.StreakMilestoneReached, next.CurrentStreak)
	if len(crossed) > 0 {
		next.StreakMilestoneReached = crossed[len(crossed)-1]
	}

	return StreakUpdate{Record: next, Transition: transition, MilestonesCrossed: crossed}
}

// ResetStreak is the administrative reset. Longest streak, counters and
// freezes are preserved.
func ResetStreak(rec models.StreakRecord) models.StreakRecord {
	rec.CurrentStreak = 0
	rec.LastActivityDate = nil
	return rec
}
