package gamification

import (
	"reflect"
	"testing"
	"time"

	"github.com/laxlab/drill-rewards/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := day(s)
	return &t
}

func TestAdvanceStreak(t *testing.T) {
	today := day("2026-03-10")

	tests := []struct {
		name           string
		rec            models.StreakRecord
		wantStreak     int
		wantTransition Transition
		wantFreezes    int
	}{
		{
			name:           "first session",
			rec:            NewStreakRecord(1),
			wantStreak:     1,
			wantTransition: TransitionStarted,
			wantFreezes:    2,
		},
		{
			name:           "consecutive day",
			rec:            models.StreakRecord{CurrentStreak: 4, LastActivityDate: datePtr("2026-03-09"), StreakFreezeCount: 2},
			wantStreak:     5,
			wantTransition: TransitionContinued,
			wantFreezes:    2,
		},
		{
			name:           "one missed day uses freeze",
			rec:            models.StreakRecord{CurrentStreak: 4, LastActivityDate: datePtr("2026-03-08"), StreakFreezeCount: 2},
			wantStreak:     5,
			wantTransition: TransitionFrozen,
			wantFreezes:    1,
		},
		{
			name:           "three missed days uses freeze",
			rec:            models.StreakRecord{CurrentStreak: 4, LastActivityDate: datePtr("2026-03-06"), StreakFreezeCount: 2},
			wantStreak:     5,
			wantTransition: TransitionFrozen,
			wantFreezes:    1,
		},
		{
			name:           "four missed days resets",
			rec:            models.StreakRecord{CurrentStreak: 4, LastActivityDate: datePtr("2026-03-05"), StreakFreezeCount: 2},
			wantStreak:     1,
			wantTransition: TransitionReset,
			wantFreezes:    2,
		},
		{
			name:           "no freezes left resets",
			rec:            models.StreakRecord{CurrentStreak: 4, LastActivityDate: datePtr("2026-03-08"), StreakFreezeCount: 0},
			wantStreak:     1,
			wantTransition: TransitionReset,
			wantFreezes:    0,
		},
		{
			name: "freeze on cooldown resets",
			rec: models.StreakRecord{CurrentStreak: 4, LastActivityDate: datePtr("2026-03-08"), StreakFreezeCount: 1,
				LastFreezeUsed: datePtr("2026-03-04")},
			wantStreak:     1,
			wantTransition: TransitionReset,
			wantFreezes:    1,
		},
		{
			name: "freeze off cooldown after seven days",
			rec: models.StreakRecord{CurrentStreak: 4, LastActivityDate: datePtr("2026-03-08"), StreakFreezeCount: 1,
				LastFreezeUsed: datePtr("2026-03-03")},
			wantStreak:     5,
			wantTransition: TransitionFrozen,
			wantFreezes:    0,
		},
		{
			name:           "restart after admin reset",
			rec:            models.StreakRecord{CurrentStreak: 0, LongestStreak: 9, StreakFreezeCount: 2},
			wantStreak:     1,
			wantTransition: TransitionStarted,
			wantFreezes:    2,
		},
	}

	for _, tt := range tests {
		got := AdvanceStreak(tt.rec, today)
		if got.Record.CurrentStreak != tt.wantStreak {
			t.Errorf("%s: CurrentStreak = %d, want %d", tt.name, got.Record.CurrentStreak, tt.wantStreak)
		}
		if got.Transition != tt.wantTransition {
			t.Errorf("%s: Transition = %s, want %s", tt.name, got.Transition, tt.wantTransition)
		}
		if got.Record.StreakFreezeCount != tt.wantFreezes {
			t.Errorf("%s: StreakFreezeCount = %d, want %d", tt.name, got.Record.StreakFreezeCount, tt.wantFreezes)
		}
		if got.Record.LastActivityDate == nil || !got.Record.LastActivityDate.Equal(today) {
			t.Errorf("%s: LastActivityDate = %v, want %v", tt.name, got.Record.LastActivityDate, today)
		}
		if got.Record.TotalWorkoutsCompleted != tt.rec.TotalWorkoutsCompleted+1 {
			t.Errorf("%s: TotalWorkoutsCompleted = %d", tt.name, got.Record.TotalWorkoutsCompleted)
		}
		if got.Record.LongestStreak < got.Record.CurrentStreak {
			t.Errorf("%s: LongestStreak %d below CurrentStreak %d", tt.name, got.Record.LongestStreak, got.Record.CurrentStreak)
		}
		if tt.wantTransition == TransitionFrozen &&
			(got.Record.LastFreezeUsed == nil || !got.Record.LastFreezeUsed.Equal(today)) {
			t.Errorf("%s: LastFreezeUsed = %v, want %v", tt.name, got.Record.LastFreezeUsed, today)
		}
	}
}

func TestAdvanceStreakSameDayIsNoop(t *testing.T) {
	today := day("2026-03-10")
	rec := models.StreakRecord{
		UserID: 1, CurrentStreak: 6, LongestStreak: 6, LastActivityDate: datePtr("2026-03-10"),
		StreakFreezeCount: 2, TotalWorkoutsCompleted: 12, StreakMilestoneReached: 0,
	}

	got := AdvanceStreak(rec, today)
	if got.Transition != TransitionSameDay {
		t.Errorf("Transition = %s, want same_day", got.Transition)
	}
	if !reflect.DeepEqual(got.Record, rec) {
		t.Errorf("Record changed on same-day session:\n got %+v\nwant %+v", got.Record, rec)
	}

	again := AdvanceStreak(got.Record, today.Add(23*time.Hour))
	if again.Record.CurrentStreak != 6 || again.Record.TotalWorkoutsCompleted != 12 {
		t.Errorf("third session changed record: %+v", again.Record)
	}
}

func TestAdvanceStreakFutureDateIsNoop(t *testing.T) {
	rec := models.StreakRecord{CurrentStreak: 3, LastActivityDate: datePtr("2026-03-12")}
	got := AdvanceStreak(rec, day("2026-03-10"))
	if got.Transition != TransitionSameDay || got.Record.CurrentStreak != 3 {
		t.Errorf("AdvanceStreak(future last date) = %+v", got)
	}
}

func TestAdvanceStreakMilestonesAreMonotonic(t *testing.T) {
	rec := models.StreakRecord{CurrentStreak: 29, LongestStreak: 29, LastActivityDate: datePtr("2026-03-09"), StreakFreezeCount: 2}

	got := AdvanceStreak(rec, day("2026-03-10"))
	if want := []int{7, 14, 30}; !reflect.DeepEqual(got.MilestonesCrossed, want) {
		t.Errorf("MilestonesCrossed = %v, want %v", got.MilestonesCrossed, want)
	}
	if got.Record.StreakMilestoneReached != 30 {
		t.Errorf("StreakMilestoneReached = %d, want 30", got.Record.StreakMilestoneReached)
	}

	// Lose the streak, then rebuild to 7: nothing is crossed again.
	broken := AdvanceStreak(got.Record, day("2026-03-20"))
	if broken.Transition != TransitionReset {
		t.Fatalf("Transition = %s, want reset", broken.Transition)
	}
	rec = broken.Record
	d := day("2026-03-20")
	for i := 0; i < 6; i++ {
		d = d.AddDate(0, 0, 1)
		u := AdvanceStreak(rec, d)
		if len(u.MilestonesCrossed) != 0 {
			t.Errorf("day %d crossed %v after reset", u.Record.CurrentStreak, u.MilestonesCrossed)
		}
		rec = u.Record
	}
	if rec.CurrentStreak != 7 || rec.StreakMilestoneReached != 30 || rec.LongestStreak != 30 {
		t.Errorf("rebuilt record = %+v", rec)
	}
}

func TestResetStreakPreservesCounters(t *testing.T) {
	rec := models.StreakRecord{
		UserID: 3, CurrentStreak: 12, LongestStreak: 20, LastActivityDate: datePtr("2026-03-10"),
		StreakFreezeCount: 1, LastFreezeUsed: datePtr("2026-03-01"), TotalWorkoutsCompleted: 40, StreakMilestoneReached: 7,
	}

	got := ResetStreak(rec)
	if got.CurrentStreak != 0 || got.LastActivityDate != nil {
		t.Errorf("ResetStreak() current=%d last=%v, want 0 and nil", got.CurrentStreak, got.LastActivityDate)
	}
	if got.LongestStreak != 20 || got.TotalWorkoutsCompleted != 40 || got.StreakFreezeCount != 1 ||
		got.StreakMilestoneReached != 7 || got.LastFreezeUsed == nil {
		t.Errorf("ResetStreak() lost counters: %+v", got)
	}
}

func TestEffectiveStreak(t *testing.T) {
	today := day("2026-03-10")
	tests := []struct {
		name string
		rec  models.StreakRecord
		want int
	}{
		{"never active", NewStreakRecord(1), 0},
		{"active today", models.StreakRecord{CurrentStreak: 5, LastActivityDate: datePtr("2026-03-10")}, 5},
		{"active yesterday", models.StreakRecord{CurrentStreak: 5, LastActivityDate: datePtr("2026-03-09")}, 5},
		{"freeze can save", models.StreakRecord{CurrentStreak: 5, LastActivityDate: datePtr("2026-03-07"), StreakFreezeCount: 1}, 5},
		{"no freeze left", models.StreakRecord{CurrentStreak: 5, LastActivityDate: datePtr("2026-03-07")}, 0},
		{"gap too long", models.StreakRecord{CurrentStreak: 5, LastActivityDate: datePtr("2026-03-01"), StreakFreezeCount: 2}, 0},
	}

	for _, tt := range tests {
		if got := EffectiveStreak(tt.rec, today); got != tt.want {
			t.Errorf("%s: EffectiveStreak() = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestCalendarDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 02:30 UTC on the 11th is still the evening of the 10th in New York.
	instant := time.Date(2026, 3, 11, 2, 30, 0, 0, time.UTC)

	if got := CalendarDate(instant, ny); !got.Equal(day("2026-03-10")) {
		t.Errorf("CalendarDate(New York) = %v, want 2026-03-10", got)
	}
	if got := CalendarDate(instant, time.UTC); !got.Equal(day("2026-03-11")) {
		t.Errorf("CalendarDate(UTC) = %v, want 2026-03-11", got)
	}
	if got := CalendarDate(instant, nil); !got.Equal(day("2026-03-11")) {
		t.Errorf("CalendarDate(nil) = %v, want 2026-03-11", got)
	}
}
