package models

import "time"

// ── Drill Catalog ────────────────────────────────────────

type DrillDescriptor struct {
	DrillID                 string   `json:"drill_id"`
	Name                    string   `json:"name"`
	Category                Category `json:"category"`
	DifficultyScore         int      `json:"difficulty_score"`
	RequiredDurationSeconds int      `json:"required_duration_seconds"`
}

type DrillCompletion struct {
	DrillID               string     `json:"drill_id"`
	ActualDurationSeconds int        `json:"actual_duration_seconds"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// DrillCompletionDoc is the per-drill entry of the persisted completion
// document, keyed by drill id.
type DrillCompletionDoc struct {
	ActualSeconds   int     `json:"actual_seconds"`
	RequiredSeconds int     `json:"required_seconds"`
	DrillName       string  `json:"drill_name"`
	Compliant       bool    `json:"compliant"`
	Ratio           float64 `json:"ratio"`
}

// WorkoutCompletion is written once per session and is the audit trail for
// the award it produced.
type WorkoutCompletion struct {
	ID               string                        `json:"id"`
	UserID           int64                         `json:"user_id"`
	WorkoutID        *string                       `json:"workout_id,omitempty"`
	IdempotencyKey   string                        `json:"idempotency_key"`
	DrillCompletions map[string]DrillCompletionDoc `json:"drill_completions"`
	TimerEnforced    bool                          `json:"timer_enforced"`
	TotalTimeSeconds int                           `json:"total_time_seconds"`
	CreatedAt        time.Time                     `json:"created_at"`
}

// ── Streak ───────────────────────────────────────────────

// StreakRecord dates are calendar dates stored as UTC midnight.
type StreakRecord struct {
	UserID                 int64      `json:"user_id"`
	CurrentStreak          int        `json:"current_streak"`
	LongestStreak          int        `json:"longest_streak"`
	LastActivityDate       *time.Time `json:"last_activity_date"`
	StreakFreezeCount      int        `json:"streak_freeze_count"`
	LastFreezeUsed         *time.Time `json:"last_freeze_used"`
	TotalWorkoutsCompleted int        `json:"total_workouts_completed"`
	StreakMilestoneReached int        `json:"streak_milestone_reached"`
	Version                int64      `json:"version"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ── Ledger ───────────────────────────────────────────────

type SourceType string

const (
	SourceDrillAward      SourceType = "drill_award"
	SourceStreakMilestone SourceType = "streak_milestone"
	SourceAdminAdjustment SourceType = "admin_adjustment"
)

type PointTransaction struct {
	ID          int64      `json:"id"`
	BatchID     string     `json:"batch_id"`
	UserID      int64      `json:"user_id"`
	Currency    Currency   `json:"currency"`
	Amount      int64      `json:"amount"`
	SourceType  SourceType `json:"source_type"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}

type MilestoneAward struct {
	UserID    int64     `json:"user_id"`
	Milestone int       `json:"milestone"`
	BatchID   string    `json:"batch_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Request Types ─────────────────────────────────────────

// DrillSubmission carries one performed drill. Descriptor fields are only
// needed when the catalog does not know the drill.
type DrillSubmission struct {
	DrillID         string     `json:"drill_id"`
	Name            string     `json:"name,omitempty"`
	Category        Category   `json:"category,omitempty"`
	DifficultyScore *int       `json:"difficulty_score,omitempty"`
	ActualSeconds   *int       `json:"actual_seconds,omitempty"`
	RequiredSeconds *int       `json:"required_seconds,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type CompleteWorkoutRequest struct {
	Drills         []DrillSubmission `json:"drills"`
	TimerEnforced  bool              `json:"timer_enforced"`
	WorkoutID      *string           `json:"workout_id,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type AdjustPointsRequest struct {
	Currency    Currency `json:"currency"`
	Amount      int64    `json:"amount"`
	Description string   `json:"description"`
}

// ── Response Types ────────────────────────────────────────

type WorkoutAwardResponse struct {
	Awards              PointAward      `json:"awards"`
	BaseAward           PointAward      `json:"base_award"`
	MilestoneAward      PointAward      `json:"milestone_award"`
	TotalPoints         int64           `json:"total_points"`
	StreakMultiplier    float64         `json:"streak_multiplier"`
	NewCurrentStreak    int             `json:"new_current_streak"`
	LongestStreak       int             `json:"longest_streak"`
	StreakTitle         string          `json:"streak_title,omitempty"`
	FreezeUsed          bool            `json:"freeze_used"`
	MilestoneCrossed    []int           `json:"milestone_crossed"`
	MilestoneAwarded    *int            `json:"milestone_awarded"`
	Compliance          map[string]bool `json:"compliance"`
	ExcludedDrills      []string        `json:"excluded_drills"`
	NonCompliantSession bool            `json:"non_compliant_session"`
	CompletionID        string          `json:"completion_id"`
	BatchIDs            []string        `json:"batch_ids"`
	Replayed            bool            `json:"replayed"`
}

type StreakResponse struct {
	CurrentStreak          int     `json:"current_streak"`
	StoredStreak           int     `json:"stored_streak"`
	LongestStreak          int     `json:"longest_streak"`
	LastActivityDate       *string `json:"last_activity_date"`
	StreakFreezeCount      int     `json:"streak_freeze_count"`
	LastFreezeUsed         *string `json:"last_freeze_used"`
	FreezeAvailable        bool    `json:"freeze_available"`
	TotalWorkoutsCompleted int     `json:"total_workouts_completed"`
	StreakMilestoneReached int     `json:"streak_milestone_reached"`
	NextMilestone          *int    `json:"next_milestone"`
	Title                  string  `json:"title,omitempty"`
	Multiplier             float64 `json:"multiplier"`
	ActiveToday            bool    `json:"active_today"`
}

type WalletResponse struct {
	UserID   int64      `json:"user_id"`
	Balances PointAward `json:"balances"`
}

type TransactionsResponse struct {
	Transactions []PointTransaction `json:"transactions"`
}

type AdjustPointsResponse struct {
	BatchID  string     `json:"batch_id"`
	Balances PointAward `json:"balances"`
}

type CurrencyDrift struct {
	Currency  Currency `json:"currency"`
	Balance   int64    `json:"balance"`
	LedgerSum int64    `json:"ledger_sum"`
}

type ReconcileResponse struct {
	UserID   int64           `json:"user_id"`
	Balanced bool            `json:"balanced"`
	Drift    []CurrencyDrift `json:"drift"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
