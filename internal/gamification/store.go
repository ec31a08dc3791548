package gamification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/laxlab/drill-rewards/internal/models"
	"github.com/lib/pq"
)

// Store is the persistence boundary of the engine. Every write that belongs
// to one award goes through a single InTx call.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetStreak(ctx context.Context, userID int64) (*models.StreakRecord, error)
	Balances(ctx context.Context, userID int64) (models.PointAward, error)
	LedgerSums(ctx context.Context, userID int64) (models.PointAward, error)
	Transactions(ctx context.Context, userID int64, limit int) ([]models.PointTransaction, error)
	FindAwardResult(ctx context.Context, userID int64, key string) (*models.WorkoutAwardResponse, error)

	LookupDrills(ctx context.Context, ids []string) (map[string]models.DrillDescriptor, error)
	UpsertDrill(ctx context.Context, d models.DrillDescriptor) error
}

// Tx is the transactional view used by the award pipeline.
type Tx interface {
	GetOrCreateStreak(ctx context.Context, userID int64) (models.StreakRecord, error)
	// CompareAndSwapStreak writes next only if the stored version still equals
	// expectedVersion, and returns ErrConcurrencyConflict otherwise.
	CompareAndSwapStreak(ctx context.Context, next models.StreakRecord, expectedVersion int64) error
	InsertCompletion(ctx context.Context, wc models.WorkoutCompletion) error
	ApplyLedgerBatch(ctx context.Context, txns []models.PointTransaction) error
	// ClaimMilestone returns ErrDuplicateMilestoneAward when already claimed.
	ClaimMilestone(ctx context.Context, m models.MilestoneAward) error
	// SaveAwardResult returns errDuplicateResult when the key is already stored.
	SaveAwardResult(ctx context.Context, userID int64, key string, resp models.WorkoutAwardResponse) error
}

// PostgresStore implements Store on database/sql with lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const streakColumns = `user_id, current_streak, longest_streak, last_activity_date,
	streak_freeze_count, last_freeze_used, total_workouts_completed,
	streak_milestone_reached, version, created_at, updated_at`

func scanStreak(ctx context.Context, q querier, userID int64) (*models.StreakRecord, error) {
	var r models.StreakRecord
	err := q.QueryRowContext(ctx,
		`SELECT `+streakColumns+` FROM streak_records WHERE user_id = $1`,
		userID,
	).Scan(&r.UserID, &r.CurrentStreak, &r.LongestStreak, &r.LastActivityDate,
		&r.StreakFreezeCount, &r.LastFreezeUsed, &r.TotalWorkoutsCompleted,
		&r.StreakMilestoneReached, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.LastActivityDate = normalizeDate(r.LastActivityDate)
	r.LastFreezeUsed = normalizeDate(r.LastFreezeUsed)
	return &r, nil
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOnly(*t)
	return &d
}

// dateParam passes calendar dates as text so the session timezone cannot
// shift them.
func dateParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// ── Reads ───────────────────────────────────────────────

func (s *PostgresStore) GetStreak(ctx context.Context, userID int64) (*models.StreakRecord, error) {
	r, err := scanStreak(ctx, s.db, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Balances(ctx context.Context, userID int64) (models.PointAward, error) {
	return s.sumByCurrency(ctx,
		`SELECT currency, balance FROM point_wallets WHERE user_id = $1`, userID)
}

func (s *PostgresStore) LedgerSums(ctx context.Context, userID int64) (models.PointAward, error) {
	return s.sumByCurrency(ctx,
		`SELECT currency, COALESCE(SUM(amount), 0) FROM point_transactions
		 WHERE user_id = $1 GROUP BY currency`, userID)
}

func (s *PostgresStore) sumByCurrency(ctx context.Context, query string, userID int64) (models.PointAward, error) {
	var out models.PointAward
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return out, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var currency string
		var amount int64
		if err := rows.Scan(&currency, &amount); err != nil {
			return out, fmt.Errorf("scan balance: %w", err)
		}
		c, err := models.ParseCurrency(currency)
		if err != nil {
			return out, err
		}
		out.Set(c, amount)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Transactions(ctx context.Context, userID int64, limit int) ([]models.PointTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, user_id, currency, amount, source_type, description, created_at
		 FROM point_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.PointTransaction{}
	for rows.Next() {
		var t models.PointTransaction
		if err := rows.Scan(&t.ID, &t.BatchID, &t.UserID, &t.Currency, &t.Amount,
			&t.SourceType, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *PostgresStore) FindAwardResult(ctx context.Context, userID int64, key string) (*models.WorkoutAwardResponse, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM award_results WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find award result: %w", err)
	}

	var resp models.WorkoutAwardResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode award result: %w", err)
	}
	return &resp, nil
}

// ── Drill Catalog ───────────────────────────────────────

func (s *PostgresStore) LookupDrills(ctx context.Context, ids []string) (map[string]models.DrillDescriptor, error) {
	out := make(map[string]models.DrillDescriptor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT drill_id, name, category, difficulty_score, required_duration_seconds
		 FROM drills WHERE drill_id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("lookup drills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.DrillDescriptor
		if err := rows.Scan(&d.DrillID, &d.Name, &d.Category, &d.DifficultyScore, &d.RequiredDurationSeconds); err != nil {
			return nil, fmt.Errorf("scan drill: %w", err)
		}
		out[d.DrillID] = d
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertDrill(ctx context.Context, d models.DrillDescriptor) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drills (drill_id, name, category, difficulty_score, required_duration_seconds)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (drill_id) DO UPDATE SET
		    name = EXCLUDED.name,
		    category = EXCLUDED.category,
		    difficulty_score = EXCLUDED.difficulty_score,
		    required_duration_seconds = EXCLUDED.required_duration_seconds`,
		d.DrillID, d.Name, string(d.Category), d.DifficultyScore, d.RequiredDurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("upsert drill: %w", err)
	}
	return nil
}

// ── Transactional Writes ────────────────────────────────

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetOrCreateStreak(ctx context.Context, userID int64) (models.StreakRecord, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO streak_records (user_id, streak_freeze_count) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, DefaultFreezeCount,
	)
	if err != nil {
		return models.StreakRecord{}, fmt.Errorf("upsert streak: %w", err)
	}

	r, err := scanStreak(ctx, t.tx, userID)
	if err != nil {
		return models.StreakRecord{}, fmt.Errorf("get streak: %w", err)
	}
	return *r, nil
}

func (t *pgTx) CompareAndSwapStreak(ctx context.Context, next models.StreakRecord, expectedVersion int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE streak_records SET
		    current_streak = $3, longest_streak = $4, last_activity_date = $5,
		    streak_freeze_count = $6, last_freeze_used = $7,
		    total_workouts_completed = $8, streak_milestone_reached = $9,
		    version = version + 1, updated_at = NOW()
		 WHERE user_id = $1 AND version = $2`,
		next.UserID, expectedVersion,
		next.CurrentStreak, next.LongestStreak, dateParam(next.LastActivityDate),
		next.StreakFreezeCount, dateParam(next.LastFreezeUsed),
		next.TotalWorkoutsCompleted, next.StreakMilestoneReached,
	)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	if n == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

func (t *pgTx) InsertCompletion(ctx context.Context, wc models.WorkoutCompletion) error {
	doc, err := json.Marshal(wc.DrillCompletions)
	if err != nil {
		return fmt.Errorf("encode drill completions: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO workout_completions
		    (id, user_id, workout_id, idempotency_key, drill_completions, timer_enforced, total_time_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wc.ID, wc.UserID, wc.WorkoutID, wc.IdempotencyKey, string(doc), wc.TimerEnforced, wc.TotalTimeSeconds, wc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert completion: %w", err)
	}
	return nil
}

func (t *pgTx) ApplyLedgerBatch(ctx context.Context, txns []models.PointTransaction) error {
	for _, p := range txns {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO point_transactions (batch_id, user_id, currency, amount, source_type, description, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.BatchID, p.UserID, string(p.Currency), p.Amount, string(p.SourceType), p.Description, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO point_wallets (user_id, currency, balance) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, currency) DO UPDATE SET
			    balance = point_wallets.balance + EXCLUDED.balance,
			    updated_at = NOW()`,
			p.UserID, string(p.Currency), p.Amount,
		)
		if err != nil {
			return fmt.Errorf("increment wallet: %w", err)
		}
	}
	return nil
}

func (t *pgTx) ClaimMilestone(ctx context.Context, m models.MilestoneAward) error {
	var batchID any
	if m.BatchID != "" {
		batchID = m.BatchID
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO milestone_awards (user_id, milestone, batch_id) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, milestone) DO NOTHING`,
		m.UserID, m.Milestone, batchID,
	)
	if err != nil {
		return fmt.Errorf("claim milestone: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateMilestoneAward
	}
	return nil
}

func (t *pgTx) SaveAwardResult(ctx context.Context, userID int64, key string, resp models.WorkoutAwardResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode award result: %w", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO award_results (user_id, idempotency_key, response) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, idempotency_key) DO NOTHING`,
		userID, key, string(raw),
	)
	if err != nil {
		return fmt.Errorf("save award result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errDuplicateResult
	}
	return nil
}
