package gamification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/laxlab/drill-rewards/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MaxDrillsPerSession bounds one completion event.
const MaxDrillsPerSession = 100

const (
	maxIdempotencyKeyLen = 128
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 200
)

type Options struct {
	Policy      Policy
	Location    *time.Location
	MaxAttempts int
	Cache       ResultCache
	Logger      *zap.Logger
	Now         func() time.Time
}

type Service struct {
	store       Store
	cache       ResultCache
	log         *zap.Logger
	tracer      trace.Tracer
	policy      Policy
	loc         *time.Location
	maxAttempts int
	now         func() time.Time
	inflight    singleflight.Group
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:       store,
		cache:       opts.Cache,
		log:         opts.Logger,
		tracer:      otel.Tracer("github.com/laxlab/drill-rewards/internal/gamification"),
		policy:      opts.Policy,
		loc:         opts.Location,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("gamification")
	if s.cache == nil {
		s.cache = NewMemoryResultCache(24 * time.Hour)
	}
	if s.policy == "" {
		s.policy = PolicyStrict
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 3
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ── Workout Completion ──────────────────────────────────

// awardOutcome carries what happened inside the committed transaction.
type awardOutcome struct {
	resp      *models.WorkoutAwardResponse
	score     ScoreBreakdown
	update    StreakUpdate
	paidBonus []int
}

// CompleteWorkout validates, prices and records one completion event. The
// same idempotency key always yields the first stored result.
func (s *Service) CompleteWorkout(ctx context.Context, userID int64, req models.CompleteWorkoutRequest) (*models.WorkoutAwardResponse, error) {
	start := time.Now()
	defer func() { AwardDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := s.tracer.Start(ctx, "gamification.CompleteWorkout", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("workout.drills", len(req.Drills)),
	))
	defer span.End()

	resp, err := s.completeWorkout(ctx, userID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		CompletionCounter.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	span.SetAttributes(attribute.Bool("award.replayed", resp.Replayed))
	return resp, nil
}

func (s *Service) completeWorkout(ctx context.Context, userID int64, req models.CompleteWorkoutRequest) (*models.WorkoutAwardResponse, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidCompletion)
	}
	if len(req.Drills) > MaxDrillsPerSession {
		return nil, fmt.Errorf("%w: %d drills exceeds the limit of %d", ErrInvalidCompletion, len(req.Drills), MaxDrillsPerSession)
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, fmt.Errorf("%w: idempotency key longer than %d", ErrInvalidCompletion, maxIdempotencyKeyLen)
	}

	if cached, ok := s.cache.Get(ctx, userID, key); ok {
		CompletionCounter.WithLabelValues("replayed").Inc()
		return replayed(cached), nil
	}

	// Collapsed callers share this work, so one caller going away must not
	// cancel it for the rest.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(strconv.FormatInt(userID, 10)+":"+key, func() (any, error) {
		return s.completeOnce(shared, userID, key, req)
	})
	if err != nil {
		return nil, err
	}
	resp := *v.(*models.WorkoutAwardResponse)
	return &resp, nil
}

func (s *Service) completeOnce(ctx context.Context, userID int64, key string, req models.CompleteWorkoutRequest) (*models.WorkoutAwardResponse, error) {
	if stored, err := s.store.FindAwardResult(ctx, userID, key); err != nil {
		return nil, err
	} else if stored != nil {
		s.cache.Set(ctx, userID, key, stored)
		CompletionCounter.WithLabelValues("replayed").Inc()
		return replayed(stored), nil
	}

	descs, completions, err := ResolveDrills(ctx, s.store, req.Drills)
	if err != nil {
		return nil, err
	}
	session, err := ValidateSession(descs, completions, req.TimerEnforced)
	if err != nil {
		return nil, err
	}

	var out *awardOutcome
	for attempt := 1; ; attempt++ {
		err = s.store.InTx(ctx, func(tx Tx) error {
			var txErr error
			out, txErr = s.awardInTx(ctx, tx, userID, key, req, session)
			return txErr
		})
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, errDuplicateResult):
			stored, ferr := s.store.FindAwardResult(ctx, userID, key)
			if ferr != nil {
				return nil, ferr
			}
			if stored == nil {
				return nil, fmt.Errorf("award result %s not readable after conflict", key)
			}
			s.cache.Set(ctx, userID, key, stored)
			CompletionCounter.WithLabelValues("replayed").Inc()
			return replayed(stored), nil
		case errors.Is(err, ErrConcurrencyConflict) && attempt < s.maxAttempts:
			ConcurrencyRetries.Inc()
			s.log.Debug("streak version conflict, retrying",
				zap.Int64("user_id", userID), zap.Int("attempt", attempt))
			continue
		case errors.Is(err, ErrConcurrencyConflict):
			s.log.Warn("award pending after retries",
				zap.Int64("user_id", userID), zap.String("idempotency_key", key), zap.Int("attempts", attempt))
			return nil, fmt.Errorf("award for user %d after %d attempts: %w", userID, attempt, err)
		default:
			return nil, err
		}
	}

	s.cache.Set(ctx, userID, key, out.resp)
	s.observe(userID, key, out)
	return out.resp, nil
}

func (s *Service) awardInTx(ctx context.Context, tx Tx, userID int64, key string, req models.CompleteWorkoutRequest, session SessionCompliance) (*awardOutcome, error) {
	now := s.now()
	today := CalendarDate(now, s.loc)

	rec, err := tx.GetOrCreateStreak(ctx, userID)
	if err != nil {
		return nil, err
	}

	prior := EffectiveStreak(rec, today)
	score := CalculateAward(session.Drills, session.ByDrill, prior, !ActiveOn(rec, today), s.policy)

	update := StreakUpdate{Record: rec, Transition: TransitionSameDay}
	if score.CountedDrills > 0 {
		update = AdvanceStreak(rec, today)
	}
	// Written even when unchanged so concurrent sessions serialize on the version.
	if err := tx.CompareAndSwapStreak(ctx, update.Record, rec.Version); err != nil {
		return nil, err
	}

	completion := models.WorkoutCompletion{
		ID:               uuid.NewString(),
		UserID:           userID,
		WorkoutID:        req.WorkoutID,
		IdempotencyKey:   key,
		DrillCompletions: session.Document,
		TimerEnforced:    session.TimerEnforced,
		TotalTimeSeconds: session.TotalSeconds,
		CreatedAt:        now,
	}
	if err := tx.InsertCompletion(ctx, completion); err != nil {
		return nil, err
	}

	cur := update.Record.CurrentStreak
	resp := &models.WorkoutAwardResponse{
		BaseAward:           score.Award,
		TotalPoints:         score.TotalPoints,
		StreakMultiplier:    score.StreakMultiplier,
		NewCurrentStreak:    cur,
		LongestStreak:       update.Record.LongestStreak,
		StreakTitle:         StreakTitle(cur),
		FreezeUsed:          update.Transition == TransitionFrozen,
		MilestoneCrossed:    []int{},
		Compliance:          session.Flags(),
		ExcludedDrills:      []string{},
		NonCompliantSession: score.NonCompliantSession,
		CompletionID:        completion.ID,
		BatchIDs:            []string{},
	}
	resp.MilestoneCrossed = append(resp.MilestoneCrossed, update.MilestonesCrossed...)
	resp.ExcludedDrills = append(resp.ExcludedDrills, score.Excluded...)

	batch, err := ApplyAward(ctx, tx, userID, score.Award, models.SourceDrillAward, drillAwardDescription(req, score), now)
	if err != nil {
		return nil, err
	}
	if batch != nil {
		resp.BatchIDs = append(resp.BatchIDs, batch.ID)
	}

	out := &awardOutcome{resp: resp, score: score, update: update}
	for _, m := range update.MilestonesCrossed {
		mb, err := AwardMilestone(ctx, tx, userID, m, now)
		if errors.Is(err, ErrDuplicateMilestoneAward) {
			s.log.Info("milestone already awarded", zap.Int64("user_id", userID), zap.Int("milestone", m))
			continue
		}
		if err != nil {
			return nil, err
		}
		if mb == nil {
			continue
		}
		paid := m
		resp.MilestoneAwarded = &paid
		resp.MilestoneAward = resp.MilestoneAward.Plus(mb.Award)
		resp.BatchIDs = append(resp.BatchIDs, mb.ID)
		out.paidBonus = append(out.paidBonus, m)
	}
	resp.Awards = resp.BaseAward.Plus(resp.MilestoneAward)

	if err := tx.SaveAwardResult(ctx, userID, key, *resp); err != nil {
		return nil, err
	}
	return out, nil
}

func drillAwardDescription(req models.CompleteWorkoutRequest, score ScoreBreakdown) string {
	if req.WorkoutID != nil && *req.WorkoutID != "" {
		return fmt.Sprintf("workout %s: %d drills", *req.WorkoutID, score.CountedDrills)
	}
	return fmt.Sprintf("drill session: %d drills", score.CountedDrills)
}

// observe records metrics and logs once the award is committed.
func (s *Service) observe(userID int64, key string, out *awardOutcome) {
	outcome := "awarded"
	if out.resp.NonCompliantSession {
		outcome = "non_compliant"
	}
	CompletionCounter.WithLabelValues(outcome).Inc()
	StreakTransitions.WithLabelValues(string(out.update.Transition)).Inc()
	recordPoints(out.resp.BaseAward, models.SourceDrillAward)
	recordPoints(out.resp.MilestoneAward, models.SourceStreakMilestone)
	for _, m := range out.paidBonus {
		recordMilestone(m)
	}

	s.log.Info("workout award applied",
		zap.Int64("user_id", userID),
		zap.String("idempotency_key", key),
		zap.Int64("total_points", out.score.TotalPoints),
		zap.Int("counted_drills", out.score.CountedDrills),
		zap.Strings("excluded", out.score.Excluded),
		zap.String("transition", string(out.update.Transition)),
		zap.Int("streak", out.resp.NewCurrentStreak),
		zap.Ints("milestones_paid", out.paidBonus),
	)
}

func replayed(stored *models.WorkoutAwardResponse) *models.WorkoutAwardResponse {
	resp := *stored
	resp.Replayed = true
	return &resp
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTimingData):
		return "invalid_timing"
	case errors.Is(err, ErrUnknownDrill), errors.Is(err, ErrInvalidDrill):
		return "unknown_drill"
	case errors.Is(err, ErrInvalidCompletion):
		return "invalid"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	}
	return "error"
}

// ── Streak ──────────────────────────────────────────────

func (s *Service) GetStreak(ctx context.Context, userID int64) (*models.StreakResponse, error) {
	rec, err := s.store.GetStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		fresh := NewStreakRecord(userID)
		rec = &fresh
	}
	return streakResponse(*rec, CalendarDate(s.now(), s.loc)), nil
}

// ResetStreak is the administrative reset.
func (s *Service) ResetStreak(ctx context.Context, userID int64) (*models.StreakResponse, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidCompletion)
	}

	var next models.StreakRecord
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.store.InTx(ctx, func(tx Tx) error {
			rec, err := tx.GetOrCreateStreak(ctx, userID)
			if err != nil {
				return err
			}
			next = ResetStreak(rec)
			return tx.CompareAndSwapStreak(ctx, next, rec.Version)
		})
		if !errors.Is(err, ErrConcurrencyConflict) {
			break
		}
		ConcurrencyRetries.Inc()
	}
	if err != nil {
		return nil, fmt.Errorf("reset streak: %w", err)
	}

	StreakTransitions.WithLabelValues("admin_reset").Inc()
	s.log.Info("streak reset", zap.Int64("user_id", userID), zap.Int("longest_streak", next.LongestStreak))
	return streakResponse(next, CalendarDate(s.now(), s.loc)), nil
}

func streakResponse(rec models.StreakRecord, today time.Time) *models.StreakResponse {
	eff := EffectiveStreak(rec, today)
	resp := &models.StreakResponse{
		CurrentStreak:          eff,
		StoredStreak:           rec.CurrentStreak,
		LongestStreak:          rec.LongestStreak,
		LastActivityDate:       formatDate(rec.LastActivityDate),
		StreakFreezeCount:      rec.StreakFreezeCount,
		LastFreezeUsed:         formatDate(rec.LastFreezeUsed),
		FreezeAvailable:        FreezeReady(rec, today),
		TotalWorkoutsCompleted: rec.TotalWorkoutsCompleted,
		StreakMilestoneReached: rec.StreakMilestoneReached,
		Title:                  StreakTitle(eff),
		Multiplier:             StreakMultiplier(eff),
		ActiveToday:            ActiveOn(rec, today),
	}
	if next, ok := NextMilestone(rec.StreakMilestoneReached); ok {
		resp.NextMilestone = &next
	}
	return resp
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

// ── Wallet & Ledger ─────────────────────────────────────

func (s *Service) GetWallet(ctx context.Context, userID int64) (*models.WalletResponse, error) {
	balances, err := s.store.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.WalletResponse{UserID: userID, Balances: balances}, nil
}

func (s *Service) History(ctx context.Context, userID int64, limit int) (*models.TransactionsResponse, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	txns, err := s.store.Transactions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return &models.TransactionsResponse{Transactions: txns}, nil
}

// AdjustPoints credits a user through the ledger as an admin adjustment.
func (s *Service) AdjustPoints(ctx context.Context, userID int64, req models.AdjustPointsRequest) (*models.AdjustPointsResponse, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidAdjustment)
	}
	if !req.Currency.Valid() {
		return nil, fmt.Errorf("%w: unknown currency %q", ErrInvalidAdjustment, req.Currency)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAdjustment)
	}
	desc := req.Description
	if desc == "" {
		desc = "admin adjustment"
	}

	var award models.PointAward
	award.Set(req.Currency, req.Amount)

	var batch *LedgerBatch
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		batch, err = ApplyAward(ctx, tx, userID, award, models.SourceAdminAdjustment, desc, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	recordPoints(award, models.SourceAdminAdjustment)
	s.log.Info("points adjusted", zap.Int64("user_id", userID),
		zap.String("currency", string(req.Currency)), zap.Int64("amount", req.Amount))

	balances, err := s.store.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.AdjustPointsResponse{BatchID: batch.ID, Balances: balances}, nil
}

// Reconcile checks that every wallet balance equals its ledger sum.
func (s *Service) Reconcile(ctx context.Context, userID int64) (*models.ReconcileResponse, error) {
	balances, err := s.store.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	sums, err := s.store.LedgerSums(ctx, userID)
	if err != nil {
		return nil, err
	}

	drift := Reconcile(balances, sums)
	if len(drift) > 0 {
		s.log.Error("ledger drift detected", zap.Int64("user_id", userID), zap.Any("drift", drift))
	}
	return &models.ReconcileResponse{UserID: userID, Balanced: len(drift) == 0, Drift: drift}, nil
}

// ── Drill Catalog ───────────────────────────────────────

func (s *Service) PutDrill(ctx context.Context, d models.DrillDescriptor) error {
	if err := ValidateDescriptor(d); err != nil {
		return err
	}
	return s.store.UpsertDrill(ctx, d)
}
