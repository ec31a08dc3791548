package gamification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/laxlab/drill-rewards/internal/models"
)

type milestoneKey struct {
	userID    int64
	milestone int
}

type resultKey struct {
	userID int64
	key    string
}

// MemoryStore is an in-process Store. Transactions run one at a time and
// stage their writes until commit, so a failed transaction leaves no trace.
type MemoryStore struct {
	mu sync.Mutex
	// txMu serializes InTx callers; mu guards the maps for readers.
	txMu sync.Mutex

	drills      map[string]models.DrillDescriptor
	streaks     map[int64]models.StreakRecord
	wallets     map[int64]models.PointAward
	txns        []models.PointTransaction
	milestones  map[milestoneKey]models.MilestoneAward
	completions map[string]models.WorkoutCompletion
	results     map[resultKey][]byte
	nextTxnID   int64
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drills:      make(map[string]models.DrillDescriptor),
		streaks:     make(map[int64]models.StreakRecord),
		wallets:     make(map[int64]models.PointAward),
		milestones:  make(map[milestoneKey]models.MilestoneAward),
		completions: make(map[string]models.WorkoutCompletion),
		results:     make(map[resultKey][]byte),
		now:         time.Now,
	}
}

// PutStreak overwrites a user's streak record. Intended for seeding.
func (s *MemoryStore) PutStreak(rec models.StreakRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[rec.UserID] = rec
}

// Completions returns the stored completion records for a user.
func (s *MemoryStore) Completions(userID int64) []models.WorkoutCompletion {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WorkoutCompletion
	for _, wc := range s.completions {
		if wc.UserID == userID {
			out = append(out, wc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:       s,
		streaks:     make(map[int64]models.StreakRecord),
		wallets:     make(map[int64]models.PointAward),
		milestones:  make(map[milestoneKey]models.MilestoneAward),
		completions: make(map[string]models.WorkoutCompletion),
		results:     make(map[resultKey][]byte),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range tx.streaks {
		s.streaks[id] = rec
	}
	for id, bal := range tx.wallets {
		s.wallets[id] = bal
	}
	for _, t := range tx.txns {
		s.nextTxnID++
		t.ID = s.nextTxnID
		s.txns = append(s.txns, t)
	}
	for k, m := range tx.milestones {
		s.milestones[k] = m
	}
	for id, wc := range tx.completions {
		s.completions[id] = wc
	}
	for k, raw := range tx.results {
		s.results[k] = raw
	}
}

// ── Reads ───────────────────────────────────────────────

func (s *MemoryStore) GetStreak(_ context.Context, userID int64) (*models.StreakRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.streaks[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Balances(_ context.Context, userID int64) (models.PointAward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[userID], nil
}

func (s *MemoryStore) LedgerSums(_ context.Context, userID int64) (models.PointAward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out models.PointAward
	for _, t := range s.txns {
		if t.UserID == userID {
			out.Add(t.Currency, t.Amount)
		}
	}
	return out, nil
}

func (s *MemoryStore) Transactions(_ context.Context, userID int64, limit int) ([]models.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.PointTransaction{}
	for i := len(s.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if s.txns[i].UserID == userID {
			out = append(out, s.txns[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) FindAwardResult(_ context.Context, userID int64, key string) (*models.WorkoutAwardResponse, error) {
	s.mu.Lock()
	raw, ok := s.results[resultKey{userID, key}]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var resp models.WorkoutAwardResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode award result: %w", err)
	}
	return &resp, nil
}

func (s *MemoryStore) LookupDrills(_ context.Context, ids []string) (map[string]models.DrillDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.DrillDescriptor, len(ids))
	for _, id := range ids {
		if d, ok := s.drills[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertDrill(_ context.Context, d models.DrillDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drills[d.DrillID] = d
	return nil
}

// ── Transactional Writes ────────────────────────────────

type memTx struct {
	store *MemoryStore

	streaks     map[int64]models.StreakRecord
	wallets     map[int64]models.PointAward
	txns        []models.PointTransaction
	milestones  map[milestoneKey]models.MilestoneAward
	completions map[string]models.WorkoutCompletion
	results     map[resultKey][]byte
}

func (t *memTx) streak(userID int64) (models.StreakRecord, bool) {
	if rec, ok := t.streaks[userID]; ok {
		return rec, true
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	rec, ok := t.store.streaks[userID]
	return rec, ok
}

func (t *memTx) GetOrCreateStreak(_ context.Context, userID int64) (models.StreakRecord, error) {
	if rec, ok := t.streak(userID); ok {
		return rec, nil
	}
	now := t.store.now()
	rec := NewStreakRecord(userID)
	rec.CreatedAt, rec.UpdatedAt = now, now
	t.streaks[userID] = rec
	return rec, nil
}

func (t *memTx) CompareAndSwapStreak(_ context.Context, next models.StreakRecord, expectedVersion int64) error {
	cur, ok := t.streak(next.UserID)
	if !ok || cur.Version != expectedVersion {
		return ErrConcurrencyConflict
	}
	next.Version = expectedVersion + 1
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = t.store.now()
	t.streaks[next.UserID] = next
	return nil
}

func (t *memTx) InsertCompletion(_ context.Context, wc models.WorkoutCompletion) error {
	t.store.mu.Lock()
	_, exists := t.store.completions[wc.ID]
	t.store.mu.Unlock()
	if _, staged := t.completions[wc.ID]; exists || staged {
		return fmt.Errorf("insert completion: duplicate id %s", wc.ID)
	}
	t.completions[wc.ID] = wc
	return nil
}

func (t *memTx) ApplyLedgerBatch(_ context.Context, txns []models.PointTransaction) error {
	for _, p := range txns {
		bal, ok := t.wallets[p.UserID]
		if !ok {
			t.store.mu.Lock()
			bal = t.store.wallets[p.UserID]
			t.store.mu.Unlock()
		}
		if bal.Get(p.Currency)+p.Amount < 0 {
			return fmt.Errorf("increment wallet: %s balance would go negative", p.Currency)
		}
		bal.Add(p.Currency, p.Amount)
		t.wallets[p.UserID] = bal
		t.txns = append(t.txns, p)
	}
	return nil
}

func (t *memTx) ClaimMilestone(_ context.Context, m models.MilestoneAward) error {
	k := milestoneKey{m.UserID, m.Milestone}
	t.store.mu.Lock()
	_, exists := t.store.milestones[k]
	t.store.mu.Unlock()
	if _, staged := t.milestones[k]; exists || staged {
		return ErrDuplicateMilestoneAward
	}
	t.milestones[k] = m
	return nil
}

func (t *memTx) SaveAwardResult(_ context.Context, userID int64, key string, resp models.WorkoutAwardResponse) error {
	k := resultKey{userID, key}
	t.store.mu.Lock()
	_, exists := t.store.results[k]
	t.store.mu.Unlock()
	if _, staged := t.results[k]; exists || staged {
		return errDuplicateResult
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode award result: %w", err)
	}
	t.results[k] = raw
	return nil
}
