package gamification

import (
	"context"
	"fmt"

	"github.com/laxlab/drill-rewards/internal/models"
)

const maxDifficulty = 5

// ValidateDescriptor checks a descriptor against the closed category set and
// the difficulty range.
func ValidateDescriptor(d models.DrillDescriptor) error {
	if d.DrillID == "" {
		return fmt.Errorf("%w: drill_id is required", ErrInvalidDrill)
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: drill %s has unknown category %q", ErrInvalidDrill, d.DrillID, d.Category)
	}
	if d.DifficultyScore < 1 || d.DifficultyScore > maxDifficulty {
		return fmt.Errorf("%w: drill %s difficulty %d outside 1-%d", ErrInvalidDrill, d.DrillID, d.DifficultyScore, maxDifficulty)
	}
	if d.RequiredDurationSeconds < 0 {
		return fmt.Errorf("%w: drill %s required duration %d", ErrInvalidTimingData, d.DrillID, d.RequiredDurationSeconds)
	}
	return nil
}

// ResolveDrills prices each submission against the catalog. Catalog entries
// win over inline descriptor fields; a drill unknown to both is rejected.
func ResolveDrills(ctx context.Context, store Store, subs []models.DrillSubmission) ([]models.DrillDescriptor, []models.DrillCompletion, error) {
	ids := make([]string, 0, len(subs))
	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		if sub.DrillID == "" {
			return nil, nil, fmt.Errorf("%w: drill_id is required", ErrInvalidCompletion)
		}
		if seen[sub.DrillID] {
			return nil, nil, fmt.Errorf("%w: drill %s submitted twice", ErrInvalidCompletion, sub.DrillID)
		}
		seen[sub.DrillID] = true
		ids = append(ids, sub.DrillID)
	}

	catalog, err := store.LookupDrills(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	descs := make([]models.DrillDescriptor, 0, len(subs))
	completions := make([]models.DrillCompletion, 0, len(subs))
	for _, sub := range subs {
		d, ok := catalog[sub.DrillID]
		if !ok {
			if sub.Category == "" || sub.DifficultyScore == nil {
				return nil, nil, fmt.Errorf("%w: %s", ErrUnknownDrill, sub.DrillID)
			}
			if sub.RequiredSeconds == nil {
				return nil, nil, fmt.Errorf("%w: drill %s is missing required_seconds", ErrInvalidTimingData, sub.DrillID)
			}
			d = models.DrillDescriptor{
				DrillID:                 sub.DrillID,
				Name:                    sub.Name,
				Category:                sub.Category,
				DifficultyScore:         *sub.DifficultyScore,
				RequiredDurationSeconds: *sub.RequiredSeconds,
			}
		}
		if err := ValidateDescriptor(d); err != nil {
			return nil, nil, err
		}

		actual, err := actualSeconds(sub)
		if err != nil {
			return nil, nil, err
		}

		descs = append(descs, d)
		completions = append(completions, models.DrillCompletion{
			DrillID:               sub.DrillID,
			ActualDurationSeconds: actual,
			StartedAt:             sub.StartedAt,
			CompletedAt:           sub.CompletedAt,
		})
	}
	return descs, completions, nil
}

// actualSeconds takes the reported duration, or derives it from the
// start and completion timestamps.
func actualSeconds(sub models.DrillSubmission) (int, error) {
	if sub.ActualSeconds != nil {
		return *sub.ActualSeconds, nil
	}
	if sub.StartedAt != nil && sub.CompletedAt != nil {
		if sub.CompletedAt.Before(*sub.StartedAt) {
			return 0, fmt.Errorf("%w: drill %s completed before it started", ErrInvalidTimingData, sub.DrillID)
		}
		return int(sub.CompletedAt.Sub(*sub.StartedAt).Seconds()), nil
	}
	return 0, fmt.Errorf("%w: drill %s is missing actual_seconds", ErrInvalidTimingData, sub.DrillID)
}
