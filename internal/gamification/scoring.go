package gamification

import (
	"fmt"
	"math"

	"github.com/laxlab/drill-rewards/internal/models"
)

// Policy decides what a drill that missed its timer earns.
type Policy string

const (
	// PolicyStrict excludes non-compliant drills entirely.
	PolicyStrict Policy = "strict"
	// PolicyProrated weights each drill by its compliance ratio.
	PolicyProrated Policy = "prorated"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, "":
		return PolicyStrict, nil
	case PolicyProrated:
		return PolicyProrated, nil
	}
	return "", fmt.Errorf("unknown scoring policy %q", s)
}

const (
	firstTodayPercent     = 110
	categoryRunLength     = 5
	categoryRunMultiplier = 2
)

// streakLadder is in percent so strict totals stay in integer arithmetic.
var streakLadder = []struct {
	days    int
	percent int64
}{
	{100, 200},
	{30, 150},
	{14, 130},
	{7, 120},
	{3, 110},
}

func streakPercent(priorStreak int) int64 {
	for _, step := range streakLadder {
		if priorStreak >= step.days {
			return step.percent
		}
	}
	return 100
}

// StreakMultiplier returns the bonus multiplier for the streak carried into a session.
func StreakMultiplier(priorStreak int) float64 {
	return float64(streakPercent(priorStreak)) / 100
}

// ScoreBreakdown is the full result of pricing one session.
type ScoreBreakdown struct {
	Award               models.PointAward
	CountedDrills       int
	AvgDifficulty       float64
	BasePoints          float64
	StreakMultiplier    float64
	FirstTodayApplied   bool
	TotalPoints         int64
	DoubledCategories   []models.Category
	Excluded            []string
	NonCompliantSession bool
}

// CalculateAward prices a session. Drills are in submission order; compliance
// is keyed by drill id and a missing entry counts as compliant.
func CalculateAward(drills []models.DrillDescriptor, compliance map[string]Compliance, priorStreak int, isFirstToday bool, policy Policy) ScoreBreakdown {
	b := ScoreBreakdown{StreakMultiplier: StreakMultiplier(priorStreak)}
	if len(drills) == 0 {
		return b
	}

	type counted struct {
		drill  models.DrillDescriptor
		weight float64
	}
	var kept []counted
	var weightSum float64
	var difficultySum int64
	exact := true

	for _, d := range drills {
		w := 1.0
		if c, ok := compliance[d.DrillID]; ok && !c.Compliant {
			if policy != PolicyProrated {
				b.Excluded = append(b.Excluded, d.DrillID)
				continue
			}
			w = c.Ratio
		}
		if w <= 0 {
			b.Excluded = append(b.Excluded, d.DrillID)
			continue
		}
		if w != 1.0 {
			exact = false
		}
		kept = append(kept, counted{drill: d, weight: w})
		weightSum += w
		difficultySum += int64(d.DifficultyScore)
		b.BasePoints += float64(d.DifficultyScore) * w
	}

	if len(kept) == 0 {
		b.NonCompliantSession = true
		return b
	}

	b.CountedDrills = len(kept)
	b.AvgDifficulty = b.BasePoints / weightSum

	pct := streakPercent(priorStreak) * 100
	if isFirstToday {
		pct = streakPercent(priorStreak) * firstTodayPercent
		b.FirstTodayApplied = true
	}

	if exact {
		b.TotalPoints = roundHalfEvenDiv(difficultySum*pct, 10000)
	} else {
		b.TotalPoints = int64(math.RoundToEven(b.BasePoints * float64(pct) / 10000))
	}
	if b.TotalPoints == 0 {
		return b
	}

	b.Award.Set(models.LaxCredit, b.TotalPoints)

	// Category shares, in catalog order so remainder trimming is deterministic.
	weights := make(map[models.Category]float64)
	counts := make(map[models.Category]int64)
	for _, k := range kept {
		weights[k.drill.Category] += k.weight
		counts[k.drill.Category]++
	}

	shares := make(map[models.Category]int64)
	var shareSum int64
	for _, cat := range models.Categories {
		if counts[cat] == 0 {
			continue
		}
		var share int64
		if exact {
			share = roundHalfEvenDiv(b.TotalPoints*counts[cat], int64(len(kept)))
		} else {
			share = int64(math.RoundToEven(float64(b.TotalPoints) * weights[cat] / weightSum))
		}
		shares[cat] = share
		shareSum += share
	}

	for shareSum > b.TotalPoints {
		var largest models.Category
		for _, cat := range models.Categories {
			if shares[cat] > shares[largest] {
				largest = cat
			}
		}
		shares[largest]--
		shareSum--
	}

	order := make([]models.Category, len(kept))
	for i, k := range kept {
		order[i] = k.drill.Category
	}
	doubled := categoryRuns(order)
	for _, cat := range models.Categories {
		share := shares[cat]
		if share == 0 {
			continue
		}
		if doubled[cat] {
			share *= categoryRunMultiplier
			b.DoubledCategories = append(b.DoubledCategories, cat)
		}
		if cur, ok := cat.Currency(); ok {
			b.Award.Add(cur, share)
		}
	}

	return b
}

// categoryRuns reports every category with at least categoryRunLength
// consecutive entries.
func categoryRuns(order []models.Category) map[models.Category]bool {
	out := make(map[models.Category]bool)
	var prev models.Category
	run := 0
	for _, c := range order {
		if c == prev {
			run++
		} else {
			prev, run = c, 1
		}
		if run >= categoryRunLength {
			out[c] = true
		}
	}
	return out
}

// roundHalfEvenDiv returns n/d rounded half to even for n >= 0, d > 0.
func roundHalfEvenDiv(n, d int64) int64 {
	q, r := n/d, n%d
	switch {
	case 2*r > d:
		return q + 1
	case 2*r == d:
		return q + q%2
	}
	return q
}
