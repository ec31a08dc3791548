package gamification

import (
	"fmt"
	"math"

	"github.com/laxlab/drill-rewards/internal/models"
)

// Compliance is the timer verdict for one drill.
type Compliance struct {
	Compliant bool    `json:"compliant"`
	Ratio     float64 `json:"ratio"`
}

// Validate checks actual against required duration. When the timer is not
// enforced every drill is compliant with full ratio.
func Validate(d models.DrillDescriptor, c models.DrillCompletion, timerEnforced bool) (Compliance, error) {
	if d.RequiredDurationSeconds < 0 || c.ActualDurationSeconds < 0 {
		return Compliance{}, fmt.Errorf("%w: drill %s has negative duration (actual=%d, required=%d)",
			ErrInvalidTimingData, d.DrillID, c.ActualDurationSeconds, d.RequiredDurationSeconds)
	}
	if !timerEnforced || d.RequiredDurationSeconds == 0 {
		return Compliance{Compliant: true, Ratio: 1.0}, nil
	}

	ratio := math.Min(float64(c.ActualDurationSeconds)/float64(d.RequiredDurationSeconds), 1.0)
	return Compliance{
		Compliant: c.ActualDurationSeconds >= d.RequiredDurationSeconds,
		Ratio:     ratio,
	}, nil
}

// SessionCompliance is the validated view of a whole completion event.
type SessionCompliance struct {
	Drills        []models.DrillDescriptor
	ByDrill       map[string]Compliance
	Document      map[string]models.DrillCompletionDoc
	TotalSeconds  int
	TimerEnforced bool
}

// Flags returns the drill id to compliant map reported to callers.
func (s SessionCompliance) Flags() map[string]bool {
	out := make(map[string]bool, len(s.ByDrill))
	for id, c := range s.ByDrill {
		out[id] = c.Compliant
	}
	return out
}

// ValidateSession annotates every completion. Each completion must match a
// descriptor by drill id; any invalid drill rejects the whole session.
func ValidateSession(drills []models.DrillDescriptor, completions []models.DrillCompletion, timerEnforced bool) (SessionCompliance, error) {
	byID := make(map[string]models.DrillDescriptor, len(drills))
	for _, d := range drills {
		byID[d.DrillID] = d
	}

	s := SessionCompliance{
		Drills:        make([]models.DrillDescriptor, 0, len(completions)),
		ByDrill:       make(map[string]Compliance, len(completions)),
		Document:      make(map[string]models.DrillCompletionDoc, len(completions)),
		TimerEnforced: timerEnforced,
	}

	for _, c := range completions {
		d, ok := byID[c.DrillID]
		if !ok {
			return SessionCompliance{}, fmt.Errorf("%w: %s", ErrUnknownDrill, c.DrillID)
		}
		if _, dup := s.ByDrill[c.DrillID]; dup {
			return SessionCompliance{}, fmt.Errorf("%w: drill %s submitted twice", ErrInvalidCompletion, c.DrillID)
		}

		verdict, err := Validate(d, c, timerEnforced)
		if err != nil {
			return SessionCompliance{}, err
		}

		s.Drills = append(s.Drills, d)
		s.ByDrill[c.DrillID] = verdict
		s.Document[c.DrillID] = models.DrillCompletionDoc{
			ActualSeconds:   c.ActualDurationSeconds,
			RequiredSeconds: d.RequiredDurationSeconds,
			DrillName:       d.Name,
			Compliant:       verdict.Compliant,
			Ratio:           verdict.Ratio,
		}
		s.TotalSeconds += c.ActualDurationSeconds
	}

	return s, nil
}
