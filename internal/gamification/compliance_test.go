package gamification

import (
	"errors"
	"testing"

	"github.com/laxlab/drill-rewards/internal/models"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		required      int
		actual        int
		enforced      bool
		wantCompliant bool
		wantRatio     float64
	}{
		{"met exactly", 60, 60, true, true, 1.0},
		{"exceeded", 60, 90, true, true, 1.0},
		{"half done", 60, 30, true, false, 0.5},
		{"not started", 60, 0, true, false, 0},
		{"zero required", 0, 0, true, true, 1.0},
		{"not enforced", 60, 10, false, true, 1.0},
	}

	for _, tt := range tests {
		d := models.DrillDescriptor{DrillID: "d1", RequiredDurationSeconds: tt.required}
		c := models.DrillCompletion{DrillID: "d1", ActualDurationSeconds: tt.actual}
		got, err := Validate(d, c, tt.enforced)
		if err != nil {
			t.Fatalf("%s: Validate() error = %v", tt.name, err)
		}
		if got.Compliant != tt.wantCompliant || got.Ratio != tt.wantRatio {
			t.Errorf("%s: Validate() = %+v, want compliant=%v ratio=%v", tt.name, got, tt.wantCompliant, tt.wantRatio)
		}
	}
}

func TestValidateRejectsNegativeDurations(t *testing.T) {
	tests := []struct {
		required, actual int
		enforced         bool
	}{
		{-1, 10, true},
		{10, -1, true},
		{10, -1, false},
	}

	for _, tt := range tests {
		d := models.DrillDescriptor{DrillID: "d1", RequiredDurationSeconds: tt.required}
		c := models.DrillCompletion{DrillID: "d1", ActualDurationSeconds: tt.actual}
		if _, err := Validate(d, c, tt.enforced); !errors.Is(err, ErrInvalidTimingData) {
			t.Errorf("Validate(required=%d, actual=%d) error = %v, want ErrInvalidTimingData", tt.required, tt.actual, err)
		}
	}
}

func TestValidateSession(t *testing.T) {
	drills := []models.DrillDescriptor{
		{DrillID: "dodge", Name: "Split Dodge", Category: models.CategoryAttack, DifficultyScore: 3, RequiredDurationSeconds: 120},
		{DrillID: "wall", Name: "Wall Ball 100", Category: models.CategoryWallBall, DifficultyScore: 2, RequiredDurationSeconds: 300},
	}
	completions := []models.DrillCompletion{
		{DrillID: "dodge", ActualDurationSeconds: 150},
		{DrillID: "wall", ActualDurationSeconds: 150},
	}

	s, err := ValidateSession(drills, completions, true)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	if s.TotalSeconds != 300 {
		t.Errorf("TotalSeconds = %d, want 300", s.TotalSeconds)
	}
	flags := s.Flags()
	if !flags["dodge"] || flags["wall"] {
		t.Errorf("Flags() = %v", flags)
	}
	doc := s.Document["wall"]
	if doc.DrillName != "Wall Ball 100" || doc.RequiredSeconds != 300 || doc.ActualSeconds != 150 || doc.Ratio != 0.5 {
		t.Errorf("Document[wall] = %+v", doc)
	}
}

func TestValidateSessionErrors(t *testing.T) {
	drills := []models.DrillDescriptor{{DrillID: "a", Category: models.CategoryAttack, DifficultyScore: 1}}

	_, err := ValidateSession(drills, []models.DrillCompletion{{DrillID: "ghost"}}, true)
	if !errors.Is(err, ErrUnknownDrill) {
		t.Errorf("unknown drill error = %v, want ErrUnknownDrill", err)
	}

	_, err = ValidateSession(drills, []models.DrillCompletion{{DrillID: "a"}, {DrillID: "a"}}, true)
	if !errors.Is(err, ErrInvalidCompletion) {
		t.Errorf("duplicate drill error = %v, want ErrInvalidCompletion", err)
	}

	_, err = ValidateSession(drills, []models.DrillCompletion{{DrillID: "a", ActualDurationSeconds: -5}}, true)
	if !errors.Is(err, ErrInvalidTimingData) {
		t.Errorf("negative duration error = %v, want ErrInvalidTimingData", err)
	}
}
