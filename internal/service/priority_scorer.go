package service

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/scholarship-api/internal/dto"
	"github.com/noah-isme/scholarship-api/internal/models"
	appErrors "github.com/noah-isme/scholarship-api/pkg/errors"
)

// Scoring constants.
const (
	maxGPA            = 4.0
	gpaFloor          = 2.0
	incomeFullNeed    = 15000.0
	incomeNoNeed      = 50000.0
	financialFloor    = 20.0
	activityPoints    = 20.0
	academicWeight    = 0.4
	financialWeight   = 0.3
	activityWeight    = 0.3
	maxSubScore       = 100.0
	academicBaseScore = 50.0
)

// PriorityScorer computes the deterministic triage score of an applicant snapshot.
type PriorityScorer struct{}

// NewPriorityScorer constructs a scorer.
func NewPriorityScorer() *PriorityScorer {
	return &PriorityScorer{}
}

// Score returns the composite score in [0,100] rounded to two decimals.
func (p *PriorityScorer) Score(gpa float64, monthlyFamilyIncome decimal.Decimal, activityCount int) (float64, error) {
	breakdown, err := p.Breakdown(gpa, monthlyFamilyIncome, activityCount)
	if err != nil {
		return 0, err
	}
	return breakdown.Composite, nil
}

// ScoreSnapshot scores an applicant snapshot.
func (p *PriorityScorer) ScoreSnapshot(snapshot models.ApplicantSnapshot) (float64, error) {
	return p.Score(snapshot.GPA, snapshot.MonthlyFamilyIncome, snapshot.ActivityCount)
}

// Breakdown returns the weighted sub-scores along with the composite.
func (p *PriorityScorer) Breakdown(gpa float64, monthlyFamilyIncome decimal.Decimal, activityCount int) (*dto.ScoreBreakdown, error) {
	if math.IsNaN(gpa) || math.IsInf(gpa, 0) || gpa < 0 || gpa > maxGPA {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("gpa must be between 0 and %.1f", maxGPA))
	}
	if monthlyFamilyIncome.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "monthly family income must not be negative")
	}
	if activityCount < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "activity count must not be negative")
	}

	academic := academicScore(gpa)
	financial := financialScore(monthlyFamilyIncome.InexactFloat64())
	activity := clampScore(float64(activityCount) * activityPoints)
	composite := academicWeight*academic + financialWeight*financial + activityWeight*activity

	return &dto.ScoreBreakdown{
		Academic:  round2(academic),
		Financial: round2(financial),
		Activity:  round2(activity),
		Composite: round2(clampScore(composite)),
	}, nil
}

func academicScore(gpa float64) float64 {
	switch {
	case gpa >= maxGPA:
		return maxSubScore
	case gpa <= gpaFloor:
		return academicBaseScore
	default:
		return clampScore(academicBaseScore + (gpa-gpaFloor)/(maxGPA-gpaFloor)*academicBaseScore)
	}
}

func financialScore(income float64) float64 {
	switch {
	case income <= incomeFullNeed:
		return maxSubScore
	case income >= incomeNoNeed:
		return financialFloor
	default:
		return clampScore(maxSubScore - (income-incomeFullNeed)/(incomeNoNeed-incomeFullNeed)*(maxSubScore-financialFloor))
	}
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(maxSubScore, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
