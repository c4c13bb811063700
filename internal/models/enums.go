// internal/models/enums.go
package models

import "time"

const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"

	StatusPending   = "pending"
	StatusCompleted = "completed"

	SeverityNone     = "None"
	SeverityMild     = "Mild"
	SeverityModerate = "Moderate"
	SeveritySevere   = "Severe"

	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskHigh     = "High"
)

var (
	Priorities     = []string{PriorityHigh, PriorityMedium, PriorityLow}
	Statuses       = []string{StatusPending, StatusCompleted}
	Severities     = []string{SeverityNone, SeverityMild, SeverityModerate, SeveritySevere}
	RiskLevels     = []string{RiskLow, RiskModerate, RiskHigh}
	TreatmentTypes = []string{"Organic", "Chemical", "Cultural"}
	TipCategories  = []string{"Irrigation", "PestControl", "CropProtection", "Harvest", "Fertilizer", "General"}
)

// Rank helpers give unknown values the lowest rank (0).

func PriorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func SeverityRank(s string) int {
	switch s {
	case SeveritySevere:
		return 4
	case SeverityModerate:
		return 3
	case SeverityMild:
		return 2
	case SeverityNone:
		return 1
	default:
		return 0
	}
}

func RiskRank(r string) int {
	switch r {
	case RiskHigh:
		return 3
	case RiskModerate:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// MonthNames lists calendar months in order.
func MonthNames() []string {
	names := make([]string, 12)
	for i := range names {
		names[i] = time.Month(i + 1).String()
	}
	return names
}
