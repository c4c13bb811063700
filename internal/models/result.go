// internal/models/result.go
package models

import "time"

// Bilingual text fields are stored as an _en/_ur pair plus an alias that
// always equals the English value.

type AnnualPlan struct {
	PlanTitle         string      `json:"planTitle"`
	PlanTitleEN       string      `json:"planTitle_en"`
	PlanTitleUR       string      `json:"planTitle_ur"`
	Summary           string      `json:"summary"`
	SummaryEN         string      `json:"summary_en"`
	SummaryUR         string      `json:"summary_ur"`
	Months            []MonthPlan `json:"annualPlan"`
	Recommendations   []string    `json:"recommendations"`
	RecommendationsEN []string    `json:"recommendations_en"`
	RecommendationsUR []string    `json:"recommendations_ur"`
	Year              int         `json:"year,omitempty"`
	GeneratedAt       time.Time   `json:"generatedAt"`
}

type MonthPlan struct {
	Month      string     `json:"month"`
	Focus      string     `json:"focus"`
	FocusEN    string     `json:"focus_en"`
	FocusUR    string     `json:"focus_ur"`
	Activities []Activity `json:"activities"`
}

type Activity struct {
	Title         string `json:"title"`
	TitleEN       string `json:"title_en"`
	TitleUR       string `json:"title_ur"`
	Description   string `json:"description"`
	DescriptionEN string `json:"description_en"`
	DescriptionUR string `json:"description_ur"`
	Priority      string `json:"priority"`
	Status        string `json:"status"`
	Category      string `json:"category"`
}

type CropDiagnosis struct {
	CropType          string          `json:"cropType"`
	IsHealthy         bool            `json:"isHealthy"`
	DiseaseName       string          `json:"diseaseName"`
	DiseaseNameEN     string          `json:"diseaseName_en"`
	DiseaseNameUR     string          `json:"diseaseName_ur"`
	DiseaseConfidence float64         `json:"diseaseConfidence"`
	Severity          string          `json:"severity"`
	Symptoms          []string        `json:"symptoms"`
	SymptomsEN        []string        `json:"symptoms_en"`
	SymptomsUR        []string        `json:"symptoms_ur"`
	Causes            string          `json:"causes"`
	CausesEN          string          `json:"causes_en"`
	CausesUR          string          `json:"causes_ur"`
	Treatment         []TreatmentStep `json:"treatment"`
	Prevention        []string        `json:"prevention"`
	PreventionEN      []string        `json:"prevention_en"`
	PreventionUR      []string        `json:"prevention_ur"`
	Summary           string          `json:"summary"`
	SummaryEN         string          `json:"summary_en"`
	SummaryUR         string          `json:"summary_ur"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

type TreatmentStep struct {
	Step     int    `json:"step"`
	Action   string `json:"action"`
	ActionEN string `json:"action_en"`
	ActionUR string `json:"action_ur"`
	Type     string `json:"type"`
}

type WeatherAdvisory struct {
	OverallRisk string        `json:"overallRisk"`
	Summary     string        `json:"summary"`
	SummaryEN   string        `json:"summary_en"`
	SummaryUR   string        `json:"summary_ur"`
	Tips        []AdvisoryTip `json:"tips"`
	GeneratedAt time.Time     `json:"generatedAt"`
}

type AdvisoryTip struct {
	Title    string `json:"title"`
	TitleEN  string `json:"title_en"`
	TitleUR  string `json:"title_ur"`
	Advice   string `json:"advice"`
	AdviceEN string `json:"advice_en"`
	AdviceUR string `json:"advice_ur"`
	Priority string `json:"priority"`
	Category string `json:"category"`
}

// HighPriorityTips returns the tips ranked High, in order.
func (w *WeatherAdvisory) HighPriorityTips() []AdvisoryTip {
	var out []AdvisoryTip
	for _, tip := range w.Tips {
		if tip.Priority == PriorityHigh {
			out = append(out, tip)
		}
	}
	return out
}
