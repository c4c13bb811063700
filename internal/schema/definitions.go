package schema

import (
	"sort"

	"agri-pipeline/internal/models"
)

var activity = Object("One farm activity for the month",
	Prop("title", Text("Short activity title")),
	Prop("description", Text("What to do, how, and the expected benefit")),
	Prop("priority", Enum("Importance of the activity", models.Priorities...).WithDefault(models.PriorityMedium)),
	Prop("status", Enum("Always pending for a new plan", models.Statuses...).WithDefault(models.StatusPending)),
	Prop("category", String("Activity category such as Sowing, Irrigation, Fertilizer, PestControl or Harvest").WithDefault("General")),
)

var monthPlan = Object("Plan for one calendar month",
	Prop("month", Enum("Full English month name", models.MonthNames()...).WithDefault("")),
	Prop("focus", Text("Main focus of the month")),
	Prop("activities", Array("Activities for the month, most important first", activity)),
)

// AnnualPlan is the output shape of the annual farm plan.
var AnnualPlan = Object("Twelve month farm plan",
	Prop("planTitle", Text("Title of the plan mentioning the location and main crops").
		WithDefault("Annual Farm Plan").WithUrduDefault("سالانہ زرعی منصوبہ")),
	Prop("summary", Text("Two to three sentence overview of the year")),
	Prop("annualPlan", Array("Exactly twelve entries, January to December in order", monthPlan).WithLength(12, 12)),
	Prop("recommendations", TextList("General recommendations for the farm")),
)

var treatmentStep = Object("One treatment step",
	Prop("step", Integer("1-based order of the step").WithRange(1, 50)),
	Prop("action", Text("What the farmer should do")),
	Prop("type", Enum("Kind of treatment", models.TreatmentTypes...).WithDefault("Cultural")),
)

// CropDiagnosis is the output shape of a crop photo diagnosis.
var CropDiagnosis = Object("Health diagnosis of a crop photo",
	Prop("cropType", String("Crop visible in the photo")),
	Prop("isHealthy", Boolean("True when no disease, pest or deficiency is visible")),
	Prop("diseaseName", Text("Name of the disease, pest or deficiency").
		WithDefault("No disease detected").WithUrduDefault("کوئی بیماری نہیں ملی")),
	Prop("diseaseConfidence", Number("Confidence in the diagnosis, 0 to 100").WithRange(0, 100)),
	Prop("severity", Enum("Severity of the problem", models.Severities...).WithDefault(models.SeverityNone)),
	Prop("symptoms", TextList("Visible symptoms")),
	Prop("causes", Text("Likely causes")),
	Prop("treatment", Array("Ordered treatment steps", treatmentStep)),
	Prop("prevention", TextList("Prevention measures for the future")),
	Prop("summary", Text("Short summary for the farmer")),
)

var advisoryTip = Object("One actionable tip",
	Prop("title", Text("Short tip title")),
	Prop("advice", Text("Concrete advice tied to the forecast")),
	Prop("priority", Enum("Urgency of the tip", models.Priorities...).WithDefault(models.PriorityMedium)),
	Prop("category", Enum("Tip category", models.TipCategories...).WithDefault("General")),
)

// WeatherAdvisory is the output shape of weather based farming tips.
var WeatherAdvisory = Object("Farming advisory for the coming days",
	Prop("overallRisk", Enum("Overall weather risk for crops", models.RiskLevels...).WithDefault(models.RiskLow)),
	Prop("summary", Text("Two sentence summary of the weather impact")),
	Prop("tips", Array("Tips ordered by priority", advisoryTip)),
)

var byKind = map[models.RequestKind]*Node{
	models.KindAnnualPlan:      AnnualPlan,
	models.KindCropDiagnosis:   CropDiagnosis,
	models.KindWeatherAdvisory: WeatherAdvisory,
}

// ForKind returns the output schema of a request kind.
func ForKind(kind models.RequestKind) (*Node, bool) {
	n, ok := byKind[kind]
	return n, ok
}

// Kinds lists the request kinds that have a schema, sorted.
func Kinds() []models.RequestKind {
	kinds := make([]models.RequestKind, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
