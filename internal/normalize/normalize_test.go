package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "agri-pipeline/internal/common/errors"
	"agri-pipeline/internal/common/logger"
	"agri-pipeline/internal/models"
	"agri-pipeline/internal/schema"
)

var fixedNow = time.Date(2025, time.March, 1, 9, 30, 0, 0, time.UTC)

func newTestNormalizer(t *testing.T, minSupplied int) *Normalizer {
	t.Helper()
	return New(Options{MinSupplied: minSupplied, Now: func() time.Time { return fixedNow }}, logger.NewTestLogger(t))
}

const completeAdvisory = "```json\n" + `{
	"overallRisk": "High",
	"summary_en": "A heatwave is expected.",
	"summary_ur": "شدید گرمی کی لہر متوقع ہے۔",
	"tips": [
		{
			"title_en": "Irrigate at night",
			"title_ur": "رات کو آبپاشی کریں",
			"advice_en": "Water after sunset to reduce evaporation.",
			"advice_ur": "بخارات کم کرنے کے لیے غروب آفتاب کے بعد پانی دیں۔",
			"priority": "High",
			"category": "Irrigation"
		}
	]
}` + "\n```"

func TestNormalize_CompleteDocument(t *testing.T) {
	doc, err := newTestNormalizer(t, 1).Normalize(completeAdvisory, schema.WeatherAdvisory)
	require.NoError(t, err)

	assert.False(t, doc.Degraded)
	assert.Empty(t, doc.Violations)
	assert.Equal(t, fixedNow, doc.GeneratedAt)
	assert.Equal(t, 9, doc.Supplied)

	advisory, err := Decode[models.WeatherAdvisory](doc)
	require.NoError(t, err)
	assert.Equal(t, "High", advisory.OverallRisk)
	assert.Equal(t, "A heatwave is expected.", advisory.Summary)
	assert.Equal(t, advisory.SummaryEN, advisory.Summary)
	require.Len(t, advisory.Tips, 1)
	assert.Equal(t, "Irrigate at night", advisory.Tips[0].Title)
	assert.Equal(t, "رات کو آبپاشی کریں", advisory.Tips[0].TitleUR)
	assert.True(t, advisory.GeneratedAt.Equal(fixedNow))
}

func TestNormalize_BilingualRepair(t *testing.T) {
	raw := `{
		"cropType": "Wheat",
		"isHealthy": false,
		"diseaseName": "Leaf rust",
		"symptoms_en": ["Orange pustules", "Yellowing leaves"],
		"causes_ur": "نمی والا موسم",
		"summary_en": "Rust detected",
		"summary_ur": ""
	}`

	doc, err := newTestNormalizer(t, 1).Normalize(raw, schema.CropDiagnosis)
	require.NoError(t, err)
	assert.True(t, doc.Degraded)
	assert.NotEmpty(t, doc.Violations)

	d, err := Decode[models.CropDiagnosis](doc)
	require.NoError(t, err)

	// plain alias accepted as English
	assert.Equal(t, "Leaf rust", d.DiseaseNameEN)
	assert.Equal(t, "Leaf rust", d.DiseaseName)
	assert.Equal(t, UrduFallback, d.DiseaseNameUR)

	// list placeholders keep the length of the supplied variant
	assert.Equal(t, []string{"Orange pustules", "Yellowing leaves"}, d.Symptoms)
	assert.Equal(t, []string{UrduFallback, UrduFallback}, d.SymptomsUR)

	// Urdu only
	assert.Equal(t, EnglishFallback, d.CausesEN)
	assert.Equal(t, "نمی والا موسم", d.CausesUR)

	// blank variant counts as missing
	assert.Equal(t, UrduFallback, d.SummaryUR)

	// neither variant supplied
	assert.Empty(t, d.Prevention)
	assert.Empty(t, d.PreventionUR)
	assert.NotNil(t, d.Prevention)
}

func TestNormalize_DefaultsWhenBothVariantsMissing(t *testing.T) {
	doc, err := newTestNormalizer(t, 1).Normalize(`{"isHealthy": true}`, schema.CropDiagnosis)
	require.NoError(t, err)

	d, err := Decode[models.CropDiagnosis](doc)
	require.NoError(t, err)
	assert.True(t, d.IsHealthy)
	assert.Equal(t, "No disease detected", d.DiseaseName)
	assert.Equal(t, "کوئی بیماری نہیں ملی", d.DiseaseNameUR)
	assert.Equal(t, models.SeverityNone, d.Severity)
	assert.Equal(t, float64(0), d.DiseaseConfidence)
	assert.Equal(t, "", d.Summary)
	assert.NotNil(t, d.Treatment)
}

func TestNormalize_CoercionAndClamping(t *testing.T) {
	tests := []struct {
		name       string
		confidence string
		want       float64
	}{
		{"numeric string", `"85.5"`, 85.5},
		{"percent string", `"72%"`, 72},
		{"above range", `150`, 100},
		{"below range", `-3`, 0},
		{"nan", `"NaN"`, 0},
		{"garbage", `"very sure"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"isHealthy": "false", "diseaseConfidence": ` + tt.confidence + `}`
			doc, err := newTestNormalizer(t, 1).Normalize(raw, schema.CropDiagnosis)
			require.NoError(t, err)

			d, err := Decode[models.CropDiagnosis](doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.DiseaseConfidence)
			assert.False(t, d.IsHealthy)
		})
	}
}

func TestNormalize_IntegerAndArrayItems(t *testing.T) {
	raw := `{
		"isHealthy": false,
		"treatment": [
			{"step": "2", "action_en": "Spray fungicide", "action_ur": "فنگسائڈ سپرے کریں", "type": "chemical"},
			"not a step",
			null,
			{"step": 1.6, "action": "Remove infected leaves"}
		]
	}`
	doc, err := newTestNormalizer(t, 1).Normalize(raw, schema.CropDiagnosis)
	require.NoError(t, err)

	d, err := Decode[models.CropDiagnosis](doc)
	require.NoError(t, err)
	require.Len(t, d.Treatment, 2)
	assert.Equal(t, 2, d.Treatment[0].Step)
	assert.Equal(t, "Chemical", d.Treatment[0].Type)
	assert.Equal(t, 2, d.Treatment[1].Step)
	assert.Equal(t, "Remove infected leaves", d.Treatment[1].ActionEN)
	assert.Equal(t, "Cultural", d.Treatment[1].Type)
}

func TestNormalize_UnknownEnumKept(t *testing.T) {
	raw := `{"overallRisk": "Extreme", "tips": [{"title_en": "Stay alert", "priority": "urgent", "category": "pestcontrol"}]}`
	doc, err := newTestNormalizer(t, 1).Normalize(raw, schema.WeatherAdvisory)
	require.NoError(t, err)

	a, err := Decode[models.WeatherAdvisory](doc)
	require.NoError(t, err)
	assert.Equal(t, "Extreme", a.OverallRisk)
	require.Len(t, a.Tips, 1)
	assert.Equal(t, "urgent", a.Tips[0].Priority)
	assert.Equal(t, "PestControl", a.Tips[0].Category)
	assert.Equal(t, UrduFallback, a.Tips[0].TitleUR)
}

func TestNormalize_DropsUnknownKeys(t *testing.T) {
	doc, err := newTestNormalizer(t, 1).Normalize(`{"overallRisk": "Low", "debug": "internal"}`, schema.WeatherAdvisory)
	require.NoError(t, err)
	assert.NotContains(t, doc.Data, "debug")
	assert.Contains(t, doc.Data, "generatedAt")
}

func TestNormalize_ParseFailures(t *testing.T) {
	n := newTestNormalizer(t, 1)

	for _, raw := range []string{"", "not json at all", "[1, 2, 3]", "```json\n{\"overallRisk\": \n```"} {
		_, err := n.Normalize(raw, schema.WeatherAdvisory)
		pe, ok := apperrors.AsPipelineError(err)
		require.True(t, ok, "raw %q", raw)
		assert.Equal(t, apperrors.ErrCodeResponseParseFailure, pe.Code)
		assert.Equal(t, "Generation failed", pe.Message)
	}
}

func TestNormalize_ObjectInsideProse(t *testing.T) {
	raw := "Here is the advisory you asked for:\n{\"overallRisk\": \"Moderate\"}\nStay safe."
	doc, err := newTestNormalizer(t, 1).Normalize(raw, schema.WeatherAdvisory)
	require.NoError(t, err)
	assert.Equal(t, "Moderate", doc.Data["overallRisk"])
}

func TestNormalize_MinimumContent(t *testing.T) {
	_, err := newTestNormalizer(t, 1).Normalize(`{}`, schema.AnnualPlan)
	pe, ok := apperrors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeResponseContentInsufficient, pe.Code)
	assert.False(t, pe.Retryable)

	doc, err := newTestNormalizer(t, 0).Normalize(`{}`, schema.AnnualPlan)
	require.NoError(t, err)
	plan, err := Decode[models.AnnualPlan](doc)
	require.NoError(t, err)
	assert.Equal(t, "Annual Farm Plan", plan.PlanTitle)
	assert.Equal(t, "سالانہ زرعی منصوبہ", plan.PlanTitleUR)
	assert.NotNil(t, plan.Months)
}

func TestCleanJSONBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, CleanJSONBlock("  {\"a\":1}  "))
}

func TestDecode_NilDocument(t *testing.T) {
	_, err := Decode[models.WeatherAdvisory](nil)
	assert.Error(t, err)
}

func TestNormalize_EnumMatching(t *testing.T) {
	raw := `{"overallRisk": "high", "tips": [{"title_en": "Stay alert", "priority": "High", "category": "Irrigation"}]}`
	doc, err := newTestNormalizer(t, 1).Normalize(raw, schema.WeatherAdvisory)
	require.NoError(t, err)

	a, err := Decode[models.WeatherAdvisory](doc)
	require.NoError(t, err)
	assert.Equal(t, "High", a.OverallRisk)
	require.Len(t, a.Tips, 1)
	assert.Equal(t, "High", a.Tips[0].Priority)
	assert.Equal(t, "Irrigation", a.Tips[0].Category)
}
