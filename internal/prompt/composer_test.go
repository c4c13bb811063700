package prompt

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"agri-pipeline/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func lahoreRequest() *models.AnnualPlanRequest {
	return &models.AnnualPlanRequest{
		Location:     "Lahore",
		FarmSize:     "5 acres",
		SoilType:     "Loamy",
		PrimaryCrops: []string{"Wheat", "Rice"},
		Year:         2027,
	}
}

func TestAnnualPlan_IncludesFieldsInOrder(t *testing.T) {
	c := NewComposer(Options{})
	p := c.AnnualPlan(lahoreRequest(), nil)

	locIdx := strings.Index(p, "- Location: Lahore")
	sizeIdx := strings.Index(p, "- Farm size: 5 acres")
	soilIdx := strings.Index(p, "- Soil type: Loamy")
	cropIdx := strings.Index(p, "- Primary crops: Wheat, Rice")
	assert.True(t, locIdx >= 0 && locIdx < sizeIdx && sizeIdx < soilIdx && soilIdx < cropIdx)
	assert.Contains(t, p, "- Plan year: 2027")

	assert.NotContains(t, p, "Water source")
	assert.NotContains(t, p, "Background information")
	assert.Contains(t, p, "Nastaliq")
	assert.Contains(t, p, "_ur")
}

func TestAnnualPlan_Deterministic(t *testing.T) {
	c := NewComposer(Options{})
	bundle := models.NewContextBundle("Wheat is sown in November.", []models.ContextSource{
		{Title: "PARC", Excerpt: "Sow wheat by mid November.", URL: "https://parc.gov.pk"},
	}, "tavily")

	assert.Equal(t, c.AnnualPlan(lahoreRequest(), bundle), c.AnnualPlan(lahoreRequest(), bundle))
}

func TestContext_ExcerptLimits(t *testing.T) {
	c := NewComposer(Options{MaxExcerpts: 2, ExcerptChars: 10})

	var sources []models.ContextSource
	for i := 0; i < 4; i++ {
		sources = append(sources, models.ContextSource{
			Title:   fmt.Sprintf("Source %d", i),
			Excerpt: strings.Repeat("گندم", 10),
			URL:     fmt.Sprintf("https://example.org/%d", i),
		})
	}
	p := c.AnnualPlan(lahoreRequest(), models.NewContextBundle("", sources, "tavily"))

	assert.Contains(t, p, "[1] Source 0")
	assert.Contains(t, p, "[2] Source 1")
	assert.NotContains(t, p, "Source 2")

	line := strings.Repeat("گندم", 10)
	assert.NotContains(t, p, line)
	assert.Contains(t, p, string([]rune(line)[:10])+"...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	out := truncate(strings.Repeat("ز", 600), 500)
	assert.Equal(t, 503, utf8.RuneCountInString(out))
}

func TestCropDiagnosis_Prompt(t *testing.T) {
	c := NewComposer(Options{})
	p := c.CropDiagnosis(&models.CropDiagnosisRequest{CropType: "Wheat", Symptoms: "yellow stripes"}, nil)

	assert.Contains(t, p, "- Declared crop: Wheat")
	assert.Contains(t, p, "- Reported symptoms: yellow stripes")
	assert.NotContains(t, p, "Location:")
	assert.Contains(t, p, "diseaseConfidence")
}

func TestWeatherAdvisory_Prompt(t *testing.T) {
	c := NewComposer(Options{})
	p := c.WeatherAdvisory(&models.WeatherAdvisoryRequest{
		Location: "Multan",
		Current:  &models.WeatherReading{Temperature: floatPtr(41.5), Humidity: floatPtr(18), Condition: "Sunny"},
		Forecast: []models.ForecastDay{
			{Date: "Mon", Condition: "Heatwave", MinTemp: floatPtr(30), MaxTemp: floatPtr(46), ChanceOfRain: floatPtr(5)},
			{Date: "Tue", Condition: "Dust storm"},
		},
		Crops: []string{"Cotton"},
	}, nil)

	assert.Contains(t, p, "- Temperature (°C): 41.5")
	assert.Contains(t, p, "- Mon: Heatwave, temperature 30 to 46 °C, chance of rain 5%")
	assert.Contains(t, p, "- Tue: Dust storm")
	assert.Contains(t, p, "- Crops: Cotton")
	assert.NotContains(t, p, "Wind speed")
}
