// Package prompt renders generation prompts from typed requests. Rendering is
// pure: the same request and context always produce the same text.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"agri-pipeline/internal/models"
)

const (
	DefaultMaxExcerpts  = 5
	DefaultExcerptChars = 500
)

type Options struct {
	MaxExcerpts  int
	ExcerptChars int
}

type Composer struct {
	opts Options
}

func NewComposer(opts Options) *Composer {
	if opts.MaxExcerpts <= 0 {
		opts.MaxExcerpts = DefaultMaxExcerpts
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = DefaultExcerptChars
	}
	return &Composer{opts: opts}
}

// bilingualInstructions is appended to every prompt.
var bilingualInstructions = []string{
	"\nLanguage requirements:",
	"- Write every text field twice: in English in the field ending with _en and in Urdu in the field ending with _ur.",
	"- Urdu must be written in native Urdu (Nastaliq/Arabic) script. Do not use Roman Urdu or transliteration.",
	"- The English and Urdu variants must carry the same meaning; keep lists the same length and in the same order.",
	"- Keep enumerated values (priority, status, severity, type, category, risk) in English exactly as listed in the schema.",
}

func (c *Composer) AnnualPlan(req *models.AnnualPlanRequest, bundle *models.ContextBundle) string {
	var parts []string

	parts = append(parts, "You are an agricultural advisor for smallholder farmers in Pakistan.")
	parts = append(parts, "Create a practical month-by-month farm plan for one calendar year based on the farm details below.")

	parts = append(parts, "\nFarm details:")
	parts = appendField(parts, "Location", req.Location)
	parts = appendField(parts, "Farm size", req.FarmSize.String())
	parts = appendField(parts, "Soil type", req.SoilType)
	parts = appendField(parts, "Primary crops", strings.Join(req.PrimaryCrops, ", "))
	parts = appendField(parts, "Water source", req.WaterSource)
	parts = appendField(parts, "Budget", req.Budget.String())
	parts = appendField(parts, "Goals", req.Goals)
	parts = appendField(parts, "Additional notes", req.AdditionalNotes)
	if req.Year > 0 {
		parts = appendField(parts, "Plan year", strconv.Itoa(req.Year))
	}

	parts = c.appendContext(parts, bundle)

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Return exactly 12 entries in annualPlan, one per month from January to December, using full English month names.")
	parts = append(parts, "- Give each month a focus and 2 to 5 activities suited to the local season, soil and crops.")
	parts = append(parts, "- Set each activity priority to High, Medium or Low and status to pending.")
	parts = append(parts, "- Finish with general recommendations for the year.")
	parts = append(parts, bilingualInstructions...)

	return strings.Join(parts, "\n")
}

func (c *Composer) CropDiagnosis(req *models.CropDiagnosisRequest, bundle *models.ContextBundle) string {
	var parts []string

	parts = append(parts, "You are a plant pathologist helping farmers in Pakistan.")
	parts = append(parts, "Examine the attached crop photo and diagnose any disease, pest damage or nutrient deficiency.")

	parts = append(parts, "\nCrop details:")
	parts = appendField(parts, "Declared crop", req.CropType)
	parts = appendField(parts, "Reported symptoms", req.Symptoms)
	parts = appendField(parts, "Location", req.Location)
	parts = appendField(parts, "Additional notes", req.AdditionalNotes)

	parts = c.appendContext(parts, bundle)

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- If the plant looks healthy, set isHealthy to true, severity to None and explain what was checked.")
	parts = append(parts, "- Give diseaseConfidence as a number from 0 to 100.")
	parts = append(parts, "- Severity must be one of None, Mild, Moderate or Severe.")
	parts = append(parts, "- List treatment steps in order, each typed Organic, Chemical or Cultural; prefer locally available products.")
	parts = append(parts, "- Include prevention measures for the next season.")
	parts = append(parts, bilingualInstructions...)

	return strings.Join(parts, "\n")
}

func (c *Composer) WeatherAdvisory(req *models.WeatherAdvisoryRequest, bundle *models.ContextBundle) string {
	var parts []string

	parts = append(parts, "You are an agro-meteorology advisor for farmers in Pakistan.")
	parts = append(parts, "Give practical farming tips for the coming days based on the current weather and forecast below.")

	parts = append(parts, "\nLocation and crops:")
	parts = appendField(parts, "Location", req.Location)
	parts = appendField(parts, "Crops", strings.Join(req.Crops, ", "))
	parts = appendField(parts, "Additional notes", req.AdditionalNotes)

	if cur := req.Current; cur != nil {
		parts = append(parts, "\nCurrent weather:")
		parts = appendField(parts, "Temperature (°C)", formatFloat(cur.Temperature))
		parts = appendField(parts, "Humidity (%)", formatFloat(cur.Humidity))
		parts = appendField(parts, "Condition", cur.Condition)
		parts = appendField(parts, "Wind speed (km/h)", formatFloat(cur.WindSpeed))
	}

	parts = append(parts, "\nForecast:")
	for _, day := range req.Forecast {
		parts = append(parts, "- "+forecastLine(day))
	}

	parts = c.appendContext(parts, bundle)

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Rate overallRisk as Low, Moderate or High.")
	parts = append(parts, "- Give 3 to 6 tips, each with priority High, Medium or Low and a category from Irrigation, PestControl, CropProtection, Harvest, Fertilizer or General.")
	parts = append(parts, "- Tie every tip to a specific day or condition in the forecast.")
	parts = append(parts, bilingualInstructions...)

	return strings.Join(parts, "\n")
}

func (c *Composer) appendContext(parts []string, bundle *models.ContextBundle) []string {
	if bundle.IsEmpty() {
		return parts
	}

	parts = append(parts, "\nBackground information (use it where relevant, do not copy it verbatim):")
	if bundle.Summary != "" {
		parts = append(parts, "Summary: "+truncate(bundle.Summary, c.opts.ExcerptChars))
	}

	n := len(bundle.Sources)
	if n > c.opts.MaxExcerpts {
		n = c.opts.MaxExcerpts
	}
	for i := 0; i < n; i++ {
		src := bundle.Sources[i]
		parts = append(parts, fmt.Sprintf("[%d] %s (%s)", i+1, src.Title, src.URL))
		if src.Excerpt != "" {
			parts = append(parts, "    "+truncate(src.Excerpt, c.opts.ExcerptChars))
		}
	}
	return parts
}

func appendField(parts []string, label, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return parts
	}
	return append(parts, fmt.Sprintf("- %s: %s", label, value))
}

func forecastLine(day models.ForecastDay) string {
	line := day.Date + ": " + day.Condition
	if day.MinTemp != nil || day.MaxTemp != nil {
		line += fmt.Sprintf(", temperature %s to %s °C", orDash(day.MinTemp), orDash(day.MaxTemp))
	}
	if day.ChanceOfRain != nil {
		line += fmt.Sprintf(", chance of rain %s%%", formatFloat(day.ChanceOfRain))
	}
	if day.Precipitation != nil {
		line += fmt.Sprintf(", precipitation %s mm", formatFloat(day.Precipitation))
	}
	return line
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func orDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFloat(v)
}

// truncate cuts s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}
