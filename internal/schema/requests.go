package schema

import (
	"agri-pipeline/internal/models"
)

// Request shapes are published in the task registry; request validation
// itself lives on the model types.

var weatherReading = Object("Current conditions",
	Prop("temperature", Number("Temperature in °C")),
	Prop("humidity", Number("Relative humidity in percent").WithRange(0, 100)),
	Prop("condition", String("Condition such as Sunny or Rain")),
	Optional("windSpeed", Number("Wind speed in km/h")),
)

var forecastDay = Object("One forecast day",
	Prop("date", String("Forecast date")),
	Prop("condition", String("Expected condition")),
	Optional("minTemp", Number("Minimum temperature in °C")),
	Optional("maxTemp", Number("Maximum temperature in °C")),
	Optional("chanceOfRain", Number("Chance of rain in percent").WithRange(0, 100)),
	Optional("precipitation", Number("Expected precipitation in mm")),
)

var AnnualPlanRequest = Object("Annual farm plan request",
	Prop("location", String("District or region of the farm")),
	Prop("farmSize", String("Farm size, for example 5 acres; a bare number is accepted")),
	Prop("soilType", String("Soil type")),
	Prop("primaryCrops", Array("Main crops", String("Crop name")).WithLength(1, 20)),
	Optional("waterSource", String("Irrigation source")),
	Optional("budget", String("Available budget")),
	Optional("goals", String("Farmer goals for the year")),
	Optional("additionalNotes", String("Anything else the planner should know")),
	Optional("year", Integer("Plan year, defaults to the current year").WithRange(2000, 2100)),
)

// CropDiagnosisRequest is the JSON form; the HTTP endpoint also accepts a
// multipart upload with an image file part.
var CropDiagnosisRequest = Object("Crop photo diagnosis request",
	Prop("imageBase64", String("Photo as base64 or a data URL")),
	Optional("imageMimeType", Enum("Photo MIME type, sniffed when absent", "image/jpeg", "image/png", "image/webp", "image/heic", "image/heif")),
	Prop("cropType", String("Crop shown in the photo")),
	Optional("symptoms", String("Symptoms the farmer noticed")),
	Optional("location", String("District or region")),
	Optional("additionalNotes", String("Anything else the diagnostician should know")),
)

var WeatherAdvisoryRequest = Object("Weather advisory request",
	Prop("location", String("District or region")),
	Prop("current", weatherReading),
	Prop("forecast", Array("Forecast days, soonest first", forecastDay).WithLength(1, 16)),
	Optional("crops", Array("Crops in the field", String("Crop name"))),
	Optional("additionalNotes", String("Anything else the advisor should know")),
	Optional("alertPhone", String("Phone number for an SMS alert of high priority tips")),
)

var requestsByKind = map[models.RequestKind]*Node{
	models.KindAnnualPlan:      AnnualPlanRequest,
	models.KindCropDiagnosis:   CropDiagnosisRequest,
	models.KindWeatherAdvisory: WeatherAdvisoryRequest,
}

// RequestForKind returns the input schema of a request kind.
func RequestForKind(kind models.RequestKind) (*Node, bool) {
	n, ok := requestsByKind[kind]
	return n, ok
}
