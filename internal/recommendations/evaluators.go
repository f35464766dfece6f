// Package recommendations implements the recommendation rules engine: six
// independent condition checks over a device's latest reading and the nearest
// outdoor weather sample, and the Generator that runs them across all active
// devices and persists the survivors of de-duplication.
package recommendations

import (
	"fmt"

	"envmonitor/internal/types"
)

// Thresholds. They are fixed for every tenant.
const (
	HotIndoorTemp      = 26.0
	VeryHotIndoorTemp  = 30.0
	ColdIndoorTemp     = 18.0
	VeryColdIndoorTemp = 15.0
	TempDeltaThreshold = 3.0

	HighHumidity       = 60.0
	VeryHighHumidity   = 70.0
	LowHumidity        = 30.0
	HumidityDeltaPoint = 10.0

	TVOCThreshold     = 1000
	HighTVOCThreshold = 3000
	GoodOutdoorAQI    = 2
	HighOutdoorPM25   = 35.0

	MinLightLux = 300
	MaxLightLux = 1000

	NoiseThreshold     = 70
	HighNoiseThreshold = 85

	// BreakMinReadings is the number of readings in the trailing BreakWindow
	// that counts as continuous occupancy.
	BreakMinReadings = 24
)

// Input is everything an evaluator may look at. Weather is nil when the
// device has no location or no fresh sample exists nearby. RecentReadings is
// the device's reading count over the trailing BreakWindow.
type Input struct {
	Reading        types.SensorReading
	Weather        *types.WeatherSample
	RecentReadings int
}

// Evaluator inspects an Input and returns at most one candidate.
type Evaluator func(in Input) *types.Candidate

// Evaluators returns the full ordered set of condition checks.
func Evaluators() []Evaluator {
	return []Evaluator{
		Temperature,
		Humidity,
		AirQuality,
		Lighting,
		Noise,
		Break,
	}
}

// Evaluate runs every evaluator in evals and collects the non-nil candidates.
func Evaluate(evals []Evaluator, in Input) []types.Candidate {
	var out []types.Candidate
	for _, eval := range evals {
		if c := eval(in); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// Temperature suggests opening windows when outdoor air can move the indoor
// temperature back toward comfort. It needs outdoor context.
func Temperature(in Input) *types.Candidate {
	if in.Weather == nil {
		return nil
	}
	indoor := in.Reading.Temperature
	outdoor := in.Weather.OutdoorTemperature

	switch {
	case indoor > HotIndoorTemp && outdoor < indoor-TempDeltaThreshold:
		priority := types.PriorityMedium
		if indoor > VeryHotIndoorTemp {
			priority = types.PriorityHigh
		}
		return &types.Candidate{
			Type:     types.RecTemperature,
			Title:    "Cool Down Your Space",
			Message:  fmt.Sprintf("It's %s°C inside but only %s°C outside. Open windows to cool down naturally.", dec(indoor), dec(outdoor)),
			Priority: priority,
			Metadata: types.Metadata{
				"indoor_temp":  indoor,
				"outdoor_temp": outdoor,
				"difference":   round1(indoor - outdoor),
			},
		}

	case indoor < ColdIndoorTemp && outdoor > indoor+TempDeltaThreshold:
		priority := types.PriorityMedium
		if indoor < VeryColdIndoorTemp {
			priority = types.PriorityHigh
		}
		return &types.Candidate{
			Type:     types.RecTemperature,
			Title:    "Warm Up Your Space",
			Message:  fmt.Sprintf("It's %s°C inside but %s°C outside. Opening windows could help warm your space naturally.", dec(indoor), dec(outdoor)),
			Priority: priority,
			Metadata: types.Metadata{
				"indoor_temp":  indoor,
				"outdoor_temp": outdoor,
				"difference":   round1(outdoor - indoor),
			},
		}
	}
	return nil
}

// Humidity flags readings outside [30, 60] %RH. Outdoor humidity, when known,
// decides between ventilating and using an appliance: a gap of 10 points or
// more in the right direction is enough to open windows.
func Humidity(in Input) *types.Candidate {
	indoor := in.Reading.Humidity
	var outdoor *float64
	if in.Weather != nil {
		outdoor = in.Weather.OutdoorHumidity
	}

	switch {
	case indoor > HighHumidity:
		priority := types.PriorityMedium
		if indoor > VeryHighHumidity {
			priority = types.PriorityHigh
		}
		canVentilate := outdoor != nil && indoor-*outdoor >= HumidityDeltaPoint

		var msg string
		if canVentilate {
			msg = fmt.Sprintf("Indoor humidity is %s%%, outdoor is %s%%. Open windows to reduce humidity naturally.", dec(indoor), dec(*outdoor))
		} else {
			note := ""
			if outdoor != nil {
				note = fmt.Sprintf(" (outdoor humidity is also high at %s%%)", dec(*outdoor))
			}
			msg = fmt.Sprintf("Humidity is at %s%%%s. Use a dehumidifier to reduce indoor humidity.", dec(indoor), note)
		}
		return humidityCandidate("High Humidity Detected", msg, priority, indoor, outdoor, canVentilate)

	case indoor < LowHumidity:
		canVentilate := outdoor != nil && *outdoor-indoor >= HumidityDeltaPoint

		var msg string
		if canVentilate {
			msg = fmt.Sprintf("Indoor humidity is %s%%, outdoor is %s%%. Open windows to increase humidity naturally.", dec(indoor), dec(*outdoor))
		} else {
			note := ""
			if outdoor != nil {
				note = fmt.Sprintf(" (outdoor humidity is also low at %s%%)", dec(*outdoor))
			}
			msg = fmt.Sprintf("Humidity is at %s%%%s. Use a humidifier or place water containers in the room.", dec(indoor), note)
		}
		return humidityCandidate("Low Humidity Detected", msg, types.PriorityMedium, indoor, outdoor, canVentilate)
	}
	return nil
}

func humidityCandidate(title, msg string, p types.Priority, indoor float64, outdoor *float64, canVentilate bool) *types.Candidate {
	return &types.Candidate{
		Type:     types.RecHumidity,
		Title:    title,
		Message:  msg,
		Priority: p,
		Metadata: types.Metadata{
			"indoor_humidity":  indoor,
			"outdoor_humidity": optFloat(outdoor),
			"can_ventilate":    canVentilate,
		},
	}
}

// AirQuality reacts to TVOC above 1000 ppm. Ventilation is only suggested
// when outdoor AQI is known and good; a missing PM2.5 value does not block it.
func AirQuality(in Input) *types.Candidate {
	if in.Reading.TVOCPPM == nil || *in.Reading.TVOCPPM <= TVOCThreshold {
		return nil
	}
	tvoc := *in.Reading.TVOCPPM
	priority := types.PriorityMedium
	if tvoc > HighTVOCThreshold {
		priority = types.PriorityHigh
	}

	var aqi *int
	var pm25 *float64
	if in.Weather != nil {
		aqi = in.Weather.OutdoorAQI
		pm25 = in.Weather.OutdoorPM25
	}
	aqiGood := aqi != nil && *aqi <= GoodOutdoorAQI
	pm25Good := pm25 == nil || *pm25 < HighOutdoorPM25
	canVentilate := in.Weather != nil && aqiGood && pm25Good

	var msg string
	if canVentilate {
		msg = fmt.Sprintf("Indoor TVOC level is %d ppm. Outdoor AQI is %d (good). Open windows to ventilate your space.", tvoc, *aqi)
	} else {
		reason := ""
		switch {
		case aqi != nil && *aqi > GoodOutdoorAQI:
			reason = fmt.Sprintf(" (outdoor air quality is also poor with AQI %d)", *aqi)
		case pm25 != nil && *pm25 >= HighOutdoorPM25:
			reason = fmt.Sprintf(" (outdoor PM2.5 is high at %s μg/m³)", dec(*pm25))
		}
		msg = fmt.Sprintf("TVOC level is %d ppm%s. Use an air purifier with HEPA filter to improve indoor air quality.", tvoc, reason)
	}

	return &types.Candidate{
		Type:     types.RecVentilate,
		Title:    "Poor Air Quality Detected",
		Message:  msg,
		Priority: priority,
		Metadata: types.Metadata{
			"tvoc_ppm":      tvoc,
			"outdoor_aqi":   optInt(aqi),
			"outdoor_pm25":  optFloat(pm25),
			"can_ventilate": canVentilate,
		},
	}
}

// Lighting flags light levels outside [300, 1000] lux.
func Lighting(in Input) *types.Candidate {
	light := in.Reading.Light
	var title, msg string
	switch {
	case light < MinLightLux:
		title = "Insufficient Lighting"
		msg = fmt.Sprintf("Current light level is %d lux. Add more lighting to reduce eye strain. Recommended: 300-500 lux for office work.", light)
	case light > MaxLightLux:
		title = "Excessive Lighting"
		msg = fmt.Sprintf("Current light level is %d lux. Consider reducing lighting to avoid eye strain. Recommended: 300-500 lux for office work.", light)
	default:
		return nil
	}
	return &types.Candidate{
		Type:     types.RecLighting,
		Title:    title,
		Message:  msg,
		Priority: types.PriorityLow,
		Metadata: types.Metadata{"light_lux": light},
	}
}

// Noise flags sustained levels above 70 dB.
func Noise(in Input) *types.Candidate {
	noise := in.Reading.Noise
	if noise <= NoiseThreshold {
		return nil
	}
	priority := types.PriorityMedium
	if noise > HighNoiseThreshold {
		priority = types.PriorityHigh
	}
	return &types.Candidate{
		Type:     types.RecNoise,
		Title:    "High Noise Level",
		Message:  fmt.Sprintf("Noise level is %d dB. Consider taking a break in a quieter area or using noise-cancelling headphones.", noise),
		Priority: priority,
		Metadata: types.Metadata{"noise_db": noise},
	}
}

// Break suggests stepping out when the device has reported densely for the
// last two hours and the current reading is suboptimal. Reading density is
// the occupancy signal, not elapsed time.
func Break(in Input) *types.Candidate {
	if in.RecentReadings < BreakMinReadings {
		return nil
	}
	r := in.Reading
	suboptimal := r.Temperature > HotIndoorTemp ||
		r.Humidity > HighHumidity ||
		(r.TVOCPPM != nil && *r.TVOCPPM > TVOCThreshold)
	if !suboptimal {
		return nil
	}
	return &types.Candidate{
		Type:     types.RecBreak,
		Title:    "Time for a Break",
		Message:  "You've been in this environment for over 2 hours with suboptimal conditions. Take a 15-minute break in a better environment.",
		Priority: types.PriorityMedium,
		Metadata: types.Metadata{"hours_active": 2},
	}
}
