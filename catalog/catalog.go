package catalog

import (
	"sort"
	"strings"

	"github.com/vitalbridge/go-healthsync/core"
)

// Canonical content types. Every mapping's ContentType is one of these.
const (
	ContentMassKg          = "mass/kg"
	ContentLengthCm        = "length/cm"
	ContentCount           = "count/generic"
	ContentCountSteps      = "count/steps"
	ContentFrequencyBpm    = "frequency/bpm"
	ContentPressureMmhg    = "pressure/mmhg"
	ContentBloodPressure   = "blood-pressure/mmhg-bpm"
	ContentRatioPercent    = "ratio/percent"
	ContentEnergyKcal      = "energy/kcal"
	ContentTemperatureC    = "temperature/c"
	ContentDensityMmolL    = "density/mmol-l"
	ContentSpeedMs         = "speed/ms"
	ContentTimeH           = "time/h"
	ContentDateISO         = "date/iso8601"
	ContentNoteTxt         = "note/txt"
	ContentBooleanBool     = "boolean/bool"
	ContentActivityPlain   = "activity/plain"
	ContentAudiogram       = "audiogram/data"
	ContentActivitySummary = "activity-summary/data"
	ContentClinicalFhir    = "clinical/fhir"
)

// Stream hierarchy parents.
const (
	StreamBody            = "body"
	StreamVitals          = "vitals"
	StreamActivity        = "activity"
	StreamNutrition       = "nutrition"
	StreamSleep           = "sleep"
	StreamHearing         = "hearing"
	StreamReproductive    = "reproductive-health"
	StreamClinical        = "clinical"
	StreamCharacteristics = "characteristics"
	StreamDiary           = "diary"
)

// defaultMapping is the documented fallback for unmapped source types: a
// plain diary note with no content.
var defaultMapping = core.TypeMapping{
	SourceType:  "",
	Kind:        core.SampleKindNote,
	StreamID:    StreamDiary,
	ContentType: ContentNoteTxt,
}

var mappings = map[string]core.TypeMapping{
	// Body measurements.
	"HKQuantityTypeIdentifierBodyMass": {
		Kind: core.SampleKindQuantity, StreamID: "body-mass", ParentStreamID: StreamBody,
		ContentType: ContentMassKg, Unit: &core.Unit{Symbol: "kg", Factor: 1},
	},
	"HKQuantityTypeIdentifierLeanBodyMass": {
		Kind: core.SampleKindQuantity, StreamID: "lean-body-mass", ParentStreamID: StreamBody,
		ContentType: ContentMassKg, Unit: &core.Unit{Symbol: "kg", Factor: 1},
	},
	"HKQuantityTypeIdentifierHeight": {
		Kind: core.SampleKindQuantity, StreamID: "height", ParentStreamID: StreamBody,
		ContentType: ContentLengthCm, Unit: &core.Unit{Symbol: "cm", Factor: 100},
	},
	"HKQuantityTypeIdentifierBodyMassIndex": {
		Kind: core.SampleKindQuantity, StreamID: "body-mass-index", ParentStreamID: StreamBody,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "count", Factor: 1},
	},
	"HKQuantityTypeIdentifierBodyFatPercentage": {
		Kind: core.SampleKindQuantity, StreamID: "body-fat", ParentStreamID: StreamBody,
		ContentType: ContentRatioPercent, Unit: &core.Unit{Symbol: "%", Factor: 100},
	},
	"HKQuantityTypeIdentifierWaistCircumference": {
		Kind: core.SampleKindQuantity, StreamID: "waist-circumference", ParentStreamID: StreamBody,
		ContentType: ContentLengthCm, Unit: &core.Unit{Symbol: "cm", Factor: 100},
	},
	"HKQuantityTypeIdentifierBodyTemperature": {
		Kind: core.SampleKindQuantity, StreamID: "body-temperature", ParentStreamID: StreamVitals,
		ContentType: ContentTemperatureC, Unit: &core.Unit{Symbol: "celsius", Factor: 1},
	},
	"HKQuantityTypeIdentifierBasalBodyTemperature": {
		Kind: core.SampleKindQuantity, StreamID: "basal-body-temperature", ParentStreamID: StreamVitals,
		ContentType: ContentTemperatureC, Unit: &core.Unit{Symbol: "celsius", Factor: 1},
	},

	// Vitals.
	"HKQuantityTypeIdentifierHeartRate": {
		Kind: core.SampleKindQuantity, StreamID: "heart-rate", ParentStreamID: StreamVitals,
		ContentType: ContentFrequencyBpm, Unit: &core.Unit{Symbol: "bpm", Factor: 60},
	},
	"HKQuantityTypeIdentifierRestingHeartRate": {
		Kind: core.SampleKindQuantity, StreamID: "resting-heart-rate", ParentStreamID: StreamVitals,
		ContentType: ContentFrequencyBpm, Unit: &core.Unit{Symbol: "bpm", Factor: 60},
	},
	"HKQuantityTypeIdentifierWalkingHeartRateAverage": {
		Kind: core.SampleKindQuantity, StreamID: "walking-heart-rate", ParentStreamID: StreamVitals,
		ContentType: ContentFrequencyBpm, Unit: &core.Unit{Symbol: "bpm", Factor: 60},
	},
	"HKQuantityTypeIdentifierHeartRateVariabilitySDNN": {
		Kind: core.SampleKindQuantity, StreamID: "heart-rate-variability", ParentStreamID: StreamVitals,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "ms", Factor: 1000},
	},
	"HKQuantityTypeIdentifierOxygenSaturation": {
		Kind: core.SampleKindQuantity, StreamID: "oxygen-saturation", ParentStreamID: StreamVitals,
		ContentType: ContentRatioPercent, Unit: &core.Unit{Symbol: "%", Factor: 100},
	},
	"HKQuantityTypeIdentifierRespiratoryRate": {
		Kind: core.SampleKindQuantity, StreamID: "respiratory-rate", ParentStreamID: StreamVitals,
		ContentType: ContentFrequencyBpm, Unit: &core.Unit{Symbol: "bpm", Factor: 60},
	},
	"HKQuantityTypeIdentifierBloodGlucose": {
		Kind: core.SampleKindQuantity, StreamID: "blood-glucose", ParentStreamID: StreamVitals,
		ContentType: ContentDensityMmolL, Unit: &core.Unit{Symbol: "mmol/L", Factor: 1},
	},
	"HKQuantityTypeIdentifierVO2Max": {
		Kind: core.SampleKindQuantity, StreamID: "vo2-max", ParentStreamID: StreamVitals,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "mL/kg·min", Factor: 1},
	},
	"HKCorrelationTypeIdentifierBloodPressure": {
		Kind: core.SampleKindCorrelation, StreamID: "blood-pressure", ParentStreamID: StreamVitals,
		ContentType: ContentBloodPressure, Unit: &core.Unit{Symbol: "mmHg", Factor: 1},
	},

	// Activity.
	"HKQuantityTypeIdentifierStepCount": {
		Kind: core.SampleKindQuantity, StreamID: "steps", ParentStreamID: StreamActivity,
		ContentType: ContentCountSteps, Unit: &core.Unit{Symbol: "steps", Factor: 1},
	},
	"HKQuantityTypeIdentifierDistanceWalkingRunning": {
		Kind: core.SampleKindQuantity, StreamID: "walking-distance", ParentStreamID: StreamActivity,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "m", Factor: 1},
	},
	"HKQuantityTypeIdentifierDistanceCycling": {
		Kind: core.SampleKindQuantity, StreamID: "cycling-distance", ParentStreamID: StreamActivity,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "m", Factor: 1},
	},
	"HKQuantityTypeIdentifierFlightsClimbed": {
		Kind: core.SampleKindQuantity, StreamID: "flights-climbed", ParentStreamID: StreamActivity,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "count", Factor: 1},
	},
	"HKQuantityTypeIdentifierActiveEnergyBurned": {
		Kind: core.SampleKindQuantity, StreamID: "active-energy", ParentStreamID: StreamActivity,
		ContentType: ContentEnergyKcal, Unit: &core.Unit{Symbol: "kcal", Factor: 1},
	},
	"HKQuantityTypeIdentifierBasalEnergyBurned": {
		Kind: core.SampleKindQuantity, StreamID: "basal-energy", ParentStreamID: StreamActivity,
		ContentType: ContentEnergyKcal, Unit: &core.Unit{Symbol: "kcal", Factor: 1},
	},
	"HKQuantityTypeIdentifierAppleExerciseTime": {
		Kind: core.SampleKindQuantity, StreamID: "exercise-time", ParentStreamID: StreamActivity,
		ContentType: ContentTimeH, Unit: &core.Unit{Symbol: "h", Factor: 1.0 / 3600.0},
	},
	"HKWorkoutTypeIdentifier": {
		Kind: core.SampleKindWorkout, StreamID: "workouts", ParentStreamID: StreamActivity,
		ContentType: ContentActivityPlain,
	},
	"HKActivitySummaryTypeIdentifier": {
		Kind: core.SampleKindActivity, StreamID: "activity-summary", ParentStreamID: StreamActivity,
		ContentType: ContentActivitySummary,
	},
	"HKCategoryTypeIdentifierAppleStandHour": {
		Kind: core.SampleKindCategory, StreamID: "stand-hours", ParentStreamID: StreamActivity,
		ContentType: ContentNoteTxt,
		CategoryTokens: map[int64]string{
			0: "stood",
			1: "idle",
		},
	},

	// Sleep and mindfulness.
	"HKCategoryTypeIdentifierSleepAnalysis": {
		Kind: core.SampleKindCategory, StreamID: "sleep-analysis", ParentStreamID: StreamSleep,
		ContentType: ContentNoteTxt,
		CategoryTokens: map[int64]string{
			0: "inBed",
			1: "asleep",
			2: "awake",
		},
	},
	"HKCategoryTypeIdentifierMindfulSession": {
		Kind: core.SampleKindCategory, StreamID: "mindful-sessions", ParentStreamID: StreamSleep,
		ContentType: ContentBooleanBool,
		CategoryTokens: map[int64]string{
			0: "true",
		},
	},

	// Nutrition.
	"HKQuantityTypeIdentifierDietaryEnergyConsumed": {
		Kind: core.SampleKindQuantity, StreamID: "dietary-energy", ParentStreamID: StreamNutrition,
		ContentType: ContentEnergyKcal, Unit: &core.Unit{Symbol: "kcal", Factor: 1},
	},
	"HKQuantityTypeIdentifierDietaryWater": {
		Kind: core.SampleKindQuantity, StreamID: "water", ParentStreamID: StreamNutrition,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "L", Factor: 1},
	},
	"HKQuantityTypeIdentifierDietaryCaffeine": {
		Kind: core.SampleKindQuantity, StreamID: "caffeine", ParentStreamID: StreamNutrition,
		ContentType: ContentMassKg, Unit: &core.Unit{Symbol: "kg", Factor: 1},
	},

	// Hearing.
	"HKQuantityTypeIdentifierEnvironmentalAudioExposure": {
		Kind: core.SampleKindQuantity, StreamID: "environmental-audio", ParentStreamID: StreamHearing,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "dBASPL", Factor: 1},
	},
	"HKQuantityTypeIdentifierHeadphoneAudioExposure": {
		Kind: core.SampleKindQuantity, StreamID: "headphone-audio", ParentStreamID: StreamHearing,
		ContentType: ContentCount, Unit: &core.Unit{Symbol: "dBASPL", Factor: 1},
	},
	"HKAudiogramSampleType": {
		Kind: core.SampleKindAudiogram, StreamID: "audiograms", ParentStreamID: StreamHearing,
		ContentType: ContentAudiogram,
	},

	// Reproductive health.
	"HKCategoryTypeIdentifierMenstrualFlow": {
		Kind: core.SampleKindCategory, StreamID: "menstrual-flow", ParentStreamID: StreamReproductive,
		ContentType: ContentNoteTxt,
		CategoryTokens: map[int64]string{
			1: "unspecified",
			2: "light",
			3: "medium",
			4: "heavy",
			5: "none",
		},
	},
	"HKCategoryTypeIdentifierCervicalMucusQuality": {
		Kind: core.SampleKindCategory, StreamID: "cervical-mucus-quality", ParentStreamID: StreamReproductive,
		ContentType: ContentNoteTxt,
		CategoryTokens: map[int64]string{
			1: "dry",
			2: "sticky",
			3: "creamy",
			4: "watery",
			5: "eggWhite",
		},
	},
	"HKCategoryTypeIdentifierSexualActivity": {
		Kind: core.SampleKindCategory, StreamID: "sexual-activity", ParentStreamID: StreamReproductive,
		ContentType: ContentBooleanBool,
		CategoryTokens: map[int64]string{
			0: "true",
		},
	},
	"HKCategoryTypeIdentifierIntermenstrualBleeding": {
		Kind: core.SampleKindCategory, StreamID: "intermenstrual-bleeding", ParentStreamID: StreamReproductive,
		ContentType: ContentBooleanBool,
		CategoryTokens: map[int64]string{
			0: "true",
		},
	},

	// Clinical records: structured summary plus the raw FHIR document as an
	// attachment.
	"HKClinicalTypeIdentifierAllergyRecord": {
		Kind: core.SampleKindClinical, StreamID: "allergies", ParentStreamID: StreamClinical,
		ContentType: ContentClinicalFhir,
	},
	"HKClinicalTypeIdentifierConditionRecord": {
		Kind: core.SampleKindClinical, StreamID: "conditions", ParentStreamID: StreamClinical,
		ContentType: ContentClinicalFhir,
	},
	"HKClinicalTypeIdentifierImmunizationRecord": {
		Kind: core.SampleKindClinical, StreamID: "immunizations", ParentStreamID: StreamClinical,
		ContentType: ContentClinicalFhir,
	},
	"HKClinicalTypeIdentifierLabResultRecord": {
		Kind: core.SampleKindClinical, StreamID: "lab-results", ParentStreamID: StreamClinical,
		ContentType: ContentClinicalFhir,
	},
	"HKClinicalTypeIdentifierMedicationRecord": {
		Kind: core.SampleKindClinical, StreamID: "medications", ParentStreamID: StreamClinical,
		ContentType: ContentClinicalFhir,
	},
	"HKClinicalTypeIdentifierProcedureRecord": {
		Kind: core.SampleKindClinical, StreamID: "procedures", ParentStreamID: StreamClinical,
		ContentType: ContentClinicalFhir,
	},
	"HKClinicalTypeIdentifierVitalSignRecord": {
		Kind: core.SampleKindClinical, StreamID: "vital-signs", ParentStreamID: StreamClinical,
		ContentType: ContentClinicalFhir,
	},

	// Characteristics: fixed data read once per engine start.
	"HKCharacteristicTypeIdentifierDateOfBirth": {
		Kind: core.SampleKindCharacteristic, StreamID: "date-of-birth", ParentStreamID: StreamCharacteristics,
		ContentType: ContentDateISO,
	},
	"HKCharacteristicTypeIdentifierBiologicalSex": {
		Kind: core.SampleKindCharacteristic, StreamID: "biological-sex", ParentStreamID: StreamCharacteristics,
		ContentType: ContentNoteTxt,
	},
	"HKCharacteristicTypeIdentifierBloodType": {
		Kind: core.SampleKindCharacteristic, StreamID: "blood-type", ParentStreamID: StreamCharacteristics,
		ContentType: ContentNoteTxt,
	},
	"HKCharacteristicTypeIdentifierFitzpatrickSkinType": {
		Kind: core.SampleKindCharacteristic, StreamID: "skin-type", ParentStreamID: StreamCharacteristics,
		ContentType: ContentNoteTxt,
	},
	"HKCharacteristicTypeIdentifierWheelchairUse": {
		Kind: core.SampleKindCharacteristic, StreamID: "wheelchair-use", ParentStreamID: StreamCharacteristics,
		ContentType: ContentBooleanBool,
	},
}

// Resolve returns the mapping for a source sample type. Total: unknown
// types resolve to the diary/note default rather than failing.
func Resolve(sourceType string) core.TypeMapping {
	key := strings.TrimSpace(sourceType)
	if mapping, ok := mappings[key]; ok {
		mapping.SourceType = key
		return mapping
	}
	fallback := defaultMapping
	fallback.SourceType = key
	return fallback
}

// SupportedTypes lists every explicitly mapped source type, sorted.
func SupportedTypes() []string {
	out := make([]string, 0, len(mappings))
	for key := range mappings {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Mappings resolves a configured monitored-stream set into its mapping
// list, in the order given.
func Mappings(streams []core.MonitoredStream) []core.TypeMapping {
	out := make([]core.TypeMapping, 0, len(streams))
	for _, stream := range streams {
		out = append(out, Resolve(stream.SourceType))
	}
	return out
}

// ContentTypes returns the fixed set of canonical content-type strings.
func ContentTypes() map[string]struct{} {
	return map[string]struct{}{
		ContentMassKg:          {},
		ContentLengthCm:        {},
		ContentCount:           {},
		ContentCountSteps:      {},
		ContentFrequencyBpm:    {},
		ContentPressureMmhg:    {},
		ContentBloodPressure:   {},
		ContentRatioPercent:    {},
		ContentEnergyKcal:      {},
		ContentTemperatureC:    {},
		ContentDensityMmolL:    {},
		ContentSpeedMs:         {},
		ContentTimeH:           {},
		ContentDateISO:         {},
		ContentNoteTxt:         {},
		ContentBooleanBool:     {},
		ContentActivityPlain:   {},
		ContentAudiogram:       {},
		ContentActivitySummary: {},
		ContentClinicalFhir:    {},
	}
}

// DefaultMonitoredStreams is the monitored-stream configuration for a full
// deployment: every mapped type, with characteristics marked static.
func DefaultMonitoredStreams() []core.MonitoredStream {
	types := SupportedTypes()
	out := make([]core.MonitoredStream, 0, len(types))
	for _, sourceType := range types {
		mapping := Resolve(sourceType)
		out = append(out, core.MonitoredStream{
			SourceType: sourceType,
			Continuous: mapping.Kind != core.SampleKindCharacteristic,
		})
	}
	return out
}
