package extract

import (
	"testing"
	"time"

	"github.com/vitalbridge/go-healthsync/catalog"
	"github.com/vitalbridge/go-healthsync/core"
)

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int64) *int64 { return &v }

func TestSample_QuantityAppliesUnitConversion(t *testing.T) {
	mapping := catalog.Resolve("HKQuantityTypeIdentifierBodyMass")
	out := Sample(core.SourceSample{ID: "S1", Value: floatPtr(72.5)}, mapping)
	if out.Content.Kind != core.ContentKindNumber {
		t.Fatalf("expected number content, got %q", out.Content.Kind)
	}
	if out.Content.Number != 72.5 {
		t.Fatalf("expected 72.5, got %v", out.Content.Number)
	}

	heightMapping := catalog.Resolve("HKQuantityTypeIdentifierHeight")
	out = Sample(core.SourceSample{ID: "S2", Value: floatPtr(1.80)}, heightMapping)
	if out.Content.Number != 180 {
		t.Fatalf("expected height in cm, got %v", out.Content.Number)
	}
}

func TestSample_QuantityWithoutValueIsNull(t *testing.T) {
	mapping := catalog.Resolve("HKQuantityTypeIdentifierBodyMass")
	out := Sample(core.SourceSample{ID: "S1"}, mapping)
	if !out.Content.IsNull() {
		t.Fatalf("expected null content for missing value")
	}
	if out.ShouldEmit() {
		t.Fatalf("null content with no attachment must not be emitted")
	}
}

func TestSample_CategoryTokenAndUnknownValue(t *testing.T) {
	mapping := catalog.Resolve("HKCategoryTypeIdentifierSleepAnalysis")
	out := Sample(core.SourceSample{ID: "S1", Category: intPtr(1)}, mapping)
	if out.Content.Kind != core.ContentKindString || out.Content.Text != "asleep" {
		t.Fatalf("expected asleep token, got %+v", out.Content)
	}

	out = Sample(core.SourceSample{ID: "S2", Category: intPtr(42)}, mapping)
	if !out.Content.IsNull() {
		t.Fatalf("expected null content for unrecognized category value")
	}

	out = Sample(core.SourceSample{ID: "S3"}, mapping)
	if !out.Content.IsNull() {
		t.Fatalf("expected null content for unset category value")
	}
}

func TestSample_BloodPressureAllOrNothing(t *testing.T) {
	mapping := catalog.Resolve("HKCorrelationTypeIdentifierBloodPressure")

	out := Sample(core.SourceSample{
		ID:         "S1",
		Components: map[string]float64{"systolic": 120, "diastolic": 80},
	}, mapping)
	if out.Content.Kind != core.ContentKindObject {
		t.Fatalf("expected object content, got %q", out.Content.Kind)
	}
	if out.Content.Object["systolic"] != 120.0 || out.Content.Object["diastolic"] != 80.0 {
		t.Fatalf("unexpected reading: %+v", out.Content.Object)
	}

	out = Sample(core.SourceSample{
		ID:         "S2",
		Components: map[string]float64{"systolic": 120},
	}, mapping)
	if !out.Content.IsNull() {
		t.Fatalf("expected null content when diastolic is missing")
	}
}

func TestSample_WorkoutVoidsMissingFieldsOnly(t *testing.T) {
	mapping := catalog.Resolve("HKWorkoutTypeIdentifier")
	start := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	out := Sample(core.SourceSample{
		ID:         "W1",
		StartedAt:  start,
		EndedAt:    start.Add(30 * time.Minute),
		Components: map[string]float64{"distance": 5000},
		Metadata:   map[string]any{"activityType": "running"},
		Segments: []core.SampleSegment{
			{Label: "lap", Value: 2500, Unit: "m", StartedAt: start, EndedAt: start.Add(14 * time.Minute)},
		},
	}, mapping)
	if out.Content.Kind != core.ContentKindObject {
		t.Fatalf("expected object content, got %q", out.Content.Kind)
	}
	object := out.Content.Object
	if object["activityType"] != "running" {
		t.Fatalf("expected activity type, got %+v", object)
	}
	if object["distance"] != 5000.0 {
		t.Fatalf("expected distance, got %+v", object)
	}
	if object["duration"] != 1800.0 {
		t.Fatalf("expected duration from sample window, got %v", object["duration"])
	}
	if _, ok := object["energy"]; ok {
		t.Fatalf("missing energy constituent must be voided, not defaulted")
	}
	if _, ok := object["segments"]; !ok {
		t.Fatalf("expected segments in workout content")
	}
}

func TestSample_AudiogramPointsSorted(t *testing.T) {
	mapping := catalog.Resolve("HKAudiogramSampleType")
	out := Sample(core.SourceSample{
		ID: "A1",
		Components: map[string]float64{
			"right:1000": 25,
			"left:4000":  30,
			"left:1000":  20,
			"bogus":      1,
		},
	}, mapping)
	if out.Content.Kind != core.ContentKindObject {
		t.Fatalf("expected object content, got %q", out.Content.Kind)
	}
	points, ok := out.Content.Object["points"].([]any)
	if !ok || len(points) != 3 {
		t.Fatalf("expected 3 audiogram points, got %+v", out.Content.Object["points"])
	}
	first := points[0].(map[string]any)
	if first["ear"] != "left" || first["frequency"] != 1000.0 {
		t.Fatalf("expected sorted points starting at left:1000, got %+v", first)
	}
}

func TestSample_ClinicalRecordCarriesAttachment(t *testing.T) {
	mapping := catalog.Resolve("HKClinicalTypeIdentifierAllergyRecord")
	doc := []byte(`{"resourceType":"AllergyIntolerance"}`)
	out := Sample(core.SourceSample{
		ID:       "C1",
		Document: doc,
		Metadata: map[string]any{"resourceType": "AllergyIntolerance", "displayName": "Peanut"},
	}, mapping)
	if out.Attachment == nil {
		t.Fatalf("expected attachment for clinical record")
	}
	if out.Attachment.MIMEType != "application/json" {
		t.Fatalf("expected default mime type, got %q", out.Attachment.MIMEType)
	}
	if out.Content.Kind != core.ContentKindObject {
		t.Fatalf("expected structured summary, got %q", out.Content.Kind)
	}
	if !out.ShouldEmit() {
		t.Fatalf("clinical record with attachment must be emitted")
	}
}

func TestSnapshot_Characteristics(t *testing.T) {
	dob := time.Date(1987, 6, 15, 0, 0, 0, 0, time.UTC)
	out := Snapshot(core.SourceSnapshot{
		TypeID: "HKCharacteristicTypeIdentifierDateOfBirth",
		Date:   &dob,
	}, catalog.Resolve("HKCharacteristicTypeIdentifierDateOfBirth"))
	if out.Content.Text != "1987-06-15" {
		t.Fatalf("expected iso date, got %+v", out.Content)
	}

	out = Snapshot(core.SourceSnapshot{
		TypeID: "HKCharacteristicTypeIdentifierBiologicalSex",
		Token:  "female",
	}, catalog.Resolve("HKCharacteristicTypeIdentifierBiologicalSex"))
	if out.Content.Text != "female" {
		t.Fatalf("expected sex token, got %+v", out.Content)
	}

	out = Snapshot(core.SourceSnapshot{
		TypeID: "HKCharacteristicTypeIdentifierWheelchairUse",
		Token:  "false",
	}, catalog.Resolve("HKCharacteristicTypeIdentifierWheelchairUse"))
	if out.Content.Kind != core.ContentKindBool || out.Content.Bool {
		t.Fatalf("expected bool false, got %+v", out.Content)
	}

	out = Snapshot(core.SourceSnapshot{TypeID: "HKCharacteristicTypeIdentifierBloodType", Token: "notSet"},
		catalog.Resolve("HKCharacteristicTypeIdentifierBloodType"))
	if !out.Content.IsNull() {
		t.Fatalf("expected null content for notSet characteristic")
	}
}
