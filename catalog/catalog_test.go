package catalog

import (
	"math"
	"testing"

	"github.com/vitalbridge/go-healthsync/core"
)

func TestResolve_UnknownTypeFallsBackToDiaryNote(t *testing.T) {
	for _, sourceType := range []string{"", "   ", "HKQuantityTypeIdentifierNotAThing", "garbage"} {
		mapping := Resolve(sourceType)
		if mapping.StreamID != StreamDiary {
			t.Fatalf("expected diary fallback for %q, got %q", sourceType, mapping.StreamID)
		}
		if mapping.ParentStreamID != "" {
			t.Fatalf("expected no parent for fallback, got %q", mapping.ParentStreamID)
		}
		if mapping.ContentType != ContentNoteTxt {
			t.Fatalf("expected note/txt fallback, got %q", mapping.ContentType)
		}
	}
}

func TestResolve_TotalOverSupportedTypes(t *testing.T) {
	contentTypes := ContentTypes()
	for _, sourceType := range SupportedTypes() {
		mapping := Resolve(sourceType)
		if mapping.SourceType != sourceType {
			t.Fatalf("mapping source type mismatch: %q vs %q", mapping.SourceType, sourceType)
		}
		if mapping.StreamID == "" {
			t.Fatalf("%s: empty stream id", sourceType)
		}
		if _, ok := contentTypes[mapping.ContentType]; !ok {
			t.Fatalf("%s: content type %q is not in the canonical set", sourceType, mapping.ContentType)
		}
		if mapping.Kind == "" {
			t.Fatalf("%s: missing sample kind", sourceType)
		}
	}
}

func TestResolve_UnitPresentExactlyForQuantityKinds(t *testing.T) {
	for _, sourceType := range SupportedTypes() {
		mapping := Resolve(sourceType)
		numeric := mapping.Kind == core.SampleKindQuantity || mapping.Kind == core.SampleKindCorrelation
		if numeric && mapping.Unit == nil {
			t.Fatalf("%s: numeric kind without unit", sourceType)
		}
		if !numeric && mapping.Unit != nil {
			t.Fatalf("%s: non-numeric kind %q carries unit %q", sourceType, mapping.Kind, mapping.Unit.Symbol)
		}
	}
}

func TestResolve_CategoryKindsHaveTokenTables(t *testing.T) {
	for _, sourceType := range SupportedTypes() {
		mapping := Resolve(sourceType)
		if mapping.Kind == core.SampleKindCategory && len(mapping.CategoryTokens) == 0 {
			t.Fatalf("%s: category kind without token table", sourceType)
		}
		if mapping.Kind != core.SampleKindCategory && len(mapping.CategoryTokens) != 0 {
			t.Fatalf("%s: token table on non-category kind", sourceType)
		}
	}
}

func TestUnit_ConversionRoundTrip(t *testing.T) {
	cases := []struct {
		sourceType string
		source     float64
		canonical  float64
	}{
		{"HKQuantityTypeIdentifierBodyMass", 72.5, 72.5},
		{"HKQuantityTypeIdentifierHeight", 1.80, 180},
		{"HKQuantityTypeIdentifierHeartRate", 1.2, 72},
		{"HKQuantityTypeIdentifierOxygenSaturation", 0.97, 97},
		{"HKQuantityTypeIdentifierAppleExerciseTime", 5400, 1.5},
	}
	for _, tc := range cases {
		mapping := Resolve(tc.sourceType)
		if mapping.Unit == nil {
			t.Fatalf("%s: expected unit", tc.sourceType)
		}
		converted := mapping.Unit.Convert(tc.source)
		if math.Abs(converted-tc.canonical) > 1e-9 {
			t.Fatalf("%s: convert %v -> %v, expected %v", tc.sourceType, tc.source, converted, tc.canonical)
		}
		recovered := mapping.Unit.Invert(converted)
		if math.Abs(recovered-tc.source) > 1e-9 {
			t.Fatalf("%s: invert %v -> %v, expected %v", tc.sourceType, converted, recovered, tc.source)
		}
	}
}

func TestDefaultMonitoredStreams_CharacteristicsAreStatic(t *testing.T) {
	streams := DefaultMonitoredStreams()
	if len(streams) != len(SupportedTypes()) {
		t.Fatalf("expected one monitored stream per supported type")
	}
	for _, stream := range streams {
		mapping := Resolve(stream.SourceType)
		static := mapping.Kind == core.SampleKindCharacteristic
		if static && stream.Continuous {
			t.Fatalf("%s: characteristic stream marked continuous", stream.SourceType)
		}
		if !static && !stream.Continuous {
			t.Fatalf("%s: dynamic stream marked static", stream.SourceType)
		}
	}
}
