// Package extract turns raw source samples into canonical content values
// according to their resolved type mapping. Extraction never fails:
// unavailable or malformed source data degrades to a null content value,
// which callers read as "do not sync this occurrence".
package extract

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vitalbridge/go-healthsync/core"
)

const (
	componentSystolic  = "systolic"
	componentDiastolic = "diastolic"
	componentDuration  = "duration"
	componentDistance  = "distance"
	componentEnergy    = "energy"
)

// Sample extracts content from a feed sample using its mapping.
func Sample(sample core.SourceSample, mapping core.TypeMapping) core.ExtractedContent {
	switch mapping.Kind {
	case core.SampleKindQuantity:
		return quantityContent(sample, mapping)
	case core.SampleKindCategory:
		return categoryContent(sample, mapping)
	case core.SampleKindCorrelation:
		return bloodPressureContent(sample, mapping)
	case core.SampleKindWorkout:
		return workoutContent(sample)
	case core.SampleKindAudiogram:
		return audiogramContent(sample)
	case core.SampleKindActivity:
		return activitySummaryContent(sample)
	case core.SampleKindClinical:
		return clinicalContent(sample)
	default:
		return core.ExtractedContent{Content: core.NullValue()}
	}
}

// Snapshot extracts content from a characteristic store snapshot.
func Snapshot(snapshot core.SourceSnapshot, mapping core.TypeMapping) core.ExtractedContent {
	if snapshot.IsZero() {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	switch mapping.ContentType {
	case "date/iso8601":
		if snapshot.Date == nil {
			return core.ExtractedContent{Content: core.NullValue()}
		}
		return core.ExtractedContent{Content: core.StringValue(snapshot.Date.UTC().Format("2006-01-02"))}
	case "boolean/bool":
		token := strings.TrimSpace(strings.ToLower(snapshot.Token))
		switch token {
		case "true", "yes", "1":
			return core.ExtractedContent{Content: core.BoolValue(true)}
		case "false", "no", "0":
			return core.ExtractedContent{Content: core.BoolValue(false)}
		default:
			return core.ExtractedContent{Content: core.NullValue()}
		}
	default:
		token := strings.TrimSpace(snapshot.Token)
		if token == "" || strings.EqualFold(token, "notSet") {
			return core.ExtractedContent{Content: core.NullValue()}
		}
		return core.ExtractedContent{Content: core.StringValue(token)}
	}
}

func quantityContent(sample core.SourceSample, mapping core.TypeMapping) core.ExtractedContent {
	if sample.Value == nil {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	value := *sample.Value
	if mapping.Unit != nil {
		value = mapping.Unit.Convert(value)
	}
	return core.ExtractedContent{Content: core.NumberValue(value)}
}

func categoryContent(sample core.SourceSample, mapping core.TypeMapping) core.ExtractedContent {
	if sample.Category == nil {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	token, ok := mapping.CategoryTokens[*sample.Category]
	if !ok {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	if mapping.ContentType == "boolean/bool" {
		return core.ExtractedContent{Content: core.BoolValue(token == "true")}
	}
	return core.ExtractedContent{Content: core.StringValue(token)}
}

// bloodPressureContent is all-or-nothing: a reading missing either
// constituent yields null for the whole reading.
func bloodPressureContent(sample core.SourceSample, mapping core.TypeMapping) core.ExtractedContent {
	systolic, hasSystolic := sample.Components[componentSystolic]
	diastolic, hasDiastolic := sample.Components[componentDiastolic]
	if !hasSystolic || !hasDiastolic {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	if mapping.Unit != nil {
		systolic = mapping.Unit.Convert(systolic)
		diastolic = mapping.Unit.Convert(diastolic)
	}
	return core.ExtractedContent{Content: core.ObjectValue(map[string]any{
		componentSystolic:  systolic,
		componentDiastolic: diastolic,
	})}
}

// workoutContent joins the scalar constituents and the segment list into a
// structured summary. A missing constituent voids only its own field.
func workoutContent(sample core.SourceSample) core.ExtractedContent {
	object := map[string]any{}
	if activity, ok := sample.Metadata["activityType"].(string); ok && strings.TrimSpace(activity) != "" {
		object["activityType"] = activity
	}
	if duration, ok := sample.Components[componentDuration]; ok {
		object["duration"] = duration
	} else if !sample.EndedAt.IsZero() && !sample.StartedAt.IsZero() {
		object["duration"] = sample.EndedAt.Sub(sample.StartedAt).Seconds()
	}
	if distance, ok := sample.Components[componentDistance]; ok {
		object["distance"] = distance
	}
	if energy, ok := sample.Components[componentEnergy]; ok {
		object["energy"] = energy
	}
	if len(sample.Segments) > 0 {
		segments := make([]any, 0, len(sample.Segments))
		for _, segment := range sample.Segments {
			entry := map[string]any{
				"label": segment.Label,
				"value": segment.Value,
			}
			if segment.Unit != "" {
				entry["unit"] = segment.Unit
			}
			if !segment.StartedAt.IsZero() {
				entry["start"] = segment.StartedAt.UTC().Format(time.RFC3339)
			}
			if !segment.EndedAt.IsZero() {
				entry["end"] = segment.EndedAt.UTC().Format(time.RFC3339)
			}
			segments = append(segments, entry)
		}
		object["segments"] = segments
	}
	if len(object) == 0 {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	return core.ExtractedContent{Content: core.ObjectValue(object)}
}

// audiogramContent reads sensitivity points from component keys of the form
// "<ear>:<frequencyHz>", e.g. "left:1000".
func audiogramContent(sample core.SourceSample) core.ExtractedContent {
	points := make([]map[string]any, 0, len(sample.Components))
	for key, sensitivity := range sample.Components {
		parts := strings.SplitN(key, ":", 2)
		if len(parts) != 2 {
			continue
		}
		ear := strings.TrimSpace(strings.ToLower(parts[0]))
		if ear != "left" && ear != "right" {
			continue
		}
		frequency, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		points = append(points, map[string]any{
			"ear":         ear,
			"frequency":   frequency,
			"sensitivity": sensitivity,
		})
	}
	if len(points) == 0 {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	sort.Slice(points, func(i, j int) bool {
		left, right := points[i], points[j]
		if left["ear"] != right["ear"] {
			return left["ear"].(string) < right["ear"].(string)
		}
		return left["frequency"].(float64) < right["frequency"].(float64)
	})
	values := make([]any, len(points))
	for i, point := range points {
		values[i] = point
	}
	return core.ExtractedContent{Content: core.ObjectValue(map[string]any{"points": values})}
}

func activitySummaryContent(sample core.SourceSample) core.ExtractedContent {
	object := map[string]any{}
	for _, key := range []string{"activeEnergy", "activeEnergyGoal", "exerciseTime", "exerciseTimeGoal", "standHours", "standHoursGoal"} {
		if value, ok := sample.Components[key]; ok {
			object[key] = value
		}
	}
	if len(object) == 0 {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	if !sample.StartedAt.IsZero() {
		object["date"] = sample.StartedAt.UTC().Format("2006-01-02")
	}
	return core.ExtractedContent{Content: core.ObjectValue(object)}
}

// clinicalContent returns a small structured summary plus the raw source
// document bytes as an attachment.
func clinicalContent(sample core.SourceSample) core.ExtractedContent {
	object := map[string]any{}
	if resourceType, ok := sample.Metadata["resourceType"].(string); ok && strings.TrimSpace(resourceType) != "" {
		object["resourceType"] = resourceType
	}
	if displayName, ok := sample.Metadata["displayName"].(string); ok && strings.TrimSpace(displayName) != "" {
		object["displayName"] = displayName
	}

	var attachment *core.Attachment
	if len(sample.Document) > 0 {
		mimeType := strings.TrimSpace(sample.DocFormat)
		if mimeType == "" {
			mimeType = "application/json"
		}
		filename := strings.TrimSpace(sample.DocName)
		if filename == "" {
			filename = sample.ID + ".json"
		}
		attachment = &core.Attachment{
			Bytes:    sample.Document,
			MIMEType: mimeType,
			Filename: filename,
		}
	}

	content := core.NullValue()
	if len(object) > 0 {
		content = core.ObjectValue(object)
	}
	if content.IsNull() && attachment == nil {
		return core.ExtractedContent{Content: core.NullValue()}
	}
	return core.ExtractedContent{Content: content, Attachment: attachment}
}
