package healthfile

import (
	"fmt"
	"time"

	"github.com/vitalbridge/go-healthsync/core"
)

// wireBatch is one export batch file. Sequence numbers are assigned by the
// exporter and strictly increase across files.
type wireBatch struct {
	Sequence  int64          `json:"sequence"`
	Samples   []wireSample   `json:"samples"`
	Deletions []wireDeletion `json:"deletions"`
}

type wireSample struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	Value      *float64           `json:"value,omitempty"`
	Category   *int64             `json:"category,omitempty"`
	Components map[string]float64 `json:"components,omitempty"`
	Segments   []wireSegment      `json:"segments,omitempty"`
	Document   []byte             `json:"document,omitempty"`
	DocFormat  string             `json:"documentFormat,omitempty"`
	DocName    string             `json:"documentName,omitempty"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
}

type wireSegment struct {
	Label string    `json:"label"`
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
	Value float64   `json:"value"`
	Unit  string    `json:"unit,omitempty"`
}

type wireDeletion struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type wireProfile struct {
	Characteristics map[string]wireCharacteristic `json:"characteristics"`
}

type wireCharacteristic struct {
	Token string `json:"token,omitempty"`
	Date  string `json:"date,omitempty"`
}

func (s wireSample) toDomain() core.SourceSample {
	sample := core.SourceSample{
		ID:         s.ID,
		TypeID:     s.Type,
		StartedAt:  s.Start,
		EndedAt:    s.End,
		Value:      s.Value,
		Category:   s.Category,
		Components: s.Components,
		Document:   s.Document,
		DocFormat:  s.DocFormat,
		DocName:    s.DocName,
		Metadata:   s.Metadata,
	}
	for _, segment := range s.Segments {
		sample.Segments = append(sample.Segments, core.SampleSegment{
			Label:     segment.Label,
			StartedAt: segment.Start,
			EndedAt:   segment.End,
			Value:     segment.Value,
			Unit:      segment.Unit,
		})
	}
	return sample
}

func (d wireDeletion) toDomain() core.DeletionTombstone {
	return core.DeletionTombstone{
		SourceSampleID: d.ID,
		DeletedAt:      d.DeletedAt,
	}
}

func (c wireCharacteristic) toDomain(sourceType string) (core.SourceSnapshot, error) {
	snapshot := core.SourceSnapshot{
		TypeID: sourceType,
		Token:  c.Token,
	}
	if c.Date != "" {
		parsed, err := time.Parse("2006-01-02", c.Date)
		if err != nil {
			return core.SourceSnapshot{}, fmt.Errorf("healthfile: invalid characteristic date %q: %w", c.Date, err)
		}
		snapshot.Date = &parsed
	}
	return snapshot, nil
}
