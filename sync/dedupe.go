package sync

import (
	"github.com/vitalbridge/go-healthsync/core"
)

// Dedupe drops candidate samples whose source sample id already appears in
// the client data of a recently stored event. The window is bounded, so
// suppression is best-effort: a duplicate older than the window survives.
func Dedupe(candidates []core.SourceSample, recent []core.CanonicalEvent) []core.SourceSample {
	if len(candidates) == 0 {
		return nil
	}
	if len(recent) == 0 {
		return candidates
	}

	seen := make(map[string]struct{}, len(recent))
	for _, event := range recent {
		if event.ClientData.SourceSampleID != "" {
			seen[event.ClientData.SourceSampleID] = struct{}{}
		}
	}

	survivors := make([]core.SourceSample, 0, len(candidates))
	for _, candidate := range candidates {
		if _, dup := seen[candidate.ID]; dup {
			continue
		}
		survivors = append(survivors, candidate)
	}
	return survivors
}
