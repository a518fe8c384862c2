package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/vitalbridge/go-healthsync/core"
)

// DeletionReport summarizes one tombstone reconciliation pass.
type DeletionReport struct {
	// Deleted holds the canonical event ids removed from the remote store.
	Deleted []string
	// Unreconciled holds source sample ids no stored event could be matched
	// to. They are dropped, not retried.
	Unreconciled []string
	// UsedSlowPath reports whether the index had to be rebuilt from a
	// remote page.
	UsedSlowPath bool
}

// DeletionReconciler maps deletion tombstones, which carry only source
// sample ids, back to canonical event ids. The fast path consults the
// local index; when any tombstone misses, a bounded remote page rebuilds
// the index before a second lookup.
type DeletionReconciler struct {
	api       core.EventAPI
	index     core.EventIndexStore
	logger    core.Logger
	pageLimit int
	now       func() time.Time
}

func NewDeletionReconciler(api core.EventAPI, index core.EventIndexStore, pageLimit int, logger core.Logger) *DeletionReconciler {
	return &DeletionReconciler{
		api:       api,
		index:     index,
		logger:    logger,
		pageLimit: pageLimit,
	}
}

// Reconcile resolves the tombstones and deletes every matched event.
// Failures are logged per id; reconciliation is best-effort and never
// blocks the surrounding cycle.
func (r *DeletionReconciler) Reconcile(ctx context.Context, tombstones []core.DeletionTombstone) DeletionReport {
	report := DeletionReport{}
	if r == nil || len(tombstones) == 0 {
		return report
	}

	sampleIDs := make([]string, 0, len(tombstones))
	for _, tombstone := range tombstones {
		sampleIDs = append(sampleIDs, tombstone.SourceSampleID)
	}

	matches, err := r.index.Lookup(ctx, sampleIDs)
	if err != nil {
		r.logger.Warn("deletion index lookup failed", "error", err.Error())
		matches = map[string]string{}
	}

	if len(matches) < len(sampleIDs) {
		report.UsedSlowPath = true
		rebuilt, rebuildErr := r.rebuildIndex(ctx)
		if rebuildErr != nil {
			r.logger.Error("deletion index rebuild failed", "error", rebuildErr.Error())
		} else {
			for sampleID, eventID := range rebuilt {
				if _, ok := matches[sampleID]; !ok {
					matches[sampleID] = eventID
				}
			}
		}
	}

	for _, sampleID := range sampleIDs {
		eventID, ok := matches[sampleID]
		if !ok {
			// Tombstone for a sample never stored, or stored before the
			// index's horizon. Dropping is acceptable for derived data.
			report.Unreconciled = append(report.Unreconciled, sampleID)
			r.logger.Info("deletion tombstone unmatched", "source_sample_id", sampleID)
			continue
		}
		if err := r.api.DeleteEvent(ctx, eventID); err != nil {
			r.logger.Error("remote event delete failed",
				"event_id", eventID, "source_sample_id", sampleID, "error", err.Error())
			continue
		}
		report.Deleted = append(report.Deleted, eventID)
	}
	return report
}

// RefreshIndex rebuilds the local association index from a bounded remote
// page. Used by the periodic refresh job and on-demand maintenance.
func (r *DeletionReconciler) RefreshIndex(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("sync: deletion reconciler is nil")
	}
	_, err := r.rebuildIndex(ctx)
	return err
}

// rebuildIndex fetches one bounded page of remote events and replaces the
// local associations. Bounded by the modified-since watermark when one
// exists, otherwise by the fixed page limit.
func (r *DeletionReconciler) rebuildIndex(ctx context.Context) (map[string]string, error) {
	filter := core.EventsFilter{Limit: r.pageLimit}
	watermark, ok, err := r.index.Watermark(ctx)
	if err != nil {
		r.logger.Warn("deletion watermark read failed", "error", err.Error())
	} else if ok {
		filter.ModifiedSince = &watermark
	}

	page, err := r.api.GetEvents(ctx, filter)
	if err != nil {
		return nil, err
	}

	refreshedAt := page.ServerTime
	if refreshedAt.IsZero() {
		refreshedAt = r.clock()
	}
	entries := make([]core.EventIndexEntry, 0, len(page.Events))
	associations := make(map[string]string, len(page.Events))
	for _, event := range page.Events {
		sampleID := event.ClientData.SourceSampleID
		if sampleID == "" {
			continue
		}
		entries = append(entries, core.EventIndexEntry{
			SourceSampleID: sampleID,
			EventID:        event.ID,
			RefreshedAt:    refreshedAt,
		})
		associations[sampleID] = event.ID
	}

	if err := r.index.Replace(ctx, entries); err != nil {
		r.logger.Warn("deletion index replace failed", "error", err.Error())
	}
	if err := r.index.SaveWatermark(ctx, refreshedAt); err != nil {
		r.logger.Warn("deletion watermark save failed", "error", err.Error())
	}
	return associations, nil
}

func (r *DeletionReconciler) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}
