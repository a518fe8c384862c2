package command

import (
	"context"

	"github.com/vitalbridge/go-healthsync/catalog"
	"github.com/vitalbridge/go-healthsync/core"
	"github.com/vitalbridge/go-healthsync/provision"
	"github.com/vitalbridge/go-healthsync/sync"
)

// SyncEngine is the engine surface the stream commands drive.
type SyncEngine interface {
	Reconcile(ctx context.Context, sourceType string) (sync.ReconcileReport, error)
	CheckBaseline(ctx context.Context, sourceType string) error
}

// StreamProvisioner creates destination streams ahead of event writes.
type StreamProvisioner interface {
	EnsureStreams(ctx context.Context, mappings []core.TypeMapping) provision.Result
}

// IndexMaintainer rebuilds the deletion-reconciliation index.
type IndexMaintainer interface {
	RefreshIndex(ctx context.Context) error
}

type ReconcileStreamCommand struct {
	engine SyncEngine
}

func NewReconcileStreamCommand(engine SyncEngine) *ReconcileStreamCommand {
	return &ReconcileStreamCommand{engine: engine}
}

func (c *ReconcileStreamCommand) Execute(ctx context.Context, msg ReconcileStreamMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: sync engine is required")
	}
	_, err := c.engine.Reconcile(ctx, msg.SourceType)
	return err
}

type CheckBaselineCommand struct {
	engine SyncEngine
}

func NewCheckBaselineCommand(engine SyncEngine) *CheckBaselineCommand {
	return &CheckBaselineCommand{engine: engine}
}

func (c *CheckBaselineCommand) Execute(ctx context.Context, msg CheckBaselineMessage) error {
	if c == nil || c.engine == nil {
		return commandDependencyError("command: sync engine is required")
	}
	return c.engine.CheckBaseline(ctx, msg.SourceType)
}

type ProvisionStreamsCommand struct {
	provisioner StreamProvisioner
}

func NewProvisionStreamsCommand(provisioner StreamProvisioner) *ProvisionStreamsCommand {
	return &ProvisionStreamsCommand{provisioner: provisioner}
}

// Execute provisions the named source types, or every supported type when
// none are given. Partial failure is not an error here: the result is
// logged by the provisioner and failed streams surface when events flow.
func (c *ProvisionStreamsCommand) Execute(ctx context.Context, msg ProvisionStreamsMessage) error {
	if c == nil || c.provisioner == nil {
		return commandDependencyError("command: stream provisioner is required")
	}
	sourceTypes := msg.SourceTypes
	if len(sourceTypes) == 0 {
		sourceTypes = catalog.SupportedTypes()
	}
	streams := make([]core.MonitoredStream, 0, len(sourceTypes))
	for _, sourceType := range sourceTypes {
		streams = append(streams, core.MonitoredStream{SourceType: sourceType})
	}
	c.provisioner.EnsureStreams(ctx, catalog.Mappings(streams))
	return nil
}

type AdvanceSyncCursorCommand struct {
	cursors core.SyncCursorStore
}

func NewAdvanceSyncCursorCommand(cursors core.SyncCursorStore) *AdvanceSyncCursorCommand {
	return &AdvanceSyncCursorCommand{cursors: cursors}
}

func (c *AdvanceSyncCursorCommand) Execute(ctx context.Context, msg AdvanceSyncCursorMessage) error {
	if c == nil || c.cursors == nil {
		return commandDependencyError("command: cursor store is required")
	}
	_, err := c.cursors.Save(ctx, core.SaveSyncCursorInput{
		SourceType: msg.SourceType,
		Cursor:     msg.Cursor,
		Status:     "active",
	})
	return err
}

type RefreshIndexCommand struct {
	maintainer IndexMaintainer
}

func NewRefreshIndexCommand(maintainer IndexMaintainer) *RefreshIndexCommand {
	return &RefreshIndexCommand{maintainer: maintainer}
}

func (c *RefreshIndexCommand) Execute(ctx context.Context, _ RefreshIndexMessage) error {
	if c == nil || c.maintainer == nil {
		return commandDependencyError("command: index maintainer is required")
	}
	return c.maintainer.RefreshIndex(ctx)
}
