// Package command exposes the engine's operations as dispatchable command
// messages for CLI and scheduled invocation.
package command

import (
	"strings"
)

const (
	TypeReconcileStream   = "healthsync.command.stream.reconcile"
	TypeCheckBaseline     = "healthsync.command.stream.check_baseline"
	TypeProvisionStreams  = "healthsync.command.streams.provision"
	TypeRefreshIndex      = "healthsync.command.event_index.refresh"
	TypeAdvanceSyncCursor = "healthsync.command.cursor.advance"
)

type ReconcileStreamMessage struct {
	SourceType string
}

func (ReconcileStreamMessage) Type() string { return TypeReconcileStream }

func (m ReconcileStreamMessage) Validate() error {
	if strings.TrimSpace(m.SourceType) == "" {
		return commandValidationError("source_type", "source type is required")
	}
	return nil
}

type CheckBaselineMessage struct {
	SourceType string
}

func (CheckBaselineMessage) Type() string { return TypeCheckBaseline }

func (m CheckBaselineMessage) Validate() error {
	if strings.TrimSpace(m.SourceType) == "" {
		return commandValidationError("source_type", "source type is required")
	}
	return nil
}

type ProvisionStreamsMessage struct {
	SourceTypes []string
}

func (ProvisionStreamsMessage) Type() string { return TypeProvisionStreams }

func (m ProvisionStreamsMessage) Validate() error {
	for _, sourceType := range m.SourceTypes {
		if strings.TrimSpace(sourceType) == "" {
			return commandValidationError("source_types", "source types must not be blank")
		}
	}
	return nil
}

// AdvanceSyncCursorMessage force-sets a stream's resumption token. This is
// an operator repair action: a bad cursor otherwise re-reads or skips a
// range forever.
type AdvanceSyncCursorMessage struct {
	SourceType string
	Cursor     string
}

func (AdvanceSyncCursorMessage) Type() string { return TypeAdvanceSyncCursor }

func (m AdvanceSyncCursorMessage) Validate() error {
	if strings.TrimSpace(m.SourceType) == "" {
		return commandValidationError("source_type", "source type is required")
	}
	return nil
}

type RefreshIndexMessage struct{}

func (RefreshIndexMessage) Type() string { return TypeRefreshIndex }

func (RefreshIndexMessage) Validate() error { return nil }
