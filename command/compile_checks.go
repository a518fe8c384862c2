package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReconcileStreamMessage]   = (*ReconcileStreamCommand)(nil)
	_ gocmd.Commander[CheckBaselineMessage]     = (*CheckBaselineCommand)(nil)
	_ gocmd.Commander[ProvisionStreamsMessage]  = (*ProvisionStreamsCommand)(nil)
	_ gocmd.Commander[AdvanceSyncCursorMessage] = (*AdvanceSyncCursorCommand)(nil)
	_ gocmd.Commander[RefreshIndexMessage]      = (*RefreshIndexCommand)(nil)
)
