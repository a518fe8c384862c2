// Package core contains the canonical healthsync domain contracts, entities,
// and shared configuration. Adapters (stores, providers, transports) must
// depend on this package; core must not depend on any adapter.
package core
