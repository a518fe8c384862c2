// Package catalog is the static mapping table from source health-store
// sample types to canonical stream destinations, content types, and units.
// It is configuration data, not behavior: a declarative lookup structure
// that can be verified by full enumeration.
package catalog
