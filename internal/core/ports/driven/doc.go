// Package driven defines the interfaces the core depends on: service
// adapters for the external document store, calendar and chat platform,
// and the stores backing the local cache. Implementations live under
// internal/connectors and internal/adapters/driven.
package driven
