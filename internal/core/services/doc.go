// Package services implements the core application services: the cache
// reconciliation engine, the workflow orchestrator, the query layer and
// the background scheduler. Services depend only on the driven ports
// and the rate-limited client; all I/O specifics live in adapters.
package services
