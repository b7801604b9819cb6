// Package domain contains the core business entities and errors.
// It has no dependencies on other internal packages and defines the
// vocabulary shared by the reconciler, the workflow orchestrator and
// the query layer: external records, cached pages, thread mappings,
// sync cursors and workflow runs.
package domain
