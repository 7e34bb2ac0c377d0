// Package sync provides the per-domain synchronization logic of the sync
// engine: deciding whether a domain is due and refreshing its local
// snapshot from the remote store.
//
// # Core Interfaces
//
//   - Manager: decides whether a domain should sync (ShouldSync) and performs
//     the fetch and snapshot write for one domain (PerformSync)
//
// # Coordinator Package
//
// The sync/coordinator subpackage is the Sync Scheduler. It funnels every
// trigger (interval, foreground, reconnect, manual) into single-flight passes,
// fans out due domains, updates the freshness tracker and emits a pass summary.
//
// # State Package
//
// The sync/state subpackage is the Freshness Tracker: per-domain last
// successful sync time, attempt bookkeeping and persistence.
//
// # Error Taxonomy
//
// Every failure surfaced by the engine is classified into one of the Kind
// values (Unreachable, Unauthorized, PartialBatchFailure, AlreadyRunning,
// MalformedLocalData, Unknown). Classify maps any error onto a Kind using the
// sentinel errors of the remote, cache and guard packages.
//
// # Sync Reasons
//
// Manager.ShouldSync returns a reason alongside its decision:
//
//   - ReasonNeverSynced: the domain has no successful sync yet
//   - ReasonIntervalElapsed: the refresh interval has elapsed
//   - ReasonManualForce: a manual trigger forced the domain
//   - ReasonUpToDate: the last sync is recent enough
//   - ReasonUnknownDomain: the domain is not registered
package sync
