// Package coordinator schedules and executes sync passes.
//
// A pass looks at every domain in scope, asks the sync Manager which ones are
// due, and fetches those concurrently (bounded by MaxConcurrentFetches). Each
// domain succeeds or fails on its own; a failed fetch leaves that domain's
// snapshot and freshness untouched.
//
// Passes are single-flight. RunPass returns guard.ErrAlreadyRunning while
// another pass holds the guard, without fetching anything.
//
// Triggers arrive from four places: the jittered interval timer owned by
// Start, the API (foreground and manual), and the connectivity monitor
// (reconnect). Trigger enqueues without blocking; when the queue is full the
// trigger is dropped, since a queued pass will pick up the same due domains.
//
//	c := coordinator.New(manager, tracker, domains, cfg,
//	    coordinator.WithConnectivity(monitor),
//	    coordinator.WithPostProcessors(expiryWatcher))
//
//	go c.Start(ctx)
//	defer c.Stop()
//
//	summary, err := c.RunPass(ctx, coordinator.Trigger{Source: coordinator.TriggerManual, Force: true})
package coordinator
