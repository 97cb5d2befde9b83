// Package engine implements the crawl orchestration engine.
//
// A crawl runs in two phases. The links phase calls Discover on every
// registered site crawler concurrently, one goroutine per crawler, and
// accumulates the returned URLs as pending links. The details phase runs
// Extract for each link on a bounded worker pool. Both phases share a pause
// gate and a progress tracker, invoke the registered callbacks for every
// committed unit of work, and persist their output to a crawler.ResultStore
// so the details phase can resume from a previous links phase.
//
// Every commit (append, counter update, callbacks) happens inside a single
// critical section entered only while the gate is open. Callbacks therefore
// run on worker goroutines while the engine lock is held: they must be quick
// and must not call Links or Details. Pause, Resume and Progress are safe to
// call from callbacks.
//
// Failure policy: a failed discovery contributes no links; a failed or
// unknown-source extraction marks its link as Error and counts as a failed
// unit. Failed units count toward completion, so a finished details phase
// reports 100 percent with Processed successes and Failed errors. Only store
// failures and context cancellation are returned to the caller, always
// together with the results gathered so far.
//
// The links total grows as each crawler reports, so the links percentage is
// only meaningful once every crawler has returned from Discover.
package engine
