// Package readiness defers work until an object's bus interfaces have had
// their properties fetched.
//
// Ownership boundary:
// - one outstanding property fetch per (object, interface)
// - waiter fan-out, cancellation and owner teardown
// - multi-interface waits
//
// An interface is ready once its fetch has completed, whether or not the
// fetch succeeded: waiters see the error, later callers are not blocked.
package readiness
