// Package dashboard holds the monitor's view of one batch process: per-job
// slots, aggregate progress and the human-readable strings derived from them.
//
// State transitions are pure functions (Apply, Reset) so they can be tested
// without a subscription; Widget owns a single State and serializes updates
// for the listener while allowing concurrent snapshots.
package dashboard
