// Package recovery classifies task failures and retries transient work.
//
// # Categories
//
// [Classify] maps an error onto one of seven categories. Message-content rules run first, in order,
// and the first match wins. Errors whose kind is known ([context.DeadlineExceeded], timeouts reported
// by [net.Error], [ErrOutOfMemory], [fs.ErrNotExist], [fs.ErrPermission]) then override the content
// match.
//
//   - memory, timeout, network: transient, retried by [Retry]
//   - permissions, not_found, corrupt_data, general: need intervention, fail immediately
//
// # Retry
//
// [Retry] runs a function up to MaxAttempts times, sleeping min(base*2^(attempt-1), max) between
// attempts, scaled by a uniform factor in [0.5, 1.5] when jitter is on. The final error is returned
// unchanged.
package recovery
