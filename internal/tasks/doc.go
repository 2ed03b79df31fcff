// Package tasks runs long operations as cancellable, observable background tasks.
//
// # Lifecycle
//
// [Manager.Create] registers a queued [Task], appends its history record, publishes task_started and
// starts one goroutine for the work. The work function receives a [Reporter]:
//
//  1. [Reporter.Report] updates progress (clamped to 0..100 and never decreasing), stats and the
//     [ProgressCache], then lets the notify.Emitter decide whether to publish.
//  2. Once the task's cancel flag is set, Report returns [ErrCancelled] before touching any state.
//     [Reporter.Context] is cancelled at the same moment so blocking I/O unwinds.
//
// When the work function returns, the task ends exactly once: nil means completed (progress 100),
// [ErrCancelled] (or any error after a cancel request) means cancelled, anything else is classified by the
// recovery package and fails the task. Panics are recovered and fail the task.
//
// # Cancellation
//
// [Manager.Cancel] only sets the flag. [Manager.EmergencyStop] sets it on every live task, waits a grace
// period and then marks whatever is still running as cancelled without waiting for the worker.
//
// # Cleanup
//
// The [Sweeper] runs on a cron schedule. It evicts finished tasks from the [Registry], clearing their
// emitter dedup guard, and drops old terminal entries from the [ProgressCache].
package tasks
