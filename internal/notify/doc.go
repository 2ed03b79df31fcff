// Package notify turns task signals into outbound real-time events.
//
// The [Emitter] holds one long-lived [Publisher] set at process start and calls it on the worker's own
// stack, so events for a task leave in the order the worker produced them. Progress events are throttled.
// Terminal events (completed, error, cancelled) skip the throttle and are sent at most once per task until
// [Emitter.Forget] clears the guard on eviction. Publish failures are logged and never reach the task.
//
// [Broker] is the in-process Publisher behind the SSE endpoint: it fans events out to buffered subscriber
// channels and drops events for subscribers that fall behind.
package notify
