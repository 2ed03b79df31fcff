// Package models defines the task engine's data model shared by the engine, the history stores, the HTTP
// surface and the clients.
//
// The package contains three groups of types:
//
// 1. Lifecycle: [Status] and [Kind] with the transition rules of the task state machine.
//
// 2. Progress: [Stats] counters owned by a running task and the [Snapshot] derived from them. Derived
// fields are recomputed on every call to [Stats.Snapshot], never stored.
//
// 3. Persistence and transport: [Record] (a durable history entry), [TaskView] (a point-in-time read of a
// live task) and [CreateTaskRequest].
package models
