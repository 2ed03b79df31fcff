// Package server provides HTTP routing, middleware, and the task dashboard API.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally; routes are registered as "METHOD /path"
// patterns so wildcards like {id} are available through [http.Request.PathValue].
//
// # Dashboard API
//
//	POST   /api/tasks                 create a task {kind, input} -> {task_id}
//	GET    /api/tasks                 live task snapshots (?status=)
//	GET    /api/tasks/{id}            one snapshot
//	POST   /api/tasks/{id}/cancel     request cancellation
//	POST   /api/tasks/emergency-stop  cancel everything {reason}
//	GET    /api/kinds                 registered task kinds
//	GET    /api/history               durable records (?kind=&limit=)
//	DELETE /api/history               clear the history
//	GET    /api/events                server-sent events (?task_id=)
//	GET    /health                    liveness
//
// Request bodies are validated with go-playground/validator before they reach the task manager.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
